package models

import "time"

// DefaultRole is the role label assigned to new profiles.
const DefaultRole = "Community Contributor"

// AdminState tracks how much we trust the locally cached admin flag.
// The local flag is a UI hint; only a remote profile read settles it.
type AdminState int

const (
	// AdminUnknown means the identity has not been verified remotely yet.
	AdminUnknown AdminState = iota
	// AdminNo means the remote store confirmed a non-admin identity.
	AdminNo
	// AdminYes means the remote store confirmed the admin flag.
	AdminYes
)

func (s AdminState) String() string {
	switch s {
	case AdminNo:
		return "user"
	case AdminYes:
		return "admin"
	default:
		return "unknown"
	}
}

// User is a profile row; the ID is shared with the remote auth identity.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name"`
	Bio       string    `json:"bio,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Role      string    `json:"role"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}
