package store

import (
	"context"
	"errors"
	"strings"
	"sync"

	"oakvoices/internal/models"
	"oakvoices/internal/observability"
	"oakvoices/internal/remote"
)

// ProfileUpdate is a partial profile update. Nil pointers leave fields
// untouched.
type ProfileUpdate struct {
	Name      *string
	Bio       *string
	AvatarURL *string
	Role      *string
}

// AuthStore caches the current identity and exposes the role-check
// predicates gating every mutating post operation. The cached admin flag is
// a UI hint only; VerifyAdmin settles it against the remote store.
type AuthStore struct {
	mu    sync.RWMutex
	user  *models.User
	token string
	state models.AdminState

	auth     remote.Authenticator
	profiles remote.ProfileService
	snap     *Snapshot
	log      *observability.StoreLogger
}

// NewAuthStore returns an AuthStore over the given remote bindings. snap
// may be nil to disable local persistence.
func NewAuthStore(auth remote.Authenticator, profiles remote.ProfileService, snap *Snapshot) *AuthStore {
	return &AuthStore{
		auth:     auth,
		profiles: profiles,
		snap:     snap,
		log:      observability.NewStoreLogger("auth"),
	}
}

// Hydrate restores a persisted session identity. The restored admin flag is
// never trusted: AdminState resets to unknown until verified remotely.
func (s *AuthStore) Hydrate(ctx context.Context) {
	if s.snap == nil {
		return
	}
	user, token, ok := s.snap.LoadSession(ctx)
	if !ok {
		return
	}
	s.mu.Lock()
	s.user = &user
	s.token = token
	s.state = models.AdminUnknown
	s.mu.Unlock()
}

// Login delegates credential verification to the remote store and populates
// the local identity. A missing profile row is created on first login, with
// the email's local part as the default display name.
func (s *AuthStore) Login(ctx context.Context, email, password string) (models.User, error) {
	session, err := s.auth.SignIn(ctx, email, password)
	if err != nil {
		return models.User{}, err
	}

	profile, err := s.profiles.GetProfile(ctx, session.UserID)
	if err != nil {
		var appErr *models.AppError
		if !errors.As(err, &appErr) || appErr.Code != models.CodeNotFound {
			return models.User{}, err
		}
		name := session.Email
		if at := strings.Index(name, "@"); at > 0 {
			name = name[:at]
		}
		profile, err = s.profiles.InsertProfile(ctx, models.User{
			ID:   session.UserID,
			Name: name,
		})
		if err != nil {
			return models.User{}, err
		}
	}
	profile.Email = session.Email

	s.adopt(profile, session.Token)
	s.log.LogOp(ctx, "login", map[string]interface{}{"user_id": profile.ID})
	return profile, nil
}

// Register creates a new identity and its profile row, then populates the
// local identity.
func (s *AuthStore) Register(ctx context.Context, name, email, password string) (models.User, error) {
	if strings.TrimSpace(name) == "" {
		return models.User{}, models.NewValidationError("Name is required")
	}
	session, err := s.auth.SignUp(ctx, email, password)
	if err != nil {
		return models.User{}, err
	}

	profile, err := s.profiles.InsertProfile(ctx, models.User{
		ID:   session.UserID,
		Name: strings.TrimSpace(name),
	})
	if err != nil {
		return models.User{}, err
	}
	profile.Email = session.Email

	s.adopt(profile, session.Token)
	s.log.LogOp(ctx, "register", map[string]interface{}{"user_id": profile.ID})
	return profile, nil
}

// Logout signs the session out remotely and clears the local identity.
func (s *AuthStore) Logout(ctx context.Context) error {
	s.mu.RLock()
	token := s.token
	active := s.user != nil
	s.mu.RUnlock()
	if !active {
		return models.NewAuthError("No active session")
	}

	if err := s.auth.SignOut(ctx, token); err != nil {
		return err
	}

	s.mu.Lock()
	s.user = nil
	s.token = ""
	s.state = models.AdminUnknown
	s.mu.Unlock()

	if s.snap != nil {
		s.snap.ClearSession(ctx)
	}
	s.log.LogOp(ctx, "logout", nil)
	return nil
}

// UpdateProfile merges partial profile fields, persists them remotely, and
// adopts the canonical record returned by the store (which may normalize
// fields); the optimistic local view is never treated as final.
func (s *AuthStore) UpdateProfile(ctx context.Context, in ProfileUpdate) (models.User, error) {
	current, ok := s.Current()
	if !ok {
		return models.User{}, models.NewAuthError("No active session")
	}

	fields := map[string]any{}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return models.User{}, models.NewValidationError("Name is required")
		}
		fields["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Bio != nil {
		fields["bio"] = *in.Bio
	}
	if in.AvatarURL != nil {
		fields["avatar_url"] = *in.AvatarURL
	}
	if in.Role != nil {
		fields["role"] = *in.Role
	}
	if len(fields) == 0 {
		return current, nil
	}

	canonical, err := s.profiles.UpdateProfile(ctx, current.ID, fields)
	if err != nil {
		s.log.LogError(ctx, err, "update_profile")
		return models.User{}, err
	}
	canonical.Email = current.Email

	s.mu.Lock()
	token := s.token
	s.user = &canonical
	s.mu.Unlock()
	s.saveSession(ctx, canonical, token)
	return canonical, nil
}

// Current returns the cached identity, if a session is active.
func (s *AuthStore) Current() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return models.User{}, false
	}
	return *s.user, true
}

// Token returns the active session token, if any.
func (s *AuthStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// IsAdmin reports the locally cached admin flag. This is a UI hint, not a
// security boundary; the remote store is the authorization authority.
func (s *AuthStore) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.user.IsAdmin
}

// AdminState reports how the identity's admin flag was last settled.
func (s *AuthStore) AdminState() models.AdminState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsAuthor reports whether the cached identity authored the post.
func (s *AuthStore) IsAuthor(post models.Post) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.user.ID == post.AuthorID
}

// VerifyAdmin re-checks the admin flag against the remote store and updates
// the cached identity. Privileged views must call this rather than trusting
// the local flag, which can be stale or forged in a client environment.
func (s *AuthStore) VerifyAdmin(ctx context.Context) (bool, error) {
	current, ok := s.Current()
	if !ok {
		return false, models.NewAuthError("No active session")
	}

	profile, err := s.profiles.GetProfile(ctx, current.ID)
	if err != nil {
		s.log.LogError(ctx, err, "verify_admin")
		return false, err
	}
	profile.Email = current.Email

	s.mu.Lock()
	token := s.token
	s.user = &profile
	if profile.IsAdmin {
		s.state = models.AdminYes
	} else {
		s.state = models.AdminNo
	}
	s.mu.Unlock()

	s.saveSession(ctx, profile, token)
	return profile.IsAdmin, nil
}

func (s *AuthStore) adopt(user models.User, token string) {
	s.mu.Lock()
	s.user = &user
	s.token = token
	// The profile row was just read from the remote store, so the flag is
	// fresh enough to settle the state.
	if user.IsAdmin {
		s.state = models.AdminYes
	} else {
		s.state = models.AdminNo
	}
	s.mu.Unlock()
	s.saveSession(context.Background(), user, token)
}

func (s *AuthStore) saveSession(ctx context.Context, user models.User, token string) {
	if s.snap == nil {
		return
	}
	s.snap.SaveSession(ctx, user, token)
}
