// Package remote defines the contract the application expects from the
// hosted data service: relational reads/writes, authentication, blob
// storage, and a change feed. Concrete bindings live in subpackages.
package remote

import (
	"context"
	"io"
	"time"

	"oakvoices/internal/models"
)

// Post field names accepted by DataService.UpdatePost. Field-ownership
// rules (author vs. admin) are enforced by the binding.
const (
	FieldTitle       = "title"
	FieldContent     = "content"
	FieldExcerpt     = "excerpt"
	FieldCoverImage  = "cover_image"
	FieldCategory    = "category"
	FieldPublished   = "published"
	FieldStatus      = "status"
	FieldReviewedBy  = "reviewed_by"
	FieldReviewedAt  = "reviewed_at"
	FieldReviewNotes = "review_notes"
	FieldUpdatedAt   = "updated_at"
)

// DataService is the relational side of the remote store.
type DataService interface {
	// ListPosts returns every post with joined author name/role and hashtag
	// rows, ordered by creation time descending.
	ListPosts(ctx context.Context) ([]models.Post, error)

	// InsertPost stores a new post and returns the canonical record with
	// the server-assigned id and timestamps.
	InsertPost(ctx context.Context, post models.Post) (models.Post, error)

	// UpdatePost applies an arbitrary subset of post fields by id.
	UpdatePost(ctx context.Context, id string, fields map[string]any) error

	// DeletePost removes the post row by id.
	DeletePost(ctx context.Context, id string) error

	// DeleteHashtags removes every hashtag row owned by the post.
	DeleteHashtags(ctx context.Context, postID string) error

	// InsertHashtags bulk-inserts hashtag rows for the post.
	InsertHashtags(ctx context.Context, postID string, tags []string) error
}

// ProfileService reads and writes single profile rows.
type ProfileService interface {
	GetProfile(ctx context.Context, id string) (models.User, error)
	InsertProfile(ctx context.Context, profile models.User) (models.User, error)
	// UpdateProfile merges the given fields and returns the canonical row;
	// callers must adopt the return value since the store may normalize
	// fields.
	UpdateProfile(ctx context.Context, id string, fields map[string]any) (models.User, error)
}

// Session is a remote auth session: the identity id plus an opaque token.
type Session struct {
	UserID    string
	Email     string
	Token     string
	ExpiresAt time.Time
}

// Authenticator is the email+password auth side of the remote store.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (Session, error)
	SignUp(ctx context.Context, email, password string) (Session, error)
	SignOut(ctx context.Context, token string) error
	// Resolve validates a token and returns the session it belongs to.
	Resolve(ctx context.Context, token string) (Session, error)
}

// EventOp is the kind of change carried by a feed event.
type EventOp string

const (
	OpInsert EventOp = "INSERT"
	OpUpdate EventOp = "UPDATE"
	OpDelete EventOp = "DELETE"
)

// Event is a change-feed notification. The payload intentionally carries no
// row data; consumers treat it purely as a refresh trigger. Delivery is
// at-least-once and may reorder.
type Event struct {
	Table string  `json:"table"`
	Op    EventOp `json:"op"`
	ID    string  `json:"id,omitempty"`
}

// Feed is a subscription channel for posts-table change events.
type Feed interface {
	// Subscribe returns a channel of events. The channel closes when ctx is
	// cancelled.
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// Publisher pushes change events into the feed. Bindings that are also the
// system of record implement both sides.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// BlobStore uploads binary blobs to a named bucket.
type BlobStore interface {
	// EnsureBucket checks that the bucket exists, creating it if needed.
	EnsureBucket(ctx context.Context, bucket string) error
	// Upload stores the blob under a unique name and returns its publicly
	// resolvable URL.
	Upload(ctx context.Context, bucket, filename, contentType string, r io.Reader) (string, error)
}
