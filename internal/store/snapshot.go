package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"oakvoices/internal/models"
	"oakvoices/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Snapshot persists two independent key-value entries across restarts: the
// session identity and the post/draft cache. Hydrated data is provisional;
// the first authoritative FetchAll overwrites it. A nil Redis client makes
// every operation a no-op, and persistence failures are logged, never
// surfaced; local snapshots are a convenience, not a source of truth.
type Snapshot struct {
	rdb    *redis.Client
	prefix string
}

// NewSnapshot returns a Snapshot using the given key prefix ("oakvoices"
// when empty). rdb may be nil.
func NewSnapshot(rdb *redis.Client, prefix string) *Snapshot {
	if prefix == "" {
		prefix = "oakvoices"
	}
	return &Snapshot{rdb: rdb, prefix: prefix}
}

type sessionSnapshot struct {
	User  models.User `json:"user"`
	Token string      `json:"token"`
}

type postsSnapshot struct {
	Posts   []models.Post `json:"posts"`
	Drafts  []models.Post `json:"drafts"`
	SavedAt time.Time     `json:"saved_at"`
}

func (s *Snapshot) sessionKey() string { return s.prefix + ":session" }
func (s *Snapshot) postsKey() string   { return s.prefix + ":posts" }

// SaveSession persists the session identity entry.
func (s *Snapshot) SaveSession(ctx context.Context, user models.User, token string) {
	s.save(ctx, "session", s.sessionKey(), sessionSnapshot{User: user, Token: token})
}

// LoadSession restores the session identity entry.
func (s *Snapshot) LoadSession(ctx context.Context) (models.User, string, bool) {
	var snap sessionSnapshot
	if !s.load(ctx, "session", s.sessionKey(), &snap) {
		return models.User{}, "", false
	}
	return snap.User, snap.Token, true
}

// ClearSession removes the session identity entry.
func (s *Snapshot) ClearSession(ctx context.Context) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, s.sessionKey()).Err(); err != nil {
		observability.RedisErrors.WithLabelValues("del").Inc()
		slog.WarnContext(ctx, "failed to clear session snapshot", "err", err)
	}
}

// SavePosts persists the post/draft cache entry.
func (s *Snapshot) SavePosts(ctx context.Context, posts, drafts []models.Post) {
	s.save(ctx, "posts", s.postsKey(), postsSnapshot{
		Posts:   posts,
		Drafts:  drafts,
		SavedAt: time.Now().UTC(),
	})
}

// LoadPosts restores the post/draft cache entry.
func (s *Snapshot) LoadPosts(ctx context.Context) (posts, drafts []models.Post, ok bool) {
	var snap postsSnapshot
	if !s.load(ctx, "posts", s.postsKey(), &snap) {
		return nil, nil, false
	}
	return snap.Posts, snap.Drafts, true
}

func (s *Snapshot) save(ctx context.Context, entry, key string, value any) {
	if s.rdb == nil {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		observability.SnapshotOps.WithLabelValues(entry, "error").Inc()
		slog.WarnContext(ctx, "failed to encode snapshot", "entry", entry, "err", err)
		return
	}
	if err := s.rdb.Set(ctx, key, payload, 0).Err(); err != nil {
		observability.SnapshotOps.WithLabelValues(entry, "error").Inc()
		observability.RedisErrors.WithLabelValues("set").Inc()
		slog.WarnContext(ctx, "failed to persist snapshot", "entry", entry, "err", err)
		return
	}
	observability.SnapshotOps.WithLabelValues(entry, "ok").Inc()
}

func (s *Snapshot) load(ctx context.Context, entry, key string, out any) bool {
	if s.rdb == nil {
		return false
	}
	payload, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			observability.SnapshotOps.WithLabelValues(entry, "error").Inc()
			observability.RedisErrors.WithLabelValues("get").Inc()
			slog.WarnContext(ctx, "failed to load snapshot", "entry", entry, "err", err)
		}
		return false
	}
	if err := json.Unmarshal(payload, out); err != nil {
		observability.SnapshotOps.WithLabelValues(entry, "error").Inc()
		slog.WarnContext(ctx, "failed to decode snapshot", "entry", entry, "err", err)
		return false
	}
	observability.SnapshotOps.WithLabelValues(entry, "ok").Inc()
	return true
}
