package store

import (
	"context"
	"testing"
	"time"

	"oakvoices/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotWithRedis(t *testing.T) (*Snapshot, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewSnapshot(rdb, "test"), mr
}

func TestSnapshot_SessionRoundTrip(t *testing.T) {
	snap, _ := snapshotWithRedis(t)
	ctx := context.Background()

	user := models.User{ID: "user-1", Email: "ada@example.com", Name: "Ada", Role: models.DefaultRole}
	snap.SaveSession(ctx, user, "token-1")

	got, token, ok := snap.LoadSession(ctx)
	require.True(t, ok)
	assert.Equal(t, user, got)
	assert.Equal(t, "token-1", token)
}

func TestSnapshot_ClearSession(t *testing.T) {
	snap, _ := snapshotWithRedis(t)
	ctx := context.Background()

	snap.SaveSession(ctx, models.User{ID: "user-1"}, "token-1")
	snap.ClearSession(ctx)

	_, _, ok := snap.LoadSession(ctx)
	assert.False(t, ok)
}

func TestSnapshot_PostsRoundTrip(t *testing.T) {
	snap, _ := snapshotWithRedis(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	posts := []models.Post{{ID: "post-1", Title: "First", Status: models.StatusApproved, Published: true, CreatedAt: now}}
	drafts := []models.Post{{ID: "draft-1", Title: "Scratch", Status: models.StatusDraft, CreatedAt: now}}
	snap.SavePosts(ctx, posts, drafts)

	gotPosts, gotDrafts, ok := snap.LoadPosts(ctx)
	require.True(t, ok)
	assert.Equal(t, posts, gotPosts)
	assert.Equal(t, drafts, gotDrafts)
}

func TestSnapshot_IndependentEntries(t *testing.T) {
	snap, _ := snapshotWithRedis(t)
	ctx := context.Background()

	snap.SaveSession(ctx, models.User{ID: "user-1"}, "token-1")
	snap.SavePosts(ctx, []models.Post{{ID: "post-1"}}, nil)

	// Dropping one entry must not disturb the other.
	snap.ClearSession(ctx)
	posts, _, ok := snap.LoadPosts(ctx)
	require.True(t, ok)
	assert.Len(t, posts, 1)
}

func TestSnapshot_MissingEntry(t *testing.T) {
	snap, _ := snapshotWithRedis(t)
	ctx := context.Background()

	_, _, ok := snap.LoadSession(ctx)
	assert.False(t, ok)
	_, _, ok2 := snap.LoadPosts(ctx)
	assert.False(t, ok2)
}

func TestSnapshot_CorruptEntryIgnored(t *testing.T) {
	snap, mr := snapshotWithRedis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("test:posts", "not json"))
	_, _, ok := snap.LoadPosts(ctx)
	assert.False(t, ok)
}

func TestSnapshot_NilClientNoops(t *testing.T) {
	snap := NewSnapshot(nil, "")
	ctx := context.Background()

	snap.SaveSession(ctx, models.User{ID: "user-1"}, "token-1")
	snap.SavePosts(ctx, []models.Post{{ID: "post-1"}}, nil)
	snap.ClearSession(ctx)

	_, _, ok := snap.LoadSession(ctx)
	assert.False(t, ok)
}

func TestSnapshot_HydratePostStore(t *testing.T) {
	snap, _ := snapshotWithRedis(t)
	ctx := context.Background()

	snap.SavePosts(ctx, []models.Post{{ID: "post-1", Title: "Restored"}}, []models.Post{{ID: "draft-1"}})

	ps := NewPostStore(noopData(), sessionWith(nil), snap)
	ps.Hydrate(ctx)

	post, ok := ps.GetById("post-1")
	require.True(t, ok)
	assert.Equal(t, "Restored", post.Title)
	assert.Zero(t, ps.Generation(), "hydrated data is provisional, not a refresh")

	// A store that already fetched never hydrates over live data.
	require.NoError(t, ps.FetchAll(ctx))
	ps.Hydrate(ctx)
	_, ok = ps.GetById("post-1")
	assert.False(t, ok)
}

func TestSnapshot_HydrateAuthStore(t *testing.T) {
	snap, _ := snapshotWithRedis(t)
	ctx := context.Background()

	snap.SaveSession(ctx, models.User{ID: "user-1", Name: "Ada", IsAdmin: true}, "token-1")

	s := NewAuthStore(noopAuth(), noopProfiles(), snap)
	s.Hydrate(ctx)

	current, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "Ada", current.Name)
	assert.Equal(t, "token-1", s.Token())
	assert.Equal(t, models.AdminUnknown, s.AdminState(), "restored admin flag is unverified")
}
