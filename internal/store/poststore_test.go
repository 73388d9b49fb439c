package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"oakvoices/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertAppError asserts that err is an AppError with the given code.
func assertAppError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
}

func author() *models.User {
	return &models.User{ID: "author-1", Name: "Ada", Role: models.DefaultRole}
}

func admin() *models.User {
	return &models.User{ID: "admin-1", Name: "Root", IsAdmin: true}
}

func pendingPost(id, authorID string) models.Post {
	now := time.Now().UTC()
	return models.Post{
		ID:        id,
		Title:     "T",
		Content:   "C",
		Excerpt:   "E",
		Category:  models.CategoryLatestRoots,
		Hashtags:  []string{},
		AuthorID:  authorID,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestPostStore_Create_Validation(t *testing.T) {
	t.Parallel()

	s := NewPostStore(noopData(), sessionWith(author()), nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		input CreatePostInput
	}{
		{"empty title", CreatePostInput{Content: "C", Excerpt: "E"}},
		{"blank title", CreatePostInput{Title: "   ", Content: "C", Excerpt: "E"}},
		{"empty content", CreatePostInput{Title: "T", Excerpt: "E"}},
		{"blank content", CreatePostInput{Title: "T", Content: "\n\t", Excerpt: "E"}},
		{"empty excerpt", CreatePostInput{Title: "T", Content: "C"}},
		{"unknown category", CreatePostInput{Title: "T", Content: "C", Excerpt: "E", Category: "Cooking"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(ctx, tt.input)
			assertAppError(t, err, models.CodeValidation)
		})
	}

	assert.Empty(t, s.Published(), "failed creates must not touch the cache")
}

func TestPostStore_Create_NoSession(t *testing.T) {
	t.Parallel()

	s := NewPostStore(noopData(), sessionWith(nil), nil)
	_, err := s.Create(context.Background(), CreatePostInput{Title: "T", Content: "C", Excerpt: "E"})
	assertAppError(t, err, models.CodeAuth)
}

func TestPostStore_Create_StartsPending(t *testing.T) {
	t.Parallel()

	data := noopData()
	var inserted models.Post
	data.insertFn = func(_ context.Context, p models.Post) (models.Post, error) {
		inserted = p
		p.ID = "post-1"
		now := time.Now().UTC()
		p.CreatedAt = now
		p.UpdatedAt = now
		return p, nil
	}

	s := NewPostStore(data, sessionWith(author()), nil)
	post, err := s.Create(context.Background(), CreatePostInput{
		Title:    "T",
		Content:  "C",
		Excerpt:  "E",
		Hashtags: []string{"a", "b", "A", ""},
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, post.Status)
	assert.False(t, post.Published)
	assert.Equal(t, "author-1", post.AuthorID)
	assert.Equal(t, "post-1", post.ID)
	assert.Equal(t, []string{"a", "b"}, post.Hashtags)
	assert.Equal(t, models.StatusPending, inserted.Status, "remote submission must already be pending")

	cached, ok := s.GetById("post-1")
	require.True(t, ok)
	assert.Equal(t, post, cached)

	// Pending posts are invisible publicly.
	assert.Empty(t, s.Published())
	assert.Empty(t, s.ByHashtag("a"))
	assert.Len(t, s.Pending(), 1)
	assert.Len(t, s.PendingByAuthor("author-1"), 1)
}

func TestPostStore_Create_RemoteFailureLeavesCache(t *testing.T) {
	t.Parallel()

	data := noopData()
	data.insertFn = func(_ context.Context, _ models.Post) (models.Post, error) {
		return models.Post{}, models.NewRemoteError("insert failed", errors.New("boom"))
	}

	s := NewPostStore(data, sessionWith(author()), nil)
	_, err := s.Create(context.Background(), CreatePostInput{Title: "T", Content: "C", Excerpt: "E"})
	assertAppError(t, err, models.CodeRemote)

	_, ok := s.GetById("post-1")
	assert.False(t, ok)
	assert.Equal(t, uint64(0), s.Generation())
}

func TestPostStore_FetchAll_ReplacesCache(t *testing.T) {
	t.Parallel()

	first := pendingPost("old-1", "author-1")
	second := pendingPost("new-1", "author-1")
	second.CreatedAt = first.CreatedAt.Add(time.Hour)

	calls := 0
	data := noopData()
	data.listFn = func(_ context.Context) ([]models.Post, error) {
		calls++
		if calls == 1 {
			return []models.Post{first}, nil
		}
		return []models.Post{first, second}, nil
	}

	s := NewPostStore(data, sessionWith(author()), nil)
	ctx := context.Background()

	require.NoError(t, s.FetchAll(ctx))
	got, ok := s.GetById("old-1")
	require.True(t, ok)
	assert.Equal(t, first, got)
	_, ok = s.GetById("new-1")
	assert.False(t, ok)

	require.NoError(t, s.FetchAll(ctx))
	assert.Equal(t, uint64(2), s.Generation())

	// Newest first after the replace.
	pendings := s.Pending()
	require.Len(t, pendings, 2)
	assert.Equal(t, "new-1", pendings[0].ID)

	// Absent ids return a not-found indicator, never an error.
	_, ok = s.GetById("missing")
	assert.False(t, ok)
}

func TestPostStore_FetchAll_ErrorLeavesCache(t *testing.T) {
	t.Parallel()

	data := noopData()
	data.listFn = func(_ context.Context) ([]models.Post, error) {
		return []models.Post{pendingPost("p-1", "author-1")}, nil
	}
	s := NewPostStore(data, sessionWith(author()), nil)
	require.NoError(t, s.FetchAll(context.Background()))

	data.listFn = func(_ context.Context) ([]models.Post, error) {
		return nil, models.NewRemoteError("list failed", errors.New("down"))
	}
	err := s.FetchAll(context.Background())
	assertAppError(t, err, models.CodeRemote)

	_, ok := s.GetById("p-1")
	assert.True(t, ok, "cache must keep the last committed state")
	assert.Equal(t, uint64(1), s.Generation())
}

func TestPostStore_FetchAll_DiscardsAfterCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	data := noopData()
	data.listFn = func(_ context.Context) ([]models.Post, error) {
		// Cancellation lands while the fetch is in flight.
		cancel()
		return []models.Post{pendingPost("late-1", "author-1")}, nil
	}

	s := NewPostStore(data, sessionWith(author()), nil)
	err := s.FetchAll(ctx)
	require.Error(t, err)

	_, ok := s.GetById("late-1")
	assert.False(t, ok, "late results must be discarded, not applied")
	assert.Equal(t, uint64(0), s.Generation())
}

func TestPostStore_TransitionStatus_Approve(t *testing.T) {
	t.Parallel()

	data := noopData()
	data.listFn = func(_ context.Context) ([]models.Post, error) {
		return []models.Post{pendingPost("p-1", "author-1")}, nil
	}
	var persisted map[string]any
	data.updateFn = func(_ context.Context, id string, fields map[string]any) error {
		persisted = fields
		return nil
	}

	s := NewPostStore(data, sessionWith(admin()), nil)
	require.NoError(t, s.FetchAll(context.Background()))

	post, err := s.TransitionStatus(context.Background(), "p-1", models.StatusApproved, "looks good")
	require.NoError(t, err)

	assert.Equal(t, models.StatusApproved, post.Status)
	assert.True(t, post.Published)
	assert.Equal(t, "admin-1", post.ReviewedBy)
	assert.Equal(t, "looks good", post.ReviewNotes)
	require.NotNil(t, post.ReviewedAt)

	// The remote write carries the full audit stamp.
	assert.Equal(t, "approved", persisted["status"])
	assert.Equal(t, true, persisted["published"])
	assert.Equal(t, "admin-1", persisted["reviewed_by"])
	assert.Equal(t, "looks good", persisted["review_notes"])

	// Approved and published: now publicly visible.
	assert.Len(t, s.Published(), 1)
	assert.Empty(t, s.Pending())
}

func TestPostStore_TransitionStatus_ApproveDefaultNotes(t *testing.T) {
	t.Parallel()

	data := noopData()
	data.listFn = func(_ context.Context) ([]models.Post, error) {
		return []models.Post{pendingPost("p-1", "author-1")}, nil
	}
	s := NewPostStore(data, sessionWith(admin()), nil)
	require.NoError(t, s.FetchAll(context.Background()))

	post, err := s.TransitionStatus(context.Background(), "p-1", models.StatusApproved, "  ")
	require.NoError(t, err)
	assert.Equal(t, "Approved", post.ReviewNotes)
}

func TestPostStore_TransitionStatus_RejectRequiresNotes(t *testing.T) {
	t.Parallel()

	data := noopData()
	data.listFn = func(_ context.Context) ([]models.Post, error) {
		return []models.Post{pendingPost("p-1", "author-1")}, nil
	}
	s := NewPostStore(data, sessionWith(admin()), nil)
	require.NoError(t, s.FetchAll(context.Background()))

	_, err := s.TransitionStatus(context.Background(), "p-1", models.StatusRejected, "   ")
	assertAppError(t, err, models.CodeValidation)

	cached, _ := s.GetById("p-1")
	assert.Equal(t, models.StatusPending, cached.Status, "failed reject must not mutate the cache")

	post, err := s.TransitionStatus(context.Background(), "p-1", models.StatusRejected, "needs sources")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, post.Status)
	assert.False(t, post.Published)
	assert.Equal(t, "admin-1", post.ReviewedBy)
	assert.Equal(t, "needs sources", post.ReviewNotes)
	require.NotNil(t, post.ReviewedAt)
}

func TestPostStore_TransitionStatus_NonAdminDenied(t *testing.T) {
	t.Parallel()

	data := noopData()
	data.listFn = func(_ context.Context) ([]models.Post, error) {
		return []models.Post{pendingPost("p-1", "author-1")}, nil
	}
	remoteTouched := false
	data.updateFn = func(_ context.Context, _ string, _ map[string]any) error {
		remoteTouched = true
		return nil
	}

	s := NewPostStore(data, sessionWith(author()), nil)
	require.NoError(t, s.FetchAll(context.Background()))

	_, err := s.TransitionStatus(context.Background(), "p-1", models.StatusApproved, "")
	assertAppError(t, err, models.CodeAuth)

	assert.False(t, remoteTouched, "denied transitions must never reach the remote store")
	cached, _ := s.GetById("p-1")
	assert.Equal(t, models.StatusPending, cached.Status)
	assert.False(t, cached.Published)
}

func TestPostStore_TransitionStatus_IllegalTransitions(t *testing.T) {
	t.Parallel()

	approved := pendingPost("p-1", "author-1")
	approved.Status = models.StatusApproved
	approved.Published = true

	data := noopData()
	data.listFn = func(_ context.Context) ([]models.Post, error) {
		return []models.Post{approved, pendingPost("p-2", "author-1")}, nil
	}
	s := NewPostStore(data, sessionWith(admin()), nil)
	require.NoError(t, s.FetchAll(context.Background()))

	// Approved posts do not transition again; reversal is not modeled.
	_, err := s.TransitionStatus(context.Background(), "p-1", models.StatusRejected, "n")
	assertAppError(t, err, models.CodeValidation)

	// Pending never transitions straight to draft.
	_, err = s.TransitionStatus(context.Background(), "p-2", models.StatusDraft, "n")
	assertAppError(t, err, models.CodeValidation)

	// Unknown id reports not found.
	_, err = s.TransitionStatus(context.Background(), "missing", models.StatusApproved, "")
	assertAppError(t, err, models.CodeNotFound)
}

func TestPostStore_TransitionStatus_RemoteFailureLeavesCache(t *testing.T) {
	t.Parallel()

	data := noopData()
	data.listFn = func(_ context.Context) ([]models.Post, error) {
		return []models.Post{pendingPost("p-1", "author-1")}, nil
	}
	data.updateFn = func(_ context.Context, _ string, _ map[string]any) error {
		return models.NewRemoteError("update failed", errors.New("down"))
	}

	s := NewPostStore(data, sessionWith(admin()), nil)
	require.NoError(t, s.FetchAll(context.Background()))

	_, err := s.TransitionStatus(context.Background(), "p-1", models.StatusApproved, "")
	assertAppError(t, err, models.CodeRemote)

	cached, _ := s.GetById("p-1")
	assert.Equal(t, models.StatusPending, cached.Status)
	assert.False(t, cached.Published)
}

func TestPostStore_PublishedApprovedInvariant(t *testing.T) {
	t.Parallel()

	data := noopData()
	data.listFn = func(_ context.Context) ([]models.Post, error) {
		return []models.Post{
			pendingPost("p-1", "author-1"),
			pendingPost("p-2", "author-1"),
		}, nil
	}
	s := NewPostStore(data, sessionWith(admin()), nil)
	require.NoError(t, s.FetchAll(context.Background()))

	_, err := s.TransitionStatus(context.Background(), "p-1", models.StatusApproved, "")
	require.NoError(t, err)
	_, err = s.TransitionStatus(context.Background(), "p-2", models.StatusRejected, "not ready")
	require.NoError(t, err)

	for _, id := range []string{"p-1", "p-2"} {
		p, ok := s.GetById(id)
		require.True(t, ok)
		assert.Equal(t, p.Published, p.Status == models.StatusApproved,
			"published must hold exactly for approved posts (post %s)", id)
	}
}

func TestPostStore_Delete(t *testing.T) {
	t.Parallel()

	data := noopData()
	data.listFn = func(_ context.Context) ([]models.Post, error) {
		return []models.Post{pendingPost("p-1", "author-1")}, nil
	}
	var order []string
	data.deleteTagsFn = func(_ context.Context, postID string) error {
		order = append(order, "tags:"+postID)
		return nil
	}
	data.deleteFn = func(_ context.Context, id string) error {
		order = append(order, "post:"+id)
		return nil
	}

	s := NewPostStore(data, sessionWith(author()), nil)
	require.NoError(t, s.FetchAll(context.Background()))

	require.NoError(t, s.Delete(context.Background(), "p-1"))
	assert.Equal(t, []string{"tags:p-1", "post:p-1"}, order,
		"hashtag rows go first to satisfy referential integrity")

	_, ok := s.GetById("p-1")
	assert.False(t, ok)
	assert.Empty(t, s.Pending())

	// Deleting again fails gracefully with not found; no cache corruption.
	err := s.Delete(context.Background(), "p-1")
	assertAppError(t, err, models.CodeNotFound)
}

func TestPostStore_Delete_PostRowFailureLeavesCache(t *testing.T) {
	t.Parallel()

	data := noopData()
	data.listFn = func(_ context.Context) ([]models.Post, error) {
		return []models.Post{pendingPost("p-1", "author-1")}, nil
	}
	data.deleteFn = func(_ context.Context, _ string) error {
		return models.NewRemoteError("delete failed", errors.New("down"))
	}

	s := NewPostStore(data, sessionWith(author()), nil)
	require.NoError(t, s.FetchAll(context.Background()))

	err := s.Delete(context.Background(), "p-1")
	assertAppError(t, err, models.CodeRemote)

	// Hashtags may be orphaned remotely, but the cache still matches the
	// last successfully committed remote state.
	_, ok := s.GetById("p-1")
	assert.True(t, ok)
}

func TestPostStore_Delete_RequiresOwnership(t *testing.T) {
	t.Parallel()

	data := noopData()
	data.listFn = func(_ context.Context) ([]models.Post, error) {
		return []models.Post{pendingPost("p-1", "author-1")}, nil
	}
	other := &models.User{ID: "other-1", Name: "Eve"}
	s := NewPostStore(data, sessionWith(other), nil)
	require.NoError(t, s.FetchAll(context.Background()))

	err := s.Delete(context.Background(), "p-1")
	assertAppError(t, err, models.CodeAuth)
	_, ok := s.GetById("p-1")
	assert.True(t, ok)
}

func TestPostStore_Update_ResubmitsRejected(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	rejected := pendingPost("p-1", "author-1")
	rejected.Status = models.StatusRejected
	rejected.ReviewedBy = "admin-1"
	rejected.ReviewedAt = &now
	rejected.ReviewNotes = "needs sources"

	data := noopData()
	data.listFn = func(_ context.Context) ([]models.Post, error) {
		return []models.Post{rejected}, nil
	}
	var persisted map[string]any
	data.updateFn = func(_ context.Context, _ string, fields map[string]any) error {
		persisted = fields
		return nil
	}

	s := NewPostStore(data, sessionWith(author()), nil)
	require.NoError(t, s.FetchAll(context.Background()))

	title := "Better title"
	post, err := s.Update(context.Background(), "p-1", UpdatePostInput{Title: &title})
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, post.Status, "editing a rejected post resubmits it")
	assert.False(t, post.Published)
	assert.Empty(t, post.ReviewedBy)
	assert.Nil(t, post.ReviewedAt)
	assert.Empty(t, post.ReviewNotes)
	assert.Equal(t, "Better title", post.Title)
	assert.Equal(t, "pending", persisted["status"])

	assert.Len(t, s.Pending(), 1)
}

func TestPostStore_Update_AdminCannotEditContent(t *testing.T) {
	t.Parallel()

	data := noopData()
	data.listFn = func(_ context.Context) ([]models.Post, error) {
		return []models.Post{pendingPost("p-1", "author-1")}, nil
	}
	data.updateFn = func(_ context.Context, _ string, _ map[string]any) error {
		t.Fatal("content edit by a non-author must never reach the remote store")
		return nil
	}

	s := NewPostStore(data, sessionWith(admin()), nil)
	require.NoError(t, s.FetchAll(context.Background()))

	title := "Reworded by reviewer"
	_, err := s.Update(context.Background(), "p-1", UpdatePostInput{Title: &title})
	assertAppError(t, err, models.CodeAuth)

	cached, _ := s.GetById("p-1")
	assert.Equal(t, "T", cached.Title)
}

func TestPostStore_Update_RemoteFirst(t *testing.T) {
	t.Parallel()

	data := noopData()
	data.listFn = func(_ context.Context) ([]models.Post, error) {
		return []models.Post{pendingPost("p-1", "author-1")}, nil
	}
	data.updateFn = func(_ context.Context, _ string, _ map[string]any) error {
		return models.NewRemoteError("update failed", errors.New("down"))
	}

	s := NewPostStore(data, sessionWith(author()), nil)
	require.NoError(t, s.FetchAll(context.Background()))

	title := "New"
	_, err := s.Update(context.Background(), "p-1", UpdatePostInput{Title: &title})
	assertAppError(t, err, models.CodeRemote)

	cached, _ := s.GetById("p-1")
	assert.Equal(t, "T", cached.Title, "cache updates only from the reconciliation step")
}

func TestPostStore_QueryHelpers_VisibilityFilter(t *testing.T) {
	t.Parallel()

	approved := pendingPost("a-1", "author-1")
	approved.Status = models.StatusApproved
	approved.Published = true
	approved.Category = models.CategoryClimate
	approved.Hashtags = []string{"a", "b"}

	pending := pendingPost("p-1", "author-1")
	pending.Category = models.CategoryClimate
	pending.Hashtags = []string{"a"}

	data := noopData()
	data.listFn = func(_ context.Context) ([]models.Post, error) {
		return []models.Post{approved, pending}, nil
	}
	s := NewPostStore(data, sessionWith(author()), nil)
	require.NoError(t, s.FetchAll(context.Background()))

	byTag := s.ByHashtag("a")
	require.Len(t, byTag, 1, "pending posts are excluded from public hashtag queries")
	assert.Equal(t, "a-1", byTag[0].ID)

	assert.Len(t, s.ByCategory(models.CategoryClimate), 1)
	assert.Empty(t, s.ByCategory(models.CategoryHealth))
	assert.Len(t, s.ByAuthor("author-1"), 1)
	assert.Len(t, s.Search("b"), 1)
	assert.Empty(t, s.Search("zzz"))
}

func TestPostStore_Drafts(t *testing.T) {
	t.Parallel()

	data := noopData()
	inserted := false
	data.insertFn = func(_ context.Context, p models.Post) (models.Post, error) {
		inserted = true
		p.ID = "remote-1"
		return p, nil
	}

	s := NewPostStore(data, sessionWith(author()), nil)
	ctx := context.Background()

	draft, err := s.SaveDraft(ctx, CreatePostInput{Title: "D", Content: "C", Excerpt: "E"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, draft.Status)
	assert.False(t, inserted, "drafts stay local until published")

	got, ok := s.GetById(draft.ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusDraft, got.Status)
	assert.Len(t, s.Drafts("author-1"), 1)

	published, err := s.PublishDraft(ctx, draft.ID)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, "remote-1", published.ID)
	assert.Equal(t, models.StatusPending, published.Status)
	assert.Empty(t, s.Drafts("author-1"))
}

func TestPostStore_Subscribe(t *testing.T) {
	t.Parallel()

	data := noopData()
	data.listFn = func(_ context.Context) ([]models.Post, error) { return nil, nil }
	s := NewPostStore(data, sessionWith(author()), nil)

	ch, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.FetchAll(context.Background()))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a change tick after FetchAll")
	}
}
