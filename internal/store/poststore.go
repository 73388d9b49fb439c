// Package store holds the client-side state layer: in-memory caches of
// posts and the session identity, kept eventually consistent with the
// remote data service. Stores are constructed at startup, injected into
// consumers, and notify subscribers on every cache change.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"oakvoices/internal/models"
	"oakvoices/internal/observability"
	"oakvoices/internal/remote"

	"github.com/google/uuid"
)

// CreatePostInput is the payload for creating a post or draft.
type CreatePostInput struct {
	Title      string
	Content    string
	Excerpt    string
	CoverImage string
	Category   models.Category
	Hashtags   []string
}

// UpdatePostInput is a partial update of content fields. Nil pointers leave
// the field untouched.
type UpdatePostInput struct {
	Title      *string
	Content    *string
	Excerpt    *string
	CoverImage *string
	Category   *models.Category
	Hashtags   *[]string
}

// PostStore is the single in-memory source of truth for posts and drafts
// within a client session. The cache is shared mutable state guarded by a
// RWMutex; fetches replace it wholesale, so interleavings are safe at the
// granularity of the whole cache and the last write wins.
type PostStore struct {
	mu     sync.RWMutex
	posts  []models.Post
	drafts []models.Post
	gen    uint64

	data    remote.DataService
	session *AuthStore
	snap    *Snapshot
	log     *observability.StoreLogger

	subMu sync.Mutex
	subs  map[chan struct{}]struct{}
}

// NewPostStore returns a PostStore over the given remote binding. snap may
// be nil to disable local persistence.
func NewPostStore(data remote.DataService, session *AuthStore, snap *Snapshot) *PostStore {
	return &PostStore{
		data:    data,
		session: session,
		snap:    snap,
		log:     observability.NewStoreLogger("posts"),
		subs:    make(map[chan struct{}]struct{}),
	}
}

// Subscribe registers a change listener. The returned channel receives a
// tick after every cache change; the cancel func unregisters it.
func (s *PostStore) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()
	return ch, func() {
		s.subMu.Lock()
		delete(s.subs, ch)
		s.subMu.Unlock()
	}
}

func (s *PostStore) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default: // listener already has a pending tick
		}
	}
}

// Generation returns the number of applied cache replacements. Hydrated
// snapshot data is provisional and does not advance it.
func (s *PostStore) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Hydrate loads the locally persisted post cache, if any, as provisional
// data to show before the first FetchAll returns authoritative records.
func (s *PostStore) Hydrate(ctx context.Context) {
	if s.snap == nil {
		return
	}
	posts, drafts, ok := s.snap.LoadPosts(ctx)
	if !ok {
		return
	}
	s.mu.Lock()
	if s.gen == 0 && len(s.posts) == 0 {
		s.posts = posts
		s.drafts = drafts
	}
	s.mu.Unlock()
	s.notify()
}

// FetchAll retrieves all posts from the remote store and replaces the
// entire local cache. On remote error the cache is left unchanged. Results
// arriving after ctx is cancelled are discarded rather than applied.
func (s *PostStore) FetchAll(ctx context.Context) error {
	posts, err := s.data.ListPosts(ctx)
	if err != nil {
		observability.CacheRefreshes.WithLabelValues("error").Inc()
		s.log.LogError(ctx, err, "fetch_all")
		return err
	}
	// The caller may have gone away while the fetch was in flight; a dead
	// consumer must not overwrite the cache with its late result.
	if ctx.Err() != nil {
		observability.CacheRefreshes.WithLabelValues("discarded").Inc()
		return ctx.Err()
	}

	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})

	s.mu.Lock()
	s.posts = posts
	s.gen++
	s.mu.Unlock()

	observability.CacheRefreshes.WithLabelValues("ok").Inc()
	s.persist(ctx)
	s.notify()
	return nil
}

// GetById looks a post up in the cache across posts and drafts. It never
// triggers a remote fetch; call FetchAll first for freshness.
func (s *PostStore) GetById(id string) (models.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.posts {
		if p.ID == id {
			return p, true
		}
	}
	for _, d := range s.drafts {
		if d.ID == id {
			return d, true
		}
	}
	return models.Post{}, false
}

func validateContent(title, content, excerpt string) error {
	if strings.TrimSpace(title) == "" {
		return models.NewValidationError("Title is required")
	}
	if strings.TrimSpace(content) == "" {
		return models.NewValidationError("Content is required")
	}
	if strings.TrimSpace(excerpt) == "" {
		return models.NewValidationError("Excerpt is required")
	}
	return nil
}

func (s *PostStore) buildPost(in CreatePostInput, author models.User, status models.PostStatus) (models.Post, error) {
	if err := validateContent(in.Title, in.Content, in.Excerpt); err != nil {
		return models.Post{}, err
	}
	category := in.Category
	if category == "" {
		category = models.CategoryLatestRoots
	}
	if !category.Valid() {
		return models.Post{}, models.NewValidationError("Unknown category: " + string(category))
	}
	return models.Post{
		Title:      strings.TrimSpace(in.Title),
		Content:    in.Content,
		Excerpt:    strings.TrimSpace(in.Excerpt),
		CoverImage: in.CoverImage,
		Category:   category,
		Hashtags:   models.NormalizeHashtags(in.Hashtags),
		AuthorID:   author.ID,
		AuthorName: author.Name,
		AuthorRole: author.Role,
		Status:     status,
		Published:  false,
	}, nil
}

// Create validates the input, submits a pending post to the remote store,
// and applies the canonical record to the cache. The cache is left
// unmodified on any failure.
func (s *PostStore) Create(ctx context.Context, in CreatePostInput) (models.Post, error) {
	author, ok := s.session.Current()
	if !ok {
		return models.Post{}, models.NewAuthError("No active session")
	}
	post, err := s.buildPost(in, author, models.StatusPending)
	if err != nil {
		return models.Post{}, err
	}

	canonical, err := s.data.InsertPost(ctx, post)
	if err != nil {
		s.log.LogError(ctx, err, "create")
		return models.Post{}, err
	}
	if len(post.Hashtags) > 0 {
		if err := s.data.InsertHashtags(ctx, canonical.ID, post.Hashtags); err != nil {
			// The post row exists remotely; the next refresh reconciles.
			s.log.LogError(ctx, err, "create_hashtags")
			return models.Post{}, err
		}
		canonical.Hashtags = post.Hashtags
	}
	canonical.AuthorName = author.Name
	canonical.AuthorRole = author.Role

	s.mu.Lock()
	s.posts = append([]models.Post{canonical}, s.posts...)
	s.mu.Unlock()

	s.log.LogOp(ctx, "create", map[string]interface{}{"post_id": canonical.ID})
	s.persist(ctx)
	s.notify()
	return canonical, nil
}

// SaveDraft stores a draft locally only; drafts reach the remote store when
// published via PublishDraft.
func (s *PostStore) SaveDraft(ctx context.Context, in CreatePostInput) (models.Post, error) {
	author, ok := s.session.Current()
	if !ok {
		return models.Post{}, models.NewAuthError("No active session")
	}
	draft, err := s.buildPost(in, author, models.StatusDraft)
	if err != nil {
		return models.Post{}, err
	}
	now := time.Now().UTC()
	draft.ID = uuid.NewString()
	draft.CreatedAt = now
	draft.UpdatedAt = now

	s.mu.Lock()
	s.drafts = append([]models.Post{draft}, s.drafts...)
	s.mu.Unlock()

	s.persist(ctx)
	s.notify()
	return draft, nil
}

// PublishDraft submits a local draft to the remote store as a pending post.
func (s *PostStore) PublishDraft(ctx context.Context, id string) (models.Post, error) {
	author, ok := s.session.Current()
	if !ok {
		return models.Post{}, models.NewAuthError("No active session")
	}

	s.mu.RLock()
	var draft *models.Post
	for i := range s.drafts {
		if s.drafts[i].ID == id {
			d := s.drafts[i]
			draft = &d
			break
		}
	}
	s.mu.RUnlock()
	if draft == nil {
		return models.Post{}, models.NewNotFoundError("draft", id)
	}
	if draft.AuthorID != author.ID {
		return models.Post{}, models.NewAuthError("Only the author can publish a draft")
	}

	submission := *draft
	submission.ID = "" // the remote store assigns the canonical id
	submission.Status = models.StatusPending
	submission.Published = false

	canonical, err := s.data.InsertPost(ctx, submission)
	if err != nil {
		s.log.LogError(ctx, err, "publish_draft")
		return models.Post{}, err
	}
	if len(submission.Hashtags) > 0 {
		if err := s.data.InsertHashtags(ctx, canonical.ID, submission.Hashtags); err != nil {
			s.log.LogError(ctx, err, "publish_draft_hashtags")
			return models.Post{}, err
		}
		canonical.Hashtags = submission.Hashtags
	}
	canonical.AuthorName = author.Name
	canonical.AuthorRole = author.Role

	s.mu.Lock()
	s.posts = append([]models.Post{canonical}, s.posts...)
	s.drafts = removePost(s.drafts, id)
	s.mu.Unlock()

	s.persist(ctx)
	s.notify()
	return canonical, nil
}

// Update merges a partial content update into a post: the remote write
// happens first, and the cache is updated only from the reconciliation
// step, never speculatively. An author updating their rejected post
// resubmits it, returning the status to pending.
func (s *PostStore) Update(ctx context.Context, id string, in UpdatePostInput) (models.Post, error) {
	actor, ok := s.session.Current()
	if !ok {
		return models.Post{}, models.NewAuthError("No active session")
	}
	cached, ok := s.GetById(id)
	if !ok {
		return models.Post{}, models.NewNotFoundError("post", id)
	}
	// Content fields belong to the author alone; admins change status and
	// review fields through TransitionStatus, never through edits.
	if cached.AuthorID != actor.ID {
		return models.Post{}, models.NewAuthError("Only the author can edit this post")
	}

	now := time.Now().UTC()
	fields := map[string]any{remote.FieldUpdatedAt: now}
	next := cached
	next.UpdatedAt = now

	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return models.Post{}, models.NewValidationError("Title is required")
		}
		next.Title = strings.TrimSpace(*in.Title)
		fields[remote.FieldTitle] = next.Title
	}
	if in.Content != nil {
		if strings.TrimSpace(*in.Content) == "" {
			return models.Post{}, models.NewValidationError("Content is required")
		}
		next.Content = *in.Content
		fields[remote.FieldContent] = next.Content
	}
	if in.Excerpt != nil {
		if strings.TrimSpace(*in.Excerpt) == "" {
			return models.Post{}, models.NewValidationError("Excerpt is required")
		}
		next.Excerpt = strings.TrimSpace(*in.Excerpt)
		fields[remote.FieldExcerpt] = next.Excerpt
	}
	if in.CoverImage != nil {
		next.CoverImage = *in.CoverImage
		fields[remote.FieldCoverImage] = next.CoverImage
	}
	if in.Category != nil {
		if !in.Category.Valid() {
			return models.Post{}, models.NewValidationError("Unknown category: " + string(*in.Category))
		}
		next.Category = *in.Category
		fields[remote.FieldCategory] = string(next.Category)
	}
	if in.Hashtags != nil {
		next.Hashtags = models.NormalizeHashtags(*in.Hashtags)
	}

	// Editing a rejected post re-enters the moderation queue.
	resubmit := cached.Status == models.StatusRejected
	if resubmit {
		next.Status = models.StatusPending
		next.Published = false
		next.ReviewedBy = ""
		next.ReviewedAt = nil
		next.ReviewNotes = ""
		fields[remote.FieldStatus] = string(models.StatusPending)
		fields[remote.FieldPublished] = false
		fields[remote.FieldReviewedBy] = ""
		fields[remote.FieldReviewedAt] = nil
		fields[remote.FieldReviewNotes] = ""
	}

	if cached.Status == models.StatusDraft {
		// Local-only draft; nothing to persist remotely.
		s.mu.Lock()
		s.drafts = replacePost(s.drafts, next)
		s.mu.Unlock()
		s.persist(ctx)
		s.notify()
		return next, nil
	}

	if err := s.data.UpdatePost(ctx, id, fields); err != nil {
		s.log.LogError(ctx, err, "update")
		return models.Post{}, err
	}
	if in.Hashtags != nil {
		if err := s.data.DeleteHashtags(ctx, id); err != nil {
			s.log.LogError(ctx, err, "update_hashtags")
			return models.Post{}, err
		}
		if err := s.data.InsertHashtags(ctx, id, next.Hashtags); err != nil {
			s.log.LogError(ctx, err, "update_hashtags")
			return models.Post{}, err
		}
	}

	s.mu.Lock()
	s.posts = replacePost(s.posts, next)
	s.mu.Unlock()

	s.log.LogOp(ctx, "update", map[string]interface{}{"post_id": id, "resubmit": resubmit})
	s.persist(ctx)
	s.notify()
	return next, nil
}

// Delete removes a post: hashtag rows first to satisfy referential
// integrity, then the post row. If the post delete fails the cache is NOT
// updated; the hashtag rows remain orphaned remotely until the sweep
// reconciles them.
func (s *PostStore) Delete(ctx context.Context, id string) error {
	actor, ok := s.session.Current()
	if !ok {
		return models.NewAuthError("No active session")
	}
	cached, ok := s.GetById(id)
	if !ok {
		return models.NewNotFoundError("post", id)
	}
	if cached.AuthorID != actor.ID && !s.session.IsAdmin() {
		return models.NewAuthError("Only the author can delete this post")
	}

	if cached.Status != models.StatusDraft {
		if err := s.data.DeleteHashtags(ctx, id); err != nil {
			s.log.LogError(ctx, err, "delete_hashtags")
			return err
		}
		if err := s.data.DeletePost(ctx, id); err != nil {
			s.log.LogError(ctx, err, "delete")
			return err
		}
	}

	s.mu.Lock()
	s.posts = removePost(s.posts, id)
	s.drafts = removePost(s.drafts, id)
	s.mu.Unlock()

	s.log.LogOp(ctx, "delete", map[string]interface{}{"post_id": id})
	s.persist(ctx)
	s.notify()
	return nil
}

// TransitionStatus is the moderation transition primitive underlying
// approve and reject. Only a pending post may transition, only an admin may
// act, and rejection requires non-empty notes. The remote write happens
// first; the cache is updated only after remote confirmation.
func (s *PostStore) TransitionStatus(ctx context.Context, id string, newStatus models.PostStatus, notes string) (models.Post, error) {
	reviewer, ok := s.session.Current()
	if !ok {
		observability.StatusTransitions.WithLabelValues(string(newStatus), "denied").Inc()
		return models.Post{}, models.NewAuthError("No active session")
	}
	if !s.session.IsAdmin() {
		observability.StatusTransitions.WithLabelValues(string(newStatus), "denied").Inc()
		return models.Post{}, models.NewAuthError("Only admins can review posts")
	}

	cached, ok := s.GetById(id)
	if !ok {
		return models.Post{}, models.NewNotFoundError("post", id)
	}
	if cached.Status != models.StatusPending {
		return models.Post{}, models.NewValidationError(
			"Only pending posts can be reviewed (current status: " + string(cached.Status) + ")")
	}

	notes = strings.TrimSpace(notes)
	var published bool
	switch newStatus {
	case models.StatusApproved:
		published = true
		if notes == "" {
			notes = "Approved"
		}
	case models.StatusRejected:
		published = false
		if notes == "" {
			return models.Post{}, models.NewValidationError("Review notes are required when rejecting a post")
		}
	default:
		return models.Post{}, models.NewValidationError("Illegal transition to status: " + string(newStatus))
	}

	now := time.Now().UTC()
	fields := map[string]any{
		remote.FieldStatus:      string(newStatus),
		remote.FieldPublished:   published,
		remote.FieldReviewedBy:  reviewer.ID,
		remote.FieldReviewedAt:  now,
		remote.FieldReviewNotes: notes,
		remote.FieldUpdatedAt:   now,
	}
	if err := s.data.UpdatePost(ctx, id, fields); err != nil {
		observability.StatusTransitions.WithLabelValues(string(newStatus), "error").Inc()
		s.log.LogError(ctx, err, "transition")
		return models.Post{}, err
	}

	next := cached
	next.Status = newStatus
	next.Published = published
	next.ReviewedBy = reviewer.ID
	next.ReviewedAt = &now
	next.ReviewNotes = notes
	next.UpdatedAt = now

	s.mu.Lock()
	s.posts = replacePost(s.posts, next)
	s.mu.Unlock()

	observability.StatusTransitions.WithLabelValues(string(newStatus), "ok").Inc()
	s.log.LogOp(ctx, "transition", map[string]interface{}{
		"post_id": id, "status": string(newStatus), "reviewed_by": reviewer.ID,
	})
	s.persist(ctx)
	s.notify()
	return next, nil
}

// ByAuthor returns the author's publicly visible posts.
func (s *PostStore) ByAuthor(authorID string) []models.Post {
	return s.filter(func(p models.Post) bool {
		return p.AuthorID == authorID && p.PubliclyVisible()
	})
}

// ByCategory returns publicly visible posts in a category.
func (s *PostStore) ByCategory(category models.Category) []models.Post {
	return s.filter(func(p models.Post) bool {
		return p.Category == category && p.PubliclyVisible()
	})
}

// ByHashtag returns publicly visible posts carrying the tag.
func (s *PostStore) ByHashtag(tag string) []models.Post {
	return s.filter(func(p models.Post) bool {
		return p.HasHashtag(tag) && p.PubliclyVisible()
	})
}

// Pending returns every post awaiting review, newest first.
func (s *PostStore) Pending() []models.Post {
	return s.filter(func(p models.Post) bool {
		return p.Status == models.StatusPending
	})
}

// PendingByAuthor returns the author's own posts awaiting review.
func (s *PostStore) PendingByAuthor(authorID string) []models.Post {
	return s.filter(func(p models.Post) bool {
		return p.Status == models.StatusPending && p.AuthorID == authorID
	})
}

// Search returns publicly visible posts whose title, excerpt, or hashtags
// contain the term (case-insensitive).
func (s *PostStore) Search(term string) []models.Post {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return s.Published()
	}
	return s.filter(func(p models.Post) bool {
		if !p.PubliclyVisible() {
			return false
		}
		if strings.Contains(strings.ToLower(p.Title), term) ||
			strings.Contains(strings.ToLower(p.Excerpt), term) {
			return true
		}
		for _, tag := range p.Hashtags {
			if strings.Contains(strings.ToLower(tag), term) {
				return true
			}
		}
		return false
	})
}

// Published returns every publicly visible post.
func (s *PostStore) Published() []models.Post {
	return s.filter(func(p models.Post) bool { return p.PubliclyVisible() })
}

// Drafts returns the author's local drafts.
func (s *PostStore) Drafts(authorID string) []models.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Post, 0, len(s.drafts))
	for _, d := range s.drafts {
		if d.AuthorID == authorID {
			out = append(out, d)
		}
	}
	return out
}

func (s *PostStore) filter(keep func(models.Post) bool) []models.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Post, 0, len(s.posts))
	for _, p := range s.posts {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func (s *PostStore) persist(ctx context.Context) {
	if s.snap == nil {
		return
	}
	s.mu.RLock()
	posts := append([]models.Post(nil), s.posts...)
	drafts := append([]models.Post(nil), s.drafts...)
	s.mu.RUnlock()
	s.snap.SavePosts(ctx, posts, drafts)
}

func removePost(posts []models.Post, id string) []models.Post {
	out := posts[:0]
	for _, p := range posts {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

func replacePost(posts []models.Post, next models.Post) []models.Post {
	for i := range posts {
		if posts[i].ID == next.ID {
			posts[i] = next
			break
		}
	}
	return posts
}
