// Package moderation drives the admin review workflow: loading pending
// posts, applying reviewer notes, and triggering approve/reject transitions.
package moderation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"oakvoices/internal/models"
	"oakvoices/internal/remote"
	"oakvoices/internal/store"
)

// DefaultRefreshInterval is the periodic refresh cadence when the
// configuration does not override it.
const DefaultRefreshInterval = 30 * time.Second

// Controller orchestrates fetch, display, and approve/reject transitions
// for the moderation dashboard, refreshing the post cache on a fixed
// interval and on every change-feed event. Refresh is an idempotent full
// cache replace, so at-least-once, duplicated, or reordered events are safe.
type Controller struct {
	posts    *store.PostStore
	session  *store.AuthStore
	feed     remote.Feed
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a Controller. interval <= 0 selects DefaultRefreshInterval;
// feed may be nil, leaving only the periodic refresh.
func New(posts *store.PostStore, session *store.AuthStore, feed remote.Feed, interval time.Duration) *Controller {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Controller{
		posts:    posts,
		session:  session,
		feed:     feed,
		interval: interval,
		logger:   slog.Default().With("component", "moderation"),
	}
}

// Start verifies the acting identity and begins the refresh loop. The admin
// flag is re-verified against the remote store, not the local cache, before
// anything is shown: the cached flag can be stale or forged in a client
// environment. Start blocks until the initial fetch completes. Starting an
// already-running controller is an error; Stop it first.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return models.NewValidationError("Moderation dashboard is already running")
	}
	c.mu.Unlock()

	isAdmin, err := c.session.VerifyAdmin(ctx)
	if err != nil {
		return err
	}
	if !isAdmin {
		return models.NewAuthError("Only admins can access the moderation dashboard")
	}

	if err := c.posts.FetchAll(ctx); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)

	var events <-chan remote.Event
	if c.feed != nil {
		events, err = c.feed.Subscribe(loopCtx)
		if err != nil {
			// Degraded but workable: the periodic refresh still runs.
			c.logger.Warn("change feed unavailable, relying on periodic refresh", "err", err)
			events = nil
		}
	}

	done := make(chan struct{})
	c.mu.Lock()
	if c.cancel != nil {
		// A concurrent Start won the race; yield to the running loop.
		c.mu.Unlock()
		cancel()
		return models.NewValidationError("Moderation dashboard is already running")
	}
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.run(loopCtx, events, done)
	return nil
}

func (c *Controller) run(ctx context.Context, events <-chan remote.Event, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refresh(ctx, "interval")
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.logger.Debug("change feed event", "table", ev.Table, "op", string(ev.Op), "id", ev.ID)
			c.refresh(ctx, "feed")
		}
	}
}

func (c *Controller) refresh(ctx context.Context, trigger string) {
	if err := c.posts.FetchAll(ctx); err != nil && ctx.Err() == nil {
		// No automatic retries; the next tick or event tries again.
		c.logger.Warn("refresh failed", "trigger", trigger, "err", err)
	}
}

// Stop cancels the refresh loop and waits for it to exit. An in-flight
// fetch finishes but its result is discarded by the store's cancellation
// guard rather than applied to a dead view.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Pending returns the review queue, newest first.
func (c *Controller) Pending() []models.Post {
	return c.posts.Pending()
}

// Approve transitions a pending post to approved and publishes it.
func (c *Controller) Approve(ctx context.Context, id, notes string) (models.Post, error) {
	return c.posts.TransitionStatus(ctx, id, models.StatusApproved, notes)
}

// Reject transitions a pending post to rejected. Notes explaining the
// rejection are mandatory.
func (c *Controller) Reject(ctx context.Context, id, notes string) (models.Post, error) {
	return c.posts.TransitionStatus(ctx, id, models.StatusRejected, notes)
}
