// Package feed carries posts-table change events over Redis pub/sub.
// Delivery is at-least-once; consumers treat every event purely as a
// refresh trigger, so duplicates and reordering are safe.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime/debug"

	"oakvoices/internal/observability"
	"oakvoices/internal/remote"

	"github.com/redis/go-redis/v9"
)

// Channel is the pub/sub channel for posts-table changes.
const Channel = "changes:posts"

// Redis implements remote.Feed and remote.Publisher over a Redis client.
// A nil client makes every operation a no-op (fail-open, matching the rest
// of the Redis plumbing).
type Redis struct {
	rdb *redis.Client
}

var (
	_ remote.Feed      = (*Redis)(nil)
	_ remote.Publisher = (*Redis)(nil)
)

// New returns a feed over rdb. rdb may be nil.
func New(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

// Publish pushes a change event into the feed.
func (f *Redis) Publish(ctx context.Context, ev remote.Event) error {
	if f.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := f.rdb.Publish(ctx, Channel, payload).Err(); err != nil {
		observability.RedisErrors.WithLabelValues("publish").Inc()
		return err
	}
	return nil
}

// Subscribe returns a channel of change events that closes when ctx is
// cancelled. Malformed payloads are dropped with a warning.
func (f *Redis) Subscribe(ctx context.Context) (<-chan remote.Event, error) {
	out := make(chan remote.Event, 16)
	if f.rdb == nil {
		close(out)
		return out, nil
	}

	sub := f.rdb.Subscribe(ctx, Channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		observability.RedisErrors.WithLabelValues("subscribe").Inc()
		return nil, err
	}
	ch := sub.Channel()

	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in feed subscriber", "panic", r, "stack", string(debug.Stack()))
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev remote.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					slog.Warn("dropping malformed feed event", "payload", msg.Payload, "err", err)
					continue
				}
				observability.FeedEvents.WithLabelValues(string(ev.Op)).Inc()
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
