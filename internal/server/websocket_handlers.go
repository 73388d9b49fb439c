package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"oakvoices/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// FeedUpgradeRequired rejects non-WebSocket requests to the feed endpoint
// and authenticates the upgrade before it happens.
func (s *Server) FeedUpgradeRequired() fiber.Handler {
	authRequired := s.AuthRequired()
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return authRequired(c)
	}
}

// FeedSocketHandler bridges the Redis change feed to a WebSocket client.
// Each connection holds its own subscription; events are forwarded as JSON
// and the connection closes when the feed does.
func (s *Server) FeedSocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		observability.FeedSubscribers.Inc()
		defer observability.FeedSubscribers.Dec()

		userID, _ := conn.Locals("userID").(string)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		events, err := s.feed.Subscribe(ctx)
		if err != nil {
			slog.Warn("feed websocket: subscribe failed", "user_id", userID, "err", err)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"change feed unavailable"}`))
			_ = conn.Close()
			return
		}

		// Reader goroutine: the client sends nothing meaningful, but reads
		// are needed to notice the peer going away.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		slog.Debug("feed websocket: client connected", "user_id", userID)
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case ev, ok := <-events:
				if !ok {
					_ = conn.Close()
					return
				}
				payload, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					slog.Debug("feed websocket: client gone", "user_id", userID, "err", err)
					return
				}
			}
		}
	})
}
