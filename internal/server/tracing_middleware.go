package server

import (
	"fmt"

	"oakvoices/internal/observability"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware starts a server span for each request and threads the
// request id into the user context as the correlation id, so store and
// handler log lines carry the same id as the trace.
func (s *Server) TracingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Extract propagation context from headers
		ctx := otel.GetTextMapPropagator().Extract(c.UserContext(), propagation.HeaderCarrier(c.GetReqHeaders()))

		span, ctx := observability.NewSpan(ctx, fmt.Sprintf("%s %s", c.Method(), c.Path()),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Method()),
				attribute.String("http.path", c.Path()),
				attribute.String("http.url", c.OriginalURL()),
				attribute.String("http.ip", c.IP()),
			),
		)
		defer span.End()

		if requestID, ok := c.Locals("requestid").(string); ok && requestID != "" {
			span.AddAttributes(attribute.String("request.id", requestID))
			ctx = observability.WithCorrelationID(ctx, requestID)
		}

		// Inject trace ID into response headers
		c.Set("X-Trace-ID", span.TraceID())
		c.SetUserContext(ctx)

		err := c.Next()

		span.AddAttributes(attribute.Int("http.status_code", c.Response().StatusCode()))
		span.SetError(err)

		// Add UserID if available after auth middleware
		if userID, ok := c.Locals("userID").(string); ok {
			span.AddAttributes(attribute.String("user.id", userID))
		}
		return err
	}
}
