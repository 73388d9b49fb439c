package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheRefreshes counts full cache replacements by outcome.
	CacheRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oakvoices_cache_refreshes_total",
		Help: "Total number of post cache refreshes by outcome",
	}, []string{"outcome"})

	// StatusTransitions counts moderation transitions by target status and outcome.
	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oakvoices_status_transitions_total",
		Help: "Total number of post status transitions by target status and outcome",
	}, []string{"status", "outcome"})

	// FeedEvents counts change-feed events received by operation.
	FeedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oakvoices_feed_events_total",
		Help: "Total number of change-feed events received by operation",
	}, []string{"op"})

	// SnapshotOps counts local snapshot reads/writes by entry and outcome.
	SnapshotOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oakvoices_snapshot_ops_total",
		Help: "Total number of local snapshot operations by entry and outcome",
	}, []string{"entry", "outcome"})

	// RedisErrors counts Redis errors by operation type.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oakvoices_redis_errors_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// FeedSubscribers is the gauge of active change-feed WebSocket subscribers.
	FeedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oakvoices_feed_subscribers",
		Help: "Number of active change-feed WebSocket subscribers",
	})
)
