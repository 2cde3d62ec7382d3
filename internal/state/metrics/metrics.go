package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueryAttempts tracks every attempt made by the executor, retries included
	QueryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resync_query_attempts_total",
			Help: "Total number of remote query attempts",
		},
		[]string{"query"},
	)

	// QueryErrors tracks failed attempts by error kind
	QueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resync_query_errors_total",
			Help: "Total number of failed remote query attempts",
		},
		[]string{"query", "kind"},
	)

	// QueryLatency tracks end-to-end latency of a query including retries
	QueryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resync_query_latency_seconds",
			Help:    "Remote query latency in seconds, retries included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query", "outcome"},
	)

	// BatchChunks tracks chunk outcomes of batched queries
	BatchChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resync_batch_chunks_total",
			Help: "Total number of batch chunks executed",
		},
		[]string{"query", "outcome"},
	)

	// GuardTransitions tracks load guard state changes
	GuardTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resync_guard_transitions_total",
			Help: "Total number of load guard state transitions",
		},
		[]string{"guard", "to"},
	)

	// GuardSafetyReleases counts loads released by the safety timeout
	GuardSafetyReleases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resync_guard_safety_releases_total",
			Help: "Total number of loads released by the safety timeout",
		},
		[]string{"guard"},
	)

	// GuardStaleResults counts results discarded after a key change
	GuardStaleResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resync_guard_stale_results_total",
			Help: "Total number of load results discarded as stale",
		},
		[]string{"guard"},
	)

	// ReactionMutations tracks optimistic reaction mutations by outcome
	ReactionMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resync_reaction_mutations_total",
			Help: "Total number of reaction mutations",
		},
		[]string{"op", "outcome"},
	)

	// ReactionRefreshSuppressed counts refreshes dropped while a mutation was pending
	ReactionRefreshSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "resync_reaction_refresh_suppressed_total",
			Help: "Total number of reaction refreshes suppressed by a pending local change",
		},
	)

	// AutosaveOutcomes tracks draft persist attempts
	AutosaveOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resync_autosave_total",
			Help: "Total number of draft persist operations",
		},
		[]string{"trigger", "outcome"},
	)

	// AutosaveSkipped counts edits that matched the persisted snapshot
	AutosaveSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "resync_autosave_skipped_total",
			Help: "Total number of edits that needed no save",
		},
	)

	// DBConnectionPoolUsage tracks database connection pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "resync_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
