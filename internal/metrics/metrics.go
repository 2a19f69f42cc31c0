// Package metrics exposes Prometheus instrumentation for the aggregation
// engine: cache efficiency, per-source fetch outcomes, merge latency, and
// circuit breaker state. Scraped at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache metrics, labelled by source cache (bookings, external, availability).
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calendar_cache_hits_total",
			Help: "Cache hits served without a loader invocation",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calendar_cache_misses_total",
			Help: "Cache misses that invoked the loader",
		},
		[]string{"cache"},
	)

	CacheCoalesced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calendar_cache_coalesced_total",
			Help: "Requests that joined an already in-flight load instead of issuing their own",
		},
		[]string{"cache"},
	)

	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calendar_cache_invalidations_total",
			Help: "Explicit cache invalidations",
		},
		[]string{"cache"},
	)

	// Source fetch metrics, labelled by source kind.
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "calendar_source_fetch_duration_seconds",
			Help:    "Duration of upstream source fetches",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	FetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calendar_source_fetch_errors_total",
			Help: "Upstream source fetches that failed",
		},
		[]string{"source"},
	)

	// Aggregation metrics.
	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "calendar_aggregation_duration_seconds",
			Help:    "End-to-end merge duration per aggregation request",
			Buckets: prometheus.DefBuckets,
		},
	)

	DegradedResults = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "calendar_aggregation_degraded_total",
			Help: "Aggregation results returned with at least one failed source",
		},
	)

	DuplicatesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "calendar_duplicates_dropped_total",
			Help: "External events dropped as duplicates of internal bookings",
		},
	)

	// Circuit breaker metrics.
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "calendar_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"breaker"},
	)

	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calendar_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"breaker", "from", "to"},
	)

	// HTTP surface metrics.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calendar_http_requests_total",
			Help: "Requests served by the local API",
		},
		[]string{"method", "path", "status"},
	)
)
