// Package sources implements the per-source fetchers. Each wraps one upstream
// endpoint, applies its own TTL cache with in-flight coalescing, and converts
// failures into typed FetchErrors instead of letting them escape to the
// aggregator as panics or raw transport errors.
package sources

import (
	"fmt"
	"time"

	"github.com/example/calendar-aggregator/internal/cache"
	"github.com/example/calendar-aggregator/internal/calendar"
	"github.com/example/calendar-aggregator/internal/metrics"
)

// FetchError tags a source failure with its origin. Failures are never
// cached; the next call retries.
type FetchError struct {
	Source calendar.SourceKind
	Err    error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("sources: %s fetch failed: %v", e.Source, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// observe times one upstream load and counts failures.
func observe(kind calendar.SourceKind, start time.Time, err error) {
	metrics.FetchDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FetchErrors.WithLabelValues(string(kind)).Inc()
	}
}

// refresh forces a miss for key while keeping the coalescing path: concurrent
// bypassing callers still share one upstream call.
func refresh[T any](c *cache.Cache[T], key string) {
	c.Invalidate(key)
}
