// Package cache provides a keyed TTL cache with in-flight request coalescing:
// concurrent callers asking for the same key while a load is outstanding share
// that one load instead of each hitting the upstream.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/example/calendar-aggregator/internal/metrics"
)

// Loader computes the value for a key on a cache miss.
type Loader[T any] func(ctx context.Context) (T, error)

// Cache is a keyed TTL cache. The zero value is not usable; construct with New.
// All mutation of the entry table and the in-flight map happens under one
// mutex so the check-then-register sequence cannot interleave.
type Cache[T any] struct {
	mu       sync.Mutex
	name     string
	now      func() time.Time
	entries  map[string]entry[T]
	inflight map[string]*call[T]
}

type entry[T any] struct {
	data      T
	fetchedAt time.Time
	ttl       time.Duration
}

type call[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// New constructs a cache. The name labels metrics; now defaults to time.Now.
func New[T any](name string, now func() time.Time) *Cache[T] {
	if now == nil {
		now = time.Now
	}
	return &Cache[T]{
		name:     name,
		now:      now,
		entries:  make(map[string]entry[T]),
		inflight: make(map[string]*call[T]),
	}
}

// GetOrLoad returns the cached value for key when fresh, joins an in-flight
// load when one exists, and otherwise invokes loader exactly once. Successful
// results are stored with the supplied ttl; failures are never stored and the
// in-flight slot is released either way so a later call can retry.
func (c *Cache[T]) GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader Loader[T]) (T, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if c.now().Sub(e.fetchedAt) < e.ttl {
			c.mu.Unlock()
			metrics.CacheHits.WithLabelValues(c.name).Inc()
			return e.data, nil
		}
		delete(c.entries, key)
	}

	if pending, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		metrics.CacheCoalesced.WithLabelValues(c.name).Inc()
		select {
		case <-pending.done:
			return pending.value, pending.err
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}

	pending := &call[T]{done: make(chan struct{})}
	c.inflight[key] = pending
	c.mu.Unlock()

	metrics.CacheMisses.WithLabelValues(c.name).Inc()
	value, err := loader(ctx)

	c.mu.Lock()
	if err == nil {
		c.entries[key] = entry[T]{data: value, fetchedAt: c.now(), ttl: ttl}
	}
	delete(c.inflight, key)
	c.mu.Unlock()

	pending.value = value
	pending.err = err
	close(pending.done)

	return value, err
}

// Peek reports whether a fresh entry exists for key without loading.
func (c *Cache[T]) Peek(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.fetchedAt) >= e.ttl {
		var zero T
		return zero, false
	}
	return e.data, true
}

// Invalidate drops the entry stored under key. In-flight loads are not
// cancelled; their result lands normally.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	metrics.CacheInvalidations.WithLabelValues(c.name).Inc()
}

// InvalidateAll drops every stored entry. Mutation call sites use this rather
// than fine-grained key invalidation; a little over-invalidation is simpler
// than reconstructing which windows a change touched.
func (c *Cache[T]) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]entry[T])
	c.mu.Unlock()
	metrics.CacheInvalidations.WithLabelValues(c.name).Inc()
}

// Len reports the number of stored entries, counting stale ones not yet swept.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
