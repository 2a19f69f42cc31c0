package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/example/calendar-aggregator/internal/metrics"
)

// BreakerClient wraps a Client with a circuit breaker so a dead upstream
// fails fast instead of stacking timed-out requests behind every window
// navigation. The breaker uses real time for its interval and timeout
// bookkeeping; tests exercise the wrapped client directly.
type BreakerClient struct {
	inner Client
	cb    *gobreaker.CircuitBreaker[*Envelope]
}

// NewBreakerClient wraps inner with breaker protection.
// Opens after a 60% failure rate over at least 10 requests, resets counts
// every minute, and probes again after 2 minutes open.
func NewBreakerClient(inner Client, logger *slog.Logger) *BreakerClient {
	const name = "scheduling-api"
	metrics.BreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[*Envelope](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			}
			metrics.BreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			metrics.BreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &BreakerClient{inner: inner, cb: cb}
}

// Get issues a GET through the breaker.
func (b *BreakerClient) Get(ctx context.Context, path string, query url.Values) (*Envelope, error) {
	return b.execute(func() (*Envelope, error) { return b.inner.Get(ctx, path, query) })
}

// Post issues a POST through the breaker.
func (b *BreakerClient) Post(ctx context.Context, path string, body any) (*Envelope, error) {
	return b.execute(func() (*Envelope, error) { return b.inner.Post(ctx, path, body) })
}

// Put issues an update through the breaker.
func (b *BreakerClient) Put(ctx context.Context, path string, body any) (*Envelope, error) {
	return b.execute(func() (*Envelope, error) { return b.inner.Put(ctx, path, body) })
}

// Delete issues a DELETE through the breaker.
func (b *BreakerClient) Delete(ctx context.Context, path string, query url.Values) (*Envelope, error) {
	return b.execute(func() (*Envelope, error) { return b.inner.Delete(ctx, path, query) })
}

func (b *BreakerClient) execute(fn func() (*Envelope, error)) (*Envelope, error) {
	envelope, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &Error{Message: "upstream temporarily unavailable", Err: ErrCircuitOpen}
		}
		return nil, err
	}
	return envelope, nil
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
