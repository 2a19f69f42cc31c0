// Package timesource makes every time-dependent decision in the engine
// explicit: the wall clock is injected, and the display timezone is resolved
// from the stored preference with a runtime-local fallback.
package timesource

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/example/calendar-aggregator/internal/logging"
	"github.com/example/calendar-aggregator/internal/prefs"
)

// Source resolves the current instant and the user's display timezone.
type Source struct {
	now      func() time.Time
	store    prefs.Store
	fallback *time.Location
	logger   *slog.Logger
}

// Options configures a Source. Zero values fall back to the real clock and
// the process-local timezone.
type Options struct {
	Now             func() time.Time
	Store           prefs.Store
	DefaultTimezone string
	Logger          *slog.Logger
}

// New builds a Source. An invalid DefaultTimezone falls back to time.Local.
func New(opts Options) *Source {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	fallback := time.Local
	if opts.DefaultTimezone != "" {
		if loc, err := time.LoadLocation(opts.DefaultTimezone); err == nil {
			fallback = loc
		} else if opts.Logger != nil {
			opts.Logger.Warn("invalid default timezone, using process local", "timezone", opts.DefaultTimezone, "error", err)
		}
	}
	return &Source{now: now, store: opts.Store, fallback: fallback, logger: opts.Logger}
}

// Now returns the current instant from the injected clock.
func (s *Source) Now() time.Time {
	if s == nil || s.now == nil {
		return time.Now()
	}
	return s.now()
}

// Location resolves the display timezone: the stored preference when present
// and loadable, otherwise the configured fallback. A corrupt preference is
// logged and ignored rather than failing the caller.
func (s *Source) Location(ctx context.Context) *time.Location {
	if s == nil {
		return time.Local
	}
	if s.store != nil {
		name, err := s.store.Get(ctx, prefs.TimezoneKey)
		switch {
		case err == nil && name != "":
			if loc, loadErr := time.LoadLocation(name); loadErr == nil {
				return loc
			} else {
				logging.ComponentLogger(ctx, s.logger, "timesource", "location").
					WarnContext(ctx, "stored timezone is not loadable", "timezone", name, "error", loadErr)
			}
		case err != nil && !errors.Is(err, prefs.ErrNotFound):
			logging.ComponentLogger(ctx, s.logger, "timesource", "location").
				WarnContext(ctx, "preference read failed", "error", err)
		}
	}
	return s.fallback
}

// SetLocation stores the display timezone preference after validating it.
func (s *Source) SetLocation(ctx context.Context, name string) error {
	if _, err := time.LoadLocation(name); err != nil {
		return err
	}
	if s.store == nil {
		return errors.New("timesource: no preference store configured")
	}
	return s.store.Set(ctx, prefs.TimezoneKey, name)
}

// Clock is a controllable time source for tests.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock returns a clock initialised to the supplied time.
func NewClock(start time.Time) *Clock {
	return &Clock{current: start}
}

// Now returns the current instant tracked by the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc exposes Now as a function suitable for dependency injection.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set updates the clock to the provided time.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the clock forward by the provided duration and returns the
// updated time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.current = c.current.Add(d)
	updated := c.current
	c.mu.Unlock()
	return updated
}
