package calendar

import (
	"log/slog"
	"strings"
	"time"

	"github.com/example/calendar-aggregator/internal/logging"
	"github.com/example/calendar-aggregator/internal/metrics"
)

// DedupeOptions tunes the duplicate heuristic. There is no authoritative
// cross-reference between a booking and its external-calendar mirror, so the
// match is a policy: start instants within StartTolerance plus either a
// case-insensitive title match or, when MatchLocation is set, a matching
// location/conference URL. Expect occasional false negatives and positives.
type DedupeOptions struct {
	StartTolerance time.Duration
	MatchLocation  bool
}

// DefaultDedupeOptions mirror the configured defaults.
func DefaultDedupeOptions() DedupeOptions {
	return DedupeOptions{StartTolerance: time.Minute, MatchLocation: true}
}

// Deduplicator flags external events that mirror an internal booking.
type Deduplicator struct {
	opts   DedupeOptions
	logger *slog.Logger
}

// NewDeduplicator builds a Deduplicator with the given thresholds.
func NewDeduplicator(opts DedupeOptions, logger *slog.Logger) *Deduplicator {
	if opts.StartTolerance < 0 {
		opts.StartTolerance = 0
	}
	return &Deduplicator{opts: opts, logger: logger}
}

// FilterDuplicates returns the externals that do not mirror any booking.
// When a pair matches, the external is dropped and the booking kept: the
// internal record is the authoritative, richer one. The scan is O(n·m);
// realistic windows bound both lists to low hundreds of events.
func (d *Deduplicator) FilterDuplicates(bookings, externals []Event) []Event {
	if len(externals) == 0 || len(bookings) == 0 {
		return externals
	}

	kept := make([]Event, 0, len(externals))
	for _, external := range externals {
		duplicate := false
		for _, booking := range bookings {
			if d.sameMeeting(booking, external) {
				duplicate = true
				logging.ComponentLogger(nil, d.logger, "deduplicator", "").
					Debug("dropping mirrored external event", "external_id", external.ID, "booking_id", booking.ID)
				metrics.DuplicatesDropped.Inc()
				break
			}
		}
		if !duplicate {
			kept = append(kept, external)
		}
	}
	return kept
}

func (d *Deduplicator) sameMeeting(booking, external Event) bool {
	if booking.StartUTC.IsZero() || external.StartUTC.IsZero() {
		return false
	}
	delta := booking.StartUTC.Sub(external.StartUTC)
	if delta < 0 {
		delta = -delta
	}
	if delta > d.opts.StartTolerance {
		return false
	}

	if titlesMatch(booking.Title, external.Title) {
		return true
	}
	if d.opts.MatchLocation && locationsMatch(booking, external) {
		return true
	}
	return false
}

func titlesMatch(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}

func locationsMatch(booking, external Event) bool {
	candidates := []string{booking.Location, booking.MeetingLink}
	target := strings.TrimSpace(external.Location)
	if target == "" {
		return false
	}
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate != "" && strings.EqualFold(candidate, target) {
			return true
		}
	}
	return false
}
