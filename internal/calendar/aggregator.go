package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/example/calendar-aggregator/internal/identity"
	"github.com/example/calendar-aggregator/internal/logging"
	"github.com/example/calendar-aggregator/internal/metrics"
	"github.com/example/calendar-aggregator/internal/timesource"
)

// FetchOptions adjusts a single aggregation request. The zero value serves
// cached-but-fresh data; BypassCache forces every source to refetch.
type FetchOptions struct {
	BypassCache bool
}

// BookingsSource fetches internal bookings for one user and window.
type BookingsSource interface {
	Fetch(ctx context.Context, userID string, window Window, opts FetchOptions) ([]BookingRecord, error)
	InvalidateAll()
}

// ExternalSource fetches synced external-calendar events for a window.
type ExternalSource interface {
	Fetch(ctx context.Context, window Window, opts FetchOptions) ([]ExternalRecord, error)
	InvalidateAll()
}

// AvailabilitySource fetches every out-of-office record for the current user.
// Records are long-lived and clipped locally, so no window travels upstream.
type AvailabilitySource interface {
	Fetch(ctx context.Context, opts FetchOptions) ([]AbsenceRecord, error)
	InvalidateAll()
}

// Timeline is the merged aggregation result. Degraded reports that at least
// one source failed; its events are simply missing rather than failing the
// whole request, and SourceErrors carries the per-source diagnostics.
type Timeline struct {
	Events       []Event              `json:"events"`
	Degraded     bool                 `json:"degraded"`
	SourceErrors map[SourceKind]error `json:"-"`
}

// TodayTimeline is the annotated single-day variant returned by TodayEvents.
type TodayTimeline struct {
	Events   []TodayCard `json:"events"`
	Degraded bool        `json:"degraded"`
}

// Aggregator merges the three sources into one deduplicated timeline.
type Aggregator struct {
	clock        *timesource.Source
	bookings     BookingsSource
	external     ExternalSource
	availability AvailabilitySource
	normalizer   *Normalizer
	deduper      *Deduplicator
	expander     *Expander
	logger       *slog.Logger
}

// AggregatorOptions wires an Aggregator.
type AggregatorOptions struct {
	Clock        *timesource.Source
	Bookings     BookingsSource
	External     ExternalSource
	Availability AvailabilitySource
	Dedupe       DedupeOptions
	Logger       *slog.Logger
}

// NewAggregator builds the orchestrator.
func NewAggregator(opts AggregatorOptions) *Aggregator {
	normalizer := NewNormalizer(opts.Logger)
	if opts.Dedupe.StartTolerance == 0 && !opts.Dedupe.MatchLocation {
		opts.Dedupe = DefaultDedupeOptions()
	}
	return &Aggregator{
		clock:        opts.Clock,
		bookings:     opts.Bookings,
		external:     opts.External,
		availability: opts.Availability,
		normalizer:   normalizer,
		deduper:      NewDeduplicator(opts.Dedupe, opts.Logger),
		expander:     NewExpander(normalizer, opts.Logger),
		logger:       opts.Logger,
	}
}

// EventsForWindow merges bookings, external events and expanded absences for
// [start, end]. The three fetches run concurrently and race freely; each
// source's failure is isolated so the others still contribute. A total
// failure yields an empty, well-formed, degraded timeline rather than an error.
func (a *Aggregator) EventsForWindow(ctx context.Context, start, end time.Time, opts FetchOptions) (Timeline, error) {
	if a == nil {
		return Timeline{}, fmt.Errorf("calendar: aggregator is nil")
	}
	began := a.clock.Now()

	loc := a.clock.Location(ctx)
	window := NewWindow(start, end, loc)

	principal, _ := identity.PrincipalFromContext(ctx)

	var (
		wg           sync.WaitGroup
		bookingRecs  []BookingRecord
		externalRecs []ExternalRecord
		absenceRecs  []AbsenceRecord
		bookingErr   error
		externalErr  error
		absenceErr   error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		bookingRecs, bookingErr = a.bookings.Fetch(ctx, principal.UserID, window, opts)
	}()
	go func() {
		defer wg.Done()
		externalRecs, externalErr = a.external.Fetch(ctx, window, opts)
	}()
	go func() {
		defer wg.Done()
		absenceRecs, absenceErr = a.availability.Fetch(ctx, opts)
	}()
	wg.Wait()

	timeline := Timeline{SourceErrors: make(map[SourceKind]error)}
	logger := logging.ComponentLogger(ctx, a.logger, "aggregator", "events_for_window", "window", window.Key())

	bookingEvents := make([]Event, 0, len(bookingRecs))
	if bookingErr != nil {
		a.recordFailure(&timeline, logger, SourceBooking, bookingErr)
	} else {
		for _, rec := range bookingRecs {
			bookingEvents = append(bookingEvents, a.normalizer.NormalizeBooking(rec, loc))
		}
	}

	externalEvents := make([]Event, 0, len(externalRecs))
	if externalErr != nil {
		a.recordFailure(&timeline, logger, SourceExternal, externalErr)
	} else {
		for _, rec := range externalRecs {
			externalEvents = append(externalEvents, a.normalizer.NormalizeExternal(rec, loc))
		}
		externalEvents = a.deduper.FilterDuplicates(bookingEvents, externalEvents)
	}

	absenceEvents := make([]Event, 0, len(absenceRecs))
	if absenceErr != nil {
		a.recordFailure(&timeline, logger, SourceAvailability, absenceErr)
	} else {
		for _, rec := range absenceRecs {
			absenceEvents = append(absenceEvents, a.expander.Expand(rec, window, loc)...)
		}
	}

	merged := make([]Event, 0, len(bookingEvents)+len(externalEvents)+len(absenceEvents))
	merged = append(merged, bookingEvents...)
	merged = append(merged, externalEvents...)
	merged = append(merged, absenceEvents...)
	merged = clipToWindow(merged, window)

	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].StartUTC.Equal(merged[j].StartUTC) {
			return merged[i].StartUTC.Before(merged[j].StartUTC)
		}
		ri, rj := merged[i].SourceKind.mergeRank(), merged[j].SourceKind.mergeRank()
		if ri != rj {
			return ri < rj
		}
		return merged[i].ID < merged[j].ID
	})

	timeline.Events = merged
	if timeline.Degraded {
		metrics.DegradedResults.Inc()
	}
	metrics.AggregationDuration.Observe(a.clock.Now().Sub(began).Seconds())

	logger.DebugContext(ctx, "aggregation completed", "events", len(merged), "degraded", timeline.Degraded)
	return timeline, nil
}

// TodayEvents aggregates the current day in the resolved timezone and
// annotates every event with liveness flags computed from the injected clock.
func (a *Aggregator) TodayEvents(ctx context.Context, opts FetchOptions) (TodayTimeline, error) {
	now := a.clock.Now()
	loc := a.clock.Location(ctx)
	window := DayWindow(now, loc)

	timeline, err := a.EventsForWindow(ctx, window.Start, window.End, opts)
	if err != nil {
		return TodayTimeline{}, err
	}

	cards := make([]TodayCard, 0, len(timeline.Events))
	for _, event := range timeline.Events {
		cards = append(cards, annotateToday(event, now))
	}
	return TodayTimeline{Events: cards, Degraded: timeline.Degraded}, nil
}

// InvalidateBookings drops every cached bookings window. Mutation call sites
// (status changes) use this coarse bust rather than per-key invalidation.
func (a *Aggregator) InvalidateBookings() {
	if a != nil && a.bookings != nil {
		a.bookings.InvalidateAll()
	}
}

// InvalidateAvailability drops the cached out-of-office records.
func (a *Aggregator) InvalidateAvailability() {
	if a != nil && a.availability != nil {
		a.availability.InvalidateAll()
	}
}

// InvalidateExternal drops every cached external-events window.
func (a *Aggregator) InvalidateExternal() {
	if a != nil && a.external != nil {
		a.external.InvalidateAll()
	}
}

func (a *Aggregator) recordFailure(timeline *Timeline, logger *slog.Logger, kind SourceKind, err error) {
	timeline.Degraded = true
	timeline.SourceErrors[kind] = err
	logger.Warn("source fetch failed, continuing without it", "source", string(kind), "error", err)
}

// clipToWindow drops events that do not intersect the window. Events whose
// timestamps failed parsing (zero StartUTC) are kept; they already carry
// fallback display values and dropping them would hide real records.
func clipToWindow(events []Event, window Window) []Event {
	kept := events[:0]
	for _, event := range events {
		if event.StartUTC.IsZero() || window.Overlaps(event.StartUTC, event.EndUTC) {
			kept = append(kept, event)
		}
	}
	return kept
}

func annotateToday(event Event, now time.Time) TodayCard {
	card := TodayCard{
		Event:     event,
		TimeRange: event.DisplayStart + " - " + event.DisplayEnd,
	}
	if event.StartUTC.IsZero() {
		return card
	}

	card.IsNow = !now.Before(event.StartUTC) && !now.After(event.EndUTC)
	card.IsUpcoming = event.StartUTC.After(now)
	card.IsPast = event.EndUTC.Before(now)

	if card.IsUpcoming {
		mins := int(event.StartUTC.Sub(now) / time.Minute)
		if mins < 60 {
			card.StartsIn = fmt.Sprintf("in %d min", mins)
		} else {
			card.StartsIn = fmt.Sprintf("in %dh %dm", mins/60, mins%60)
		}
	}
	return card
}
