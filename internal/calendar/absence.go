package calendar

import (
	"log/slog"
	"time"

	"github.com/example/calendar-aggregator/internal/logging"
)

// Expander splits multi-day absence records into per-day segments clipped to
// a query window.
type Expander struct {
	normalizer *Normalizer
	logger     *slog.Logger
}

// NewExpander builds an Expander that normalizes segments through normalizer.
func NewExpander(normalizer *Normalizer, logger *slog.Logger) *Expander {
	if normalizer == nil {
		normalizer = NewNormalizer(logger)
	}
	return &Expander{normalizer: normalizer, logger: logger}
}

// Expand produces one Event per calendar day (in loc) that the absence
// overlaps within the window. The first day keeps the absence's actual start,
// the last day its actual end; interior days span 00:00–23:59:59.999.
// Per-day IDs derive from the absence ID plus the day key, so re-expanding
// after a window shift yields byte-identical IDs. A record that does not
// overlap the window, or whose timestamps will not parse, contributes nothing.
func (e *Expander) Expand(rec AbsenceRecord, window Window, loc *time.Location) []Event {
	if loc == nil {
		loc = time.UTC
	}

	absStart, startErr := ParseServerTime(rec.StartTime)
	absEnd, endErr := ParseServerTime(rec.EndTime)
	if startErr != nil || endErr != nil {
		logging.ComponentLogger(nil, e.logger, "absence_expander", "").
			Warn("skipping absence with malformed timestamps", "id", rec.ID, "start", rec.StartTime, "end", rec.EndTime)
		return nil
	}
	if absEnd.Before(absStart) {
		absStart, absEnd = absEnd, absStart
	}
	if !window.Overlaps(absStart, absEnd) {
		return nil
	}

	clipStart := maxTime(absStart, window.Start)
	clipEnd := minTime(absEnd, window.End)

	firstDay := dayStart(absStart, loc)
	lastDay := dayStart(absEnd, loc)

	events := make([]Event, 0, 4)
	for day := dayStart(clipStart, loc); !day.After(dayStart(clipEnd, loc)); day = day.AddDate(0, 0, 1) {
		segStart := day
		if day.Equal(firstDay) {
			segStart = absStart
		}
		segEnd := dayEnd(day, loc)
		if day.Equal(lastDay) {
			segEnd = absEnd
		}
		events = append(events, e.normalizer.NormalizeAbsenceSegment(rec, segStart, segEnd, loc))
	}
	return events
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
