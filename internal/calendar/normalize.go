package calendar

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/calendar-aggregator/internal/logging"
)

// serverTimeLayout is the naive timestamp format the upstream API transmits.
// These stamps carry no zone designator and are interpreted as UTC, never as
// the server's local time and never as the caller's timezone. Treating them
// any other way shifts every event by the zone offset.
const serverTimeLayout = "2006-01-02 15:04:05"

const (
	displayTimeLayout = "15:04"
	dateKeyLayout     = "Monday, January 2, 2006"
)

// ParseServerTime parses an upstream timestamp as UTC. Naive
// "YYYY-MM-DD HH:MM:SS" stamps and RFC 3339 stamps (external calendars emit
// those) are both accepted; a trailing "Z" on a naive stamp is tolerated.
func ParseServerTime(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if strings.ContainsRune(value, 'T') {
		if t, err := time.Parse(time.RFC3339, value); err == nil {
			return t.UTC(), nil
		}
		if t, err := time.ParseInLocation("2006-01-02T15:04:05", value, time.UTC); err == nil {
			return t, nil
		}
		return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
	}
	value = strings.TrimSuffix(value, "Z")
	t, err := time.ParseInLocation(serverTimeLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
	}
	return t, nil
}

// Normalizer converts raw source records into the unified Event shape with
// display fields formatted for one resolved timezone.
type Normalizer struct {
	logger *slog.Logger
}

// NewNormalizer builds a Normalizer that logs malformed-record warnings to logger.
func NewNormalizer(logger *slog.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// NormalizeBooking maps an internal booking onto an Event.
func (n *Normalizer) NormalizeBooking(rec BookingRecord, loc *time.Location) Event {
	event := Event{
		ID:          fmt.Sprintf("%d", rec.ID),
		Title:       rec.Title,
		Description: rec.Description,
		Location:    flattenLocations(rec.Location),
		Attendees:   joinGuests(rec.Guests, rec.Attendees),
		MeetingLink: rec.MeetingLink,
		Status:      ParseStatus(rec.Status),
		SourceKind:  SourceBooking,
		Cancelled:   rec.Cancelled,
		Raw:         rec,
	}
	if event.Title == "" {
		event.Title = "Untitled Event"
	}
	n.applyTimes(&event, rec.StartTime, rec.EndTime, loc)
	return event
}

// NormalizeExternal maps a synced external-calendar event onto an Event.
// External IDs are prefixed so they cannot collide with numeric booking IDs.
func (n *Normalizer) NormalizeExternal(rec ExternalRecord, loc *time.Location) Event {
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	title := rec.Title
	if title == "" {
		title = rec.Summary
	}
	if title == "" {
		title = "External Event"
	}
	event := Event{
		ID:          "external_" + id,
		Title:       title,
		Description: rec.Description,
		Location:    rec.Location,
		Status:      ParseStatus(rec.Status),
		SourceKind:  SourceExternal,
		Raw:         rec,
	}
	n.applyTimes(&event, rec.StartTime, rec.EndTime, loc)
	return event
}

// NormalizeAbsenceSegment maps one expanded per-day segment of an absence
// onto an Event. The segment bounds come from the expander; the ID embeds the
// segment's UTC day so repeated expansion yields identical IDs.
func (n *Normalizer) NormalizeAbsenceSegment(rec AbsenceRecord, segStart, segEnd time.Time, loc *time.Location) Event {
	event := Event{
		ID:          fmt.Sprintf("availability_%d_%s", rec.ID, segStart.UTC().Format("2006-01-02")),
		Title:       classifyAbsence(rec),
		Description: rec.Description,
		Status:      ParseStatus(rec.Status),
		StartUTC:    segStart.UTC(),
		EndUTC:      segEnd.UTC(),
		SourceKind:  SourceAvailability,
		Raw:         rec,
	}
	event.DisplayStart = segStart.In(loc).Format(displayTimeLayout)
	event.DisplayEnd = segEnd.In(loc).Format(displayTimeLayout)
	event.DateKey = segStart.In(loc).Format(dateKeyLayout)
	return event
}

// applyTimes fills the instant and display fields from raw stamps. Malformed
// stamps fail closed: the event keeps best-effort display values sliced from
// the raw strings and a warning is logged; one bad record never aborts a batch.
func (n *Normalizer) applyTimes(event *Event, rawStart, rawEnd string, loc *time.Location) {
	start, startErr := ParseServerTime(rawStart)
	end, endErr := ParseServerTime(rawEnd)
	if endErr != nil && startErr == nil {
		end = start
		endErr = nil
	}

	if startErr != nil || endErr != nil {
		logging.ComponentLogger(nil, n.logger, "normalizer", "", "source", string(event.SourceKind)).
			Warn("malformed timestamps, using raw fallback", "id", event.ID, "start", rawStart, "end", rawEnd)
		event.DisplayStart = fallbackDisplayTime(rawStart)
		event.DisplayEnd = fallbackDisplayTime(rawEnd)
		event.DateKey = fallbackDateKey(rawStart)
		return
	}

	if end.Before(start) {
		start, end = end, start
	}
	event.StartUTC = start
	event.EndUTC = end
	event.DisplayStart = start.In(loc).Format(displayTimeLayout)
	event.DisplayEnd = end.In(loc).Format(displayTimeLayout)
	event.DateKey = start.In(loc).Format(dateKeyLayout)
}

// classifyAbsence extracts a coarse reason from the free-text description.
// Unmatched descriptions fall back to a generic label; classification never
// fails normalization.
func classifyAbsence(rec AbsenceRecord) string {
	description := rec.Description
	switch {
	case strings.Contains(description, "Vacation"):
		return "Vacation"
	case strings.Contains(description, "Travel"):
		return "Travel"
	case strings.Contains(description, "Sick leave"):
		return "Sick Leave"
	case strings.Contains(description, "Public holiday"):
		return "Public Holiday"
	case rec.Source == "out_of_office":
		return "Out of Office"
	}
	if rec.Title != "" {
		return rec.Title
	}
	return "Unavailable"
}

func flattenLocations(locations []BookingLocation) string {
	var b strings.Builder
	for _, loc := range locations {
		switch loc.Type {
		case "google_meet":
			b.WriteString("Google Meet")
		case "link", "address":
			b.WriteString(loc.Value)
		}
	}
	return b.String()
}

func joinGuests(guests []Guest, fallback string) string {
	if len(guests) == 0 {
		return fallback
	}
	names := make([]string, 0, len(guests))
	for _, g := range guests {
		if g.Name != "" {
			names = append(names, g.Name)
			continue
		}
		if g.Email != "" {
			names = append(names, g.Email)
		}
	}
	return strings.Join(names, ", ")
}

// fallbackDisplayTime slices "HH:MM" out of a raw stamp that failed parsing.
func fallbackDisplayTime(raw string) string {
	fields := strings.FieldsFunc(strings.TrimSpace(raw), func(r rune) bool {
		return r == ' ' || r == 'T'
	})
	if len(fields) < 2 {
		return ""
	}
	timePart := fields[1]
	if len(timePart) >= 5 {
		return timePart[:5]
	}
	return timePart
}

// fallbackDateKey slices the date portion out of a raw stamp that failed parsing.
func fallbackDateKey(raw string) string {
	fields := strings.FieldsFunc(strings.TrimSpace(raw), func(r rune) bool {
		return r == ' ' || r == 'T'
	})
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
