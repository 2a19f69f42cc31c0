// Package calendar is the aggregation engine: it merges internal bookings,
// externally synced calendar events, and out-of-office records into one
// deduplicated, timezone-correct timeline.
package calendar

import "time"

// SourceKind identifies which of the three origin systems an event came from.
type SourceKind string

const (
	// SourceBooking marks events backed by an internal booking.
	SourceBooking SourceKind = "booking"
	// SourceExternal marks events mirrored from a synced external calendar.
	SourceExternal SourceKind = "external"
	// SourceAvailability marks expanded out-of-office segments.
	SourceAvailability SourceKind = "availability"
)

// mergeRank orders same-instant events deterministically in the merged output.
func (k SourceKind) mergeRank() int {
	switch k {
	case SourceBooking:
		return 0
	case SourceExternal:
		return 1
	case SourceAvailability:
		return 2
	default:
		return 3
	}
}

// Status is the lifecycle state of an event.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusPending   Status = "pending"
	StatusCanceled  Status = "canceled"
	StatusRemoved   Status = "removed"
)

// ParseStatus maps an upstream status string onto the known set, defaulting
// to confirmed the way the original feed does for absent values.
func ParseStatus(raw string) Status {
	switch raw {
	case "pending":
		return StatusPending
	case "canceled", "cancelled":
		return StatusCanceled
	case "removed":
		return StatusRemoved
	case "", "confirmed":
		return StatusConfirmed
	default:
		return Status(raw)
	}
}

// Event is the unified output entity of the aggregation engine.
//
// StartUTC and EndUTC are instants; DisplayStart, DisplayEnd and DateKey are
// pre-formatted in the caller's resolved timezone and never recomputed
// downstream. Raw retains the originating record untouched for
// source-specific UI affordances.
type Event struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Location     string     `json:"location,omitempty"`
	Attendees    string     `json:"attendees,omitempty"`
	MeetingLink  string     `json:"meeting_link,omitempty"`
	Status       Status     `json:"status"`
	StartUTC     time.Time  `json:"start_utc"`
	EndUTC       time.Time  `json:"end_utc"`
	DisplayStart string     `json:"display_start"`
	DisplayEnd   string     `json:"display_end"`
	DateKey      string     `json:"date_key"`
	SourceKind   SourceKind `json:"source_kind"`
	Cancelled    bool       `json:"cancelled"`
	Raw          any        `json:"raw,omitempty"`
}

// TodayCard is an Event annotated for "today" views with liveness flags
// computed against the injected clock.
type TodayCard struct {
	Event
	TimeRange  string `json:"time_range"`
	IsNow      bool   `json:"is_now"`
	IsUpcoming bool   `json:"is_upcoming"`
	IsPast     bool   `json:"is_past"`
	StartsIn   string `json:"starts_in,omitempty"`
}

// BookingLocation is one entry of a booking's location list.
type BookingLocation struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Guest is a booking attendee.
type Guest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// BookingRecord is the raw internal booking payload.
type BookingRecord struct {
	ID          int64             `json:"id"`
	Title       string            `json:"title"`
	StartTime   string            `json:"start_time"`
	EndTime     string            `json:"end_time"`
	Status      string            `json:"status"`
	Description string            `json:"description"`
	Location    []BookingLocation `json:"location"`
	Guests      []Guest           `json:"guests"`
	Attendees   string            `json:"attendees"`
	MeetingLink string            `json:"meeting_link"`
	Cancelled   bool              `json:"cancelled"`
}

// ExternalRecord is the raw synced external-calendar payload. Title and
// Summary are interchangeable upstream; either may be set.
type ExternalRecord struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Summary      string `json:"summary"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Status       string `json:"status"`
	Location     string `json:"location"`
	Description  string `json:"description"`
	Source       string `json:"source"`
	CalendarName string `json:"calendar_name"`
}

// AbsenceRecord is the raw out-of-office payload. Start and end may span
// several calendar days; expansion into per-day segments happens locally.
type AbsenceRecord struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Status      string `json:"status"`
	Description string `json:"description"`
	Source      string `json:"source"`
}
