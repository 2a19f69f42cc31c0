package testfixtures

import (
	"fmt"

	"github.com/example/calendar-aggregator/internal/calendar"
)

// Booking builds a confirmed booking record with a video room, one guest and
// the given naive server timestamps ("2006-01-02 15:04:05", UTC).
func Booking(id int64, title, start, end string) calendar.BookingRecord {
	return calendar.BookingRecord{
		ID:        id,
		Title:     title,
		StartTime: start,
		EndTime:   end,
		Status:    "confirmed",
		Location: []calendar.BookingLocation{
			{Type: "google_meet", Value: fmt.Sprintf("https://meet.example.com/room-%d", id)},
		},
		Guests: []calendar.Guest{
			{Name: "Dana Reyes", Email: "dana@example.com"},
		},
	}
}

// ExternalEvent builds a synced external-calendar record.
func ExternalEvent(id, title, start, end string) calendar.ExternalRecord {
	return calendar.ExternalRecord{
		ID:           id,
		Title:        title,
		StartTime:    start,
		EndTime:      end,
		Status:       "confirmed",
		Source:       "google",
		CalendarName: "Work",
	}
}

// Absence builds an out-of-office record spanning start to end.
func Absence(id int64, description, start, end string) calendar.AbsenceRecord {
	return calendar.AbsenceRecord{
		ID:          id,
		StartTime:   start,
		EndTime:     end,
		Status:      "confirmed",
		Description: description,
		Source:      "out_of_office",
	}
}
