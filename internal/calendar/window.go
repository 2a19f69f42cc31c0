package calendar

import "time"

// Window is a normalized query range: start is midnight and end is
// end-of-day in the query's reference timezone, converted to UTC. Normalizing
// keeps cache keys stable across callers asking for "today" at slightly
// different wall-clock moments.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow normalizes [start, end] against the reference timezone.
func NewWindow(start, end time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	if end.Before(start) {
		start, end = end, start
	}
	return Window{
		Start: dayStart(start, loc).UTC(),
		End:   dayEnd(end, loc).UTC(),
	}
}

// DayWindow is the single-day window containing t in loc.
func DayWindow(t time.Time, loc *time.Location) Window {
	return NewWindow(t, t, loc)
}

// Key renders a stable cache-key fragment for the window.
func (w Window) Key() string {
	return w.Start.UTC().Format(time.RFC3339) + ".." + w.End.UTC().Format(time.RFC3339)
}

// Overlaps reports whether [start, end] intersects the window.
func (w Window) Overlaps(start, end time.Time) bool {
	return start.Before(w.End) && end.After(w.Start)
}

// dayStart is midnight of t's calendar day in loc.
func dayStart(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// dayEnd is 23:59:59.999 of t's calendar day in loc.
func dayEnd(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, int(999*time.Millisecond), loc)
}
