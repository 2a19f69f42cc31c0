package sources

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/calendar-aggregator/internal/calendar"
	"github.com/example/calendar-aggregator/internal/testfixtures"
	"github.com/example/calendar-aggregator/internal/timesource"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testWindow() calendar.Window {
	return calendar.NewWindow(
		time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		time.UTC,
	)
}

func TestBookingsFetchCachesPerUserAndWindow(t *testing.T) {
	scripted := testfixtures.NewScriptedTransport()
	scripted.Respond("user/user-1/bookings", map[string]any{
		"bookings": []calendar.BookingRecord{
			testfixtures.Booking(1, "Sync", "2025-06-10 09:00:00", "2025-06-10 10:00:00"),
		},
	})
	clock := timesource.NewClock(time.Unix(0, 0))
	s := NewBookings(scripted, 5*time.Minute, clock.NowFunc(), discardLogger())

	ctx := context.Background()
	window := testWindow()

	first, err := s.Fetch(ctx, "user-1", window, calendar.FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(first) != 1 || first[0].ID != 1 {
		t.Fatalf("unexpected records: %+v", first)
	}

	if _, err := s.Fetch(ctx, "user-1", window, calendar.FetchOptions{}); err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if calls := scripted.Calls("user/user-1/bookings"); calls != 1 {
		t.Fatalf("upstream called %d times, want 1 (cached)", calls)
	}

	// A different user misses the cache.
	scripted.Respond("user/user-2/bookings", map[string]any{"bookings": []calendar.BookingRecord{}})
	if _, err := s.Fetch(ctx, "user-2", window, calendar.FetchOptions{}); err != nil {
		t.Fatalf("Fetch user-2: %v", err)
	}
	if calls := scripted.Calls("user/user-2/bookings"); calls != 1 {
		t.Fatalf("user-2 upstream called %d times, want 1", calls)
	}
}

func TestBookingsFetchCoalescesConcurrentCallers(t *testing.T) {
	scripted := testfixtures.NewScriptedTransport()
	scripted.Respond("user/user-1/bookings", map[string]any{"bookings": []calendar.BookingRecord{}})
	clock := timesource.NewClock(time.Unix(0, 0))
	s := NewBookings(scripted, 5*time.Minute, clock.NowFunc(), discardLogger())

	ctx := context.Background()
	window := testWindow()

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Fetch(ctx, "user-1", window, calendar.FetchOptions{})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if calls := scripted.Calls("user/user-1/bookings"); calls != 1 {
		t.Fatalf("upstream called %d times for 5 concurrent callers, want 1", calls)
	}
}

func TestBookingsFetchExpiresWithTTL(t *testing.T) {
	scripted := testfixtures.NewScriptedTransport()
	scripted.Respond("user/user-1/bookings", map[string]any{"bookings": []calendar.BookingRecord{}})
	clock := timesource.NewClock(time.Unix(0, 0))
	s := NewBookings(scripted, 5*time.Minute, clock.NowFunc(), discardLogger())

	ctx := context.Background()
	window := testWindow()

	if _, err := s.Fetch(ctx, "user-1", window, calendar.FetchOptions{}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	clock.Advance(5*time.Minute + time.Second)
	if _, err := s.Fetch(ctx, "user-1", window, calendar.FetchOptions{}); err != nil {
		t.Fatalf("Fetch after expiry: %v", err)
	}
	if calls := scripted.Calls("user/user-1/bookings"); calls != 2 {
		t.Fatalf("upstream called %d times, want 2 after TTL expiry", calls)
	}
}

func TestBookingsFetchBypassForcesRefetch(t *testing.T) {
	scripted := testfixtures.NewScriptedTransport()
	scripted.Respond("user/user-1/bookings", map[string]any{"bookings": []calendar.BookingRecord{}})
	clock := timesource.NewClock(time.Unix(0, 0))
	s := NewBookings(scripted, 5*time.Minute, clock.NowFunc(), discardLogger())

	ctx := context.Background()
	window := testWindow()

	if _, err := s.Fetch(ctx, "user-1", window, calendar.FetchOptions{}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if _, err := s.Fetch(ctx, "user-1", window, calendar.FetchOptions{BypassCache: true}); err != nil {
		t.Fatalf("bypass Fetch: %v", err)
	}
	if calls := scripted.Calls("user/user-1/bookings"); calls != 2 {
		t.Fatalf("upstream called %d times, want 2 with bypass", calls)
	}
}

func TestBookingsFetchFailureIsTypedAndNotCached(t *testing.T) {
	scripted := testfixtures.NewScriptedTransport()
	upstream := errors.New("boom")
	scripted.Fail("user/user-1/bookings", upstream)
	clock := timesource.NewClock(time.Unix(0, 0))
	s := NewBookings(scripted, 5*time.Minute, clock.NowFunc(), discardLogger())

	ctx := context.Background()
	window := testWindow()

	_, err := s.Fetch(ctx, "user-1", window, calendar.FetchOptions{})
	if err == nil {
		t.Fatal("Fetch succeeded against failing upstream")
	}
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error %T, want *FetchError", err)
	}
	if fetchErr.Source != calendar.SourceBooking {
		t.Fatalf("FetchError.Source = %q", fetchErr.Source)
	}
	if !errors.Is(err, upstream) {
		t.Fatalf("cause not preserved: %v", err)
	}

	// Failure must not be cached: recovery is visible on the next call.
	scripted.Respond("user/user-1/bookings", map[string]any{"bookings": []calendar.BookingRecord{}})
	if _, err := s.Fetch(ctx, "user-1", window, calendar.FetchOptions{}); err != nil {
		t.Fatalf("Fetch after recovery: %v", err)
	}
	if calls := scripted.Calls("user/user-1/bookings"); calls != 2 {
		t.Fatalf("upstream called %d times, want 2 (failure uncached)", calls)
	}
}

func TestExternalFetchCachesPerWindow(t *testing.T) {
	scripted := testfixtures.NewScriptedTransport()
	scripted.Respond("user/integrations/events", map[string]any{
		"events": []calendar.ExternalRecord{
			testfixtures.ExternalEvent("g1", "Lunch", "2025-06-10 12:00:00", "2025-06-10 13:00:00"),
		},
	})
	clock := timesource.NewClock(time.Unix(0, 0))
	s := NewExternal(scripted, 5*time.Minute, clock.NowFunc(), discardLogger())

	ctx := context.Background()

	records, err := s.Fetch(ctx, testWindow(), calendar.FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 1 || records[0].ID != "g1" {
		t.Fatalf("unexpected records: %+v", records)
	}
	if _, err := s.Fetch(ctx, testWindow(), calendar.FetchOptions{}); err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if calls := scripted.Calls("user/integrations/events"); calls != 1 {
		t.Fatalf("upstream called %d times, want 1", calls)
	}

	// A different window is a different key.
	other := calendar.NewWindow(
		time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC),
		time.UTC,
	)
	if _, err := s.Fetch(ctx, other, calendar.FetchOptions{}); err != nil {
		t.Fatalf("Fetch other window: %v", err)
	}
	if calls := scripted.Calls("user/integrations/events"); calls != 2 {
		t.Fatalf("upstream called %d times, want 2 across windows", calls)
	}
}

func TestAvailabilityFetchSharesOneSlot(t *testing.T) {
	scripted := testfixtures.NewScriptedTransport()
	scripted.Respond("user/out-of-office", []calendar.AbsenceRecord{
		testfixtures.Absence(5, "Vacation", "2025-06-10 00:00:00", "2025-06-12 23:59:59"),
	})
	clock := timesource.NewClock(time.Unix(0, 0))
	s := NewAvailability(scripted, 30*time.Minute, clock.NowFunc(), discardLogger())

	ctx := context.Background()

	records, err := s.Fetch(ctx, calendar.FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 1 || records[0].ID != 5 {
		t.Fatalf("unexpected records: %+v", records)
	}
	if _, err := s.Fetch(ctx, calendar.FetchOptions{}); err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if calls := scripted.Calls("user/out-of-office"); calls != 1 {
		t.Fatalf("upstream called %d times, want 1", calls)
	}
}

func TestAvailabilityInvalidateAllForcesRefetch(t *testing.T) {
	scripted := testfixtures.NewScriptedTransport()
	scripted.Respond("user/out-of-office", []calendar.AbsenceRecord{})
	clock := timesource.NewClock(time.Unix(0, 0))
	s := NewAvailability(scripted, 30*time.Minute, clock.NowFunc(), discardLogger())

	ctx := context.Background()
	if _, err := s.Fetch(ctx, calendar.FetchOptions{}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	s.InvalidateAll()
	if _, err := s.Fetch(ctx, calendar.FetchOptions{}); err != nil {
		t.Fatalf("Fetch after invalidation: %v", err)
	}
	if calls := scripted.Calls("user/out-of-office"); calls != 2 {
		t.Fatalf("upstream called %d times, want 2 after InvalidateAll", calls)
	}
}
