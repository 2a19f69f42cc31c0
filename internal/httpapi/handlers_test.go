package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/example/calendar-aggregator/internal/calendar"
	"github.com/example/calendar-aggregator/internal/prefs"
	"github.com/example/calendar-aggregator/internal/sources"
	"github.com/example/calendar-aggregator/internal/testfixtures"
	"github.com/example/calendar-aggregator/internal/timesource"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	handler   http.Handler
	transport *testfixtures.ScriptedTransport
	store     *prefs.MemoryStore
	clock     *timesource.Clock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := discardLogger()

	scripted := testfixtures.NewScriptedTransport()
	scripted.Respond("user/u1/bookings", map[string]any{"bookings": []calendar.BookingRecord{}})
	scripted.Respond("user/integrations/events", map[string]any{"events": []calendar.ExternalRecord{}})
	scripted.Respond("user/out-of-office", []calendar.AbsenceRecord{})

	clock := timesource.NewClock(time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC))
	store := prefs.NewMemoryStore()
	source := timesource.New(timesource.Options{
		Now:             clock.NowFunc(),
		Store:           store,
		DefaultTimezone: "UTC",
		Logger:          logger,
	})

	aggregator := calendar.NewAggregator(calendar.AggregatorOptions{
		Clock:        source,
		Bookings:     sources.NewBookings(scripted, time.Minute, clock.NowFunc(), logger),
		External:     sources.NewExternal(scripted, time.Minute, clock.NowFunc(), logger),
		Availability: sources.NewAvailability(scripted, time.Minute, clock.NowFunc(), logger),
		Logger:       logger,
	})

	handler := NewRouter(RouterConfig{
		Calendar: NewCalendarHandler(aggregator, logger),
		Prefs:    NewPrefsHandler(source, logger),
		Middleware: []func(http.Handler) http.Handler{
			RequestLogger(logger),
			PrincipalFromHeaders,
		},
	})

	return &harness{handler: handler, transport: scripted, store: store, clock: clock}
}

func (h *harness) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("X-User-ID", "u1")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func TestEventsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.transport.Respond("user/u1/bookings", map[string]any{"bookings": []calendar.BookingRecord{
		testfixtures.Booking(1, "Morning sync", "2025-06-10 09:00:00", "2025-06-10 09:30:00"),
	}})

	rec := h.do(t, http.MethodGet, "/api/v1/calendar/events?start=2025-06-10T00:00:00Z&end=2025-06-10T23:00:00Z", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	payload := timelineResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Degraded {
		t.Fatal("degraded with healthy sources")
	}
	if len(payload.Events) != 1 || payload.Events[0].Title != "Morning sync" {
		t.Fatalf("unexpected events: %+v", payload.Events)
	}
}

func TestEventsEndpointValidation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		target string
	}{
		{"missing parameters", "/api/v1/calendar/events"},
		{"missing end", "/api/v1/calendar/events?start=2025-06-10T00:00:00Z"},
		{"bad stamps", "/api/v1/calendar/events?start=tomorrow&end=later"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := h.do(t, http.MethodGet, tc.target, "")
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestEventsEndpointDegradedOnSourceFailure(t *testing.T) {
	h := newHarness(t)
	h.transport.Fail("user/integrations/events", errors.New("down"))
	h.transport.Respond("user/u1/bookings", map[string]any{"bookings": []calendar.BookingRecord{
		testfixtures.Booking(1, "Survivor", "2025-06-10 09:00:00", "2025-06-10 09:30:00"),
	}})

	rec := h.do(t, http.MethodGet, "/api/v1/calendar/events?start=2025-06-10T00:00:00Z&end=2025-06-10T23:00:00Z", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for a degraded result", rec.Code)
	}

	payload := timelineResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !payload.Degraded {
		t.Fatal("Degraded = false after a source failure")
	}
	if len(payload.Failed) != 1 || payload.Failed[0] != "external" {
		t.Fatalf("Failed = %v, want [external]", payload.Failed)
	}
	if len(payload.Events) != 1 {
		t.Fatalf("surviving events = %d, want 1", len(payload.Events))
	}
}

func TestTodayEndpoint(t *testing.T) {
	h := newHarness(t)
	h.transport.Respond("user/u1/bookings", map[string]any{"bookings": []calendar.BookingRecord{
		testfixtures.Booking(2, "Soon", "2025-06-10 12:45:00", "2025-06-10 13:00:00"),
	}})

	rec := h.do(t, http.MethodGet, "/api/v1/calendar/today", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	payload := calendar.TodayTimeline{}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(payload.Events))
	}
	if payload.Events[0].StartsIn != "in 45 min" {
		t.Fatalf("StartsIn = %q", payload.Events[0].StartsIn)
	}
}

func TestInvalidateCacheEndpoint(t *testing.T) {
	h := newHarness(t)

	// Warm the caches.
	if rec := h.do(t, http.MethodGet, "/api/v1/calendar/today", ""); rec.Code != http.StatusOK {
		t.Fatalf("warmup status = %d", rec.Code)
	}
	if calls := h.transport.Calls("user/u1/bookings"); calls != 1 {
		t.Fatalf("bookings calls = %d", calls)
	}

	rec := h.do(t, http.MethodPost, "/api/v1/calendar/cache/invalidate?source=bookings", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("invalidate status = %d", rec.Code)
	}

	if rec := h.do(t, http.MethodGet, "/api/v1/calendar/today", ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if calls := h.transport.Calls("user/u1/bookings"); calls != 2 {
		t.Fatalf("bookings refetched %d times, want 2 after invalidation", calls)
	}
	if calls := h.transport.Calls("user/out-of-office"); calls != 1 {
		t.Fatalf("availability calls = %d, want untouched cache", calls)
	}
}

func TestInvalidateCacheRejectsUnknownSource(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/calendar/cache/invalidate?source=meetings", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTimezonePreferenceRoundTrip(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/preferences/timezone", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	dto := timezoneDTO{}
	if err := json.Unmarshal(rec.Body.Bytes(), &dto); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dto.Timezone != "UTC" {
		t.Fatalf("Timezone = %q, want fallback UTC", dto.Timezone)
	}

	rec = h.do(t, http.MethodPut, "/api/v1/preferences/timezone", `{"timezone":"Europe/Berlin"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodGet, "/api/v1/preferences/timezone", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &dto); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dto.Timezone != "Europe/Berlin" {
		t.Fatalf("Timezone = %q after update", dto.Timezone)
	}
}

func TestTimezonePreferenceValidation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"missing field", `{}`},
		{"unknown zone", `{"timezone":"Mars/Olympus"}`},
		{"not json", `timezone=UTC`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := h.do(t, http.MethodPut, "/api/v1/preferences/timezone", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	if rec := h.do(t, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "calendar_") {
		t.Fatal("metrics output missing calendar_ series")
	}
}
