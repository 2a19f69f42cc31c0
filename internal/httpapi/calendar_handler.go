package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/example/calendar-aggregator/internal/calendar"
)

// CalendarHandler serves the merged timeline endpoints.
type CalendarHandler struct {
	aggregator *calendar.Aggregator
	responder  responder
}

// NewCalendarHandler builds the handler.
func NewCalendarHandler(aggregator *calendar.Aggregator, logger *slog.Logger) *CalendarHandler {
	return &CalendarHandler{aggregator: aggregator, responder: newResponder(logger)}
}

type timelineResponse struct {
	Events   []calendar.Event `json:"events"`
	Degraded bool             `json:"degraded"`
	Failed   []string         `json:"failed_sources,omitempty"`
}

// Events serves GET /api/v1/calendar/events. start and end are required
// RFC 3339 instants; fresh=true bypasses the source caches.
func (h *CalendarHandler) Events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rawStart := r.URL.Query().Get("start")
	rawEnd := r.URL.Query().Get("end")
	if rawStart == "" || rawEnd == "" {
		h.responder.writeError(ctx, w, http.StatusBadRequest, errMissingTimeArgs)
		return
	}
	start, startErr := time.Parse(time.RFC3339, rawStart)
	end, endErr := time.Parse(time.RFC3339, rawEnd)
	if startErr != nil || endErr != nil {
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadTimeRange)
		return
	}

	opts := calendar.FetchOptions{BypassCache: boolQuery(r, "fresh")}
	timeline, err := h.aggregator.EventsForWindow(ctx, start, end, opts)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	h.responder.writeJSON(ctx, w, http.StatusOK, timelineResponse{
		Events:   timeline.Events,
		Degraded: timeline.Degraded,
		Failed:   failedSources(timeline),
	})
}

// Today serves GET /api/v1/calendar/today.
func (h *CalendarHandler) Today(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	opts := calendar.FetchOptions{BypassCache: boolQuery(r, "fresh")}
	today, err := h.aggregator.TodayEvents(ctx, opts)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, today)
}

// InvalidateCache serves POST /api/v1/calendar/cache/invalidate. The source
// query selects which cache to bust; absent or "all" busts every cache.
func (h *CalendarHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.URL.Query().Get("source") {
	case "bookings":
		h.aggregator.InvalidateBookings()
	case "external":
		h.aggregator.InvalidateExternal()
	case "availability":
		h.aggregator.InvalidateAvailability()
	case "", "all":
		h.aggregator.InvalidateBookings()
		h.aggregator.InvalidateExternal()
		h.aggregator.InvalidateAvailability()
	default:
		h.responder.writeError(ctx, w, http.StatusBadRequest, errUnknownSource)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusNoContent, nil)
}

func failedSources(timeline calendar.Timeline) []string {
	if len(timeline.SourceErrors) == 0 {
		return nil
	}
	failed := make([]string, 0, len(timeline.SourceErrors))
	for _, kind := range []calendar.SourceKind{calendar.SourceBooking, calendar.SourceExternal, calendar.SourceAvailability} {
		if _, ok := timeline.SourceErrors[kind]; ok {
			failed = append(failed, string(kind))
		}
	}
	return failed
}

func boolQuery(r *http.Request, name string) bool {
	value, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && value
}
