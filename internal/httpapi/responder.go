// Package httpapi is the local read surface over the aggregation engine. It
// serves merged timelines, today views, cache invalidation and the timezone
// preference, plus health and metrics endpoints.
//
// Endpoints:
//   - GET  /api/v1/calendar/events?start=&end=&fresh=  merged timeline
//   - GET  /api/v1/calendar/today                      annotated today view
//   - POST /api/v1/calendar/cache/invalidate?source=   cache bust
//   - GET  /api/v1/preferences/timezone                stored display timezone
//   - PUT  /api/v1/preferences/timezone                update display timezone
//   - GET  /healthz                                    liveness probe
//   - GET  /metrics                                    Prometheus scrape
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/example/calendar-aggregator/internal/logging"
	"github.com/example/calendar-aggregator/internal/transport"
)

var (
	errBadTimeRange    = errors.New("start and end must be RFC 3339 timestamps")
	errMissingTimeArgs = errors.New("start and end query parameters are required")
	errUnknownSource   = errors.New("source must be bookings, external, availability or all")
	errBadRequestBody  = errors.New("invalid request body")
	errMissingTimezone = errors.New("timezone is required")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}
	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := statusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}
	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

// handleServiceError maps engine failures onto HTTP statuses. Transport
// failures surface as 502: the local service is healthy, the upstream is not.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	switch {
	case errors.Is(err, transport.ErrCircuitOpen):
		r.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{
			ErrorCode: "UPSTREAM_UNAVAILABLE",
			Message:   "the scheduling API is temporarily unavailable",
		})
	case transport.IsTransportError(err):
		r.writeJSON(ctx, w, http.StatusBadGateway, errorResponse{Message: "the scheduling API request failed"})
	default:
		r.loggerFor(ctx).ErrorContext(ctx, "unhandled service error", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: "internal server error"})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func statusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "the request is invalid"
	case http.StatusNotFound:
		return "the requested resource was not found"
	case http.StatusMethodNotAllowed:
		return "method not allowed"
	case http.StatusBadGateway:
		return "the scheduling API request failed"
	case http.StatusServiceUnavailable:
		return "the scheduling API is temporarily unavailable"
	default:
		return "internal server error"
	}
}

type errorResponse struct {
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message"`
}
