package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/example/calendar-aggregator/internal/timesource"
)

// PrefsHandler serves the timezone preference endpoints.
type PrefsHandler struct {
	clock     *timesource.Source
	responder responder
}

// NewPrefsHandler builds the handler.
func NewPrefsHandler(clock *timesource.Source, logger *slog.Logger) *PrefsHandler {
	return &PrefsHandler{clock: clock, responder: newResponder(logger)}
}

type timezoneDTO struct {
	Timezone string `json:"timezone"`
}

// GetTimezone serves GET /api/v1/preferences/timezone with the resolved
// display timezone, fallback included.
func (h *PrefsHandler) GetTimezone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	loc := h.clock.Location(ctx)
	h.responder.writeJSON(ctx, w, http.StatusOK, timezoneDTO{Timezone: loc.String()})
}

// SetTimezone serves PUT /api/v1/preferences/timezone. The zone name is
// validated against the tz database before being stored.
func (h *PrefsHandler) SetTimezone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dto := timezoneDTO{}
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if dto.Timezone == "" {
		h.responder.writeError(ctx, w, http.StatusBadRequest, errMissingTimezone)
		return
	}
	if _, err := time.LoadLocation(dto.Timezone); err != nil {
		h.responder.writeError(ctx, w, http.StatusBadRequest, err)
		return
	}
	if err := h.clock.SetLocation(ctx, dto.Timezone); err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, timezoneDTO{Timezone: dto.Timezone})
}
