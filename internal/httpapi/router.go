package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig wires the handlers and middleware into the router.
type RouterConfig struct {
	Calendar   *CalendarHandler
	Prefs      *PrefsHandler
	Middleware []func(http.Handler) http.Handler
}

// NewRouter assembles the read surface.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	for _, mw := range cfg.Middleware {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Calendar != nil {
			r.Route("/calendar", func(r chi.Router) {
				r.Get("/events", cfg.Calendar.Events)
				r.Get("/today", cfg.Calendar.Today)
				r.Post("/cache/invalidate", cfg.Calendar.InvalidateCache)
			})
		}
		if cfg.Prefs != nil {
			r.Route("/preferences", func(r chi.Router) {
				r.Get("/timezone", cfg.Prefs.GetTimezone)
				r.Put("/timezone", cfg.Prefs.SetTimezone)
			})
		}
	})

	return r
}
