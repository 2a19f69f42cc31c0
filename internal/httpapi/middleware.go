package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/example/calendar-aggregator/internal/identity"
	"github.com/example/calendar-aggregator/internal/logging"
	"github.com/example/calendar-aggregator/internal/metrics"
)

const (
	requestIDHeader = "X-Request-ID"
	userIDHeader    = "X-User-ID"
	orgIDHeader     = "X-Organization-ID"
)

// RequestLogger attaches a per-request logger carrying a request ID, logs
// request start and completion, and records the request in the HTTP metrics.
// Incoming X-Request-ID values are propagated; absent ones get a fresh UUID.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(requestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, requestID)

			logger := base.With(
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := logging.ContextWithLogger(r.Context(), logger)
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			start := time.Now()
			logger.InfoContext(ctx, "request started")
			next.ServeHTTP(recorder, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed",
				"status", recorder.status, "duration", time.Since(start))

			metrics.HTTPRequests.WithLabelValues(r.Method, routePattern(r), strconv.Itoa(recorder.status)).Inc()
		})
	}
}

// PrincipalFromHeaders lifts the authenticated identity supplied by the
// fronting proxy into the request context. Requests without a user header pass
// through anonymously; the upstream API rejects them on its own.
func PrincipalFromHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(userIDHeader)
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := identity.ContextWithPrincipal(r.Context(), identity.Principal{
			UserID:         userID,
			OrganizationID: r.Header.Get(orgIDHeader),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// routePattern prefers the chi route template over the raw path so metric
// cardinality stays bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
