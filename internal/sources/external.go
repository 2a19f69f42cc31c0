package sources

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/example/calendar-aggregator/internal/cache"
	"github.com/example/calendar-aggregator/internal/calendar"
	"github.com/example/calendar-aggregator/internal/transport"
)

type externalPayload struct {
	Events []calendar.ExternalRecord `json:"events"`
}

// External fetches already-synced external-calendar events. The endpoint
// takes date-granularity bounds and syncs opportunistically; "auto" avoids
// forcing a provider sync on every navigation and the rate limits that
// come with it.
type External struct {
	client transport.Client
	cache  *cache.Cache[[]calendar.ExternalRecord]
	ttl    time.Duration
	logger *slog.Logger
}

// NewExternal builds the external-events fetcher.
func NewExternal(client transport.Client, ttl time.Duration, now func() time.Time, logger *slog.Logger) *External {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &External{
		client: client,
		cache:  cache.New[[]calendar.ExternalRecord]("external", now),
		ttl:    ttl,
		logger: logger,
	}
}

// Fetch returns the external events overlapping window.
func (s *External) Fetch(ctx context.Context, window calendar.Window, opts calendar.FetchOptions) ([]calendar.ExternalRecord, error) {
	key := "external|" + window.Key()
	if opts.BypassCache {
		refresh(s.cache, key)
	}

	return s.cache.GetOrLoad(ctx, key, s.ttl, func(ctx context.Context) ([]calendar.ExternalRecord, error) {
		start := time.Now()
		query := url.Values{}
		query.Set("start_date", window.Start.UTC().Format("2006-01-02"))
		query.Set("end_date", window.End.UTC().Format("2006-01-02"))
		query.Set("sync", "auto")

		envelope, err := s.client.Get(ctx, "user/integrations/events", query)
		observe(calendar.SourceExternal, start, err)
		if err != nil {
			return nil, &FetchError{Source: calendar.SourceExternal, Err: err}
		}

		payload := externalPayload{}
		if err := envelope.DecodeData(&payload); err != nil {
			return nil, &FetchError{Source: calendar.SourceExternal, Err: err}
		}
		return payload.Events, nil
	})
}

// InvalidateAll drops every cached external-events window.
func (s *External) InvalidateAll() {
	s.cache.InvalidateAll()
}
