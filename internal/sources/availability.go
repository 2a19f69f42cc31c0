package sources

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/calendar-aggregator/internal/cache"
	"github.com/example/calendar-aggregator/internal/calendar"
	"github.com/example/calendar-aggregator/internal/transport"
)

// availabilityKey is the single cache slot: the endpoint returns every
// out-of-office record for the current user, no window parameters.
const availabilityKey = "availability"

// Availability fetches out-of-office records. They change rarely, so the TTL
// is long (30 minutes by default) and window navigation never refetches them.
type Availability struct {
	client transport.Client
	cache  *cache.Cache[[]calendar.AbsenceRecord]
	ttl    time.Duration
	logger *slog.Logger
}

// NewAvailability builds the out-of-office fetcher.
func NewAvailability(client transport.Client, ttl time.Duration, now func() time.Time, logger *slog.Logger) *Availability {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Availability{
		client: client,
		cache:  cache.New[[]calendar.AbsenceRecord]("availability", now),
		ttl:    ttl,
		logger: logger,
	}
}

// Fetch returns every absence record; the expander clips them to the window.
func (s *Availability) Fetch(ctx context.Context, opts calendar.FetchOptions) ([]calendar.AbsenceRecord, error) {
	if opts.BypassCache {
		refresh(s.cache, availabilityKey)
	}

	return s.cache.GetOrLoad(ctx, availabilityKey, s.ttl, func(ctx context.Context) ([]calendar.AbsenceRecord, error) {
		start := time.Now()
		envelope, err := s.client.Get(ctx, "user/out-of-office", nil)
		observe(calendar.SourceAvailability, start, err)
		if err != nil {
			return nil, &FetchError{Source: calendar.SourceAvailability, Err: err}
		}

		records := []calendar.AbsenceRecord{}
		if err := envelope.DecodeData(&records); err != nil {
			return nil, &FetchError{Source: calendar.SourceAvailability, Err: err}
		}
		return records, nil
	})
}

// InvalidateAll drops the cached records so the next call refetches.
func (s *Availability) InvalidateAll() {
	s.cache.InvalidateAll()
}
