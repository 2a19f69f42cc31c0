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

// bookingsPageSize bounds one window's fetch; realistic windows stay well
// under it.
const bookingsPageSize = "200"

type bookingsPayload struct {
	Bookings []calendar.BookingRecord `json:"bookings"`
}

// Bookings fetches the user's internal bookings.
type Bookings struct {
	client transport.Client
	cache  *cache.Cache[[]calendar.BookingRecord]
	ttl    time.Duration
	logger *slog.Logger
}

// NewBookings builds the bookings fetcher. now feeds the cache clock.
func NewBookings(client transport.Client, ttl time.Duration, now func() time.Time, logger *slog.Logger) *Bookings {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Bookings{
		client: client,
		cache:  cache.New[[]calendar.BookingRecord]("bookings", now),
		ttl:    ttl,
		logger: logger,
	}
}

// Fetch returns the bookings overlapping window, serving cached data when
// fresh. All statuses are requested; filtering is the caller's concern.
func (s *Bookings) Fetch(ctx context.Context, userID string, window calendar.Window, opts calendar.FetchOptions) ([]calendar.BookingRecord, error) {
	key := "bookings|" + userID + "|" + window.Key() + "|all"
	if opts.BypassCache {
		refresh(s.cache, key)
	}

	return s.cache.GetOrLoad(ctx, key, s.ttl, func(ctx context.Context) ([]calendar.BookingRecord, error) {
		start := time.Now()
		query := url.Values{}
		query.Set("start_time", window.Start.UTC().Format(time.RFC3339))
		query.Set("end_time", window.End.UTC().Format(time.RFC3339))
		query.Set("status", "all")
		query.Set("page", "1")
		query.Set("page_size", bookingsPageSize)

		envelope, err := s.client.Get(ctx, "user/"+userID+"/bookings", query)
		observe(calendar.SourceBooking, start, err)
		if err != nil {
			return nil, &FetchError{Source: calendar.SourceBooking, Err: err}
		}

		payload := bookingsPayload{}
		if err := envelope.DecodeData(&payload); err != nil {
			return nil, &FetchError{Source: calendar.SourceBooking, Err: err}
		}
		return payload.Bookings, nil
	})
}

// InvalidateAll drops every cached bookings window.
func (s *Bookings) InvalidateAll() {
	s.cache.InvalidateAll()
}
