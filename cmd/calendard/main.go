package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/calendar-aggregator/internal/calendar"
	"github.com/example/calendar-aggregator/internal/config"
	"github.com/example/calendar-aggregator/internal/httpapi"
	"github.com/example/calendar-aggregator/internal/logging"
	"github.com/example/calendar-aggregator/internal/prefs"
	"github.com/example/calendar-aggregator/internal/sources"
	"github.com/example/calendar-aggregator/internal/timesource"
	"github.com/example/calendar-aggregator/internal/transport"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logging.New(os.Stderr, "error", "json").Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)

	store, err := prefs.OpenSQLite(cfg.Prefs.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open preference store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close preference store", "error", cerr)
		}
	}()

	clock := timesource.New(timesource.Options{
		Store:           store,
		DefaultTimezone: cfg.Prefs.DefaultTimezone,
		Logger:          logger,
	})

	var client transport.Client = transport.NewHTTPClient(transport.HTTPClientOptions{
		BaseURL:       cfg.API.BaseURL,
		Token:         cfg.API.Token,
		Timeout:       cfg.API.Timeout,
		RatePerSecond: cfg.API.RatePerSecond,
		RateBurst:     cfg.API.RateBurst,
		Logger:        logger,
	})
	if cfg.API.BreakerEnabled {
		client = transport.NewBreakerClient(client, logger)
	}

	aggregator := calendar.NewAggregator(calendar.AggregatorOptions{
		Clock:        clock,
		Bookings:     sources.NewBookings(client, cfg.Cache.BookingsTTL, clock.Now, logger),
		External:     sources.NewExternal(client, cfg.Cache.ExternalTTL, clock.Now, logger),
		Availability: sources.NewAvailability(client, cfg.Cache.AvailabilityTTL, clock.Now, logger),
		Dedupe: calendar.DedupeOptions{
			StartTolerance: cfg.Dedupe.StartTolerance,
			MatchLocation:  cfg.Dedupe.MatchLocation,
		},
		Logger: logger,
	})

	handler := httpapi.NewRouter(httpapi.RouterConfig{
		Calendar: httpapi.NewCalendarHandler(aggregator, logger),
		Prefs:    httpapi.NewPrefsHandler(clock, logger),
		Middleware: []func(http.Handler) http.Handler{
			httpapi.RequestLogger(logger),
			httpapi.PrincipalFromHeaders,
		},
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.HTTP.Timeout,
		WriteTimeout:      cfg.HTTP.Timeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("calendar aggregator listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}
