package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"venuebook/internal/config"
	"venuebook/internal/database"
	"venuebook/internal/events"
	"venuebook/internal/lifecycle"
	"venuebook/internal/metrics"
	"venuebook/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const venueWatchInterval = 10 * time.Second

func cmdServe(ctx context.Context, a *app, args []string, out io.Writer) error {
	if err := parse(newFlagSet("serve"), args); err != nil {
		return err
	}

	mon := a.cfg.Monitoring
	if mon.HealthCheckPort == 0 {
		mon.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, mon.HealthCheckPort, a, a.logger)

	if mon.PrometheusEnabled {
		if mon.PrometheusPort == 0 {
			mon.PrometheusPort = 9090
		}
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics.NewCollector(a.snapshot, a.activeVenues, a.logger))
		go startMetricsServer(ctx, mon.PrometheusPort, reg, a.logger)
	}

	go a.backupService().Start(ctx)

	go func() {
		err := config.WatchVenues(ctx, a.cfg.VenuesFile, venueWatchInterval, a.logger, a.setVenues)
		if err != nil && ctx.Err() == nil {
			a.logger.Warn().Err(err).Str("path", a.cfg.VenuesFile).Msg("Venue watcher not started")
		}
	}()

	a.logger.Info().
		Str("driver", a.cfg.Storage.Driver).
		Int("health_port", mon.HealthCheckPort).
		Msg("venuebook started")
	fmt.Fprintln(out, "Serving, press Ctrl+C to stop")

	<-ctx.Done()
	a.logger.Info().Msg("Shutting down")
	return nil
}

func (a *app) activeVenues() int {
	return len(a.venues.Load().GetActiveVenues())
}

// subscribeEventLog records every lifecycle event in the service log.
func subscribeEventLog(bus *events.Bus, logger *zerolog.Logger) {
	handler := func(e events.Event) error {
		var payload lifecycle.BookingEvent
		if err := e.Decode(&payload); err != nil {
			return fmt.Errorf("decode %s: %w", e.Type, err)
		}
		logger.Info().
			Str("event_id", e.ID).
			Str("event_type", e.Type).
			Int64("booking_id", payload.ID).
			Str("venue", payload.Venue).
			Str("status", payload.Status.String()).
			Msg("Booking event")
		return nil
	}
	for _, t := range []string{events.TypeBookingSubmitted, events.TypeBookingApproved, events.TypeBookingRejected} {
		bus.Subscribe(t, handler)
	}
}

func startHealthServer(ctx context.Context, port int, a *app, logger *zerolog.Logger) {
	serve(ctx, &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: healthHandler(a), ReadHeaderTimeout: 5 * time.Second}, "health", logger)
}

// healthHandler serves /healthz and /readyz. Ready means the data files can be
// locked and opened within the lock wait.
func healthHandler(a *app) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		err := a.withBackend(func(b store.Backend) error {
			if db, ok := b.(*database.DB); ok {
				ctxPing, cancel := context.WithTimeout(r.Context(), time.Second)
				defer cancel()
				return db.PingContext(ctxPing)
			}
			return nil
		})
		if err != nil {
			a.logger.Warn().Err(err).Msg("Readiness check failed")
			http.Error(w, "storage not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	return mux
}

func startMetricsServer(ctx context.Context, port int, reg *prometheus.Registry, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	serve(ctx, &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}, "metrics", logger)
}

func serve(ctx context.Context, srv *http.Server, name string, logger *zerolog.Logger) {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Str("server", name).Msg("Server error")
	}
}
