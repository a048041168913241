package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"radio-relay/internal/attendance"
	"radio-relay/internal/feed"
	"radio-relay/internal/platform/config"
	"radio-relay/internal/platform/logger"
	"radio-relay/internal/platform/metrics"
	"radio-relay/internal/relay"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()
	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	met := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openAttendance(ctx, cfg.AttendanceDBURL)
	if err != nil {
		log.Error("attendance store unavailable", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	recorder := attendance.NewRecorder(store, log, 0)

	state := relay.NewProgramState(cfg.LiveIdleTimeout)
	registry := relay.NewRegistry(log)
	registry.OnBroadcast = met.ObserveBroadcast
	registry.OnEvict = func(relay.ListenerID, error) { met.IncSinkEvictions() }

	catalog := relay.NewCatalog()
	var refresher *relay.Refresher
	if cfg.FeedURL != "" {
		refresher = relay.NewRefresher(feed.NewSource(cfg.FeedURL, nil), catalog, cfg.RefreshInterval, log)
		refresher.OnRefresh = met.SetCatalogTracks
		refresher.OnFailure = func(error) { met.IncCatalogRefreshFailures() }
	} else {
		log.Warn("FEED_URL not set, autodj has nothing to play")
	}

	scheduler := relay.NewScheduler(catalog, state, registry, relay.NewSourceOpener(nil), log, relay.SchedulerConfig{
		ChunkSize:    cfg.ChunkSize,
		PollInterval: cfg.PollInterval,
		MaxFailures:  cfg.MaxFailures,
		Pacer:        relay.NewPacer(cfg.Bitrate),
	})
	scheduler.OnOutcome = func(o relay.Outcome) { met.IncTrack(string(o)) }

	svc := relay.NewService(state, registry, scheduler, recorder)
	h := relay.NewHandler(svc, log, met, cfg.ListenerBuffer)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetListeners(registry.Count()) }).ServeHTTP(w, r)
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	h.Routes(r, map[string]string{cfg.IngestUser: cfg.IngestPassword})

	addr := ":" + cfg.Port
	// No WriteTimeout: /stream responses are unbounded.
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	// The recorder outlives the HTTP server: listeners may still connect
	// until Shutdown returns.
	recCtx, stopRecorder := context.WithCancel(context.Background())
	defer stopRecorder()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return recorder.Run(recCtx) })
	if refresher != nil {
		g.Go(func() error { return refresher.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, draining connections")
		registry.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		stopRecorder()
		return err
	})

	log.Info("server starting",
		"port", cfg.Port,
		"feed_url", cfg.FeedURL,
		"refresh_interval", cfg.RefreshInterval,
		"bitrate", cfg.Bitrate,
		"log_level", cfg.LogLevel,
	)

	err = g.Wait()
	recorder.Drain()
	if err != nil {
		log.Error("server error", "error", err)
		store.Close()
		os.Exit(1)
	}

	log.Info("server stopped")
}

// openAttendance uses the SQL store when dbURL is set and keeps history in
// memory otherwise.
func openAttendance(ctx context.Context, dbURL string) (attendance.Store, error) {
	if dbURL == "" {
		return attendance.NewInMemoryStore(), nil
	}
	return attendance.Open(ctx, dbURL)
}
