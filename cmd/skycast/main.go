package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/swelljoe/skycast/internal/config"
	"github.com/swelljoe/skycast/internal/db"
	"github.com/swelljoe/skycast/internal/handlers"
	"github.com/swelljoe/skycast/internal/logging"
	"github.com/swelljoe/skycast/internal/metrics"
	"github.com/swelljoe/skycast/internal/prefs"
	"github.com/swelljoe/skycast/internal/search"
	"github.com/swelljoe/skycast/internal/views"
	"github.com/swelljoe/skycast/internal/weather"
)

const appName = "skycast"

// Default version is "dev" if not set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// a missing .env is fine; the environment may already be populated
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg, version, appName)
	slog.SetDefault(logger)

	slog.Info("starting",
		"version", version,
		"env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
		"addr", cfg.HTTPAddr,
	)
	if cfg.ForecastAPIKey == "" {
		slog.Warn("OPENWEATHER_API_KEY is not set; forecast requests will be rejected upstream")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}

	slog.Info("shutting down")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if err := views.LoadTemplates(); err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	database, err := db.NewDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()
	slog.Info("database ready", "path", cfg.SQLitePath)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	registry := newRegistry(cfg, database, logger, m)
	go registry.Run(ctx)

	h := handlers.New(registry, database, logger)
	h.SecureCookie = cfg.AppEnv == "prod"

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      newRouter(h, reg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2*cfg.ClientTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return ctx.Err()
}

// newRegistry wires one orchestrator per session. The two upstream clients
// are shared so their rate limits apply across all sessions.
func newRegistry(cfg config.Config, slots prefs.Slots, logger *slog.Logger, m *metrics.Metrics) *search.Registry {
	geocoder := weather.NewGeocoder(
		weather.NewClient(cfg.UserAgent, cfg.ClientTimeout, cfg.GeocodeRPS, m),
		cfg.GeocodeBaseURL, cfg.GeocodeAPIKey,
	)
	forecaster := weather.NewForecastClient(
		weather.NewClient(cfg.UserAgent, cfg.ClientTimeout, cfg.ForecastRPS, m),
		cfg.ForecastBaseURL, cfg.ForecastAPIKey,
	)

	factory := func(id string, page *views.Page) *search.Orchestrator {
		sessionLogger := logger.With("session", id)
		return search.New(search.Deps{
			Geocoder:   geocoder,
			Forecaster: forecaster,
			Units:      prefs.NewUnitStore(slots, id, sessionLogger),
			History:    prefs.NewHistoryStore(slots, id, sessionLogger),
			Presenter:  page,
			Logger:     sessionLogger,
			Metrics:    m,
		})
	}
	registry := search.NewRegistry(factory, cfg.SessionIdleTTL, logger, m)
	registry.MaxSessions = cfg.SessionMax
	return registry
}

func newRouter(h *handlers.Handlers, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	h.RegisterRoutes(r)
	return r
}
