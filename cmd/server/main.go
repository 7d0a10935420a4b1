/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the metrics engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (file + METRICS_* environment)
  2. Initialize logger and SQLite store
  3. Choose the fast cache (Redis when configured, in-process otherwise)
  4. Build the calculator registry from defaults and overrides
  5. Start the snapshot aggregation scheduler
  6. Start HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to a config file (default: ./config.yaml if present)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the aggregation scheduler
  2. Stop accepting new connections
  3. Wait for active requests (server.shutdown_timeout)
  4. Close cache and database connections

EXAMPLES:
  ./server -config=./config.yaml
  METRICS_DATABASE_PATH=":memory:" METRICS_REDIS_ADDR=localhost:6379 ./server

SEE ALSO:
  - config/config.go: Configuration keys and defaults
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/warp/metrics-engine/aggregation"
	"github.com/warp/metrics-engine/api"
	"github.com/warp/metrics-engine/calculators"
	"github.com/warp/metrics-engine/config"
	"github.com/warp/metrics-engine/factory"
	"github.com/warp/metrics-engine/logging"
	"github.com/warp/metrics-engine/metric"
	"github.com/warp/metrics-engine/metric/store"
	"github.com/warp/metrics-engine/present"
	"github.com/warp/metrics-engine/service"
	"github.com/warp/metrics-engine/store/redis"
	"github.com/warp/metrics-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "metrics-engine: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	// Initialize store
	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	db.Logger = logger

	clock := metric.SystemClock{}

	// Fast cache
	var cache metric.FastCache
	if cfg.Redis.Enabled() {
		rc, err := redis.New(context.Background(), redis.Options{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, logger)
		if err != nil {
			return err
		}
		defer rc.Close()
		cache = rc
		logger.Info("fast cache: redis", "addr", cfg.Redis.Addr)
	} else {
		cache = store.NewMemoryCache(clock)
		logger.Info("fast cache: in-process")
	}

	// Calculators
	overrides, err := factory.LoadOverrides(cfg.Calculators.OverridesFile)
	if err != nil {
		return err
	}
	registrations := factory.BuildRegistrations(
		calculators.DefaultRegistrations(db, cfg.Calculators.CacheTTL),
		calculators.Implementations(db, cfg.Calculators.CacheTTL),
		overrides,
		logger,
	)
	registry := metric.NewRegistry(registrations, logger)

	cascade := &metric.Cascade{
		Registry:  registry,
		Cache:     cache,
		Snapshots: db,
		Clock:     clock,
		Logger:    logger,
	}
	svc := service.New(metric.NewPeriodResolver(clock), cascade, present.NewNormalizer(calculators.Policies()), logger)

	// Snapshot aggregation
	scheduler := aggregation.NewScheduler(db, registry, db, clock, logger)
	scheduler.Enabled = cfg.Aggregation.Enabled
	scheduler.Interval = cfg.Aggregation.Interval
	if len(cfg.Aggregation.Periods) > 0 {
		scheduler.Periods = make([]metric.Period, 0, len(cfg.Aggregation.Periods))
		for _, p := range cfg.Aggregation.Periods {
			scheduler.Periods = append(scheduler.Periods, metric.Period(p))
		}
	}
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	// HTTP
	handler := api.NewHandler(svc, db, clock, logger)
	router := api.NewRouter(handler, api.RouterOptions{AllowedOrigins: cfg.Server.AllowedOrigins})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "metrics", len(registry.Types()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
