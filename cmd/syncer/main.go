// Package main initializes and runs the snapshot syncer worker.
//
// It periodically reads campaign configuration from PostgreSQL, assembles
// per-store snapshots, and propagates them to the Redis L2 cache consumed
// by the engine instances.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bokzor/revenue-boost-sub014/internal/cache"
	"github.com/bokzor/revenue-boost-sub014/internal/config"
	"github.com/bokzor/revenue-boost-sub014/internal/database"
	"github.com/bokzor/revenue-boost-sub014/internal/logger"
	"github.com/bokzor/revenue-boost-sub014/internal/observability"
	"github.com/bokzor/revenue-boost-sub014/internal/store"
	"github.com/bokzor/revenue-boost-sub014/internal/syncer"
)

// main is the application entrypoint.
func main() {
	if err := run(); err != nil {
		log.Printf("Fatal error: %v", err)
		os.Exit(1)
	}
}

// run executes the worker lifecycle.
func run() error {
	// -------------------------------------------------------------------------
	// 1. Configuration & Logging
	// -------------------------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if !cfg.Syncer.Enabled {
		return fmt.Errorf("syncer is disabled by configuration")
	}

	appLogger := logger.New(&cfg.App)
	slog.SetDefault(appLogger)
	cfg.LogConfig(appLogger)

	ctx := logger.WithContext(context.Background(), appLogger)

	// -------------------------------------------------------------------------
	// 2. Infrastructure Setup
	// -------------------------------------------------------------------------

	pool, err := database.NewPostgresPool(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer pool.Close()

	redisClient, err := cache.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	// -------------------------------------------------------------------------
	// 3. Wiring (Dependency Injection)
	// -------------------------------------------------------------------------

	service := syncer.New(appLogger, syncer.Config{
		Interval:     cfg.Syncer.Interval,
		StoreTimeout: cfg.Syncer.StoreTimeout,
		Concurrency:  cfg.Syncer.Concurrency,
		SnapshotTTL:  cfg.Syncer.SnapshotTTL,
	}, store.NewPostgresStore(pool), cache.NewRedisSnapshots(redisClient))

	// -------------------------------------------------------------------------
	// 4. Observability Server (metrics + probes on a dedicated port)
	// -------------------------------------------------------------------------

	obsServer := observability.NewServer(appLogger, &cfg.Observability,
		database.NewHealthChecker(pool),
		cache.NewHealthChecker(redisClient),
	)
	obsServer.Start()

	// -------------------------------------------------------------------------
	// 5. Run Loop & Graceful Shutdown
	// -------------------------------------------------------------------------

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := service.Run(runCtx); err != nil {
		return fmt.Errorf("syncer stopped with error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("observability server shutdown failed", slog.String("error", err.Error()))
	}

	appLogger.Info("worker exited successfully")
	return nil
}
