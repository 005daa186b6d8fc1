// Package main initializes and runs the campaign selection engine service.
//
// It acts as the composition root for the storefront-facing HTTP API,
// wiring up PostgreSQL, Redis, the frequency-cap ledger, and the selection
// engine, and handling the server lifecycle.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bokzor/revenue-boost-sub014/internal/api"
	"github.com/bokzor/revenue-boost-sub014/internal/cache"
	"github.com/bokzor/revenue-boost-sub014/internal/config"
	"github.com/bokzor/revenue-boost-sub014/internal/database"
	"github.com/bokzor/revenue-boost-sub014/internal/freqcap"
	"github.com/bokzor/revenue-boost-sub014/internal/logger"
	"github.com/bokzor/revenue-boost-sub014/internal/observability"
	"github.com/bokzor/revenue-boost-sub014/internal/segments"
	"github.com/bokzor/revenue-boost-sub014/internal/snapshot"
	"github.com/bokzor/revenue-boost-sub014/internal/store"
	"github.com/bokzor/revenue-boost-sub014/internal/targeting"
)

// main is the application entrypoint.
func main() {
	if err := run(); err != nil {
		log.Printf("Fatal error: %v", err)
		os.Exit(1)
	}
}

// run executes the service lifecycle.
func run() error {
	// -------------------------------------------------------------------------
	// 1. Configuration & Logging
	// -------------------------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.New(&cfg.App)
	slog.SetDefault(appLogger)
	cfg.LogConfig(appLogger)

	ctx := logger.WithContext(context.Background(), appLogger)

	// -------------------------------------------------------------------------
	// 2. Infrastructure Setup
	// -------------------------------------------------------------------------

	// PostgreSQL (source of truth for campaigns and experiments)
	pool, err := database.NewPostgresPool(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer pool.Close()

	// Pool metrics sidecar; stops with the root context.
	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	go database.RunPoolMonitor(monitorCtx, pool, 15*time.Second)

	// Redis (frequency counters + L2 snapshots)
	redisClient, err := cache.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	// L1 snapshot cache (in-process)
	memCache, err := cache.NewMemoryCache(cfg.Engine.SnapshotCacheSize, cfg.Engine.SnapshotCacheTTL)
	if err != nil {
		return fmt.Errorf("failed to build snapshot cache: %w", err)
	}
	defer memCache.Close()

	// -------------------------------------------------------------------------
	// 3. Wiring (Dependency Injection)
	// -------------------------------------------------------------------------

	repo := store.NewPostgresStore(pool)
	snapshots := cache.NewRedisSnapshots(redisClient)
	loader := snapshot.NewLoader(repo, memCache, snapshots, cfg.Engine.SnapshotTTL, appLogger)

	ledger := freqcap.NewLedger(
		freqcap.NewRedisStore(redisClient),
		freqcap.Config{
			SessionTTL: cfg.Engine.SessionTTL,
			DayTTL:     cfg.Engine.DayTTL,
		},
		appLogger,
	)

	// Segment resolution is optional: without an endpoint, audience
	// targeting relies on session rules only.
	var resolver segments.Resolver = segments.NoopResolver{}
	var cachedResolver *segments.CachedResolver
	if cfg.Engine.SegmentsBaseURL != "" {
		httpResolver := segments.NewHTTPResolver(cfg.Engine.SegmentsBaseURL, cfg.Engine.SegmentTimeout)
		cachedResolver, err = segments.NewCachedResolver(httpResolver, cfg.Engine.SegmentCacheSize, cfg.Engine.SegmentCacheTTL)
		if err != nil {
			return fmt.Errorf("failed to build segment cache: %w", err)
		}
		defer cachedResolver.Close()
		resolver = cachedResolver
	}

	engine := targeting.NewEngine(loader, resolver, ledger, targeting.Config{
		SegmentTimeout: cfg.Engine.SegmentTimeout,
		LedgerTimeout:  cfg.Engine.LedgerTimeout,
	}, appLogger)

	restAPI := api.NewAPI(engine, ledger, appLogger)

	// -------------------------------------------------------------------------
	// 4. Observability Server (metrics + probes on a dedicated port)
	// -------------------------------------------------------------------------

	obsServer := observability.NewServer(appLogger, &cfg.Observability,
		database.NewHealthChecker(pool),
		cache.NewHealthChecker(redisClient),
	)
	obsServer.Start()

	// -------------------------------------------------------------------------
	// 5. HTTP Server Setup
	// -------------------------------------------------------------------------

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           restAPI.Router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		appLogger.Info("starting http server", slog.String("addr", addr))

		var serveErr error
		if cfg.Server.TLSEnabled {
			serveErr = server.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
		} else {
			serveErr = server.ListenAndServe()
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server failed: %w", serveErr)
		}
	}()

	// -------------------------------------------------------------------------
	// 6. Graceful Shutdown
	// -------------------------------------------------------------------------

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		appLogger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("http server shutdown failed", slog.String("error", err.Error()))
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("observability server shutdown failed", slog.String("error", err.Error()))
	}

	appLogger.Info("service exited successfully")
	return nil
}
