// Package syncer implements the background worker that propagates store
// configuration snapshots from PostgreSQL to the Redis L2 cache.
package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bokzor/revenue-boost-sub014/internal/cache"
	"github.com/bokzor/revenue-boost-sub014/internal/observability"
	"github.com/bokzor/revenue-boost-sub014/internal/snapshot"
	"github.com/bokzor/revenue-boost-sub014/internal/store"
)

// Config holds the configuration for the Syncer service.
type Config struct {
	// Interval is the duration between sync cycles (polling).
	Interval time.Duration

	// StoreTimeout bounds building and writing one store's snapshot.
	StoreTimeout time.Duration

	// Concurrency is how many stores are propagated in parallel.
	Concurrency int

	// SnapshotTTL is the expiry applied to L2 snapshots.
	SnapshotTTL time.Duration
}

// Service orchestrates the synchronization process.
type Service struct {
	logger *slog.Logger
	config Config
	repo   store.CampaignRepository
	cache  cache.SnapshotService
}

// New creates a new Syncer service.
func New(logger *slog.Logger, cfg Config, repo store.CampaignRepository, cacheSvc cache.SnapshotService) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	if repo == nil {
		panic("syncer: campaign repository cannot be nil")
	}
	if cacheSvc == nil {
		panic("syncer: cache service cannot be nil")
	}

	if cfg.Interval < time.Second {
		cfg.Interval = 30 * time.Second // Safe default
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 10 * time.Second
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 10
	}
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = 5 * time.Minute
	}

	return &Service{
		logger: logger,
		config: cfg,
		repo:   repo,
		cache:  cacheSvc,
	}
}

// Run starts the syncer loop. It blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("starting syncer service", slog.String("interval", s.config.Interval.String()))

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Run once immediately on startup
	if err := s.sync(ctx); err != nil {
		s.logger.Error("initial sync failed", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("syncer service stopping...")
			return nil
		case <-ticker.C:
			if err := s.sync(ctx); err != nil {
				// We log the error but don't stop the worker.
				// Retry on next tick.
				s.logger.Error("sync cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// sync performs a single synchronization cycle. Every cycle carries a
// cycle_id so per-store warnings in the logs can be correlated to it.
func (s *Service) sync(ctx context.Context) error {
	start := time.Now()
	defer func() {
		observability.SyncerCycleDuration.Observe(time.Since(start).Seconds())
	}()

	log := s.logger.With(slog.String("cycle_id", uuid.NewString()))

	// 1. Read the store universe from the Source of Truth (Postgres)
	storeIDs, err := s.repo.ListStoreIDs(ctx)
	if err != nil {
		return err
	}

	// 2. Build and write one snapshot per store, bounded in parallelism.
	// A failed store is logged and skipped; the rest of the batch proceeds
	// and the failed store retries on the next tick.
	var (
		synced   int
		failures int
	)
	results := make(chan bool, len(storeIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for _, storeID := range storeIDs {
		g.Go(func() error {
			results <- s.syncStore(gctx, log, storeID)
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	for ok := range results {
		if ok {
			synced++
		} else {
			failures++
		}
	}

	if synced > 0 || failures > 0 {
		log.Info("sync cycle completed",
			slog.Int("synced", synced),
			slog.Int("failures", failures),
			slog.String("duration", time.Since(start).String()),
		)
	}
	return nil
}

// syncStore builds one store's snapshot and writes it to the L2 cache.
func (s *Service) syncStore(ctx context.Context, log *slog.Logger, storeID string) bool {
	storeCtx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	snap, err := snapshot.Build(storeCtx, s.repo, storeID)
	if err != nil {
		log.Warn("failed to build snapshot",
			slog.String("store_id", storeID),
			slog.String("error", err.Error()),
		)
		observability.SyncerStoresTotal.WithLabelValues("fail").Inc()
		return false
	}

	if err := s.cache.SetSnapshot(storeCtx, snap, s.config.SnapshotTTL); err != nil {
		log.Warn("failed to write snapshot",
			slog.String("store_id", storeID),
			slog.String("error", err.Error()),
		)
		observability.SyncerStoresTotal.WithLabelValues("fail").Inc()
		return false
	}

	observability.SyncerStoresTotal.WithLabelValues("success").Inc()
	return true
}
