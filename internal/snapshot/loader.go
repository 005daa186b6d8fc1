// Package snapshot assembles and serves per-store configuration snapshots.
// A snapshot bundles everything a single selection needs (campaigns,
// experiments, store caps) so the engine evaluates against one consistent
// view instead of issuing per-campaign reads.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bokzor/revenue-boost-sub014/internal/cache"
	"github.com/bokzor/revenue-boost-sub014/internal/observability"
	"github.com/bokzor/revenue-boost-sub014/internal/store"
	"github.com/bokzor/revenue-boost-sub014/internal/targeting"
)

// Compile-time check that the loader satisfies the engine's contract.
var _ targeting.SnapshotSource = (*Loader)(nil)

// Loader implements the L1 -> L2 -> database read-through for snapshots.
//
// Read path:
//  1. L1 (in-process otter cache): sub-microsecond, absorbs the hot stores.
//  2. L2 (Redis, written by the syncer): shared across engine instances.
//  3. Database: authoritative fallback when both caches miss. The result is
//     written back to both layers.
type Loader struct {
	repo   store.CampaignRepository
	l1     *cache.MemoryCache
	l2     cache.SnapshotService
	l2TTL  time.Duration
	logger *slog.Logger
}

// NewLoader wires the read-through loader. The L2 layer is optional (nil
// skips it), which keeps single-instance deployments runnable without Redis
// snapshots.
func NewLoader(repo store.CampaignRepository, l1 *cache.MemoryCache, l2 cache.SnapshotService, l2TTL time.Duration, log *slog.Logger) *Loader {
	if repo == nil {
		panic("snapshot: campaign repository cannot be nil")
	}
	if l1 == nil {
		panic("snapshot: memory cache cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	if l2TTL <= 0 {
		l2TTL = 5 * time.Minute
	}

	return &Loader{
		repo:   repo,
		l1:     l1,
		l2:     l2,
		l2TTL:  l2TTL,
		logger: log,
	}
}

// Load returns the store's snapshot, consulting L1, then L2, then the
// database. Cache failures degrade to the next layer; only a database
// failure with both caches empty is a hard error.
func (l *Loader) Load(ctx context.Context, storeID string) (*targeting.Snapshot, error) {
	if snap, ok := l.l1.Get(storeID); ok {
		observability.SnapshotLoadsTotal.WithLabelValues("l1").Inc()
		return snap, nil
	}

	if l.l2 != nil {
		snap, err := l.l2.GetSnapshot(ctx, storeID)
		switch {
		case err == nil:
			observability.SnapshotLoadsTotal.WithLabelValues("l2").Inc()
			l.l1.Set(storeID, snap)
			return snap, nil
		case errors.Is(err, cache.ErrSnapshotMiss):
			// Fall through to the database.
		default:
			l.logger.Warn("snapshot l2 read failed, falling back to database",
				slog.String("store_id", storeID),
				slog.String("error", err.Error()),
			)
		}
	}

	snap, err := Build(ctx, l.repo, storeID)
	if err != nil {
		observability.SnapshotLoadsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	observability.SnapshotLoadsTotal.WithLabelValues("db").Inc()

	l.l1.Set(storeID, snap)
	if l.l2 != nil {
		if err := l.l2.SetSnapshot(ctx, snap, l.l2TTL); err != nil {
			l.logger.Warn("snapshot l2 write-back failed",
				slog.String("store_id", storeID),
				slog.String("error", err.Error()),
			)
		}
	}
	return snap, nil
}

// Build assembles a fresh snapshot straight from the database. Both the
// loader's cold path and the syncer's propagation cycle use it.
func Build(ctx context.Context, repo store.CampaignRepository, storeID string) (*targeting.Snapshot, error) {
	snap := &targeting.Snapshot{
		StoreID:  storeID,
		LoadedAt: time.Now().UTC(),
	}

	// The three queries are independent; fetch them concurrently.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		campaigns, err := repo.ListActiveCampaigns(gctx, storeID)
		if err != nil {
			return fmt.Errorf("campaigns: %w", err)
		}
		snap.Campaigns = campaigns
		return nil
	})
	g.Go(func() error {
		experiments, err := repo.ListRunningExperiments(gctx, storeID)
		if err != nil {
			return fmt.Errorf("experiments: %w", err)
		}
		snap.Experiments = experiments
		return nil
	})
	g.Go(func() error {
		caps, err := repo.GetStoreCaps(gctx, storeID)
		if err != nil {
			return fmt.Errorf("store caps: %w", err)
		}
		snap.GlobalCaps = caps
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to build snapshot for store %q: %w", storeID, err)
	}
	return snap, nil
}

// Invalidate drops the store from the L1 cache. Called when the control
// plane knows configuration changed and does not want to wait out the TTL.
func (l *Loader) Invalidate(storeID string) {
	l.l1.Del(storeID)
}
