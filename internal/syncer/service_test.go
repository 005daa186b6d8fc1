package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bokzor/revenue-boost-sub014/internal/targeting"
)

// fakeRepo serves a fixed store universe and per-store campaign lists.
type fakeRepo struct {
	storeIDs  []string
	campaigns map[string][]targeting.Campaign
	failStore string
}

func (f *fakeRepo) ListActiveCampaigns(_ context.Context, storeID string) ([]targeting.Campaign, error) {
	if storeID == f.failStore {
		return nil, errors.New("boom")
	}
	return f.campaigns[storeID], nil
}

func (f *fakeRepo) ListRunningExperiments(context.Context, string) ([]targeting.Experiment, error) {
	return nil, nil
}

func (f *fakeRepo) GetStoreCaps(context.Context, string) (map[targeting.SurfaceType]targeting.GlobalCapRules, error) {
	return nil, nil
}

func (f *fakeRepo) ListStoreIDs(context.Context) ([]string, error) {
	return f.storeIDs, nil
}

// fakeSnapshotCache records every snapshot written to it.
type fakeSnapshotCache struct {
	mu      sync.Mutex
	written map[string]*targeting.Snapshot
}

func newFakeSnapshotCache() *fakeSnapshotCache {
	return &fakeSnapshotCache{written: make(map[string]*targeting.Snapshot)}
}

func (f *fakeSnapshotCache) SetSnapshot(_ context.Context, snap *targeting.Snapshot, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written[snap.StoreID] = snap
	return nil
}

func (f *fakeSnapshotCache) GetSnapshot(context.Context, string) (*targeting.Snapshot, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSnapshotCache) HealthCheck(context.Context) error { return nil }
func (f *fakeSnapshotCache) Close() error                      { return nil }

func (f *fakeSnapshotCache) get(storeID string) (*targeting.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.written[storeID]
	return snap, ok
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSync_PropagatesEveryStore(t *testing.T) {
	repo := &fakeRepo{
		storeIDs: []string{"store_a", "store_b"},
		campaigns: map[string][]targeting.Campaign{
			"store_a": {{ID: "c1", StoreID: "store_a", Status: targeting.CampaignActive, Surface: targeting.SurfaceModal}},
			"store_b": {{ID: "c2", StoreID: "store_b", Status: targeting.CampaignActive, Surface: targeting.SurfaceBanner}},
		},
	}
	cacheSvc := newFakeSnapshotCache()

	svc := New(testLogger(), Config{Concurrency: 2}, repo, cacheSvc)
	require.NoError(t, svc.sync(context.Background()))

	snapA, ok := cacheSvc.get("store_a")
	require.True(t, ok, "store_a snapshot should be written")
	require.Len(t, snapA.Campaigns, 1)
	assert.Equal(t, "c1", snapA.Campaigns[0].ID)

	_, ok = cacheSvc.get("store_b")
	assert.True(t, ok, "store_b snapshot should be written")
}

func TestSync_SkipsFailedStoreAndContinues(t *testing.T) {
	repo := &fakeRepo{
		storeIDs:  []string{"broken", "healthy"},
		failStore: "broken",
		campaigns: map[string][]targeting.Campaign{
			"healthy": {{ID: "c1", StoreID: "healthy", Status: targeting.CampaignActive, Surface: targeting.SurfaceModal}},
		},
	}
	cacheSvc := newFakeSnapshotCache()

	svc := New(testLogger(), Config{Concurrency: 1}, repo, cacheSvc)
	require.NoError(t, svc.sync(context.Background()))

	_, ok := cacheSvc.get("broken")
	assert.False(t, ok, "failed store must not be written")

	_, ok = cacheSvc.get("healthy")
	assert.True(t, ok, "healthy store must still be propagated")
}

func TestNew_AppliesSafeDefaults(t *testing.T) {
	svc := New(testLogger(), Config{}, &fakeRepo{}, newFakeSnapshotCache())

	assert.Equal(t, 30*time.Second, svc.config.Interval)
	assert.Equal(t, 10*time.Second, svc.config.StoreTimeout)
	assert.Equal(t, 10, svc.config.Concurrency)
	assert.Equal(t, 5*time.Minute, svc.config.SnapshotTTL)
}

func TestNew_PanicsOnNilDependencies(t *testing.T) {
	assert.Panics(t, func() { New(testLogger(), Config{}, nil, newFakeSnapshotCache()) })
	assert.Panics(t, func() { New(testLogger(), Config{}, &fakeRepo{}, nil) })
}
