package cache

import (
	"time"

	"github.com/maypok86/otter"

	"github.com/bokzor/revenue-boost-sub014/internal/targeting"
)

// MemoryCache acts as the L1 caching layer using a high-performance,
// contention-free algorithm (S3-FIFO) provided by the 'otter' library.
// It holds fully decoded snapshots so the hot path never touches JSON.
type MemoryCache struct {
	store otter.Cache[string, *targeting.Snapshot]
}

// NewMemoryCache initializes the in-memory cache with strict limits.
// capacity: Max number of stores (Hard Cap to prevent OOM).
// ttl: Time-To-Live for items (Safety net for eventual consistency).
func NewMemoryCache(capacity int, ttl time.Duration) (*MemoryCache, error) {
	builder := otter.MustBuilder[string, *targeting.Snapshot](capacity).
		WithTTL(ttl)

	cache, err := builder.Build()
	if err != nil {
		return nil, err
	}

	return &MemoryCache{store: cache}, nil
}

// Get retrieves a snapshot from memory.
// Returns the snapshot and a boolean indicating if it was found.
// This operation is virtually lock-free and extremely fast.
func (c *MemoryCache) Get(storeID string) (*targeting.Snapshot, bool) {
	return c.store.Get(storeID)
}

// Set adds or updates a snapshot in memory.
// The TTL configured in NewMemoryCache is applied automatically.
func (c *MemoryCache) Set(storeID string, snap *targeting.Snapshot) {
	c.store.Set(storeID, snap)
}

// Del removes a snapshot from memory.
func (c *MemoryCache) Del(storeID string) {
	c.store.Delete(storeID)
}

// Close gracefully shuts down the cache and its background cleanup goroutines.
func (c *MemoryCache) Close() {
	c.store.Close()
}
