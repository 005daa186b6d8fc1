package segments

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter"
)

// CachedResolver memoizes membership lookups in-process with a short TTL.
// Segment membership changes on the order of minutes (imports, customer
// updates), so a brief cache removes the external round trip from most
// requests without meaningfully staling the targeting.
type CachedResolver struct {
	inner Resolver
	store otter.Cache[string, []string]
}

// NewCachedResolver wraps a resolver with an otter cache.
func NewCachedResolver(inner Resolver, capacity int, ttl time.Duration) (*CachedResolver, error) {
	if inner == nil {
		panic("segments: inner resolver cannot be nil")
	}

	cache, err := otter.MustBuilder[string, []string](capacity).
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build segment cache: %w", err)
	}

	return &CachedResolver{inner: inner, store: cache}, nil
}

// Resolve serves from cache when possible. Errors are never cached: a failed
// lookup should retry on the next request, not pin an empty membership.
func (c *CachedResolver) Resolve(ctx context.Context, storeID, visitorRef string) ([]string, error) {
	key := storeID + ":" + visitorRef
	if ids, ok := c.store.Get(key); ok {
		return ids, nil
	}

	ids, err := c.inner.Resolve(ctx, storeID, visitorRef)
	if err != nil {
		return nil, err
	}
	c.store.Set(key, ids)
	return ids, nil
}

// Close releases the cache's background goroutines.
func (c *CachedResolver) Close() {
	c.store.Close()
}
