// Package cache provides the caching layer for store configuration snapshots.
// It abstracts the interaction with the Redis L2 cache, handling serialization,
// key namespacing, and connection management.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bokzor/revenue-boost-sub014/internal/targeting"
	"github.com/bokzor/revenue-boost-sub014/internal/validation"
)

// KeyPrefix is the namespace used for all snapshot keys in Redis.
// Example: "snapshot:store_123"
const KeyPrefix = "snapshot"

// ErrSnapshotMiss indicates the store has no snapshot in the L2 cache.
var ErrSnapshotMiss = errors.New("cache: snapshot not found")

// SnapshotService defines the interface for L2 snapshot operations.
// This interface allows for dependency injection and mocking in tests.
type SnapshotService interface {
	// SetSnapshot stores a full store snapshot with a TTL.
	SetSnapshot(ctx context.Context, snap *targeting.Snapshot, ttl time.Duration) error

	// GetSnapshot loads a store snapshot, returning ErrSnapshotMiss when absent.
	GetSnapshot(ctx context.Context, storeID string) (*targeting.Snapshot, error)

	// HealthCheck pings the redis server to ensure connectivity.
	HealthCheck(ctx context.Context) error

	// Close terminates the connection.
	Close() error
}

// Compile-time check that RedisSnapshots implements SnapshotService.
var _ SnapshotService = (*RedisSnapshots)(nil)

// RedisSnapshots implements SnapshotService using the go-redis library.
// Snapshots are written by the syncer and read by every engine instance, so
// they are stored as a single JSON blob per store: one GET on the hot path.
type RedisSnapshots struct {
	client *redis.Client
}

// NewRedisSnapshots wraps an established Redis client.
func NewRedisSnapshots(client *redis.Client) *RedisSnapshots {
	validation.AssertNotNil(client, "redis client")
	return &RedisSnapshots{client: client}
}

func snapshotKey(storeID string) string {
	return fmt.Sprintf("%s:%s", KeyPrefix, storeID)
}

// SetSnapshot serializes and stores the snapshot. The TTL is a safety net:
// a syncer outage eventually empties the L2 rather than serving stale
// configuration forever.
func (c *RedisSnapshots) SetSnapshot(ctx context.Context, snap *targeting.Snapshot, ttl time.Duration) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot for store %q: %w", snap.StoreID, err)
	}

	if err := c.client.Set(ctx, snapshotKey(snap.StoreID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot for store %q: %w", snap.StoreID, err)
	}
	return nil
}

// GetSnapshot loads and decodes the store's snapshot.
func (c *RedisSnapshots) GetSnapshot(ctx context.Context, storeID string) (*targeting.Snapshot, error) {
	payload, err := c.client.Get(ctx, snapshotKey(storeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSnapshotMiss
		}
		return nil, fmt.Errorf("failed to get snapshot for store %q: %w", storeID, err)
	}

	var snap targeting.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot for store %q: %w", storeID, err)
	}
	return &snap, nil
}

// HealthCheck verifies the connection to the Redis server.
func (c *RedisSnapshots) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client connection.
func (c *RedisSnapshots) Close() error {
	return c.client.Close()
}
