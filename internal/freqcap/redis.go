package freqcap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Compile-time check that the Redis store satisfies the CounterStore contract.
var _ CounterStore = (*RedisStore)(nil)

// reserveScript performs increment-check-rollback as one atomic unit on the
// server. INCR-then-compare from the client would leave a window where two
// concurrent requests both observe count <= max; the script closes it.
//
// KEYS[1] = counter key, ARGV[1] = max (0 = unlimited), ARGV[2] = ttl seconds.
// Returns {newCount, allowed}.
var reserveScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 and tonumber(ARGV[2]) > 0 then
	redis.call("EXPIRE", KEYS[1], ARGV[2])
end
local max = tonumber(ARGV[1])
if max > 0 and count > max then
	count = redis.call("DECR", KEYS[1])
	return {count, 0}
end
return {count, 1}
`)

// RedisStore implements CounterStore on a shared Redis instance, which gives
// every horizontally-scaled engine instance the same counter view.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an already-connected client.
func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		panic("freqcap: redis client cannot be nil")
	}
	return &RedisStore{client: client}
}

// Get reads a single counter value.
func (s *RedisStore) Get(ctx context.Context, key string) (int64, bool, error) {
	val, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get counter %q: %w", key, err)
	}
	return val, true, nil
}

// MGet batch-reads counters in one round trip; this keeps the eligibility
// peek at a single Redis call regardless of how many campaigns a store runs.
func (s *RedisStore) MGet(ctx context.Context, keys []string) (map[string]int64, error) {
	if len(keys) == 0 {
		return map[string]int64{}, nil
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to mget %d counters: %w", len(keys), err)
	}

	out := make(map[string]int64, len(keys))
	for i, raw := range vals {
		if raw == nil {
			continue
		}
		// MGET returns strings; tolerate whatever the client gives us.
		switch v := raw.(type) {
		case string:
			var n int64
			if _, scanErr := fmt.Sscan(v, &n); scanErr == nil {
				out[keys[i]] = n
			}
		case int64:
			out[keys[i]] = v
		}
	}
	return out, nil
}

// AtomicIncrement runs the reserve script.
func (s *RedisStore) AtomicIncrement(ctx context.Context, key string, max int64, ttl time.Duration) (int64, bool, error) {
	ttlSeconds := int64(ttl / time.Second)
	res, err := reserveScript.Run(ctx, s.client, []string{key}, max, ttlSeconds).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("failed to reserve counter %q: %w", key, err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("reserve script returned %d values for %q", len(res), key)
	}
	return res[0], res[1] == 1, nil
}

// Decrement rolls back a reservation.
func (s *RedisStore) Decrement(ctx context.Context, key string) error {
	if err := s.client.Decr(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to decrement counter %q: %w", key, err)
	}
	return nil
}

// SetWithTTL stores a value with expiry (used for cooldown timestamps).
func (s *RedisStore) SetWithTTL(ctx context.Context, key string, value int64, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}
	return nil
}

// DeleteByPattern scans for matching keys and deletes them in batches.
// SCAN is cursor-based and non-blocking, so redaction never stalls the
// instance serving it.
func (s *RedisStore) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	deleted := 0
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()

	batch := make([]string, 0, 100)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := s.client.Del(ctx, batch...).Result()
		deleted += int(n)
		batch = batch[:0]
		return err
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := flush(); err != nil {
				return deleted, fmt.Errorf("failed to delete counters for %q: %w", pattern, err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scan failed for %q: %w", pattern, err)
	}
	if err := flush(); err != nil {
		return deleted, fmt.Errorf("failed to delete counters for %q: %w", pattern, err)
	}
	return deleted, nil
}
