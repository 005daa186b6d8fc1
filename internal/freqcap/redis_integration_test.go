//go:build integration

package freqcap

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bokzor/revenue-boost-sub014/internal/targeting"
	"github.com/bokzor/revenue-boost-sub014/internal/testsupport"
)

func setupRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	ctx := context.Background()

	container, err := testsupport.StartRedisContainer(ctx)
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	return NewRedisStore(container.Client)
}

func TestRedisStore_AtomicIncrement(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()

	t.Run("Should count up and report allowed below the max", func(t *testing.T) {
		for want := int64(1); want <= 3; want++ {
			count, allowed, err := store.AtomicIncrement(ctx, "it:count", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, allowed)
			assert.Equal(t, want, count)
		}
	})

	t.Run("Should deny and settle at the max once reached", func(t *testing.T) {
		count, allowed, err := store.AtomicIncrement(ctx, "it:count", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, allowed)
		assert.Equal(t, int64(3), count, "the denied increment must be rolled back on the server")
	})

	t.Run("Should treat max zero as unlimited", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			_, allowed, err := store.AtomicIncrement(ctx, "it:unlimited", 0, time.Minute)
			require.NoError(t, err)
			assert.True(t, allowed)
		}
	})
}

// The double-tab race: many concurrent reserves against one counter must
// admit exactly max displays. This is the property the Lua script exists for.
func TestRedisStore_ConcurrentReserves(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()

	const workers = 50
	const max = 3

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, allowed, err := store.AtomicIncrement(ctx, "it:race", max, time.Minute)
			assert.NoError(t, err)
			if allowed {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, max, wins)

	val, found, err := store.Get(ctx, "it:race")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(max), val)
}

func TestRedisStore_MGet(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetWithTTL(ctx, "it:mget:a", 7, time.Minute))
	require.NoError(t, store.SetWithTTL(ctx, "it:mget:b", 11, time.Minute))

	got, err := store.MGet(ctx, []string{"it:mget:a", "it:mget:missing", "it:mget:b"})
	require.NoError(t, err)

	assert.Equal(t, map[string]int64{"it:mget:a": 7, "it:mget:b": 11}, got)

	empty, err := store.MGet(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRedisStore_Decrement(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()

	_, _, err := store.AtomicIncrement(ctx, "it:decr", 0, time.Minute)
	require.NoError(t, err)
	_, _, err = store.AtomicIncrement(ctx, "it:decr", 0, time.Minute)
	require.NoError(t, err)

	require.NoError(t, store.Decrement(ctx, "it:decr"))

	val, found, err := store.Get(ctx, "it:decr")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), val)
}

func TestRedisStore_DeleteByPattern(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()

	// Enough keys to force several SCAN pages.
	for i := 0; i < 250; i++ {
		require.NoError(t, store.SetWithTTL(ctx, fmt.Sprintf("it:del:v1:%d", i), 1, time.Minute))
	}
	require.NoError(t, store.SetWithTTL(ctx, "it:del:v2:0", 1, time.Minute))

	deleted, err := store.DeleteByPattern(ctx, "it:del:v1:*")
	require.NoError(t, err)
	assert.Equal(t, 250, deleted)

	_, found, err := store.Get(ctx, "it:del:v2:0")
	require.NoError(t, err)
	assert.True(t, found, "keys outside the pattern must survive")
}

// End-to-end ledger semantics on the real store.
func TestLedger_OnRedis(t *testing.T) {
	store := setupRedisStore(t)
	ledger := NewLedger(store, Config{SessionTTL: 30 * time.Minute, DayTTL: 24 * time.Hour}, testLogger())
	ctx := context.Background()

	commit := func(visitorID string) bool {
		allowed, err := ledger.Commit(ctx, targeting.CommitRequest{
			StoreID:   "store_it",
			VisitorID: visitorID,
			Campaign:  capCampaign("c1", intPtr(2), nil, 0),
		})
		require.NoError(t, err)
		return allowed
	}

	assert.True(t, commit("v1"))
	assert.True(t, commit("v1"))
	assert.False(t, commit("v1"), "third display exceeds the session cap")
	assert.True(t, commit("v2"), "caps are per visitor")

	deleted, err := ledger.RedactVisitor(ctx, "store_it", "v1")
	require.NoError(t, err)
	assert.Greater(t, deleted, 0)

	assert.True(t, commit("v1"), "redaction resets the visitor's caps")
}
