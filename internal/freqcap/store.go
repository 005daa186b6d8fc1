// Package freqcap implements the Frequency Cap Ledger: atomic
// check-and-reserve counters per (store, campaign, visitor, window) backed by
// a shared low-latency key-value store with per-key expiry.
package freqcap

import (
	"context"
	"time"
)

// CounterStore is the narrow interface the ledger needs from the backing
// key-value store. Keys are plain strings; values are integers (counts or
// unix timestamps).
type CounterStore interface {
	// Get returns the integer value at key; found=false when the key does
	// not exist or has expired.
	Get(ctx context.Context, key string) (value int64, found bool, err error)

	// MGet batch-reads many keys in one round trip. Missing keys are
	// absent from the result map.
	MGet(ctx context.Context, keys []string) (map[string]int64, error)

	// AtomicIncrement increments key by one as a single atomic operation,
	// setting ttl on first creation. When max > 0 and the increment pushes
	// the count above max, the increment is rolled back and allowed=false
	// is returned: counts never overshoot max by more than a transient
	// unit during the race window. max <= 0 means unlimited.
	AtomicIncrement(ctx context.Context, key string, max int64, ttl time.Duration) (newCount int64, allowed bool, err error)

	// Decrement undoes a reservation (never below zero).
	Decrement(ctx context.Context, key string) error

	// SetWithTTL stores an integer value with an expiry.
	SetWithTTL(ctx context.Context, key string, value int64, ttl time.Duration) error

	// DeleteByPattern removes every key matching the glob pattern and
	// returns how many were deleted. Used only by the redaction hook.
	DeleteByPattern(ctx context.Context, pattern string) (int, error)
}
