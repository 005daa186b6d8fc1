package freqcap

import (
	"context"
	"path"
	"sync"
	"time"
)

var _ CounterStore = (*MemoryStore)(nil)

type memoryEntry struct {
	value     int64
	expiresAt time.Time // zero = no expiry
}

// MemoryStore is an in-process CounterStore with the same atomic
// reserve/rollback semantics as the Redis store. It backs unit tests and
// single-instance development setups; production runs the Redis store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	// now is swappable so expiry tests don't sleep.
	now func() time.Time
}

// NewMemoryStore creates an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// SetClock replaces the store's time source. Test use only.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) get(key string) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (s *MemoryStore) Get(_ context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.get(key)
	return e.value, ok, nil
}

func (s *MemoryStore) MGet(_ context.Context, keys []string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int64, len(keys))
	for _, key := range keys {
		if e, ok := s.get(key); ok {
			out[key] = e.value
		}
	}
	return out, nil
}

func (s *MemoryStore) AtomicIncrement(_ context.Context, key string, max int64, ttl time.Duration) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.get(key)
	e.value++
	if !ok && ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}

	if max > 0 && e.value > max {
		// Roll back the reservation; the count settles at max.
		e.value--
		s.entries[key] = e
		return e.value, false, nil
	}

	s.entries[key] = e
	return e.value, true, nil
}

func (s *MemoryStore) Decrement(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.get(key); ok && e.value > 0 {
		e.value--
		s.entries[key] = e
	}
	return nil
}

func (s *MemoryStore) SetWithTTL(_ context.Context, key string, value int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

// DeleteByPattern matches keys against a glob pattern. Counter keys contain
// no '/', so path.Match gives the same '*' semantics as Redis SCAN globs.
func (s *MemoryStore) DeleteByPattern(_ context.Context, pattern string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for key := range s.entries {
		if ok, err := path.Match(pattern, key); err != nil {
			return deleted, err
		} else if ok {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted, nil
}
