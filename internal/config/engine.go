package config

import "time"

// EngineConfig tunes the selection engine's timeouts, windows and caches.
type EngineConfig struct {
	// SegmentTimeout bounds the external segment-membership lookup.
	SegmentTimeout time.Duration `envconfig:"SEGMENT_TIMEOUT" default:"150ms" validate:"gt=0"`

	// LedgerTimeout bounds the frequency-cap counter reads.
	LedgerTimeout time.Duration `envconfig:"LEDGER_TIMEOUT" default:"150ms" validate:"gt=0"`

	// SessionTTL is the idle horizon for session-window counters.
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"30m" validate:"gt=0"`

	// DayTTL is the rolling day window for day counters.
	DayTTL time.Duration `envconfig:"DAY_TTL" default:"24h" validate:"gt=0"`

	// SnapshotCacheSize caps how many store snapshots the L1 cache holds.
	SnapshotCacheSize int `envconfig:"SNAPSHOT_CACHE_SIZE" default:"1024" validate:"min=1"`

	// SnapshotCacheTTL bounds L1 staleness after a configuration change.
	SnapshotCacheTTL time.Duration `envconfig:"SNAPSHOT_CACHE_TTL" default:"30s" validate:"gt=0"`

	// SnapshotTTL is the expiry for L2 snapshots written on the read path.
	SnapshotTTL time.Duration `envconfig:"SNAPSHOT_TTL" default:"5m" validate:"gt=0"`

	// SegmentsBaseURL points at the commerce platform's segment-membership
	// endpoint. Empty disables segment resolution entirely.
	SegmentsBaseURL string `envconfig:"SEGMENTS_BASE_URL"`

	// SegmentCacheSize and SegmentCacheTTL tune the in-process membership
	// cache in front of the resolver.
	SegmentCacheSize int           `envconfig:"SEGMENT_CACHE_SIZE" default:"8192" validate:"min=1"`
	SegmentCacheTTL  time.Duration `envconfig:"SEGMENT_CACHE_TTL" default:"1m" validate:"gt=0"`
}
