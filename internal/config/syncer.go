package config

import "time"

// SyncerConfig contains configuration for the snapshot propagation worker.
type SyncerConfig struct {
	Enabled bool `envconfig:"ENABLED" default:"true"`

	// Interval is the pause between full propagation cycles.
	Interval time.Duration `envconfig:"INTERVAL" default:"30s" validate:"gt=0"`

	// StoreTimeout bounds building and writing one store's snapshot.
	StoreTimeout time.Duration `envconfig:"STORE_TIMEOUT" default:"10s" validate:"gt=0"`

	// Concurrency is how many stores are propagated in parallel per cycle.
	Concurrency int `envconfig:"CONCURRENCY" default:"10" validate:"min=1"`

	// SnapshotTTL is the expiry applied to snapshots written to Redis. It
	// must comfortably exceed Interval so a slow cycle never leaves gaps.
	SnapshotTTL time.Duration `envconfig:"SNAPSHOT_TTL" default:"5m" validate:"gt=0"`
}
