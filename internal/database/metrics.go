package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PoolConnections exposes the pgx pool gauge set, labeled by state
	// (total, idle, in_use, max).
	// Metric: revenueboost_database_pool_connections
	PoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "revenueboost",
		Subsystem: "database",
		Name:      "pool_connections",
		Help:      "PostgreSQL connection pool state",
	}, []string{"state"})

	// PoolAcquireCount counts connection acquisitions since process start.
	PoolAcquireCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "revenueboost",
		Subsystem: "database",
		Name:      "pool_acquire_count_total",
		Help:      "Total connection acquisitions from the pool",
	})

	// PoolAcquireDuration accumulates time spent waiting on acquisition.
	PoolAcquireDuration = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "revenueboost",
		Subsystem: "database",
		Name:      "pool_acquire_duration_seconds_total",
		Help:      "Cumulative time spent acquiring connections",
	})

	// PoolWaitCount counts acquisitions that had to wait for a free slot.
	// A rising rate means the pool is saturated.
	PoolWaitCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "revenueboost",
		Subsystem: "database",
		Name:      "pool_wait_count_total",
		Help:      "Acquisitions that blocked waiting for a connection",
	})
)

// RunPoolMonitor samples pgxpool statistics on an interval and publishes them
// as Prometheus metrics. pgx exposes cumulative counters, so the monitor
// tracks the previous sample and feeds deltas into the counters. Blocks until
// the context is cancelled; run it in its own goroutine.
func RunPoolMonitor(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	var (
		lastAcquires     int64
		lastAcquireTime  time.Duration
		lastEmptyAcquire int64
	)

	sample := func() {
		stat := pool.Stat()

		PoolConnections.WithLabelValues("total").Set(float64(stat.TotalConns()))
		PoolConnections.WithLabelValues("idle").Set(float64(stat.IdleConns()))
		PoolConnections.WithLabelValues("in_use").Set(float64(stat.AcquiredConns()))
		PoolConnections.WithLabelValues("max").Set(float64(stat.MaxConns()))

		if d := stat.AcquireCount() - lastAcquires; d > 0 {
			PoolAcquireCount.Add(float64(d))
			lastAcquires = stat.AcquireCount()
		}
		if d := stat.AcquireDuration() - lastAcquireTime; d > 0 {
			PoolAcquireDuration.Add(d.Seconds())
			lastAcquireTime = stat.AcquireDuration()
		}
		if d := stat.EmptyAcquireCount() - lastEmptyAcquire; d > 0 {
			PoolWaitCount.Add(float64(d))
			lastEmptyAcquire = stat.EmptyAcquireCount()
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample()
		}
	}
}
