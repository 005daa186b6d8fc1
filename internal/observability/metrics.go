package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace defines the global prefix for all metrics (revenueboost_...).
const namespace = "revenueboost"

// lowLatencyBuckets adds 1ms/2ms resolution below the default buckets; the
// selection path sits on the storefront critical path and its budget is in
// the low tens of milliseconds.
var lowLatencyBuckets = []float64{.001, .002, .005, .010, .015, .020, .025, .030, .050, .100, .500}

var (
	// -------------------------------------------------------------------------
	// SELECTION ENGINE
	// -------------------------------------------------------------------------

	// SelectionDuration measures end-to-end SelectCampaigns latency.
	// Metric: revenueboost_engine_selection_seconds
	SelectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "selection_seconds",
		Help:      "Time taken to run a full campaign selection",
		Buckets:   lowLatencyBuckets,
	})

	// SelectionsTotal counts selection requests by outcome (ok, error).
	SelectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "selections_total",
		Help:      "Total campaign selection requests",
	}, []string{"outcome"})

	// ExclusionsTotal counts campaign exclusions by diagnostic reason.
	// High-cardinality labels (campaign, store) are deliberately omitted.
	ExclusionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "exclusions_total",
		Help:      "Campaigns excluded from selection, by reason",
	}, []string{"reason"})

	// SegmentResolveDuration measures the external segment-membership call.
	SegmentResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "segment_resolve_seconds",
		Help:      "Time taken to resolve visitor segment membership",
		Buckets:   lowLatencyBuckets,
	})

	// FailOpenTotal counts dependency failures absorbed by the fail-open
	// policy. A sustained rate here means caps/targeting are degraded.
	FailOpenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "fail_open_total",
		Help:      "Dependency failures handled by failing open",
	}, []string{"dependency"})

	// -------------------------------------------------------------------------
	// FREQUENCY CAP LEDGER
	// -------------------------------------------------------------------------

	// LedgerOpsTotal counts ledger reservations by outcome
	// (allowed, denied, error).
	LedgerOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "ops_total",
		Help:      "Frequency-cap ledger operations by outcome",
	}, []string{"op", "outcome"})

	// -------------------------------------------------------------------------
	// SNAPSHOT LOADER
	// -------------------------------------------------------------------------

	// SnapshotLoadsTotal counts snapshot loads by where they were served
	// from (l1, l2, db, error).
	SnapshotLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "snapshot",
		Name:      "loads_total",
		Help:      "Store snapshot loads by source",
	}, []string{"source"})

	// -------------------------------------------------------------------------
	// SYNCER (Worker)
	// -------------------------------------------------------------------------

	// SyncerCycleDuration measures one full Postgres -> Redis propagation
	// cycle across all stores.
	SyncerCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of one snapshot propagation cycle",
		Buckets:   prometheus.DefBuckets,
	})

	// SyncerStoresTotal counts per-store propagation results (success, fail).
	SyncerStoresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "stores_total",
		Help:      "Store snapshots propagated, by status",
	}, []string{"status"})
)
