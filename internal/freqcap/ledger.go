package freqcap

import (
	"context"
	"log/slog"
	"time"

	"github.com/bokzor/revenue-boost-sub014/internal/observability"
	"github.com/bokzor/revenue-boost-sub014/internal/targeting"
)

// Compile-time check that the ledger satisfies the engine's contract.
var _ targeting.CapLedger = (*Ledger)(nil)

// Config holds the ledger's window horizons.
type Config struct {
	// SessionTTL is the idle horizon after which session counters expire.
	SessionTTL time.Duration

	// DayTTL is the rolling day window, counted from first increment.
	DayTTL time.Duration
}

// Ledger mediates every read and write against the counter store.
//
// Availability policy is fail-open: when the store cannot be reached within
// the caller's timeout, caps are treated as "not yet reached". A missed
// frequency cap is a minor UX annoyance; an outage that suppresses every
// campaign in the store is a revenue-impacting failure.
type Ledger struct {
	store  CounterStore
	cfg    Config
	logger *slog.Logger

	// now is swappable for deterministic cooldown tests.
	now func() time.Time
}

// NewLedger wires the ledger over a counter store.
func NewLedger(store CounterStore, cfg Config, log *slog.Logger) *Ledger {
	if store == nil {
		panic("freqcap: counter store cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.DayTTL <= 0 {
		cfg.DayTTL = 24 * time.Hour
	}

	return &Ledger{
		store:  store,
		cfg:    cfg,
		logger: log,
		now:    time.Now,
	}
}

// Peek reads the counter state for every campaign and surface in the query
// without incrementing anything. The whole peek is two batch reads.
func (l *Ledger) Peek(ctx context.Context, q targeting.CapQuery) (*targeting.CapSnapshot, error) {
	countKeys := make([]string, 0, len(q.CampaignIDs)*2+len(q.Surfaces)*2)
	cooldownKeys := make([]string, 0, len(q.CampaignIDs))

	for _, id := range q.CampaignIDs {
		countKeys = append(countKeys,
			campaignCountKey(q.StoreID, id, q.VisitorID, targeting.WindowSession),
			campaignCountKey(q.StoreID, id, q.VisitorID, targeting.WindowDay),
		)
		cooldownKeys = append(cooldownKeys, cooldownKey(q.StoreID, id, q.VisitorID))
	}
	for _, surface := range q.Surfaces {
		countKeys = append(countKeys,
			globalCountKey(q.StoreID, q.VisitorID, surface, targeting.WindowSession),
			globalCountKey(q.StoreID, q.VisitorID, surface, targeting.WindowDay),
		)
	}

	counts, err := l.store.MGet(ctx, countKeys)
	if err != nil {
		return nil, err
	}
	cooldowns, err := l.store.MGet(ctx, cooldownKeys)
	if err != nil {
		return nil, err
	}

	snap := &targeting.CapSnapshot{
		Campaigns: make(map[string]targeting.CapUsage, len(q.CampaignIDs)),
		Surfaces:  make(map[targeting.SurfaceType]targeting.CapUsage, len(q.Surfaces)),
	}
	for _, id := range q.CampaignIDs {
		usage := targeting.CapUsage{
			SessionCount: counts[campaignCountKey(q.StoreID, id, q.VisitorID, targeting.WindowSession)],
			DayCount:     counts[campaignCountKey(q.StoreID, id, q.VisitorID, targeting.WindowDay)],
		}
		if ts, ok := cooldowns[cooldownKey(q.StoreID, id, q.VisitorID)]; ok {
			usage.LastShownAt = time.Unix(ts, 0)
		}
		snap.Campaigns[id] = usage
	}
	for _, surface := range q.Surfaces {
		snap.Surfaces[surface] = targeting.CapUsage{
			SessionCount: counts[globalCountKey(q.StoreID, q.VisitorID, surface, targeting.WindowSession)],
			DayCount:     counts[globalCountKey(q.StoreID, q.VisitorID, surface, targeting.WindowDay)],
		}
	}
	return snap, nil
}

// reservation is one counter slot acquired during a commit, kept so a later
// denial can roll the whole commit back.
type reservation struct {
	key string
}

// Commit reserves every applicable cap slot for a winning campaign: campaign
// session and day counters, then the store-wide surface counters. If any
// reserve is denied, previously acquired reservations are decremented so the
// commit fully rolls back; the caller then promotes the next candidate.
//
// Transient store errors fail open: the display proceeds and the missed
// increments are accepted as a soft-consistency trade-off.
func (l *Ledger) Commit(ctx context.Context, req targeting.CommitRequest) (bool, error) {
	c := req.Campaign
	freq := c.Rules.Frequency

	type step struct {
		key string
		max *int
		ttl time.Duration
	}
	steps := []step{
		{campaignCountKey(req.StoreID, c.ID, req.VisitorID, targeting.WindowSession), freq.MaxPerSession, l.cfg.SessionTTL},
		{campaignCountKey(req.StoreID, c.ID, req.VisitorID, targeting.WindowDay), freq.MaxPerDay, l.cfg.DayTTL},
		{globalCountKey(req.StoreID, req.VisitorID, c.Surface, targeting.WindowSession), req.Global.MaxPerSession, l.cfg.SessionTTL},
		{globalCountKey(req.StoreID, req.VisitorID, c.Surface, targeting.WindowDay), req.Global.MaxPerDay, l.cfg.DayTTL},
	}

	var acquired []reservation
	for _, s := range steps {
		max := int64(0) // unlimited
		if s.max != nil {
			max = int64(*s.max)
		}

		_, allowed, err := l.store.AtomicIncrement(ctx, s.key, max, s.ttl)
		if err != nil {
			observability.LedgerOpsTotal.WithLabelValues("reserve", "error").Inc()
			l.logger.Warn("counter store unreachable during commit, failing open",
				slog.String("key", s.key),
				slog.String("error", err.Error()),
			)
			return true, nil
		}
		if !allowed {
			observability.LedgerOpsTotal.WithLabelValues("reserve", "denied").Inc()
			l.rollback(ctx, acquired)
			return false, nil
		}
		acquired = append(acquired, reservation{key: s.key})
	}
	observability.LedgerOpsTotal.WithLabelValues("reserve", "allowed").Inc()

	// Cooldown timestamp is set only when a display actually occurs.
	if cooldown := freq.Cooldown(); cooldown > 0 {
		key := cooldownKey(req.StoreID, c.ID, req.VisitorID)
		if err := l.store.SetWithTTL(ctx, key, l.now().Unix(), cooldown); err != nil {
			l.logger.Warn("failed to set cooldown timestamp",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
	return true, nil
}

// rollback decrements reservations acquired before a denial. Best effort:
// a failed decrement leaves at most one transient over-count that the key's
// TTL bounds in time.
func (l *Ledger) rollback(ctx context.Context, acquired []reservation) {
	for _, r := range acquired {
		if err := l.store.Decrement(ctx, r.key); err != nil {
			l.logger.Warn("failed to roll back cap reservation",
				slog.String("key", r.key),
				slog.String("error", err.Error()),
			)
		}
	}
}

// RedactVisitor deletes every counter and cooldown belonging to a visitor.
// This is the hook the external data-redaction (GDPR) workflow calls; the
// engine itself never deletes counters otherwise.
func (l *Ledger) RedactVisitor(ctx context.Context, storeID, visitorID string) (int, error) {
	total := 0
	for _, pattern := range visitorPatterns(storeID, visitorID) {
		n, err := l.store.DeleteByPattern(ctx, pattern)
		total += n
		if err != nil {
			return total, err
		}
	}
	l.logger.Info("redacted visitor counters",
		slog.String("store_id", storeID),
		slog.String("visitor_id", visitorID),
		slog.Int("deleted", total),
	)
	return total, nil
}
