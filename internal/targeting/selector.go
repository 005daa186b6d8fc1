package targeting

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bokzor/revenue-boost-sub014/internal/logger"
	"github.com/bokzor/revenue-boost-sub014/internal/observability"
)

// SnapshotSource loads the per-store configuration snapshot the engine
// evaluates against.
type SnapshotSource interface {
	Load(ctx context.Context, storeID string) (*Snapshot, error)
}

// SegmentResolver answers segment membership for a visitor. It is an external
// collaborator: batched, timeout-bounded, and failure means an empty set.
type SegmentResolver interface {
	Resolve(ctx context.Context, storeID, visitorRef string) ([]string, error)
}

// CapQuery identifies the counters a request needs to peek.
type CapQuery struct {
	StoreID     string
	VisitorID   string
	CampaignIDs []string
	Surfaces    []SurfaceType
}

// CommitRequest reserves cap slots for a campaign that won a surface.
type CommitRequest struct {
	StoreID   string
	VisitorID string
	Campaign  *Campaign
	Global    GlobalCapRules
}

// CapLedger is the frequency-cap counter layer. Peek never increments;
// Commit atomically reserves every applicable cap slot for a winner and
// reports false when a concurrent request already consumed the last slot.
type CapLedger interface {
	Peek(ctx context.Context, q CapQuery) (*CapSnapshot, error)
	Commit(ctx context.Context, req CommitRequest) (bool, error)
}

// Winner is one campaign selected for display on a surface.
type Winner struct {
	CampaignID string      `json:"campaign_id"`
	Surface    SurfaceType `json:"surface_type"`
	VariantKey string      `json:"variant_key,omitempty"`
}

// Diagnostic explains why an evaluated campaign was not returned as a winner.
type Diagnostic struct {
	CampaignID string `json:"campaign_id"`
	Reason     Reason `json:"excluded_reason"`
}

// Selection is the full result of SelectCampaigns.
type Selection struct {
	Winners     []Winner
	Diagnostics []Diagnostic
}

// Config bounds the engine's two blocking dependencies. Both timeouts should
// stay in the low hundreds of milliseconds: a slow dependency degrades
// targeting precision, never the response.
type Config struct {
	SegmentTimeout time.Duration
	LedgerTimeout  time.Duration
}

// Engine orchestrates a selection request: parallel dependency reads,
// eligibility filtering, experiment collapse, priority resolution, and winner
// commit. It holds no mutable state and is safe for concurrent use across
// horizontally-scaled instances.
type Engine struct {
	snapshots SnapshotSource
	segments  SegmentResolver
	ledger    CapLedger
	cfg       Config
	logger    *slog.Logger
}

// NewEngine wires the selection engine. All three dependencies are mandatory.
func NewEngine(snapshots SnapshotSource, segments SegmentResolver, ledger CapLedger, cfg Config, log *slog.Logger) *Engine {
	if snapshots == nil {
		panic("targeting: snapshot source cannot be nil")
	}
	if segments == nil {
		panic("targeting: segment resolver cannot be nil")
	}
	if ledger == nil {
		panic("targeting: cap ledger cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.SegmentTimeout <= 0 {
		cfg.SegmentTimeout = 150 * time.Millisecond
	}
	if cfg.LedgerTimeout <= 0 {
		cfg.LedgerTimeout = 150 * time.Millisecond
	}

	return &Engine{
		snapshots: snapshots,
		segments:  segments,
		ledger:    ledger,
		cfg:       cfg,
		logger:    log,
	}
}

// SelectCampaigns decides which campaigns, if any, to show this visitor.
//
// Flow: snapshot load -> parallel segment + cap-snapshot reads -> eligibility
// per campaign -> experiment groups collapsed to their assigned variant ->
// one winner per surface by priority -> cap increments for winners only.
// Increments happen strictly after a winner is finalized, so an aborted
// request never leaves a partial reservation behind.
func (e *Engine) SelectCampaigns(ctx context.Context, storeID string, visitor VisitorContext) (*Selection, error) {
	log := logger.FromContext(ctx)

	start := time.Now()
	defer func() {
		observability.SelectionDuration.Observe(time.Since(start).Seconds())
	}()

	if visitor.Timestamp.IsZero() {
		visitor.Timestamp = time.Now().UTC()
	}

	snap, err := e.snapshots.Load(ctx, storeID)
	if err != nil {
		// Without configuration there is nothing to select; unlike the
		// soft dependencies below this is a hard error.
		observability.SelectionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if len(snap.Campaigns) == 0 {
		observability.SelectionsTotal.WithLabelValues("ok").Inc()
		return &Selection{}, nil
	}

	caps := e.fetchDependencies(ctx, storeID, &visitor, snap)

	// Eligibility filter, pure and per campaign.
	byID := make(map[string]*Campaign, len(snap.Campaigns))
	sel := &Selection{}
	var eligibleCampaigns []*Campaign
	for i := range snap.Campaigns {
		c := &snap.Campaigns[i]
		byID[c.ID] = c

		d := IsEligible(c, &visitor, caps, snap.GlobalCapsFor(c.Surface))
		if !d.Eligible {
			sel.Diagnostics = append(sel.Diagnostics, Diagnostic{CampaignID: c.ID, Reason: d.Reason})
			continue
		}
		eligibleCampaigns = append(eligibleCampaigns, c)
	}

	cands := e.collapseExperiments(log, snap, byID, eligibleCampaigns, visitor.VisitorID, sel)

	e.resolveAndCommit(ctx, log, storeID, &visitor, snap, cands, sel)

	sort.Slice(sel.Diagnostics, func(i, j int) bool {
		return sel.Diagnostics[i].CampaignID < sel.Diagnostics[j].CampaignID
	})

	observability.SelectionsTotal.WithLabelValues("ok").Inc()
	for _, d := range sel.Diagnostics {
		observability.ExclusionsTotal.WithLabelValues(string(d.Reason)).Inc()
	}
	return sel, nil
}

// fetchDependencies runs the two blocking reads concurrently, each under its
// own timeout. Both fail open: a resolver failure yields no segments, a
// ledger failure yields an empty cap snapshot (caps treated as not reached).
func (e *Engine) fetchDependencies(ctx context.Context, storeID string, visitor *VisitorContext, snap *Snapshot) *CapSnapshot {
	log := logger.FromContext(ctx)

	campaignIDs := make([]string, 0, len(snap.Campaigns))
	surfaceSet := make(map[SurfaceType]struct{})
	for i := range snap.Campaigns {
		campaignIDs = append(campaignIDs, snap.Campaigns[i].ID)
		surfaceSet[snap.Campaigns[i].Surface] = struct{}{}
	}
	surfaces := make([]SurfaceType, 0, len(surfaceSet))
	for s := range surfaceSet {
		surfaces = append(surfaces, s)
	}

	caps := &CapSnapshot{}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		segCtx, cancel := context.WithTimeout(gctx, e.cfg.SegmentTimeout)
		defer cancel()

		start := time.Now()
		ids, err := e.segments.Resolve(segCtx, storeID, visitor.VisitorID)
		observability.SegmentResolveDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			observability.FailOpenTotal.WithLabelValues("segments").Inc()
			log.Warn("segment resolution failed, treating visitor as unsegmented",
				slog.String("store_id", storeID),
				slog.String("error", err.Error()),
			)
			return nil
		}
		visitor.SegmentIDs = append(visitor.SegmentIDs, ids...)
		return nil
	})

	g.Go(func() error {
		capCtx, cancel := context.WithTimeout(gctx, e.cfg.LedgerTimeout)
		defer cancel()

		got, err := e.ledger.Peek(capCtx, CapQuery{
			StoreID:     storeID,
			VisitorID:   visitor.VisitorID,
			CampaignIDs: campaignIDs,
			Surfaces:    surfaces,
		})
		if err != nil {
			observability.FailOpenTotal.WithLabelValues("counter_store").Inc()
			log.Warn("cap snapshot read failed, treating caps as not reached",
				slog.String("store_id", storeID),
				slog.String("error", err.Error()),
			)
			return nil
		}
		*caps = *got
		return nil
	})

	// Errors never propagate out of the group; both branches fail open.
	_ = g.Wait()
	return caps
}

// collapseExperiments reduces each experiment's variant campaigns to the one
// selected by the deterministic assigner. Misconfigured or non-running
// experiments drop their whole group; a visitor must never see two variants
// of the same experiment.
func (e *Engine) collapseExperiments(log *slog.Logger, snap *Snapshot, byID map[string]*Campaign, eligibleCampaigns []*Campaign, visitorID string, sel *Selection) []candidate {
	experiments := make(map[string]*Experiment, len(snap.Experiments))
	for i := range snap.Experiments {
		experiments[snap.Experiments[i].ID] = &snap.Experiments[i]
	}

	// chosenVariant caches the assignment per experiment so every variant
	// campaign of one experiment sees the same decision.
	type assignment struct {
		variantKey string
		campaignID string
		err        error
	}
	assignments := make(map[string]assignment)

	assign := func(exp *Experiment) assignment {
		if a, ok := assignments[exp.ID]; ok {
			return a
		}

		var a assignment
		if err := ValidateExperiment(exp, byID); err != nil {
			a.err = err
		} else if key, err := AssignVariant(exp.ID, visitorID, exp.TrafficAllocation); err != nil {
			a.err = err
		} else {
			a.variantKey = key
			for _, v := range exp.Variants {
				if v.Key == key {
					a.campaignID = v.CampaignID
					break
				}
			}
		}
		assignments[exp.ID] = a
		return a
	}

	var cands []candidate
	for _, c := range eligibleCampaigns {
		if c.ExperimentID == "" {
			cands = append(cands, candidate{Campaign: c})
			continue
		}

		exp, ok := experiments[c.ExperimentID]
		if !ok {
			// The campaign references an experiment the loader did not
			// return; treat the group as not running for this request.
			sel.Diagnostics = append(sel.Diagnostics, Diagnostic{CampaignID: c.ID, Reason: ReasonExperimentInactive})
			continue
		}

		a := assign(exp)
		switch {
		case errors.Is(a.err, ErrNotRunning):
			sel.Diagnostics = append(sel.Diagnostics, Diagnostic{CampaignID: c.ID, Reason: ReasonExperimentInactive})
		case a.err != nil:
			// Configuration error or invariant violation: fatal for the
			// group only, logged loudly so the merchant config gets fixed.
			log.Error("experiment excluded from selection",
				slog.String("experiment_id", exp.ID),
				slog.String("store_id", exp.StoreID),
				slog.String("error", a.err.Error()),
			)
			sel.Diagnostics = append(sel.Diagnostics, Diagnostic{CampaignID: c.ID, Reason: ReasonExperimentInvalid})
		case a.campaignID == c.ID:
			cands = append(cands, candidate{Campaign: c, VariantKey: a.variantKey})
		default:
			sel.Diagnostics = append(sel.Diagnostics, Diagnostic{CampaignID: c.ID, Reason: ReasonVariantNotChosen})
		}
	}
	return cands
}

// resolveAndCommit picks the top candidate per surface and reserves its cap
// slots. If the commit loses the atomic-increment race (double-tab scenario),
// the next candidate on that surface is promoted; commit failures from an
// unreachable store fail open inside the ledger and still count as a win.
func (e *Engine) resolveAndCommit(ctx context.Context, log *slog.Logger, storeID string, visitor *VisitorContext, snap *Snapshot, cands []candidate, sel *Selection) {
	for _, group := range rankSurfaces(cands) {
		winnerIdx := -1
		for i, cand := range group {
			commitCtx, cancel := context.WithTimeout(ctx, e.cfg.LedgerTimeout)
			allowed, err := e.ledger.Commit(commitCtx, CommitRequest{
				StoreID:   storeID,
				VisitorID: visitor.VisitorID,
				Campaign:  cand.Campaign,
				Global:    snap.GlobalCapsFor(cand.Campaign.Surface),
			})
			cancel()

			if err != nil {
				// The ledger already applies fail-open for transient store
				// errors, so an error here is unexpected; log and allow.
				log.Warn("cap commit errored, allowing display",
					slog.String("campaign_id", cand.Campaign.ID),
					slog.String("error", err.Error()),
				)
				allowed = true
			}
			if allowed {
				winnerIdx = i
				sel.Winners = append(sel.Winners, Winner{
					CampaignID: cand.Campaign.ID,
					Surface:    cand.Campaign.Surface,
					VariantKey: cand.VariantKey,
				})
				break
			}

			// Lost the reserve race: a concurrent request consumed the
			// last slot between our peek and this commit.
			sel.Diagnostics = append(sel.Diagnostics, Diagnostic{CampaignID: cand.Campaign.ID, Reason: ReasonFrequencyCapped})
		}

		if winnerIdx >= 0 {
			for _, cand := range group[winnerIdx+1:] {
				sel.Diagnostics = append(sel.Diagnostics, Diagnostic{CampaignID: cand.Campaign.ID, Reason: ReasonLostPriority})
			}
		}
	}

	sort.Slice(sel.Winners, func(i, j int) bool {
		return sel.Winners[i].Surface < sel.Winners[j].Surface
	})
}
