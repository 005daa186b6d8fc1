// Package targeting implements the campaign selection engine: eligibility
// filtering, frequency-cap snapshots, sticky experiment assignment, and
// per-surface priority resolution. Everything in this package is pure
// computation; I/O happens behind the SnapshotSource, SegmentResolver and
// CapLedger interfaces wired into the Engine.
package targeting

import (
	"time"
)

// CampaignStatus is the merchant-controlled lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignDraft    CampaignStatus = "DRAFT"
	CampaignActive   CampaignStatus = "ACTIVE"
	CampaignPaused   CampaignStatus = "PAUSED"
	CampaignArchived CampaignStatus = "ARCHIVED"
)

// SurfaceType is the visual channel a campaign renders into. Winner selection
// and store-wide caps are independent per surface.
type SurfaceType string

const (
	SurfaceModal        SurfaceType = "MODAL"
	SurfaceBanner       SurfaceType = "BANNER"
	SurfaceNotification SurfaceType = "NOTIFICATION"
)

// ExperimentStatus is the lifecycle state of an A/B experiment.
// Only RUNNING experiments participate in variant assignment.
type ExperimentStatus string

const (
	ExperimentDraft     ExperimentStatus = "DRAFT"
	ExperimentRunning   ExperimentStatus = "RUNNING"
	ExperimentCompleted ExperimentStatus = "COMPLETED"
	ExperimentStopped   ExperimentStatus = "STOPPED"
)

// WindowKind identifies the time window a frequency counter covers.
type WindowKind string

const (
	WindowSession WindowKind = "session"
	WindowDay     WindowKind = "day"
)

// Campaign is a single promotional unit (popup, banner, notification).
// Campaigns are created and edited by the admin surface; this engine only
// reads them.
type Campaign struct {
	ID       string         `json:"id"`
	StoreID  string         `json:"store_id"`
	Status   CampaignStatus `json:"status"`
	Priority int            `json:"priority"`

	// StartDate/EndDate bound the display window (inclusive).
	// A nil bound is unbounded on that side.
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`

	Surface SurfaceType `json:"surface_type"`
	Rules   TargetRules `json:"target_rules"`

	// ExperimentID back-references the experiment this campaign is a
	// variant of. Empty for standalone campaigns.
	ExperimentID string `json:"experiment_id,omitempty"`
}

// TargetRules groups the per-campaign targeting sub-configs.
// Each sub-config is opt-in via its Enabled switch; a disabled sub-config
// always passes its eligibility check.
type TargetRules struct {
	Audience  AudienceTargeting `json:"audience"`
	Pages     PageTargeting     `json:"pages"`
	Geo       GeoTargeting      `json:"geo"`
	Frequency FrequencyRules    `json:"frequency"`
}

// AudienceTargeting restricts a campaign to visitors matching at least one of:
// segment membership, or the session-rule expression tree.
type AudienceTargeting struct {
	Enabled bool `json:"enabled"`

	// SegmentIDs are externally-resolved segment identifiers. The visitor
	// matches if ctx.SegmentIDs intersects this set.
	SegmentIDs []string `json:"segment_ids,omitempty"`

	// SessionRules is a boolean expression tree over session facts.
	// Nil means no session rules are configured.
	SessionRules *RuleNode `json:"session_rules,omitempty"`
}

// PageTargeting restricts a campaign to URLs matching at least one include
// pattern and no exclude pattern. Patterns are glob-style: '*' matches any
// run of path characters.
type PageTargeting struct {
	Enabled bool `json:"enabled"`

	// Pages and CustomPatterns are both include patterns; they differ only
	// in how the admin UI produced them.
	Pages          []string `json:"pages,omitempty"`
	CustomPatterns []string `json:"custom_patterns,omitempty"`

	// ExcludePages wins over any include match.
	ExcludePages []string `json:"exclude_pages,omitempty"`
}

// GeoMode selects include vs exclude semantics for geo targeting.
type GeoMode string

const (
	GeoInclude GeoMode = "include"
	GeoExclude GeoMode = "exclude"
)

// GeoTargeting restricts a campaign by visitor country code.
type GeoTargeting struct {
	Enabled   bool     `json:"enabled"`
	Mode      GeoMode  `json:"mode,omitempty"`
	Countries []string `json:"countries,omitempty"`
}

// FrequencyRules are the per-campaign display limits. A nil maximum means
// unlimited; zero cooldown means no cooldown.
type FrequencyRules struct {
	MaxPerSession *int `json:"max_per_session,omitempty"`
	MaxPerDay     *int `json:"max_per_day,omitempty"`

	// CooldownSeconds is the minimum gap between two displays of this
	// campaign to the same visitor.
	CooldownSeconds int `json:"cooldown_seconds,omitempty"`
}

// Cooldown returns the configured cooldown as a duration.
func (f FrequencyRules) Cooldown() time.Duration {
	return time.Duration(f.CooldownSeconds) * time.Second
}

// GlobalCapRules are store-wide display limits for one surface type, layered
// independently of per-campaign caps. Nil means unlimited.
type GlobalCapRules struct {
	MaxPerSession *int `json:"max_per_session,omitempty"`
	MaxPerDay     *int `json:"max_per_day,omitempty"`
}

// ExperimentVariant binds a variant key to the campaign that renders it.
type ExperimentVariant struct {
	Key        string `json:"key"`
	CampaignID string `json:"campaign_id"`
	IsControl  bool   `json:"is_control"`
}

// Experiment groups two or more campaigns as A/B variants with weighted
// traffic allocation. Invariants: TrafficAllocation sums to 100, exactly one
// variant is the control, and every variant references a loaded campaign.
// Violations exclude the whole experiment group from a request, never the
// store's entire selection.
type Experiment struct {
	ID      string           `json:"id"`
	StoreID string           `json:"store_id"`
	Status  ExperimentStatus `json:"status"`

	// TrafficAllocation maps variant key to an integer percentage.
	TrafficAllocation map[string]int `json:"traffic_allocation"`

	// Variants is ordered as configured by the merchant.
	Variants []ExperimentVariant `json:"variants"`
}

// VisitorContext is the ephemeral per-request session context. It is
// constructed by the caller, enriched with resolved segments by the engine,
// and never persisted.
type VisitorContext struct {
	// VisitorID is a stable pseudo-identity, not PII.
	VisitorID string
	SessionID string

	DeviceType  string
	PageURL     string
	CountryCode string
	Referrer    string

	// PageCount is the number of pages viewed this session.
	PageCount int

	// Returning is true when the visitor has a prior session.
	Returning bool

	// SegmentIDs are resolved externally; empty on resolver failure
	// (the visitor is then treated as matching no segments).
	SegmentIDs []string

	Timestamp time.Time
}

// InSegment reports whether the visitor belongs to any of the given segments.
func (v *VisitorContext) InSegment(segmentIDs []string) bool {
	if len(v.SegmentIDs) == 0 || len(segmentIDs) == 0 {
		return false
	}
	member := make(map[string]struct{}, len(v.SegmentIDs))
	for _, id := range v.SegmentIDs {
		member[id] = struct{}{}
	}
	for _, id := range segmentIDs {
		if _, ok := member[id]; ok {
			return true
		}
	}
	return false
}

// Snapshot is the read-only per-store configuration the engine evaluates
// against: active campaigns, running experiments, and store-wide caps.
// Snapshots are produced by the snapshot loader and may be up to one refresh
// interval stale.
type Snapshot struct {
	StoreID     string                         `json:"store_id"`
	Campaigns   []Campaign                     `json:"campaigns"`
	Experiments []Experiment                   `json:"experiments"`
	GlobalCaps  map[SurfaceType]GlobalCapRules `json:"global_caps,omitempty"`
	LoadedAt    time.Time                      `json:"loaded_at"`
}

// GlobalCapsFor returns the store-wide cap rules for a surface.
// Missing configuration means unlimited.
func (s *Snapshot) GlobalCapsFor(surface SurfaceType) GlobalCapRules {
	if s == nil || s.GlobalCaps == nil {
		return GlobalCapRules{}
	}
	return s.GlobalCaps[surface]
}

// CapUsage is the counter state for one cap subject (a campaign or a
// store-wide surface) at snapshot time.
type CapUsage struct {
	SessionCount int64
	DayCount     int64

	// LastShownAt is the cooldown timestamp; zero if the campaign was
	// never shown inside the cooldown horizon.
	LastShownAt time.Time
}

// CapSnapshot is a non-incrementing peek of the Frequency Cap Ledger taken at
// the start of a request. Missing entries mean "never shown", which is also
// the fail-open value when the counter store is unreachable.
type CapSnapshot struct {
	// Campaigns is keyed by campaign ID.
	Campaigns map[string]CapUsage

	// Surfaces holds the store-wide usage per surface type.
	Surfaces map[SurfaceType]CapUsage
}

// CampaignUsage returns the usage for a campaign, zero if unknown.
func (s *CapSnapshot) CampaignUsage(campaignID string) CapUsage {
	if s == nil || s.Campaigns == nil {
		return CapUsage{}
	}
	return s.Campaigns[campaignID]
}

// SurfaceUsage returns the store-wide usage for a surface, zero if unknown.
func (s *CapSnapshot) SurfaceUsage(surface SurfaceType) CapUsage {
	if s == nil || s.Surfaces == nil {
		return CapUsage{}
	}
	return s.Surfaces[surface]
}
