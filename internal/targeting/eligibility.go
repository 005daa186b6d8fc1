package targeting

// Reason is the machine-readable outcome of an eligibility check or a
// selection decision. Reasons surface in the response diagnostics for
// observability and testing; they are not shown to visitors.
type Reason string

const (
	ReasonEligible Reason = "eligible"

	// Eligibility filter exclusions, in check order.
	ReasonStatusInactive   Reason = "status_inactive"
	ReasonOutsideSchedule  Reason = "outside_schedule"
	ReasonFrequencyCapped  Reason = "frequency_capped"
	ReasonCooldownActive   Reason = "cooldown_active"
	ReasonStoreCapReached  Reason = "store_cap_reached"
	ReasonAudienceMismatch Reason = "audience_mismatch"
	ReasonPageMismatch     Reason = "page_mismatch"
	ReasonGeoMismatch      Reason = "geo_mismatch"

	// Configuration problems; the campaign or experiment group is skipped.
	ReasonInvalidRules       Reason = "invalid_rules"
	ReasonExperimentInvalid  Reason = "experiment_invalid"
	ReasonExperimentInactive Reason = "experiment_inactive"

	// Selection outcomes past the eligibility filter.
	ReasonVariantNotChosen Reason = "variant_not_chosen"
	ReasonLostPriority     Reason = "lost_priority"
)

// Decision is the result of the eligibility filter for one campaign.
type Decision struct {
	Eligible bool
	Reason   Reason
}

func eligible() Decision         { return Decision{Eligible: true, Reason: ReasonEligible} }
func excluded(r Reason) Decision { return Decision{Eligible: false, Reason: r} }

// IsEligible runs the fixed-order eligibility checks for one campaign against
// a visitor context and a frequency-cap snapshot. It is a pure function: all
// inputs are pre-fetched, no I/O happens here, and the first failing check
// short-circuits and becomes the reason.
//
// Check order: status, schedule, frequency caps (campaign, cooldown,
// store-wide), audience, pages, geo.
func IsEligible(c *Campaign, ctx *VisitorContext, caps *CapSnapshot, global GlobalCapRules) Decision {
	// 1. Status.
	if c.Status != CampaignActive {
		return excluded(ReasonStatusInactive)
	}

	// 2. Schedule window (inclusive; a missing bound is unbounded).
	now := ctx.Timestamp
	if c.StartDate != nil && now.Before(*c.StartDate) {
		return excluded(ReasonOutsideSchedule)
	}
	if c.EndDate != nil && now.After(*c.EndDate) {
		return excluded(ReasonOutsideSchedule)
	}

	// 3. Frequency caps. Absent maxima are unlimited and always pass; a
	// snapshot taken while the counter store was down is empty and
	// therefore also passes (fail-open).
	usage := caps.CampaignUsage(c.ID)
	freq := c.Rules.Frequency
	if capReached(freq.MaxPerSession, usage.SessionCount) || capReached(freq.MaxPerDay, usage.DayCount) {
		return excluded(ReasonFrequencyCapped)
	}
	if cooldown := freq.Cooldown(); cooldown > 0 && !usage.LastShownAt.IsZero() {
		if now.Sub(usage.LastShownAt) < cooldown {
			return excluded(ReasonCooldownActive)
		}
	}
	surfaceUsage := caps.SurfaceUsage(c.Surface)
	if capReached(global.MaxPerSession, surfaceUsage.SessionCount) || capReached(global.MaxPerDay, surfaceUsage.DayCount) {
		return excluded(ReasonStoreCapReached)
	}

	// 4. Audience.
	if d := checkAudience(c.Rules.Audience, ctx); !d.Eligible {
		return d
	}

	// 5. Pages.
	if c.Rules.Pages.Enabled && !matchesPageTargeting(c.Rules.Pages, ctx.PageURL) {
		return excluded(ReasonPageMismatch)
	}

	// 6. Geo.
	if d := checkGeo(c.Rules.Geo, ctx.CountryCode); !d.Eligible {
		return d
	}

	return eligible()
}

func capReached(max *int, count int64) bool {
	if max == nil {
		return false
	}
	return count >= int64(*max)
}

// checkAudience passes when the visitor matches a configured segment OR the
// session-rule tree. An enabled audience config with neither segments nor
// rules matches everyone; product confirmed that empty targeting means "no
// restriction", not "restrict to nobody".
func checkAudience(rules AudienceTargeting, ctx *VisitorContext) Decision {
	if !rules.Enabled {
		return eligible()
	}

	hasSegments := len(rules.SegmentIDs) > 0
	hasRules := rules.SessionRules != nil

	if !hasSegments && !hasRules {
		return eligible()
	}

	if hasRules {
		// Trees are validated at snapshot load; a tree that still fails
		// validation here is a corrupted config, not a mismatch.
		if err := ValidateRuleTree(rules.SessionRules); err != nil {
			return excluded(ReasonInvalidRules)
		}
	}

	if hasSegments && ctx.InSegment(rules.SegmentIDs) {
		return eligible()
	}
	if hasRules && EvalRuleTree(rules.SessionRules, ctx) {
		return eligible()
	}
	return excluded(ReasonAudienceMismatch)
}

func checkGeo(rules GeoTargeting, countryCode string) Decision {
	if !rules.Enabled {
		return eligible()
	}

	member := false
	for _, c := range rules.Countries {
		if c == countryCode {
			member = true
			break
		}
	}

	switch rules.Mode {
	case GeoExclude:
		if member {
			return excluded(ReasonGeoMismatch)
		}
		return eligible()
	default:
		// Include is the default mode for enabled geo targeting.
		if member {
			return eligible()
		}
		return excluded(ReasonGeoMismatch)
	}
}
