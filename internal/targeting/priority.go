package targeting

import "sort"

// candidate is a campaign that survived the eligibility filter, carrying its
// variant key when it entered via an experiment.
type candidate struct {
	Campaign   *Campaign
	VariantKey string
}

// rankSurfaces groups candidates by surface and sorts each group by priority
// descending, tie-broken by campaign ID ascending. The tie-break is arbitrary
// but must be deterministic: two instances resolving the same request must
// pick the same winner.
func rankSurfaces(cands []candidate) map[SurfaceType][]candidate {
	bySurface := make(map[SurfaceType][]candidate)
	for _, c := range cands {
		bySurface[c.Campaign.Surface] = append(bySurface[c.Campaign.Surface], c)
	}
	for _, group := range bySurface {
		sort.Slice(group, func(i, j int) bool {
			if group[i].Campaign.Priority != group[j].Campaign.Priority {
				return group[i].Campaign.Priority > group[j].Campaign.Priority
			}
			return group[i].Campaign.ID < group[j].Campaign.ID
		})
	}
	return bySurface
}
