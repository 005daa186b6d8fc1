package targeting

import (
	"fmt"
	"sort"

	"github.com/spaolacci/murmur3"
)

// Experiment assignment errors. All of them are configuration errors in the
// taxonomy sense: the experiment group is excluded from the request and the
// problem is logged, but selection for the store proceeds.
var (
	ErrAllocationSum    = fmt.Errorf("traffic allocation must sum to 100")
	ErrAllocationEmpty  = fmt.Errorf("traffic allocation has no variants")
	ErrNegativeWeight   = fmt.Errorf("traffic allocation weight is negative")
	ErrNotRunning       = fmt.Errorf("experiment is not running")
	ErrControlInvariant = fmt.Errorf("experiment must have exactly one control variant")
	ErrVariantUnbound   = fmt.Errorf("variant references a campaign that is not loaded")
)

// bucketRange is a half-open [Lo, Hi) slice of the [0,100) bucket space.
type bucketRange struct {
	Key    string
	Lo, Hi int
}

// bucketRanges partitions [0,100) into contiguous ranges whose widths equal
// each variant's weight, iterating variant keys in sorted order so the
// partition is identical on every instance and across restarts.
func bucketRanges(alloc map[string]int) ([]bucketRange, error) {
	if len(alloc) == 0 {
		return nil, ErrAllocationEmpty
	}

	keys := make([]string, 0, len(alloc))
	sum := 0
	for key, weight := range alloc {
		if weight < 0 {
			return nil, fmt.Errorf("variant %q: %w", key, ErrNegativeWeight)
		}
		keys = append(keys, key)
		sum += weight
	}
	if sum != 100 {
		return nil, fmt.Errorf("%w, got %d", ErrAllocationSum, sum)
	}
	sort.Strings(keys)

	ranges := make([]bucketRange, 0, len(keys))
	lo := 0
	for _, key := range keys {
		hi := lo + alloc[key]
		ranges = append(ranges, bucketRange{Key: key, Lo: lo, Hi: hi})
		lo = hi
	}
	return ranges, nil
}

// AssignVariant deterministically buckets a visitor into one variant of an
// experiment, consistent with the configured traffic-allocation weights.
//
// The bucket is murmur3(visitorID + ":" + experimentID) mod 100; the
// experiment ID salts the hash so a visitor's bucket in one experiment is
// statistically independent of their bucket in any other. Because the result
// is a pure function of its inputs, the assignment is sticky across server
// restarts and horizontal scaling with no stored state. Changing the
// allocation mid-experiment intentionally reshuffles assignments.
func AssignVariant(experimentID, visitorID string, alloc map[string]int) (string, error) {
	if visitorID == "" {
		return "", fmt.Errorf("visitor id is required for bucketing")
	}

	ranges, err := bucketRanges(alloc)
	if err != nil {
		return "", err
	}

	hasher := murmur3.New32()
	_, _ = hasher.Write([]byte(visitorID + ":" + experimentID))
	bucket := int(hasher.Sum32() % 100)

	for _, r := range ranges {
		if bucket >= r.Lo && bucket < r.Hi {
			return r.Key, nil
		}
	}

	// Unreachable when the ranges partition [0,100); kept as an invariant
	// guard because a miss would mean corrupted bucketing.
	return "", fmt.Errorf("bucket %d fell outside all variant ranges", bucket)
}

// ValidateExperiment checks the structural invariants an experiment must hold
// before it participates in assignment. The campaigns map is the set of
// loaded campaigns for the store, keyed by ID.
func ValidateExperiment(exp *Experiment, campaigns map[string]*Campaign) error {
	if exp.Status != ExperimentRunning {
		return ErrNotRunning
	}
	if len(exp.Variants) < 2 {
		return fmt.Errorf("experiment needs at least 2 variants, has %d", len(exp.Variants))
	}

	if _, err := bucketRanges(exp.TrafficAllocation); err != nil {
		return err
	}

	controls := 0
	for _, v := range exp.Variants {
		if v.IsControl {
			controls++
		}
		if _, ok := exp.TrafficAllocation[v.Key]; !ok {
			return fmt.Errorf("variant %q has no traffic allocation", v.Key)
		}
		if _, ok := campaigns[v.CampaignID]; !ok {
			return fmt.Errorf("variant %q: %w", v.Key, ErrVariantUnbound)
		}
	}
	if controls != 1 {
		return fmt.Errorf("%w, found %d", ErrControlInvariant, controls)
	}
	return nil
}
