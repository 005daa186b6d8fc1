package freqcap

import (
	"fmt"

	"github.com/bokzor/revenue-boost-sub014/internal/targeting"
)

// Key scheme. Counters are partitioned by visitor, so contention only arises
// when the same visitor hits the same campaign concurrently (two open tabs),
// which is exactly the race AtomicIncrement resolves.
//
//	fc:c:{store}:{campaign}:{visitor}:{window}   per-campaign display count
//	fc:g:{store}:{visitor}:{surface}:{window}    store-wide display count
//	fc:cd:{store}:{campaign}:{visitor}           cooldown timestamp (unix seconds)

func campaignCountKey(storeID, campaignID, visitorID string, window targeting.WindowKind) string {
	return fmt.Sprintf("fc:c:%s:%s:%s:%s", storeID, campaignID, visitorID, window)
}

func globalCountKey(storeID, visitorID string, surface targeting.SurfaceType, window targeting.WindowKind) string {
	return fmt.Sprintf("fc:g:%s:%s:%s:%s", storeID, visitorID, surface, window)
}

func cooldownKey(storeID, campaignID, visitorID string) string {
	return fmt.Sprintf("fc:cd:%s:%s:%s", storeID, campaignID, visitorID)
}

// visitorPatterns are the SCAN globs matching every counter belonging to one
// visitor, used by the data-redaction hook.
func visitorPatterns(storeID, visitorID string) []string {
	return []string{
		fmt.Sprintf("fc:c:%s:*:%s:*", storeID, visitorID),
		fmt.Sprintf("fc:g:%s:%s:*", storeID, visitorID),
		fmt.Sprintf("fc:cd:%s:*:%s", storeID, visitorID),
	}
}
