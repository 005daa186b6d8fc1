package targeting

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRankSurfaces(t *testing.T) {
	t.Parallel()

	cands := []candidate{
		{Campaign: &Campaign{ID: "c_banner", Surface: SurfaceBanner, Priority: 1}},
		{Campaign: &Campaign{ID: "c_low", Surface: SurfaceModal, Priority: 1}},
		{Campaign: &Campaign{ID: "c_high", Surface: SurfaceModal, Priority: 9}},
		{Campaign: &Campaign{ID: "c_tie_b", Surface: SurfaceModal, Priority: 9}},
	}

	groups := rankSurfaces(cands)
	assert.Len(t, groups, 2)

	modal := groups[SurfaceModal]
	assert.Len(t, modal, 3)
	// Priority descending; equal priorities ordered by ID ascending.
	assert.Equal(t, "c_high", modal[0].Campaign.ID)
	assert.Equal(t, "c_tie_b", modal[1].Campaign.ID)
	assert.Equal(t, "c_low", modal[2].Campaign.ID)

	assert.Len(t, groups[SurfaceBanner], 1)
}
