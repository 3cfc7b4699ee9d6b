package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tier(min float64, max *float64, priceCents int64) PricingTier {
	return PricingTier{MinQuantity: min, MaxQuantity: max, UnitPriceCents: priceCents, Active: true}
}

func f(v float64) *float64 { return &v }

func TestFindGaps_EmptySchedule(t *testing.T) {
	gaps := FindGaps(nil)
	require.Len(t, gaps, 1)
	assert.True(t, gaps[0].Unbounded)
	assert.Equal(t, 0.0, gaps[0].From)
}

func TestFindGaps_StartGap(t *testing.T) {
	gaps := FindGaps([]PricingTier{
		tier(10, f(50), 100),
		tier(51, nil, 200),
	})
	require.Len(t, gaps, 1)
	assert.Equal(t, Gap{From: 0, To: 10}, gaps[0])
}

func TestFindGaps_BetweenTiers(t *testing.T) {
	gaps := FindGaps([]PricingTier{
		tier(0, f(50), 100),
		tier(60, nil, 200),
	})
	require.Len(t, gaps, 1)
	assert.Equal(t, Gap{From: 50, To: 60}, gaps[0])
}

func TestFindGaps_ContiguousSchedule(t *testing.T) {
	gaps := FindGaps([]PricingTier{
		tier(0, f(50), 100),
		tier(51, f(100), 150),
		tier(101, nil, 200),
	})
	assert.Empty(t, gaps)
}

func TestFindGaps_NoUnboundedTop(t *testing.T) {
	gaps := FindGaps([]PricingTier{
		tier(0, f(50), 100),
	})
	require.Len(t, gaps, 1)
	assert.True(t, gaps[0].Unbounded)
	assert.Equal(t, 50.0, gaps[0].From)
}

func TestFindOverlaps_Intersecting(t *testing.T) {
	overlaps := FindOverlaps([]PricingTier{
		tier(0, f(50), 100),
		tier(40, f(100), 150),
	})
	require.Len(t, overlaps, 1)
	assert.Equal(t, Overlap{From: 40, To: 50}, overlaps[0])
}

func TestFindOverlaps_Disjoint(t *testing.T) {
	overlaps := FindOverlaps([]PricingTier{
		tier(0, f(50), 100),
		tier(51, nil, 200),
	})
	assert.Empty(t, overlaps)
}

func TestFindOverlaps_SharedBoundary(t *testing.T) {
	// inclusive bounds: a quantity of exactly 50 is double-covered
	overlaps := FindOverlaps([]PricingTier{
		tier(0, f(50), 100),
		tier(50, nil, 200),
	})
	require.Len(t, overlaps, 1)
	assert.Equal(t, Overlap{From: 50, To: 50}, overlaps[0])
}

func TestAmount_ZeroConsumption(t *testing.T) {
	tiers := []PricingTier{tier(0, f(50), 100)}
	assert.Equal(t, int64(0), Amount(tiers, 0))
	assert.Equal(t, int64(0), Amount(tiers, -3))
}

func TestAmount_SingleTier(t *testing.T) {
	tiers := []PricingTier{tier(0, nil, 100)}
	assert.Equal(t, int64(3000), Amount(tiers, 30))
}

func TestAmount_SpansTiers(t *testing.T) {
	tiers := []PricingTier{
		tier(0, f(50), 100),
		tier(51, nil, 200),
	}
	// 50 units at 100 plus 30 units at 200
	assert.Equal(t, int64(11000), Amount(tiers, 80))
}

func TestAmount_CappedByTierMax(t *testing.T) {
	tiers := []PricingTier{
		tier(0, f(50), 100),
	}
	// consumption above the bounded band prices only the covered part
	assert.Equal(t, int64(5000), Amount(tiers, 120))
}

func TestAmount_FractionalRoundsToCents(t *testing.T) {
	tiers := []PricingTier{tier(0, nil, 3)}
	assert.Equal(t, int64(38), Amount(tiers, 12.5))
}
