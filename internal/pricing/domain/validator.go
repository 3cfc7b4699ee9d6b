package domain

import (
	"fmt"
	"math"
	"sort"

	"github.com/smallbiznis/metra/pkg/validation"
)

// Gap is an uncovered sub-range of the quantity axis. An unbounded gap
// (no top tier with nil MaxQuantity) has Unbounded set and To unset.
type Gap struct {
	From      float64 `json:"from"`
	To        float64 `json:"to,omitempty"`
	Unbounded bool    `json:"unbounded,omitempty"`
}

func (g Gap) String() string {
	if g.Unbounded {
		return fmt.Sprintf("[%g,∞)", g.From)
	}
	return fmt.Sprintf("[%g,%g]", g.From, g.To)
}

// Overlap is a double-covered sub-range between two tiers.
type Overlap struct {
	From float64 `json:"from"`
	To   float64 `json:"to"`
}

// FindGaps scans an effective tier set, sorted by MinQuantity, for
// uncovered sub-ranges. A schedule with no unbounded top band yields an
// unbounded gap above the highest MaxQuantity.
func FindGaps(tiers []PricingTier) []Gap {
	if len(tiers) == 0 {
		return []Gap{{From: 0, Unbounded: true}}
	}

	sorted := sortedByMin(tiers)
	var gaps []Gap

	if sorted[0].MinQuantity > 0 {
		gaps = append(gaps, Gap{From: 0, To: sorted[0].MinQuantity})
	}
	for i := 0; i+1 < len(sorted); i++ {
		cur, next := sorted[i], sorted[i+1]
		if cur.MaxQuantity == nil {
			continue
		}
		if next.MinQuantity > *cur.MaxQuantity+1 {
			gaps = append(gaps, Gap{From: *cur.MaxQuantity, To: next.MinQuantity})
		}
	}

	top := sorted[len(sorted)-1]
	if top.MaxQuantity != nil {
		gaps = append(gaps, Gap{From: *top.MaxQuantity, Unbounded: true})
	}
	return gaps
}

// FindOverlaps reports every pairwise intersection of tier quantity ranges
// with the intersecting sub-range.
func FindOverlaps(tiers []PricingTier) []Overlap {
	sorted := sortedByMin(tiers)
	var overlaps []Overlap
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			a, b := sorted[i], sorted[j]
			from := math.Max(a.MinQuantity, b.MinQuantity)
			to := math.Inf(1)
			if a.MaxQuantity != nil {
				to = *a.MaxQuantity
			}
			if b.MaxQuantity != nil {
				to = math.Min(to, *b.MaxQuantity)
			}
			if from <= to {
				overlaps = append(overlaps, Overlap{From: from, To: to})
			}
		}
	}
	return overlaps
}

// Amount prices a consumed quantity across the effective bands in cents.
// Quantities falling into a gap stay unpriced, matching FindGaps.
func Amount(tiers []PricingTier, consumed float64) int64 {
	if consumed <= 0 {
		return 0
	}
	var total float64
	for _, t := range tiers {
		lower := t.MinQuantity
		if lower > 0 {
			lower--
		}
		upper := consumed
		if t.MaxQuantity != nil && *t.MaxQuantity < upper {
			upper = *t.MaxQuantity
		}
		if units := upper - lower; units > 0 {
			total += units * float64(t.UnitPriceCents)
		}
	}
	return int64(math.Round(total))
}

// OverlapError turns detected overlaps into the hard validation failure
// carrying the offending ranges.
func OverlapError(overlaps []Overlap) error {
	verrs := &validation.Errors{}
	for _, o := range overlaps {
		verrs.Add("tiers", fmt.Sprintf("quantity ranges overlap on [%g,%g]", o.From, o.To))
	}
	return verrs
}

func sortedByMin(tiers []PricingTier) []PricingTier {
	sorted := make([]PricingTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinQuantity < sorted[j].MinQuantity })
	return sorted
}
