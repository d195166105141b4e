package analysis

import (
	"cmp"
	"slices"

	"github.com/zombor/bill-check/internal/pricing"
)

// SortForDisplay returns a copy of items with the most severe tiers first,
// and within a tier the largest charges first. The input is not modified.
func SortForDisplay(items []ItemAnalysis) []ItemAnalysis {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b ItemAnalysis) int {
		if c := cmp.Compare(a.Comparison.Tier.Severity(), b.Comparison.Tier.Severity()); c != 0 {
			return c
		}
		return cmp.Compare(b.Item.ChargeAmount, a.Item.ChargeAmount)
	})
	return sorted
}

// FilterByTier returns the items classified as tier, in their original order
func FilterByTier(items []ItemAnalysis, tier pricing.Tier) []ItemAnalysis {
	filtered := make([]ItemAnalysis, 0, len(items))
	for _, item := range items {
		if item.Comparison.Tier == tier {
			filtered = append(filtered, item)
		}
	}
	return filtered
}
