package analysis

import (
	"github.com/shopspring/decimal"

	"github.com/zombor/bill-check/internal/pricing"
)

var (
	fairLowFactor    = decimal.NewFromFloat(1.2)
	reasonableFactor = decimal.NewFromInt(2)
)

// Summarize reduces item analyses into bill-level totals.
// The result does not depend on the order of items.
func Summarize(bill *BillRecord, items []ItemAnalysis) Summary {
	summary := Summary{TotalItems: len(items)}
	if bill != nil {
		summary.TotalCharges = bill.TotalCharges
	}

	overcharge := decimal.Zero
	fairLow := decimal.Zero
	fairHigh := decimal.Zero

	for _, analysis := range items {
		c := analysis.Comparison
		rate := decimal.NewFromFloat(c.MedicareRate)
		charge := decimal.NewFromFloat(analysis.Item.ChargeAmount)

		switch c.Tier {
		case pricing.TierOverpriced:
			summary.OverpricedCount++
			// Only the part above 200% of Medicare counts as a likely overcharge
			reasonableMax := rate.Mul(reasonableFactor)
			if charge.GreaterThan(reasonableMax) {
				overcharge = overcharge.Add(charge.Sub(reasonableMax))
			}
		case pricing.TierElevated:
			summary.ElevatedCount++
		default:
			summary.FairCount++
		}

		if rate.IsPositive() {
			fairLow = fairLow.Add(rate.Mul(fairLowFactor))
			if c.PrivateRange != nil && c.PrivateRange.High > 0 {
				fairHigh = fairHigh.Add(decimal.NewFromFloat(c.PrivateRange.High))
			} else {
				fairHigh = fairHigh.Add(rate.Mul(reasonableFactor))
			}
		}
	}

	summary.EstimatedFairPrice = PriceRange{
		Low:  fairLow.Round(0).InexactFloat64(),
		High: fairHigh.Round(0).InexactFloat64(),
	}
	summary.PotentialOvercharges = overcharge.Round(0).InexactFloat64()
	return summary
}
