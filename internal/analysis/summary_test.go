package analysis

import (
	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/bill-check/internal/pricing"
)

func itemAnalysis(tier pricing.Tier, charge, rate float64, privateRange *pricing.PriceRange) ItemAnalysis {
	return ItemAnalysis{
		Item: LineItem{ChargeAmount: charge},
		Comparison: pricing.Comparison{
			Tier:          tier,
			ChargedAmount: charge,
			MedicareRate:  rate,
			PrivateRange:  privateRange,
		},
	}
}

var _ = ginkgo.Describe("Summarize", func() {
	var (
		bill    *BillRecord
		items   []ItemAnalysis
		summary Summary
	)

	ginkgo.BeforeEach(func() {
		bill = &BillRecord{TotalCharges: 999.99}
		items = []ItemAnalysis{
			itemAnalysis(pricing.TierFair, 110, 110, nil),
			itemAnalysis(pricing.TierElevated, 275, 110, &pricing.PriceRange{Low: 150, High: 205}),
			itemAnalysis(pricing.TierOverpriced, 276, 110, nil),
			itemAnalysis(pricing.TierElevated, 40, 0, nil),
		}
	})

	ginkgo.JustBeforeEach(func() {
		summary = Summarize(bill, items)
	})

	ginkgo.It("copies total charges from the bill", func() {
		Expect(summary.TotalCharges).To(Equal(999.99))
	})

	ginkgo.It("counts items per tier", func() {
		Expect(summary.TotalItems).To(Equal(4))
		Expect(summary.FairCount).To(Equal(1))
		Expect(summary.ElevatedCount).To(Equal(2))
		Expect(summary.OverpricedCount).To(Equal(1))
		Expect(summary.Count(pricing.TierElevated)).To(Equal(2))
	})

	ginkgo.It("counts the overpriced excess above twice the rate", func() {
		Expect(summary.PotentialOvercharges).To(Equal(56.0))
	})

	ginkgo.It("sums per-item fair bands over priced items", func() {
		// low: 3 * 1.2 * 110 = 396; high: 220 + 205 + 220 = 645
		Expect(summary.EstimatedFairPrice).To(Equal(PriceRange{Low: 396, High: 645}))
	})

	ginkgo.When("an overpriced item is within twice the rate", func() {
		ginkgo.BeforeEach(func() {
			items = []ItemAnalysis{itemAnalysis(pricing.TierOverpriced, 200, 110, nil)}
		})

		ginkgo.It("does not add to the overcharge", func() {
			Expect(summary.PotentialOvercharges).To(BeZero())
		})
	})

	ginkgo.When("no item could be priced", func() {
		ginkgo.BeforeEach(func() {
			items = []ItemAnalysis{
				itemAnalysis(pricing.TierElevated, 40, 0, nil),
				itemAnalysis(pricing.TierElevated, 60, 0, nil),
			}
		})

		ginkgo.It("has a zero band and no overcharge", func() {
			Expect(summary.EstimatedFairPrice).To(Equal(PriceRange{}))
			Expect(summary.PotentialOvercharges).To(BeZero())
			Expect(summary.ElevatedCount).To(Equal(2))
		})
	})

	ginkgo.When("the totals need rounding", func() {
		ginkgo.BeforeEach(func() {
			items = []ItemAnalysis{
				itemAnalysis(pricing.TierOverpriced, 100.6, 25, nil),
				itemAnalysis(pricing.TierFair, 18, 18, nil),
			}
		})

		ginkgo.It("rounds to whole currency units", func() {
			// overcharge 100.6 - 50 = 50.6; low 30 + 21.6 = 51.6; high 50 + 36 = 86
			Expect(summary.PotentialOvercharges).To(Equal(51.0))
			Expect(summary.EstimatedFairPrice).To(Equal(PriceRange{Low: 52, High: 86}))
		})
	})

	ginkgo.When("there are no items", func() {
		ginkgo.BeforeEach(func() {
			items = nil
		})

		ginkgo.It("is empty", func() {
			Expect(summary.TotalItems).To(BeZero())
			Expect(summary.EstimatedFairPrice).To(Equal(PriceRange{}))
		})
	})

	ginkgo.It("does not depend on item order", func() {
		reversed := make([]ItemAnalysis, len(items))
		for i, item := range items {
			reversed[len(items)-1-i] = item
		}
		Expect(Summarize(bill, reversed)).To(Equal(summary))
	})

	ginkgo.It("has tier counts that add up to the item count", func() {
		Expect(summary.FairCount + summary.ElevatedCount + summary.OverpricedCount).To(Equal(summary.TotalItems))
	})
})

var _ = ginkgo.Describe("SortForDisplay", func() {
	ginkgo.It("orders by severity then charge, leaving the input alone", func() {
		items := []ItemAnalysis{
			itemAnalysis(pricing.TierFair, 10, 10, nil),
			itemAnalysis(pricing.TierOverpriced, 300, 100, nil),
			itemAnalysis(pricing.TierElevated, 50, 0, nil),
			itemAnalysis(pricing.TierOverpriced, 900, 100, nil),
		}

		sorted := SortForDisplay(items)

		charges := make([]float64, 0, len(sorted))
		for _, item := range sorted {
			charges = append(charges, item.Item.ChargeAmount)
		}
		Expect(charges).To(Equal([]float64{900, 300, 50, 10}))
		Expect(items[0].Item.ChargeAmount).To(Equal(10.0))
	})
})

var _ = ginkgo.Describe("FilterByTier", func() {
	ginkgo.It("keeps matching items in order", func() {
		items := []ItemAnalysis{
			itemAnalysis(pricing.TierOverpriced, 1, 0, nil),
			itemAnalysis(pricing.TierFair, 2, 0, nil),
			itemAnalysis(pricing.TierOverpriced, 3, 0, nil),
		}

		filtered := FilterByTier(items, pricing.TierOverpriced)
		Expect(filtered).To(HaveLen(2))
		Expect(filtered[0].Item.ChargeAmount).To(Equal(1.0))
		Expect(filtered[1].Item.ChargeAmount).To(Equal(3.0))
	})
})
