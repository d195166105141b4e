package pricing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Catalog", func() {
	var catalog *Catalog

	BeforeEach(func() {
		catalog = DefaultCatalog()
	})

	It("describes known codes", func() {
		Expect(catalog.Describe("80053")).To(Equal("Comprehensive metabolic panel"))
	})

	It("labels unknown codes generically", func() {
		Expect(catalog.Describe("12345")).To(Equal("CPT Code 12345"))
	})

	Describe("Search", func() {
		It("matches on category", func() {
			results := catalog.Search("laboratory")
			Expect(results).To(HaveLen(5))
			Expect(results[0].Code).To(Equal("80053"))
		})

		It("matches on code prefix", func() {
			results := catalog.Search("9921")
			codes := make([]string, 0, len(results))
			for _, r := range results {
				codes = append(codes, r.Code)
			}
			Expect(codes).To(Equal([]string{"99213", "99214", "99215"}))
		})

		It("returns an empty list when nothing matches", func() {
			Expect(catalog.Search("acupuncture")).To(BeEmpty())
		})
	})
})

var _ = Describe("Tier", func() {
	It("parses names case-insensitively", func() {
		tier, err := ParseTier(" Overpriced ")
		Expect(err).NotTo(HaveOccurred())
		Expect(tier).To(Equal(TierOverpriced))
	})

	It("rejects unknown names", func() {
		_, err := ParseTier("red")
		Expect(err).To(HaveOccurred())
	})

	It("orders severity from overpriced to fair", func() {
		Expect(TierOverpriced.Severity()).To(BeNumerically("<", TierElevated.Severity()))
		Expect(TierElevated.Severity()).To(BeNumerically("<", TierFair.Severity()))
	})
})

var _ = Describe("Recommendations", func() {
	DescribeTable("list length per tier",
		func(tier Tier, count int) {
			Expect(Recommendations(tier)).To(HaveLen(count))
		},
		Entry("overpriced", TierOverpriced, 5),
		Entry("elevated", TierElevated, 2),
		Entry("fair", TierFair, 1),
	)

	It("starts the overpriced list with an itemized bill request", func() {
		Expect(Recommendations(TierOverpriced)[0]).To(Equal("Request an itemized bill with CPT codes"))
	})

	It("returns a copy", func() {
		recs := Recommendations(TierFair)
		recs[0] = "changed"
		Expect(Recommendations(TierFair)[0]).To(Equal("This charge appears to be within reasonable range"))
	})
})
