package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/bill-check/internal/analysis"
	"github.com/zombor/bill-check/internal/pricing"
	"github.com/zombor/bill-check/internal/scanning"
)

const billJSON = `{
  "provider": {"name": "Austin Family Clinic", "city": "Austin", "state": " tx ", "zip": "78701"},
  "patient": {"name": "Jane Doe"},
  "dateOfService": "2024-03-05",
  "procedures": [
    {"description": "Office visit", "cptCode": "99213", "quantity": 1, "chargeAmount": 180, "units": 1}
  ],
  "totalCharges": 180
}`

func writeFile(dir, name, content string) string {
	path := filepath.Join(dir, name)
	Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())
	return path
}

var _ = Describe("newPricing", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("should use the built-in datasets by default", func() {
		reference, analyzer, err := newPricing(config{workers: 2})
		Expect(err).NotTo(HaveOccurred())
		Expect(analyzer).NotTo(BeNil())
		Expect(reference.Ranges).To(BeNil())
		Expect(reference.Procedures.Describe("80053")).NotTo(BeEmpty())

		rate := reference.Rates.GetRate(context.Background(), "99213", "99", "TX")
		Expect(rate.NonFacilityRate).To(Equal(110.0))
	})

	It("should load a rates file", func() {
		path := writeFile(dir, "rates.yaml", `"99213": {facility: 150, non_facility: 200}`)

		reference, _, err := newPricing(config{ratesFile: path})
		Expect(err).NotTo(HaveOccurred())
		Expect(reference.Rates.GetRate(context.Background(), "99213", "99", "TX").NonFacilityRate).To(Equal(200.0))
		Expect(reference.Rates.GetRate(context.Background(), "80053", "99", "TX")).To(BeNil())
	})

	It("should fail on a missing localities file", func() {
		_, _, err := newPricing(config{localitiesFile: filepath.Join(dir, "missing.yaml")})
		Expect(err).To(HaveOccurred())
	})

	It("should wire the percentile service when configured", func() {
		reference, _, err := newPricing(config{rangeAPIURL: "http://localhost:1", rateTimeout: 1})
		Expect(err).NotTo(HaveOccurred())
		Expect(reference.Ranges).To(BeAssignableToTypeOf(&pricing.HTTPRangeSource{}))
	})
})

var _ = Describe("analyzeFile", func() {
	var (
		dir      string
		analyzer *analysis.Analyzer
		out      *bytes.Buffer
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		out = &bytes.Buffer{}

		var err error
		_, analyzer, err = newPricing(config{workers: 1})
		Expect(err).NotTo(HaveOccurred())
	})

	It("should print the report as JSON", func() {
		path := writeFile(dir, "bill.json", billJSON)

		Expect(analyzeFile(context.Background(), analyzer, path, out)).To(Succeed())

		var report analysis.Report
		Expect(json.Unmarshal(out.Bytes(), &report)).To(Succeed())
		Expect(report.Bill.Provider.State).To(Equal("TX"))
		Expect(report.Items).To(HaveLen(1))
		Expect(report.Items[0].Comparison.PercentOfMedicare).To(Equal(int64(164)))
		Expect(report.Items[0].Comparison.Tier).To(Equal(pricing.TierElevated))
		Expect(report.Summary.ElevatedCount).To(Equal(1))
	})

	It("should report invalid bills", func() {
		path := writeFile(dir, "bill.json", `{"provider": {"name": "Clinic"}, "procedures": []}`)

		err := analyzeFile(context.Background(), analyzer, path, out)
		Expect(errors.Is(err, analysis.ErrInvalidBillData)).To(BeTrue())
		Expect(out.Len()).To(BeZero())
	})

	It("should reject files that are not JSON", func() {
		path := writeFile(dir, "bill.json", "not json")

		Expect(analyzeFile(context.Background(), analyzer, path, out)).To(MatchError(ContainSubstring("decoding bill file")))
	})

	It("should fail on a missing file", func() {
		Expect(analyzeFile(context.Background(), analyzer, filepath.Join(dir, "nope.json"), out)).To(MatchError(ContainSubstring("reading bill file")))
	})
})

var _ = Describe("newExtractor", func() {
	BeforeEach(func() {
		GinkgoT().Setenv("GEMINI_API_KEY", "")
		GinkgoT().Setenv("ANTHROPIC_API_KEY", "")
	})

	It("should build an Ollama extractor", func() {
		extractor, err := newExtractor(config{extractor: "ollama", ollamaURL: "http://localhost:11434", ollamaModel: "llava"})
		Expect(err).NotTo(HaveOccurred())
		Expect(extractor).To(BeAssignableToTypeOf(&scanning.Ollama{}))
	})

	It("should build a Claude extractor from the environment", func() {
		GinkgoT().Setenv("ANTHROPIC_API_KEY", "test-key")

		extractor, err := newExtractor(config{extractor: "claude"})
		Expect(err).NotTo(HaveOccurred())
		Expect(extractor).To(BeAssignableToTypeOf(&scanning.Claude{}))
	})

	It("should require a Claude key", func() {
		_, err := newExtractor(config{extractor: "claude"})
		Expect(err).To(MatchError(ContainSubstring("api key is required")))
	})

	It("should require a Gemini key", func() {
		_, err := newExtractor(config{extractor: "gemini"})
		Expect(err).To(MatchError(ContainSubstring("gemini API key is required")))
	})

	It("should reject unknown extractors", func() {
		_, err := newExtractor(config{extractor: "tesseract"})
		Expect(err).To(MatchError(ContainSubstring(`invalid extractor "tesseract"`)))
	})
})
