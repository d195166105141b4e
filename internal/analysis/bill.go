package analysis

import (
	"time"

	"github.com/zombor/bill-check/internal/pricing"
)

// Provider is the billing provider as printed on the bill
type Provider struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	NPI     string `json:"npi,omitempty"` // National Provider Identifier
}

// Patient identifies who the bill is for
type Patient struct {
	Name          string `json:"name"`
	AccountNumber string `json:"accountNumber,omitempty"`
}

// LineItem is a single billed service
type LineItem struct {
	Description  string  `json:"description"`
	CPTCode      string  `json:"cptCode,omitempty"`
	ICD10Code    string  `json:"icd10Code,omitempty"`
	Quantity     float64 `json:"quantity"`
	ChargeAmount float64 `json:"chargeAmount"`
	Units        float64 `json:"units"`
}

// BillRecord is the structured content of a medical bill
type BillRecord struct {
	Provider              Provider   `json:"provider"`
	Patient               Patient    `json:"patient"`
	DateOfService         string     `json:"dateOfService"`
	Procedures            []LineItem `json:"procedures"`
	TotalCharges          float64    `json:"totalCharges"`
	InsurancePayment      *float64   `json:"insurancePayment,omitempty"`
	Adjustments           *float64   `json:"adjustments,omitempty"`
	PatientResponsibility *float64   `json:"patientResponsibility,omitempty"`
}

// ItemAnalysis is the assessment of one line item
type ItemAnalysis struct {
	Item            LineItem           `json:"procedure"`
	Comparison      pricing.Comparison `json:"comparison"`
	Recommendations []string           `json:"recommendations,omitempty"`
}

// PriceRange is a low/high band in whole currency units
type PriceRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Summary aggregates the analyses of a bill
type Summary struct {
	TotalCharges         float64    `json:"totalCharges"`
	TotalItems           int        `json:"totalItems"`
	OverpricedCount      int        `json:"overpricedCount"`
	ElevatedCount        int        `json:"elevatedCount"`
	FairCount            int        `json:"fairCount"`
	EstimatedFairPrice   PriceRange `json:"estimatedFairPriceRange"`
	PotentialOvercharges float64    `json:"potentialOvercharges"`
}

// Count returns the number of items in tier
func (s Summary) Count(tier pricing.Tier) int {
	switch tier {
	case pricing.TierOverpriced:
		return s.OverpricedCount
	case pricing.TierElevated:
		return s.ElevatedCount
	case pricing.TierFair:
		return s.FairCount
	}
	return 0
}

// Report is the complete analysis of a bill
type Report struct {
	Bill        BillRecord     `json:"extractedData"`
	Items       []ItemAnalysis `json:"procedures"`
	Summary     Summary        `json:"summary"`
	GeneratedAt time.Time      `json:"generatedAt"`
}
