package report

import (
	"time"

	"github.com/zombor/bill-check/internal/analysis"
	"github.com/zombor/bill-check/internal/pricing"
)

// Source records how a bill entered the system
type Source string

const (
	SourceImage Source = "image"
	SourceJSON  Source = "json"
)

// Scan is a persisted bill analysis
type Scan struct {
	ID          string           `json:"id"`
	Source      Source           `json:"source"`
	Filename    string           `json:"filename,omitempty"` // stored image, empty for JSON submissions
	ContentType string           `json:"contentType,omitempty"`
	Report      *analysis.Report `json:"report"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// FlagsSummary counts line items per tier
type FlagsSummary struct {
	Red    int `json:"red"`
	Yellow int `json:"yellow"`
	Green  int `json:"green"`
}

// HistoryItem is the list view of a Scan
type HistoryItem struct {
	ID                   string       `json:"id"`
	ScanDate             time.Time    `json:"scanDate"`
	ProviderName         string       `json:"providerName"`
	ProviderState        string       `json:"providerState"`
	DateOfService        string       `json:"dateOfService,omitempty"`
	TotalCharges         float64      `json:"totalCharges"`
	PotentialOvercharges float64      `json:"potentialOvercharges"`
	FlagsSummary         FlagsSummary `json:"flagsSummary"`
	HasImage             bool         `json:"hasImage"`
}

// History builds the list view of a scan
func (s *Scan) History() HistoryItem {
	item := HistoryItem{
		ID:       s.ID,
		ScanDate: s.CreatedAt,
		HasImage: s.Filename != "",
	}
	if s.Report == nil {
		return item
	}
	item.ProviderName = s.Report.Bill.Provider.Name
	item.ProviderState = s.Report.Bill.Provider.State
	item.DateOfService = s.Report.Bill.DateOfService
	item.TotalCharges = s.Report.Summary.TotalCharges
	item.PotentialOvercharges = s.Report.Summary.PotentialOvercharges
	item.FlagsSummary = FlagsSummary{
		Red:    s.Report.Summary.Count(pricing.TierOverpriced),
		Yellow: s.Report.Summary.Count(pricing.TierElevated),
		Green:  s.Report.Summary.Count(pricing.TierFair),
	}
	return item
}
