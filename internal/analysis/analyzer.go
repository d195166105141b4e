package analysis

import (
	"context"
	"log/slog"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zombor/bill-check/internal/pricing"
)

const missingCodeExplanation = "Unable to compare - CPT code not found on bill. Request an itemized bill with CPT codes for accurate pricing analysis."

// Resolver picks the pricing locality for a provider
type Resolver interface {
	Resolve(state, hint string) (string, string)
}

// Comparer classifies a single charge
type Comparer interface {
	Compare(ctx context.Context, code string, chargedAmount float64, locality, state, zip string) pricing.Comparison
}

// Analyzer turns a bill into a Report
type Analyzer struct {
	resolver Resolver
	comparer Comparer
	workers  int
	now      func() time.Time
}

// NewAnalyzer creates an Analyzer that compares up to workers line items at once.
// A non-positive workers value uses GOMAXPROCS.
func NewAnalyzer(resolver Resolver, comparer Comparer, workers int) *Analyzer {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Analyzer{
		resolver: resolver,
		comparer: comparer,
		workers:  workers,
		now:      time.Now,
	}
}

// Analyze validates the bill and assesses every line item against Medicare rates.
// The only error is an *InvalidBillDataError; pricing problems are reported inside the Report.
func (a *Analyzer) Analyze(ctx context.Context, bill *BillRecord) (*Report, error) {
	if err := Validate(bill); err != nil {
		return nil, err
	}

	record := *bill
	record.Procedures = slices.Clone(bill.Procedures)

	state := strings.ToUpper(strings.TrimSpace(record.Provider.State))
	hint := strings.TrimSpace(record.Provider.City)
	if hint == "" {
		hint = strings.TrimSpace(record.Provider.Zip)
	}
	locality, localityName := a.resolver.Resolve(state, hint)
	slog.Debug("Resolved locality",
		"provider", record.Provider.Name,
		"state", state,
		"locality", locality,
		"locality_name", localityName,
	)

	items := make([]ItemAnalysis, len(record.Procedures))
	var g errgroup.Group
	g.SetLimit(a.workers)
	for i, item := range record.Procedures {
		g.Go(func() error {
			items[i] = a.analyzeItem(ctx, item, locality, state, record.Provider.Zip)
			return nil
		})
	}
	_ = g.Wait()

	return &Report{
		Bill:        record,
		Items:       items,
		Summary:     Summarize(&record, items),
		GeneratedAt: a.now(),
	}, nil
}

func (a *Analyzer) analyzeItem(ctx context.Context, item LineItem, locality, state, zip string) ItemAnalysis {
	code := strings.TrimSpace(item.CPTCode)
	if code == "" {
		return ItemAnalysis{
			Item: item,
			Comparison: pricing.Comparison{
				Tier:          pricing.TierElevated,
				Status:        pricing.TierElevated.Status(),
				Explanation:   missingCodeExplanation,
				ChargedAmount: item.ChargeAmount,
				Locality:      locality,
				Source: pricing.Source{
					Name:      "N/A - CPT Code Missing",
					Year:      strconv.Itoa(a.now().Year()),
					Locality:  "N/A",
					Reference: "N/A",
				},
			},
		}
	}

	comparison := a.comparer.Compare(ctx, code, item.ChargeAmount, locality, state, zip)
	return ItemAnalysis{
		Item:            item,
		Comparison:      comparison,
		Recommendations: pricing.Recommendations(comparison.Tier),
	}
}
