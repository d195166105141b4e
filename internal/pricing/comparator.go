package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FeeScheduleName is the source name reported for Medicare comparisons
const FeeScheduleName = "Medicare Physician Fee Schedule"

// Source attributes a comparison to the data it was based on
type Source struct {
	Name        string `json:"name"`
	Year        string `json:"year"`
	Locality    string `json:"locality"`
	Reference   string `json:"reference"`
	URL         string `json:"url,omitempty"`
	LastUpdated string `json:"lastUpdated,omitempty"`
}

// Comparison is the fairness assessment of a single charge
type Comparison struct {
	Tier              Tier        `json:"tier"`
	Status            string      `json:"status"`
	Explanation       string      `json:"explanation"`
	ChargedAmount     float64     `json:"chargedAmount"`
	MedicareRate      float64     `json:"medicareRate"`
	Locality          string      `json:"locality"`
	PercentOfMedicare int64       `json:"percentageOfMedicare"`
	PrivateRange      *PriceRange `json:"privateInsuranceRange,omitempty"`
	Source            Source      `json:"source"`
}

// Comparator classifies charges against Medicare reference rates
type Comparator struct {
	rates     *Lookup
	ranges    RangeSource
	directory *Directory
	now       func() time.Time
}

// NewComparator creates a Comparator. ranges may be nil to skip private insurance lookups.
func NewComparator(rates *Lookup, ranges RangeSource, directory *Directory) *Comparator {
	return &Comparator{
		rates:     rates,
		ranges:    ranges,
		directory: directory,
		now:       time.Now,
	}
}

// Compare classifies chargedAmount for code in the given locality.
// It never fails: a charge that cannot be priced is reported as elevated with a zero percentage.
func (c *Comparator) Compare(ctx context.Context, code string, chargedAmount float64, locality, state, zip string) Comparison {
	rate := c.rates.GetRate(ctx, code, locality, state)
	effective := rate.EffectiveRate()
	if effective <= 0 {
		return c.unpriced(code, chargedAmount, locality, state)
	}

	var privateRange *PriceRange
	if c.ranges != nil && strings.TrimSpace(zip) != "" {
		r, err := c.ranges.GetRange(ctx, code, zip)
		if err != nil {
			slog.Debug("Private insurance range unavailable", "cpt_code", code, "zip", zip, "error", err)
		} else {
			privateRange = r
		}
	}

	percent := PercentOf(chargedAmount, effective)
	tier := ClassifyPercent(percent)

	return Comparison{
		Tier:              tier,
		Status:            tier.Status(),
		Explanation:       explanationFor(tier),
		ChargedAmount:     chargedAmount,
		MedicareRate:      effective,
		Locality:          locality,
		PercentOfMedicare: percent,
		PrivateRange:      privateRange,
		Source: Source{
			Name:        FeeScheduleName,
			Year:        strconv.Itoa(rate.Year),
			Locality:    rate.LocalityName,
			Reference:   fmt.Sprintf("CMS-MPFS-%d-%s-%s", rate.Year, code, locality),
			URL:         FeeScheduleURL,
			LastUpdated: rate.EffectiveDate,
		},
	}
}

func (c *Comparator) unpriced(code string, chargedAmount float64, locality, state string) Comparison {
	return Comparison{
		Tier:          TierElevated,
		Status:        TierElevated.Status(),
		Explanation:   "Unable to find standard Medicare rate for comparison.",
		ChargedAmount: chargedAmount,
		Locality:      locality,
		Source: Source{
			Name:      FeeScheduleName,
			Year:      strconv.Itoa(c.now().Year()),
			Locality:  c.directory.DisplayName(state, locality),
			Reference: fmt.Sprintf("CPT-%s-UNKNOWN", code),
			URL:       FeeScheduleURL,
		},
	}
}

var hundred = decimal.NewFromInt(100)

// PercentOf returns charged as a whole-number percentage of rate, rounding half up.
// It returns 0 when rate is not positive.
func PercentOf(charged, rate float64) int64 {
	if rate <= 0 {
		return 0
	}
	pct := decimal.NewFromFloat(charged).Mul(hundred).Div(decimal.NewFromFloat(rate)).Round(0)
	if pct.IsNegative() {
		return 0
	}
	return pct.IntPart()
}
