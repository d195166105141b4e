package pricing

import (
	"fmt"
	"strings"
)

// Tier is the fairness classification of a charge
type Tier string

const (
	TierFair       Tier = "fair"
	TierElevated   Tier = "elevated"
	TierOverpriced Tier = "overpriced"
)

// Tiers lists every tier from most to least severe
var Tiers = []Tier{TierOverpriced, TierElevated, TierFair}

// Upper bounds (inclusive) on percentage of the reference rate
const (
	fairMaxPercent     = 150
	elevatedMaxPercent = 250
)

// ClassifyPercent maps a whole-number percentage of the reference rate to a tier
func ClassifyPercent(percent int64) Tier {
	switch {
	case percent <= fairMaxPercent:
		return TierFair
	case percent <= elevatedMaxPercent:
		return TierElevated
	default:
		return TierOverpriced
	}
}

// Status is the patient-facing label for the tier
func (t Tier) Status() string {
	switch t {
	case TierFair:
		return "Fair Price"
	case TierElevated:
		return "Elevated Price"
	case TierOverpriced:
		return "Significantly Overpriced"
	}
	return "Unknown"
}

// Severity orders tiers for display, 0 being the most severe
func (t Tier) Severity() int {
	for i, tier := range Tiers {
		if tier == t {
			return i
		}
	}
	return len(Tiers)
}

// ParseTier converts a string such as "overpriced" into a Tier
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TierFair, TierElevated, TierOverpriced:
		return t, nil
	}
	return "", fmt.Errorf("unknown tier %q", s)
}

func explanationFor(t Tier) string {
	switch t {
	case TierFair:
		return "This charge is within reasonable range compared to Medicare rates. Most private insurance plans pay 120-200% of Medicare rates."
	case TierElevated:
		return "This charge is higher than typical but may be justified based on facility type, complexity, or regional factors. Consider requesting an itemized bill or billing review."
	default:
		return "This charge is substantially higher than standard Medicare rates and significantly above typical private insurance payments. This may warrant investigation, negotiation, or dispute. You may want to request a billing review or contact the provider for clarification."
	}
}
