package pricing

var (
	overpricedRecommendations = []string{
		"Request an itemized bill with CPT codes",
		"Ask the billing department for a billing review",
		"Contact patient financial services for assistance",
		"Consider filing an appeal with your insurance if applicable",
		"Request information about financial assistance programs",
	}
	elevatedRecommendations = []string{
		"Request clarification on the billing charges",
		"Ask if there are any discounts or payment plans available",
	}
	fairRecommendations = []string{
		"This charge appears to be within reasonable range",
	}
)

// Recommendations returns the suggested patient actions for a tier.
// The returned slice is a fresh copy.
func Recommendations(t Tier) []string {
	var src []string
	switch t {
	case TierOverpriced:
		src = overpricedRecommendations
	case TierElevated:
		src = elevatedRecommendations
	default:
		src = fairRecommendations
	}
	return append([]string(nil), src...)
}
