package domain

import "math"

// minCustomerCount keeps sparse regions from rendering a zero exposure figure.
const minCustomerCount = 500

// ProfileForDensity maps a density score in [0, 1] to an exposure profile.
func ProfileForDensity(score float64) RiskProfile {
	switch {
	case score >= 0.75:
		return RiskProfileHigh
	case score >= 0.45:
		return RiskProfileMedium
	default:
		return RiskProfileLow
	}
}

// EstimateCustomerCount approximates insured customers in a region from its
// population and density score.
func EstimateCustomerCount(population int, densityScore float64) int {
	estimated := int(math.Round(float64(population) * 0.15 * densityScore))
	if estimated < minCustomerCount {
		return minCustomerCount
	}
	return estimated
}
