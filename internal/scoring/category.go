package scoring

import "github.com/opensource-finance/osprey-riskscore/internal/domain"

// Category thresholds. Each band includes its lower bound.
const (
	HighThreshold   = 70
	MediumThreshold = 50
)

// Categorize maps a risk score to its category.
func Categorize(score int) domain.RiskCategory {
	switch {
	case score >= HighThreshold:
		return domain.RiskHigh
	case score >= MediumThreshold:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}
