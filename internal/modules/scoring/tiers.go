package scoring

import "github.com/shopspring/decimal"

// Tier labels, best to worst.
const (
	TierFortress   = "FORTRESS"
	TierResilient  = "RESILIENT"
	TierModerate   = "MODERATE"
	TierVulnerable = "VULNERABLE"
	TierExposed    = "EXPOSED"
)

// TierRange is the inclusive-min, exclusive-max score band for one tier
// (FORTRESS includes 100).
type TierRange struct {
	Name string
	Min  int
	Max  int
}

// TierRanges lists the tiers in rank order with their score bands.
var TierRanges = []TierRange{
	{Name: TierFortress, Min: 80, Max: 100},
	{Name: TierResilient, Min: 65, Max: 80},
	{Name: TierModerate, Min: 50, Max: 65},
	{Name: TierVulnerable, Min: 35, Max: 50},
	{Name: TierExposed, Min: 0, Max: 35},
}

// TierFor classifies a total score into its tier.
func TierFor(score decimal.Decimal) string {
	switch {
	case score.GreaterThanOrEqual(decimal.NewFromInt(80)):
		return TierFortress
	case score.GreaterThanOrEqual(decimal.NewFromInt(65)):
		return TierResilient
	case score.GreaterThanOrEqual(decimal.NewFromInt(50)):
		return TierModerate
	case score.GreaterThanOrEqual(decimal.NewFromInt(35)):
		return TierVulnerable
	default:
		return TierExposed
	}
}

// ValidTier reports whether name is a known tier label.
func ValidTier(name string) bool {
	for _, t := range TierRanges {
		if t.Name == name {
			return true
		}
	}
	return false
}
