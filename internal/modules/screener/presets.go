package screener

import "github.com/shopspring/decimal"

// Preset is a named, reusable filter set. The filters field is a plain
// Filters value, so a preset can be submitted back to the run endpoint
// unchanged.
type Preset struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Filters     Filters `json:"filters"`
}

// Presets returns the built-in screening presets.
func Presets() []Preset {
	return []Preset{
		{
			ID:          "gold_bugs",
			Name:        "Gold Bugs",
			Description: "Companies with high precious metals exposure",
			Filters:     Filters{MinPreciousMetalsScore: dec(70)},
		},
		{
			ID:          "inflation_hedge",
			Name:        "Inflation Hedges",
			Description: "Strong pricing power and hard asset backing",
			Filters:     Filters{MinHardAssetsScore: dec(60), MinScore: dec(70)},
		},
		{
			ID:          "global_revenue",
			Name:        "Global Revenue",
			Description: "High foreign revenue exposure",
			Filters:     Filters{MinForeignRevenuePct: dec(50)},
		},
		{
			ID:          "commodity_plays",
			Name:        "Commodity Plays",
			Description: "Oil, gas, and mining companies",
			Filters: Filters{Industries: []string{
				"Oil & Gas E&P",
				"Oil & Gas Integrated",
				"Gold Mining",
				"Diversified Mining",
				"Copper Mining",
			}},
		},
	}
}

func dec(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}
