// Package scoring implements the survival score kernel: seven factor
// scorers, fixed weight vectors per devaluation scenario, tier
// classification, and the engine that combines them. All arithmetic uses
// fixed-point decimals; rounding is half-up to two decimals at result
// boundaries only.
package scoring

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aristath/hedge/internal/domain"
)

// CompanyData carries everything needed to score one company.
// Nil means the input is unknown; each factor defines its own default.
type CompanyData struct {
	Ticker   string
	Sector   string
	Industry string

	// Balance sheet
	TotalAssets      *int64
	TangibleAssets   *int64
	IntangibleAssets *int64

	// Revenue breakdown
	TotalRevenue             *int64
	ForeignRevenue           *int64
	ForeignRevenuePct        *decimal.Decimal
	CommodityRevenue         *int64
	CommodityRevenuePct      *decimal.Decimal
	PreciousMetalsRevenue    *int64
	PreciousMetalsRevenuePct *decimal.Decimal

	// Debt structure
	TotalDebt            *int64
	FixedRateDebtPct     *decimal.Decimal
	AvgDebtMaturityYears *decimal.Decimal

	// Profitability
	GrossMargin       *decimal.Decimal
	GrossMargin5yrStd *decimal.Decimal

	// Mining specific
	ProvenReservesOz *int64
}

// essentialScores maps industries to their essential-services base score.
// Utilities and staples keep pricing through a devaluation; financials and
// discretionary businesses do not.
var essentialScores = map[string]int64{
	"Electric Utilities":     95,
	"Water Utilities":        95,
	"Gas Utilities":          90,
	"Healthcare Facilities":  90,
	"Pharmaceuticals":        85,
	"Food Products":          85,
	"Food Retail":            80,
	"Household Products":     75,
	"Waste Management":       75,
	"Telecom":                70,
	"Defense":                70,
	"Insurance":              40,
	"Banks":                  35,
	"Asset Management":       30,
	"Software":               25,
	"Consumer Discretionary": 20,
}

// commoditySectorScores maps industries with direct commodity exposure to
// base scores.
var commoditySectorScores = map[string]int64{
	"Oil & Gas E&P":         85,
	"Oil & Gas Integrated":  80,
	"Copper Mining":         85,
	"Diversified Mining":    75,
	"Agricultural Products": 70,
	"Steel":                 65,
	"Chemicals":             55,
}

// preciousMetalsIndustries are the direct miner/royalty industries that get
// the top-tier precious metals base score.
var preciousMetalsIndustries = map[string]bool{
	"Gold Mining":               true,
	"Silver Mining":             true,
	"Precious Metals":           true,
	"Precious Metals Royalties": true,
}

// FactorScorer calculates individual factor scores for a company.
// Every method is pure; results fall within [0, 100].
type FactorScorer struct{}

// NewFactorScorer creates a new factor scorer.
func NewFactorScorer() *FactorScorer {
	return &FactorScorer{}
}

// ScoreHardAssets scores tangible asset backing via the tangible/total
// asset ratio, with boosts for real estate and mining.
func (fs *FactorScorer) ScoreHardAssets(data CompanyData) decimal.Decimal {
	if data.TotalAssets == nil || *data.TotalAssets == 0 {
		return decimal.NewFromInt(50) // Neutral if unknown
	}

	var tangible int64
	if data.TangibleAssets != nil {
		tangible = *data.TangibleAssets
	}
	tangibleRatio := decimal.NewFromInt(tangible).Div(decimal.NewFromInt(*data.TotalAssets))

	// Base score from tangible ratio (0-80 points)
	total := tangibleRatio.Mul(decimal.NewFromInt(80))

	// Boost for specific hard asset types
	if data.Industry == "REITs" || data.Industry == "Real Estate" {
		total = total.Add(decimal.NewFromInt(10))
	}
	if strings.Contains(data.Industry, "Mining") {
		total = total.Add(decimal.NewFromInt(10))
	}

	return decimal.Min(total, decimal.NewFromInt(100))
}

// ScorePreciousMetals scores precious metals exposure. Direct miners get top
// scores, boosted by proven reserves; everyone else is scored on the share
// of revenue derived from precious metals.
func (fs *FactorScorer) ScorePreciousMetals(data CompanyData) decimal.Decimal {
	if preciousMetalsIndustries[data.Industry] {
		base := decimal.NewFromInt(80)
		if data.ProvenReservesOz != nil && *data.ProvenReservesOz > 0 {
			// 10M oz of proven reserves maxes the boost
			reserveFactor := decimal.Min(
				decimal.NewFromInt(*data.ProvenReservesOz).Div(decimal.NewFromInt(10_000_000)),
				decimal.NewFromInt(1),
			).Mul(decimal.NewFromInt(20))
			return decimal.Min(base.Add(reserveFactor), decimal.NewFromInt(100))
		}
		return base
	}

	pmPct := decimal.Zero
	if data.PreciousMetalsRevenuePct != nil {
		pmPct = *data.PreciousMetalsRevenuePct
	}
	return decimal.Min(pmPct.Mul(decimal.NewFromInt(2)), decimal.NewFromInt(100))
}

// ScoreCommodities scores commodity exposure from the industry base table,
// adjusted by the actual commodity revenue share.
func (fs *FactorScorer) ScoreCommodities(data CompanyData) decimal.Decimal {
	sectorBase := decimal.NewFromInt(30)
	if base, ok := commoditySectorScores[data.Industry]; ok {
		sectorBase = decimal.NewFromInt(base)
	}

	commodityPct := decimal.Zero
	if data.CommodityRevenuePct != nil {
		commodityPct = *data.CommodityRevenuePct
	}
	// +/- 15 points around the 50% revenue midpoint
	adjustment := commodityPct.Sub(decimal.NewFromInt(50)).Mul(decimal.RequireFromString("0.3"))

	return clamp(sectorBase.Add(adjustment), decimal.Zero, decimal.NewFromInt(100))
}

// ScoreForeignRevenue scores international revenue exposure. Higher
// international share is a better hedge against the dollar.
func (fs *FactorScorer) ScoreForeignRevenue(data CompanyData) decimal.Decimal {
	foreignPct := decimal.Zero
	if data.ForeignRevenuePct != nil {
		foreignPct = *data.ForeignRevenuePct
	}

	// Linear scale with a boost for very high international exposure
	switch {
	case foreignPct.GreaterThanOrEqual(decimal.NewFromInt(70)):
		return decimal.NewFromInt(95)
	case foreignPct.GreaterThanOrEqual(decimal.NewFromInt(50)):
		return decimal.NewFromInt(70).Add(foreignPct.Sub(decimal.NewFromInt(50)).Mul(decimal.RequireFromString("1.25")))
	default:
		return foreignPct.Mul(decimal.RequireFromString("1.4"))
	}
}

// ScorePricingPower scores margin level and stability. High margin plus low
// variance indicates the company can pass through cost increases.
func (fs *FactorScorer) ScorePricingPower(data CompanyData) decimal.Decimal {
	margin := decimal.Zero
	if data.GrossMargin != nil {
		margin = *data.GrossMargin
	}
	stability := decimal.NewFromInt(10) // Default to moderate variance
	if data.GrossMargin5yrStd != nil {
		stability = *data.GrossMargin5yrStd
	}

	// High margin = can absorb cost increases (0-50 points)
	marginScore := decimal.Min(margin.Mul(decimal.RequireFromString("1.2")), decimal.NewFromInt(50))

	// Low variance = consistent pricing power (0-50 points)
	stabilityScore := decimal.Max(decimal.NewFromInt(50).Sub(stability.Mul(decimal.NewFromInt(5))), decimal.Zero)

	return marginScore.Add(stabilityScore)
}

// ScoreDebtStructure scores the debt profile. Fixed-rate, long-maturity,
// low-leverage debt inflates away; floating short-term debt does not.
func (fs *FactorScorer) ScoreDebtStructure(data CompanyData) decimal.Decimal {
	// Fixed rate debt is good (inflates away) - 0-50 points
	fixedPct := decimal.NewFromInt(50)
	if data.FixedRateDebtPct != nil {
		fixedPct = *data.FixedRateDebtPct
	}
	fixedScore := fixedPct.Mul(decimal.RequireFromString("0.5"))

	// Longer maturity is good - 0-30 points
	maturity := decimal.NewFromInt(5)
	if data.AvgDebtMaturityYears != nil {
		maturity = *data.AvgDebtMaturityYears
	}
	maturityScore := decimal.Min(maturity.Mul(decimal.NewFromInt(5)), decimal.NewFromInt(30))

	// Low debt/assets ratio is good - 0-20 points
	leverageScore := decimal.NewFromInt(10)
	if data.TotalAssets != nil && data.TotalDebt != nil && *data.TotalAssets != 0 {
		debtRatio := decimal.NewFromInt(*data.TotalDebt).Div(decimal.NewFromInt(*data.TotalAssets))
		leverageScore = decimal.Max(decimal.NewFromInt(20).Sub(debtRatio.Mul(decimal.NewFromInt(40))), decimal.Zero)
	}

	return fixedScore.Add(maturityScore).Add(leverageScore)
}

// ScoreEssentialServices scores how essential the company's industry is.
// Demand for essential services survives a currency crisis.
func (fs *FactorScorer) ScoreEssentialServices(data CompanyData) decimal.Decimal {
	if base, ok := essentialScores[data.Industry]; ok {
		return decimal.NewFromInt(base)
	}
	return decimal.NewFromInt(40)
}

// ScoreAll calculates all factor scores for a company, keyed by factor name.
func (fs *FactorScorer) ScoreAll(data CompanyData) map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		domain.FactorHardAssets:        fs.ScoreHardAssets(data),
		domain.FactorPreciousMetals:    fs.ScorePreciousMetals(data),
		domain.FactorCommodities:       fs.ScoreCommodities(data),
		domain.FactorForeignRevenue:    fs.ScoreForeignRevenue(data),
		domain.FactorPricingPower:      fs.ScorePricingPower(data),
		domain.FactorDebtStructure:     fs.ScoreDebtStructure(data),
		domain.FactorEssentialServices: fs.ScoreEssentialServices(data),
	}
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
