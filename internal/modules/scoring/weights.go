package scoring

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aristath/hedge/internal/domain"
)

// WeightVector assigns each factor its share of the total score.
// Weights are non-negative and must sum to 1.0 within 0.001.
type WeightVector struct {
	HardAssets        decimal.Decimal
	PreciousMetals    decimal.Decimal
	Commodities       decimal.Decimal
	ForeignRevenue    decimal.Decimal
	PricingPower      decimal.Decimal
	DebtStructure     decimal.Decimal
	EssentialServices decimal.Decimal
}

// ToMap returns the weights keyed by factor name.
func (w WeightVector) ToMap() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		domain.FactorHardAssets:        w.HardAssets,
		domain.FactorPreciousMetals:    w.PreciousMetals,
		domain.FactorCommodities:       w.Commodities,
		domain.FactorForeignRevenue:    w.ForeignRevenue,
		domain.FactorPricingPower:      w.PricingPower,
		domain.FactorDebtStructure:     w.DebtStructure,
		domain.FactorEssentialServices: w.EssentialServices,
	}
}

// Validate ensures the weights are non-negative and sum to 1.0 within 0.001.
func (w WeightVector) Validate() error {
	total := decimal.Zero
	for name, weight := range w.ToMap() {
		if weight.IsNegative() {
			return fmt.Errorf("weight %s is negative: %s", name, weight)
		}
		total = total.Add(weight)
	}
	if total.Sub(decimal.NewFromInt(1)).Abs().GreaterThanOrEqual(decimal.RequireFromString("0.001")) {
		return fmt.Errorf("weights sum to %s, want 1.0 within 0.001", total)
	}
	return nil
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// CurrentWeights is the baseline vector used for the headline total score.
var CurrentWeights = WeightVector{
	HardAssets:        d("0.25"),
	PreciousMetals:    d("0.15"),
	Commodities:       d("0.15"),
	ForeignRevenue:    d("0.15"),
	PricingPower:      d("0.15"),
	DebtStructure:     d("0.10"),
	EssentialServices: d("0.05"),
}

// GradualWeights matches the baseline: a slow decline rewards the same mix.
var GradualWeights = WeightVector{
	HardAssets:        d("0.25"),
	PreciousMetals:    d("0.15"),
	Commodities:       d("0.15"),
	ForeignRevenue:    d("0.15"),
	PricingPower:      d("0.15"),
	DebtStructure:     d("0.10"),
	EssentialServices: d("0.05"),
}

// RapidWeights shifts toward hard assets and metals.
var RapidWeights = WeightVector{
	HardAssets:        d("0.30"),
	PreciousMetals:    d("0.25"),
	Commodities:       d("0.20"),
	ForeignRevenue:    d("0.10"),
	PricingPower:      d("0.10"),
	DebtStructure:     d("0.05"),
	EssentialServices: d("0.00"),
}

// HyperWeights: in a collapse only hard value matters.
var HyperWeights = WeightVector{
	HardAssets:        d("0.35"),
	PreciousMetals:    d("0.35"),
	Commodities:       d("0.20"),
	ForeignRevenue:    d("0.05"),
	PricingPower:      d("0.05"),
	DebtStructure:     d("0.00"),
	EssentialServices: d("0.00"),
}

// ScenarioWeights maps each scenario to its weight vector.
var ScenarioWeights = map[domain.Scenario]WeightVector{
	domain.ScenarioCurrent: CurrentWeights,
	domain.ScenarioGradual: GradualWeights,
	domain.ScenarioRapid:   RapidWeights,
	domain.ScenarioHyper:   HyperWeights,
}

// ValidateWeights checks every scenario vector. Called at startup; a
// violation is fatal because every score computed afterwards would be wrong.
func ValidateWeights() error {
	for _, scenario := range domain.Scenarios {
		if err := ScenarioWeights[scenario].Validate(); err != nil {
			return fmt.Errorf("scenario %s: %w", scenario, err)
		}
	}
	return nil
}

// Aggregate computes the weighted total of factor scores under a vector,
// rounded to two decimals.
func Aggregate(factors map[string]decimal.Decimal, w WeightVector) decimal.Decimal {
	weights := w.ToMap()
	total := decimal.Zero
	for factor, score := range factors {
		total = total.Add(score.Mul(weights[factor]))
	}
	return round2(total)
}

// round2 is the single rounding rule for score outputs: half-up, two
// decimal places.
func round2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}
