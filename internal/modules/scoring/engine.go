package scoring

import (
	"github.com/shopspring/decimal"

	"github.com/aristath/hedge/internal/domain"
)

// Version is stamped into every persisted score as scoring_version.
// Bump when factor formulas, weights, or tiers change.
const Version = "1.0.0"

// ScoreResult is the complete scoring output for one company.
type ScoreResult struct {
	TotalScore     decimal.Decimal
	Tier           string
	Confidence     decimal.Decimal
	Factors        map[string]decimal.Decimal
	ScenarioScores map[domain.Scenario]decimal.Decimal
}

// Engine orchestrates factor scoring, weighted aggregation, tier
// classification, and scenario variants. Score is pure and deterministic:
// identical input data always produces an identical result.
type Engine struct {
	weights WeightVector
	scorer  *FactorScorer
}

// NewEngine creates an engine with the baseline weight vector.
func NewEngine() *Engine {
	return &Engine{
		weights: CurrentWeights,
		scorer:  NewFactorScorer(),
	}
}

// Score calculates the complete survival score for a company.
func (e *Engine) Score(data CompanyData) ScoreResult {
	// Factors stay unrounded internally so every aggregation sees the same
	// exact inputs; rounding happens once per output value.
	factors := e.scorer.ScoreAll(data)

	total := Aggregate(factors, e.weights)

	scenarios := make(map[domain.Scenario]decimal.Decimal, len(domain.Scenarios))
	for _, s := range domain.Scenarios {
		scenarios[s] = Aggregate(factors, ScenarioWeights[s])
	}

	rounded := make(map[string]decimal.Decimal, len(factors))
	for name, score := range factors {
		rounded[name] = round2(score)
	}

	return ScoreResult{
		TotalScore:     total,
		Tier:           TierFor(total),
		Confidence:     e.confidence(data),
		Factors:        rounded,
		ScenarioScores: scenarios,
	}
}

// confidence reflects data completeness: 0.3 base, up to 1.0 when all ten
// scoring inputs are present.
func (e *Engine) confidence(data CompanyData) decimal.Decimal {
	dataPoints := []bool{
		data.TotalAssets != nil,
		data.TangibleAssets != nil,
		data.TotalRevenue != nil,
		data.ForeignRevenuePct != nil,
		data.GrossMargin != nil,
		data.GrossMargin5yrStd != nil,
		data.TotalDebt != nil,
		data.FixedRateDebtPct != nil,
		data.AvgDebtMaturityYears != nil,
		data.CommodityRevenuePct != nil,
	}

	available := 0
	for _, present := range dataPoints {
		if present {
			available++
		}
	}

	confidence := d("0.3").Add(
		decimal.NewFromInt(int64(available)).
			Div(decimal.NewFromInt(int64(len(dataPoints)))).
			Mul(d("0.7")),
	)

	return round2(clamp(confidence, d("0.3"), decimal.NewFromInt(1)))
}
