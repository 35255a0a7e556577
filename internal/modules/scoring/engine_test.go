package scoring

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hedge/internal/domain"
)

// Archetype fixtures with full financial profiles, used for end-to-end
// engine assertions. The leaner fixtures in factors_test.go exercise single
// factors.

func goldMinerArchetype() CompanyData {
	data := goldMinerData()
	data.CommodityRevenuePct = dec("95")
	return data
}

func utilityArchetype() CompanyData {
	return CompanyData{
		Ticker:               "VOLT",
		Industry:             "Electric Utilities",
		TotalAssets:          i64(150_000_000_000),
		TangibleAssets:       i64(142_500_000_000),
		ForeignRevenuePct:    dec("5"),
		CommodityRevenuePct:  dec("45"),
		GrossMargin:          dec("45"),
		GrossMargin5yrStd:    dec("2"),
		FixedRateDebtPct:     dec("90"),
		AvgDebtMaturityYears: dec("15"),
	}
}

func TestScore_Deterministic(t *testing.T) {
	engine := NewEngine()

	a := engine.Score(goldMinerArchetype())
	b := engine.Score(goldMinerArchetype())

	assert.True(t, a.TotalScore.Equal(b.TotalScore))
	assert.True(t, a.Confidence.Equal(b.Confidence))
	assert.Equal(t, a.Tier, b.Tier)
	require.Equal(t, len(a.Factors), len(b.Factors))
	for name, score := range a.Factors {
		assert.True(t, score.Equal(b.Factors[name]), "factor %s differs", name)
	}
	for scenario, score := range a.ScenarioScores {
		assert.True(t, score.Equal(b.ScenarioScores[scenario]), "scenario %s differs", scenario)
	}
}

func TestScore_OutputsInRange(t *testing.T) {
	engine := NewEngine()

	for _, data := range []CompanyData{goldMinerArchetype(), bankData(), utilityArchetype(), {Ticker: "EMPTY"}} {
		result := engine.Score(data)

		assert.True(t, result.TotalScore.GreaterThanOrEqual(decimal.Zero), "%s total below 0", data.Ticker)
		assert.True(t, result.TotalScore.LessThanOrEqual(decimal.NewFromInt(100)), "%s total above 100", data.Ticker)

		require.Len(t, result.Factors, len(domain.FactorNames))
		for name, score := range result.Factors {
			assert.True(t, score.GreaterThanOrEqual(decimal.Zero), "%s %s below 0", data.Ticker, name)
			assert.True(t, score.LessThanOrEqual(decimal.NewFromInt(100)), "%s %s above 100", data.Ticker, name)
		}

		require.Len(t, result.ScenarioScores, len(domain.Scenarios))
		for scenario, score := range result.ScenarioScores {
			assert.True(t, score.GreaterThanOrEqual(decimal.Zero), "%s %s below 0", data.Ticker, scenario)
			assert.True(t, score.LessThanOrEqual(decimal.NewFromInt(100)), "%s %s above 100", data.Ticker, scenario)
		}

		assert.True(t, result.Confidence.GreaterThanOrEqual(d("0.3")), "%s confidence below floor", data.Ticker)
		assert.True(t, result.Confidence.LessThanOrEqual(decimal.NewFromInt(1)), "%s confidence above 1", data.Ticker)
	}
}

func TestScore_TierMatchesTotal(t *testing.T) {
	engine := NewEngine()

	for _, data := range []CompanyData{goldMinerArchetype(), bankData(), utilityArchetype()} {
		result := engine.Score(data)
		assert.Equal(t, TierFor(result.TotalScore), result.Tier, "%s tier inconsistent", data.Ticker)
	}
}

func TestScore_ScenarioEqualsWeightedSum(t *testing.T) {
	engine := NewEngine()

	result := engine.Score(goldMinerArchetype())

	for _, scenario := range domain.Scenarios {
		weights := ScenarioWeights[scenario].ToMap()

		expected := decimal.Zero
		for name, score := range result.Factors {
			expected = expected.Add(score.Mul(weights[name]))
		}

		diff := result.ScenarioScores[scenario].Sub(expected).Abs()
		assert.True(t, diff.LessThanOrEqual(d("0.01")),
			"scenario %s: got %s, weighted sum %s", scenario, result.ScenarioScores[scenario], expected)
	}
}

func TestScore_GoldMinerArchetype(t *testing.T) {
	result := NewEngine().Score(goldMinerArchetype())

	assert.True(t, result.Factors[domain.FactorPreciousMetals].Equal(decimal.NewFromInt(100)))
	assert.True(t, result.Factors[domain.FactorHardAssets].GreaterThanOrEqual(decimal.NewFromInt(75)))
	assert.True(t, result.TotalScore.GreaterThanOrEqual(decimal.NewFromInt(70)), "total %s", result.TotalScore)
	assert.Contains(t, []string{TierFortress, TierResilient}, result.Tier)

	// 9 of 10 inputs present.
	assert.True(t, result.Confidence.Equal(d("0.93")), "confidence %s", result.Confidence)

	// Hyper shifts weight into metals, so the miner scores higher there.
	assert.True(t, result.ScenarioScores[domain.ScenarioHyper].GreaterThan(result.TotalScore))
}

func TestScore_BankArchetype(t *testing.T) {
	result := NewEngine().Score(bankData())

	assert.True(t, result.Factors[domain.FactorHardAssets].LessThan(decimal.NewFromInt(10)))
	assert.True(t, result.Factors[domain.FactorEssentialServices].Equal(decimal.NewFromInt(35)))
	assert.True(t, result.Factors[domain.FactorPreciousMetals].LessThanOrEqual(decimal.NewFromInt(10)))
	assert.True(t, result.TotalScore.LessThan(decimal.NewFromInt(55)), "total %s", result.TotalScore)
	assert.Contains(t, []string{TierVulnerable, TierExposed}, result.Tier)
}

func TestScore_UtilityArchetype(t *testing.T) {
	result := NewEngine().Score(utilityArchetype())

	assert.True(t, result.Factors[domain.FactorEssentialServices].Equal(decimal.NewFromInt(95)))
	assert.True(t, result.Factors[domain.FactorForeignRevenue].Equal(decimal.NewFromInt(7)))
	assert.True(t, result.Factors[domain.FactorDebtStructure].GreaterThanOrEqual(decimal.NewFromInt(80)))
	assert.Contains(t, []string{TierResilient, TierModerate}, result.Tier)
}

func TestAggregate_Linearity(t *testing.T) {
	factors := map[string]decimal.Decimal{
		domain.FactorHardAssets:        decimal.NewFromInt(20),
		domain.FactorPreciousMetals:    decimal.NewFromInt(40),
		domain.FactorCommodities:       decimal.NewFromInt(10),
		domain.FactorForeignRevenue:    decimal.NewFromInt(30),
		domain.FactorPricingPower:      decimal.NewFromInt(50),
		domain.FactorDebtStructure:     decimal.NewFromInt(40),
		domain.FactorEssentialServices: decimal.NewFromInt(20),
	}
	doubled := make(map[string]decimal.Decimal, len(factors))
	for name, score := range factors {
		doubled[name] = score.Mul(decimal.NewFromInt(2))
	}

	single := Aggregate(factors, CurrentWeights)
	twice := Aggregate(doubled, CurrentWeights)

	assert.True(t, twice.Equal(single.Mul(decimal.NewFromInt(2))),
		"doubling inputs should double the total: %s vs %s", single, twice)
}

func TestAggregate_UniformInputs(t *testing.T) {
	// Weights sum to 1, so uniform factor scores pass through unchanged.
	factors := make(map[string]decimal.Decimal, len(domain.FactorNames))
	for _, name := range domain.FactorNames {
		factors[name] = decimal.NewFromInt(60)
	}

	for _, scenario := range domain.Scenarios {
		total := Aggregate(factors, ScenarioWeights[scenario])
		assert.True(t, total.Equal(decimal.NewFromInt(60)), "scenario %s: %s", scenario, total)
	}
}

func TestValidateWeights_AllScenarios(t *testing.T) {
	require.NoError(t, ValidateWeights())
}

func TestWeightVector_Validate(t *testing.T) {
	bad := CurrentWeights
	bad.HardAssets = d("0.50")
	assert.Error(t, bad.Validate(), "sum over 1.0 must fail")

	negative := CurrentWeights
	negative.HardAssets = d("-0.25")
	assert.Error(t, negative.Validate(), "negative weight must fail")
}

func TestConfidence_Bounds(t *testing.T) {
	engine := NewEngine()

	empty := engine.Score(CompanyData{Ticker: "EMPTY"})
	assert.True(t, empty.Confidence.Equal(d("0.3")), "no data floors at 0.3, got %s", empty.Confidence)

	full := goldMinerArchetype()
	full.TotalRevenue = i64(12_000_000_000)
	complete := engine.Score(full)
	assert.True(t, complete.Confidence.Equal(decimal.NewFromInt(1)), "all data scores 1.0, got %s", complete.Confidence)
}

func TestScenarioParams_Projection(t *testing.T) {
	_, ok := ParamsFor(domain.ScenarioCurrent)
	assert.False(t, ok, "current is not projectable")

	gradual, ok := ParamsFor(domain.ScenarioGradual)
	require.True(t, ok)
	years, _ := gradual.Years().Float64()
	assert.InDelta(t, 4.0, years, 0.001)

	cumulative, _ := CumulativeInflation(gradual.InflationRate, gradual.Years()).Float64()
	assert.InDelta(t, 1.26247696, cumulative, 1e-6)

	rapid, ok := ParamsFor(domain.ScenarioRapid)
	require.True(t, ok)
	cumulative, _ = CumulativeInflation(rapid.InflationRate, rapid.Years()).Float64()
	assert.InDelta(t, 1.15218, cumulative, 1e-4)
}
