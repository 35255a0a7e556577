package scoring

import (
	"github.com/shopspring/decimal"

	"github.com/aristath/hedge/internal/domain"
)

// ScenarioParams describe one devaluation scenario for portfolio projection.
// InflationRate is a fraction per year (0.06 = 6%).
type ScenarioParams struct {
	Name           string
	Description    string
	DollarDecline  decimal.Decimal // expected USD decline over the horizon, fraction
	TimelineMonths int
	InflationRate  decimal.Decimal
}

// Years returns the horizon length in years.
func (p ScenarioParams) Years() decimal.Decimal {
	return decimal.NewFromInt(int64(p.TimelineMonths)).Div(decimal.NewFromInt(12))
}

// scenarioParams holds the projection parameters for the three devaluation
// scenarios. Current is the baseline and has no projection.
var scenarioParams = map[domain.Scenario]ScenarioParams{
	domain.ScenarioGradual: {
		Name:           "Gradual Decline",
		Description:    "15-20% decline over 3-5 years",
		DollarDecline:  d("0.175"),
		TimelineMonths: 48,
		InflationRate:  d("0.06"),
	},
	domain.ScenarioRapid: {
		Name:           "Rapid Decline",
		Description:    "30-40% decline in 12-18 months",
		DollarDecline:  d("0.35"),
		TimelineMonths: 15,
		InflationRate:  d("0.12"),
	},
	domain.ScenarioHyper: {
		Name:           "Hyperinflation",
		Description:    "50%+ collapse, hyperinflation event",
		DollarDecline:  d("0.55"),
		TimelineMonths: 6,
		InflationRate:  d("0.50"),
	},
}

// ParamsFor returns the projection parameters for a scenario. The current
// scenario is not projectable and returns false.
func ParamsFor(s domain.Scenario) (ScenarioParams, bool) {
	p, ok := scenarioParams[s]
	return p, ok
}

// CumulativeInflation computes (1+rate)^years at 8-digit precision.
func CumulativeInflation(rate, years decimal.Decimal) decimal.Decimal {
	base := decimal.NewFromInt(1).Add(rate)
	result, err := base.PowWithPrecision(years, 8)
	if err != nil {
		// Negative bases cannot occur with inflation rates > -100%.
		return decimal.NewFromInt(1)
	}
	return result
}
