package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Scenario is a named dollar-devaluation regime. Each scenario selects a
// factor weight vector; the non-current ones also carry projection parameters.
type Scenario string

const (
	ScenarioCurrent Scenario = "current"
	ScenarioGradual Scenario = "gradual"
	ScenarioRapid   Scenario = "rapid"
	ScenarioHyper   Scenario = "hyper"
)

// Scenarios lists all scenarios in canonical order.
var Scenarios = []Scenario{ScenarioCurrent, ScenarioGradual, ScenarioRapid, ScenarioHyper}

// ValidScenario reports whether s names a known scenario.
func ValidScenario(s string) bool {
	switch Scenario(s) {
	case ScenarioCurrent, ScenarioGradual, ScenarioRapid, ScenarioHyper:
		return true
	}
	return false
}

// Factor names, in canonical order. These double as JSON keys and as the
// *_score column stems in the scores database.
const (
	FactorHardAssets        = "hard_assets"
	FactorPreciousMetals    = "precious_metals"
	FactorCommodities       = "commodities"
	FactorForeignRevenue    = "foreign_revenue"
	FactorPricingPower      = "pricing_power"
	FactorDebtStructure     = "debt_structure"
	FactorEssentialServices = "essential_services"
)

// FactorNames lists the seven factors in canonical order.
var FactorNames = []string{
	FactorHardAssets,
	FactorPreciousMetals,
	FactorCommodities,
	FactorForeignRevenue,
	FactorPricingPower,
	FactorDebtStructure,
	FactorEssentialServices,
}

// SurvivalScore is one company's score snapshot for one date.
// Rows are written once per (company, date) by the batch scorer; a same-day
// re-run overwrites in place, otherwise the series is immutable.
type SurvivalScore struct {
	ID         string          `json:"id"`
	CompanyID  string          `json:"company_id"`
	ScoreDate  time.Time       `json:"score_date"`
	TotalScore decimal.Decimal `json:"total_score"`
	Confidence decimal.Decimal `json:"confidence"`
	Tier       string          `json:"tier"`

	HardAssetsScore        *decimal.Decimal `json:"hard_assets_score,omitempty"`
	PreciousMetalsScore    *decimal.Decimal `json:"precious_metals_score,omitempty"`
	CommodityScore         *decimal.Decimal `json:"commodity_score,omitempty"`
	ForeignRevenueScore    *decimal.Decimal `json:"foreign_revenue_score,omitempty"`
	PricingPowerScore      *decimal.Decimal `json:"pricing_power_score,omitempty"`
	DebtStructureScore     *decimal.Decimal `json:"debt_structure_score,omitempty"`
	EssentialServicesScore *decimal.Decimal `json:"essential_services_score,omitempty"`

	ScenarioGradual *decimal.Decimal `json:"scenario_gradual,omitempty"`
	ScenarioRapid   *decimal.Decimal `json:"scenario_rapid,omitempty"`
	ScenarioHyper   *decimal.Decimal `json:"scenario_hyper,omitempty"`

	ScoringVersion string    `json:"scoring_version"`
	CreatedAt      time.Time `json:"created_at"`
}

// FactorMap assembles the seven factor scores keyed by factor name.
// Missing columns (legacy rows) are omitted.
func (s *SurvivalScore) FactorMap() map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal, 7)
	put := func(name string, v *decimal.Decimal) {
		if v != nil {
			m[name] = *v
		}
	}
	put(FactorHardAssets, s.HardAssetsScore)
	put(FactorPreciousMetals, s.PreciousMetalsScore)
	put(FactorCommodities, s.CommodityScore)
	put(FactorForeignRevenue, s.ForeignRevenueScore)
	put(FactorPricingPower, s.PricingPowerScore)
	put(FactorDebtStructure, s.DebtStructureScore)
	put(FactorEssentialServices, s.EssentialServicesScore)
	return m
}

// ScenarioScore returns the stored score under the given scenario, falling
// back to the total score when the scenario column is null. Current always
// maps to the total score.
func (s *SurvivalScore) ScenarioScore(scenario Scenario) decimal.Decimal {
	var v *decimal.Decimal
	switch scenario {
	case ScenarioGradual:
		v = s.ScenarioGradual
	case ScenarioRapid:
		v = s.ScenarioRapid
	case ScenarioHyper:
		v = s.ScenarioHyper
	}
	if v == nil {
		return s.TotalScore
	}
	return *v
}

// Run status values for ScoringRun.Status.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// ScoringRun is the audit record of one batch scoring invocation.
type ScoringRun struct {
	ID              string           `json:"id"`
	RunDate         time.Time        `json:"run_date"`
	CompaniesScored int              `json:"companies_scored"`
	CompaniesFailed int              `json:"companies_failed"`
	AvgScore        *decimal.Decimal `json:"avg_score,omitempty"`
	MedianScore     *decimal.Decimal `json:"median_score,omitempty"`
	DurationSeconds *float64         `json:"duration_seconds,omitempty"`
	ScoringVersion  string           `json:"scoring_version"`
	Status          string           `json:"status"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	StartedAt       time.Time        `json:"started_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}
