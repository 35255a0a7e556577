package portfolio

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/hedge/internal/domain"
	"github.com/aristath/hedge/internal/modules/scoring"
)

// CompanySource resolves holding companies against the universe.
// *companies.Repository satisfies it.
type CompanySource interface {
	GetByID(id string) (*domain.Company, error)
}

// ScoreReader provides the latest-score lookups portfolio analytics join
// against. *scoring.Repository satisfies it.
type ScoreReader interface {
	LatestScores() (map[string]*domain.SurvivalScore, error)
}

// Service computes survival analytics over portfolio holdings.
type Service struct {
	portfolios *Repository
	companies  CompanySource
	scores     ScoreReader
	log        zerolog.Logger
}

// NewService creates a portfolio analytics service.
func NewService(portfolios *Repository, companies CompanySource, scores ScoreReader, log zerolog.Logger) *Service {
	return &Service{
		portfolios: portfolios,
		companies:  companies,
		scores:     scores,
		log:        log.With().Str("component", "portfolio").Logger(),
	}
}

// PortfolioBrief identifies the analyzed portfolio.
type PortfolioBrief struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	HoldingsCount int    `json:"holdings_count"`
}

// ScenarioScores are value-weighted scenario averages. Null when the
// portfolio holds no value.
type ScenarioScores struct {
	Gradual *decimal.Decimal `json:"gradual"`
	Rapid   *decimal.Decimal `json:"rapid"`
	Hyper   *decimal.Decimal `json:"hyper"`
}

// FactorBreakdown is the value-weighted average of each survival factor.
type FactorBreakdown struct {
	HardAssets        *decimal.Decimal `json:"hard_assets"`
	PreciousMetals    *decimal.Decimal `json:"precious_metals"`
	Commodities       *decimal.Decimal `json:"commodities"`
	ForeignRevenue    *decimal.Decimal `json:"foreign_revenue"`
	PricingPower      *decimal.Decimal `json:"pricing_power"`
	DebtStructure     *decimal.Decimal `json:"debt_structure"`
	EssentialServices *decimal.Decimal `json:"essential_services"`
}

// SectorWeight is one sector's share of portfolio value.
type SectorWeight struct {
	Sector string          `json:"sector"`
	Value  decimal.Decimal `json:"value"`
	Weight decimal.Decimal `json:"weight"`
}

// Analysis aggregates survival characteristics across holdings.
type Analysis struct {
	OverallScore     *decimal.Decimal `json:"overall_score"`
	TotalValue       decimal.Decimal  `json:"total_value"`
	ScenarioScores   ScenarioScores   `json:"scenario_scores"`
	FactorBreakdown  FactorBreakdown  `json:"factor_breakdown"`
	SectorAllocation []SectorWeight   `json:"sector_allocation"`
}

// AnalysisResult is the analyze endpoint response.
type AnalysisResult struct {
	Portfolio PortfolioBrief `json:"portfolio"`
	Analysis  Analysis       `json:"analysis"`
}

// Analyze computes value-weighted survival metrics for a portfolio. Returns
// (nil, nil) when the portfolio does not exist for the user. Holdings without
// a current value weigh zero; holdings without a score dilute the averages.
func (s *Service) Analyze(userID, portfolioID string) (*AnalysisResult, error) {
	p, err := s.portfolios.Get(userID, portfolioID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}

	holdings, err := s.portfolios.Holdings(p.ID)
	if err != nil {
		return nil, err
	}
	latest, err := s.scores.LatestScores()
	if err != nil {
		return nil, fmt.Errorf("failed to load latest scores: %w", err)
	}

	totalValue := decimal.Zero
	weightedTotal := decimal.Zero
	factorTotals := make(map[string]decimal.Decimal, 7)
	scenarioTotals := make(map[domain.Scenario]decimal.Decimal, 3)
	sectorValues := make(map[string]decimal.Decimal)

	for _, h := range holdings {
		value := decimal.Zero
		if h.CurrentValue != nil {
			value = *h.CurrentValue
		}
		totalValue = totalValue.Add(value)

		if score := latest[h.CompanyID]; score != nil && value.IsPositive() {
			weightedTotal = weightedTotal.Add(value.Mul(score.TotalScore))
			for name, factor := range score.FactorMap() {
				factorTotals[name] = factorTotals[name].Add(value.Mul(factor))
			}
			addScenario := func(scenario domain.Scenario, v *decimal.Decimal) {
				if v != nil {
					scenarioTotals[scenario] = scenarioTotals[scenario].Add(value.Mul(*v))
				}
			}
			addScenario(domain.ScenarioGradual, score.ScenarioGradual)
			addScenario(domain.ScenarioRapid, score.ScenarioRapid)
			addScenario(domain.ScenarioHyper, score.ScenarioHyper)
		}

		company, err := s.companies.GetByID(h.CompanyID)
		if err != nil {
			return nil, fmt.Errorf("failed to load company: %w", err)
		}
		if company != nil && company.Sector != "" {
			sectorValues[company.Sector] = sectorValues[company.Sector].Add(value)
		}
	}

	analysis := Analysis{
		TotalValue:       totalValue,
		SectorAllocation: make([]SectorWeight, 0, len(sectorValues)),
	}

	hasValue := totalValue.IsPositive()
	if hasValue {
		overall := weightedTotal.Div(totalValue).Round(2)
		analysis.OverallScore = &overall

		weighted := func(total decimal.Decimal) *decimal.Decimal {
			v := total.Div(totalValue).Round(2)
			return &v
		}
		analysis.ScenarioScores = ScenarioScores{
			Gradual: weighted(scenarioTotals[domain.ScenarioGradual]),
			Rapid:   weighted(scenarioTotals[domain.ScenarioRapid]),
			Hyper:   weighted(scenarioTotals[domain.ScenarioHyper]),
		}
		analysis.FactorBreakdown = FactorBreakdown{
			HardAssets:        weighted(factorTotals[domain.FactorHardAssets]),
			PreciousMetals:    weighted(factorTotals[domain.FactorPreciousMetals]),
			Commodities:       weighted(factorTotals[domain.FactorCommodities]),
			ForeignRevenue:    weighted(factorTotals[domain.FactorForeignRevenue]),
			PricingPower:      weighted(factorTotals[domain.FactorPricingPower]),
			DebtStructure:     weighted(factorTotals[domain.FactorDebtStructure]),
			EssentialServices: weighted(factorTotals[domain.FactorEssentialServices]),
		}
	}

	for sector, value := range sectorValues {
		weight := decimal.Zero
		if hasValue {
			weight = value.Div(totalValue).Mul(dec("100")).Round(2)
		}
		analysis.SectorAllocation = append(analysis.SectorAllocation, SectorWeight{
			Sector: sector,
			Value:  value,
			Weight: weight,
		})
	}
	sort.Slice(analysis.SectorAllocation, func(i, j int) bool {
		a, b := analysis.SectorAllocation[i], analysis.SectorAllocation[j]
		if !a.Value.Equal(b.Value) {
			return a.Value.GreaterThan(b.Value)
		}
		return a.Sector < b.Sector
	})

	s.log.Debug().
		Str("portfolio_id", p.ID).
		Int("holdings", len(holdings)).
		Msg("Portfolio analyzed")

	return &AnalysisResult{
		Portfolio: PortfolioBrief{ID: p.ID, Name: p.Name, HoldingsCount: len(holdings)},
		Analysis:  analysis,
	}, nil
}

// CustomParams override individual projection assumptions.
type CustomParams struct {
	InflationRate *decimal.Decimal `json:"inflation_rate"`
	Years         *int             `json:"years"`
}

// ScenarioRequest asks for a devaluation projection over a portfolio.
type ScenarioRequest struct {
	Scenario     string        `json:"scenario"`
	CustomParams *CustomParams `json:"custom_params"`
}

// Validate checks the scenario name and any overrides.
func (r *ScenarioRequest) Validate() error {
	if _, ok := scoring.ParamsFor(domain.Scenario(r.Scenario)); !ok {
		return fmt.Errorf("scenario must be one of gradual, rapid, hyper")
	}
	if r.CustomParams != nil {
		if r.CustomParams.InflationRate != nil && r.CustomParams.InflationRate.IsNegative() {
			return fmt.Errorf("inflation_rate must not be negative")
		}
		if r.CustomParams.Years != nil && (*r.CustomParams.Years < 1 || *r.CustomParams.Years > 50) {
			return fmt.Errorf("years must be between 1 and 50")
		}
	}
	return nil
}

// ScenarioParameters echo the assumptions a projection ran under. Years is
// fractional for sub-year horizons.
type ScenarioParameters struct {
	InflationRate       decimal.Decimal `json:"inflation_rate"`
	Years               decimal.Decimal `json:"years"`
	CumulativeInflation decimal.Decimal `json:"cumulative_inflation"`
}

// PortfolioImpact sums the projection across holdings.
type PortfolioImpact struct {
	CurrentValue     decimal.Decimal `json:"current_value"`
	ProjectedNominal decimal.Decimal `json:"projected_nominal"`
	ProjectedReal    decimal.Decimal `json:"projected_real"`
	RealChangePct    decimal.Decimal `json:"real_change_pct"`
}

// HoldingImpact is one holding's projected value under a scenario.
type HoldingImpact struct {
	Ticker           string          `json:"ticker"`
	CurrentValue     decimal.Decimal `json:"current_value"`
	ProjectedNominal decimal.Decimal `json:"projected_nominal"`
	ProjectedReal    decimal.Decimal `json:"projected_real"`
	RealChangePct    decimal.Decimal `json:"real_change_pct"`
	SurvivalScore    decimal.Decimal `json:"survival_score"`
}

// ScenarioResult is the scenario endpoint response. Projections are computed
// on read and never persisted.
type ScenarioResult struct {
	Scenario        string             `json:"scenario"`
	Parameters      ScenarioParameters `json:"parameters"`
	PortfolioImpact PortfolioImpact    `json:"portfolio_impact"`
	HoldingsImpact  []HoldingImpact    `json:"holdings_impact"`
}

// Project runs a devaluation scenario over a portfolio. A holding's scenario
// score scales how much inflation its nominal value recaptures; the real
// value deflates by cumulative inflation. Returns (nil, nil) when the
// portfolio does not exist for the user.
func (s *Service) Project(userID, portfolioID string, req *ScenarioRequest) (*ScenarioResult, error) {
	p, err := s.portfolios.Get(userID, portfolioID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}

	holdings, err := s.portfolios.Holdings(p.ID)
	if err != nil {
		return nil, err
	}
	latest, err := s.scores.LatestScores()
	if err != nil {
		return nil, fmt.Errorf("failed to load latest scores: %w", err)
	}

	scenario := domain.Scenario(req.Scenario)
	params, _ := scoring.ParamsFor(scenario)
	rate := params.InflationRate
	years := params.Years()
	if req.CustomParams != nil {
		if req.CustomParams.InflationRate != nil {
			rate = *req.CustomParams.InflationRate
		}
		if req.CustomParams.Years != nil {
			years = decimal.NewFromInt(int64(*req.CustomParams.Years))
		}
	}

	one := decimal.NewFromInt(1)
	hundred := decimal.NewFromInt(100)
	cumulative := scoring.CumulativeInflation(rate, years)

	impacts := make([]HoldingImpact, 0, len(holdings))
	totalValue := decimal.Zero
	totalNominal := decimal.Zero
	totalReal := decimal.Zero

	for _, h := range holdings {
		value := decimal.Zero
		if h.CurrentValue != nil {
			value = *h.CurrentValue
		}
		totalValue = totalValue.Add(value)

		// Unscored holdings get a neutral 50.
		ss := decimal.NewFromInt(50)
		if score := latest[h.CompanyID]; score != nil {
			ss = score.ScenarioScore(scenario)
		}

		protection := ss.Div(hundred)
		growth := one.Add(rate.Mul(protection).Mul(years))
		nominal := value.Mul(growth)
		real := nominal.Div(cumulative)

		changePct := decimal.Zero
		if value.IsPositive() {
			changePct = real.Div(value).Sub(one).Mul(hundred).Round(2)
		}

		ticker := ""
		company, err := s.companies.GetByID(h.CompanyID)
		if err != nil {
			return nil, fmt.Errorf("failed to load company: %w", err)
		}
		if company != nil {
			ticker = company.Ticker
		}

		rowNominal := nominal.Round(2)
		rowReal := real.Round(2)
		impacts = append(impacts, HoldingImpact{
			Ticker:           ticker,
			CurrentValue:     value,
			ProjectedNominal: rowNominal,
			ProjectedReal:    rowReal,
			RealChangePct:    changePct,
			SurvivalScore:    ss,
		})
		totalNominal = totalNominal.Add(rowNominal)
		totalReal = totalReal.Add(rowReal)
	}

	portfolioChange := decimal.Zero
	if totalValue.IsPositive() {
		portfolioChange = totalReal.Div(totalValue).Sub(one).Mul(hundred).Round(2)
	}

	s.log.Debug().
		Str("portfolio_id", p.ID).
		Str("scenario", req.Scenario).
		Int("holdings", len(holdings)).
		Msg("Scenario projected")

	return &ScenarioResult{
		Scenario: req.Scenario,
		Parameters: ScenarioParameters{
			InflationRate:       rate,
			Years:               years,
			CumulativeInflation: cumulative.Round(4),
		},
		PortfolioImpact: PortfolioImpact{
			CurrentValue:     totalValue,
			ProjectedNominal: totalNominal,
			ProjectedReal:    totalReal,
			RealChangePct:    portfolioChange,
		},
		HoldingsImpact: impacts,
	}, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
