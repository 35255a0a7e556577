package rankings

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/hedge/internal/domain"
)

const dateFormat = "2006-01-02"

// rankedColumns is the survival_scores column list in scan order.
const rankedColumns = `id, company_id, score_date, total_score, confidence, tier,
hard_assets_score, precious_metals_score, commodity_score, foreign_revenue_score,
pricing_power_score, debt_structure_score, essential_services_score,
scenario_gradual, scenario_rapid, scenario_hyper, scoring_version, created_at`

// Repository serves the ranking read model over scores.db: latest score rows
// ordered under a chosen scenario, and historical baselines for movers.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a rankings repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "rankings").Logger(),
	}
}

// LatestRanked returns the most recent score row per company, best first
// under the given scenario. Rows without a stored scenario value rank by
// their total score, matching the ScenarioScore fallback.
func (r *Repository) LatestRanked(scenario domain.Scenario) ([]domain.SurvivalScore, error) {
	query := "SELECT " + rankedColumns + ` FROM survival_scores s
		WHERE score_date = (
			SELECT MAX(score_date) FROM survival_scores WHERE company_id = s.company_id
		)
		ORDER BY ` + scenarioOrder(scenario) + ` DESC, company_id`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query ranked scores: %w", err)
	}
	defer rows.Close()

	var scores []domain.SurvivalScore
	for rows.Next() {
		score, err := scanRanked(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ranked score: %w", err)
		}
		scores = append(scores, score)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ranked scores: %w", err)
	}

	return scores, nil
}

// PreviousTotals returns each company's most recent total score dated on or
// before the given day (YYYY-MM-DD). Movers measure deltas against it.
func (r *Repository) PreviousTotals(date string) (map[string]decimal.Decimal, error) {
	query := `SELECT company_id, total_score FROM survival_scores s
		WHERE score_date = (
			SELECT MAX(score_date) FROM survival_scores
			WHERE company_id = s.company_id AND score_date <= ?
		)`

	rows, err := r.db.Query(query, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals as of %s: %w", date, err)
	}
	defer rows.Close()

	totals := make(map[string]decimal.Decimal)
	for rows.Next() {
		var companyID string
		var total float64
		if err := rows.Scan(&companyID, &total); err != nil {
			return nil, fmt.Errorf("failed to scan total: %w", err)
		}
		totals[companyID] = decimal.NewFromFloat(total)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating totals: %w", err)
	}

	return totals, nil
}

// scenarioOrder maps a scenario to its ORDER BY expression. Scenario columns
// are nullable; COALESCE keeps sparse rows in the ranking.
func scenarioOrder(scenario domain.Scenario) string {
	switch scenario {
	case domain.ScenarioGradual:
		return "COALESCE(scenario_gradual, total_score)"
	case domain.ScenarioRapid:
		return "COALESCE(scenario_rapid, total_score)"
	case domain.ScenarioHyper:
		return "COALESCE(scenario_hyper, total_score)"
	default:
		return "total_score"
	}
}

func scanRanked(rows *sql.Rows) (domain.SurvivalScore, error) {
	var score domain.SurvivalScore
	var scoreDate, createdAt string
	var totalScore, confidence float64
	var tier, version sql.NullString
	var factors [7]sql.NullFloat64
	var gradual, rapid, hyper sql.NullFloat64

	err := rows.Scan(
		&score.ID,
		&score.CompanyID,
		&scoreDate,
		&totalScore,
		&confidence,
		&tier,
		&factors[0],
		&factors[1],
		&factors[2],
		&factors[3],
		&factors[4],
		&factors[5],
		&factors[6],
		&gradual,
		&rapid,
		&hyper,
		&version,
		&createdAt,
	)
	if err != nil {
		return score, err
	}

	date, err := time.Parse(dateFormat, scoreDate)
	if err != nil {
		return score, fmt.Errorf("invalid score_date %q: %w", scoreDate, err)
	}
	score.ScoreDate = date

	score.TotalScore = decimal.NewFromFloat(totalScore)
	score.Confidence = decimal.NewFromFloat(confidence)
	score.Tier = tier.String
	score.ScoringVersion = version.String

	score.HardAssetsScore = decPtr(factors[0])
	score.PreciousMetalsScore = decPtr(factors[1])
	score.CommodityScore = decPtr(factors[2])
	score.ForeignRevenueScore = decPtr(factors[3])
	score.PricingPowerScore = decPtr(factors[4])
	score.DebtStructureScore = decPtr(factors[5])
	score.EssentialServicesScore = decPtr(factors[6])
	score.ScenarioGradual = decPtr(gradual)
	score.ScenarioRapid = decPtr(rapid)
	score.ScenarioHyper = decPtr(hyper)

	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		score.CreatedAt = ts
	}

	return score, nil
}

// decPtr converts a nullable REAL column back into an optional decimal.
func decPtr(v sql.NullFloat64) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	d := decimal.NewFromFloat(v.Float64)
	return &d
}
