package scoring

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/hedge/internal/domain"
)

const dateFormat = "2006-01-02"

const (
	defaultHistoryLimit = 90
	maxHistoryLimit     = 365
	defaultRunsLimit    = 10
	maxRunsLimit        = 100
)

// scoreColumns is the survival_scores column list in scan order.
const scoreColumns = `id, company_id, score_date, total_score, confidence, tier,
hard_assets_score, precious_metals_score, commodity_score, foreign_revenue_score,
pricing_power_score, debt_structure_score, essential_services_score,
scenario_gradual, scenario_rapid, scenario_hyper, scoring_version, created_at`

// runColumns is the scoring_runs column list in scan order.
const runColumns = `id, run_date, companies_scored, companies_failed, avg_score,
median_score, duration_seconds, scoring_version, status, error_message,
started_at, completed_at`

// Repository persists survival scores and batch run records in scores.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a score repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "scoring").Logger(),
	}
}

// UpsertScore inserts a score row or, when one already exists for the same
// company and date, overwrites it in place. The original row id survives a
// same-day re-run.
func (r *Repository) UpsertScore(score *domain.SurvivalScore) error {
	if score.CompanyID == "" {
		return fmt.Errorf("company id is required for score upsert")
	}
	if score.ID == "" {
		score.ID = uuid.NewString()
	}
	if score.CreatedAt.IsZero() {
		score.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO survival_scores
		(id, company_id, score_date, total_score, confidence, tier,
		 hard_assets_score, precious_metals_score, commodity_score, foreign_revenue_score,
		 pricing_power_score, debt_structure_score, essential_services_score,
		 scenario_gradual, scenario_rapid, scenario_hyper, scoring_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (company_id, score_date) DO UPDATE SET
			total_score = excluded.total_score,
			confidence = excluded.confidence,
			tier = excluded.tier,
			hard_assets_score = excluded.hard_assets_score,
			precious_metals_score = excluded.precious_metals_score,
			commodity_score = excluded.commodity_score,
			foreign_revenue_score = excluded.foreign_revenue_score,
			pricing_power_score = excluded.pricing_power_score,
			debt_structure_score = excluded.debt_structure_score,
			essential_services_score = excluded.essential_services_score,
			scenario_gradual = excluded.scenario_gradual,
			scenario_rapid = excluded.scenario_rapid,
			scenario_hyper = excluded.scenario_hyper,
			scoring_version = excluded.scoring_version,
			created_at = excluded.created_at
	`

	_, err := r.db.Exec(query,
		score.ID,
		score.CompanyID,
		score.ScoreDate.Format(dateFormat),
		score.TotalScore.InexactFloat64(),
		score.Confidence.InexactFloat64(),
		score.Tier,
		decArg(score.HardAssetsScore),
		decArg(score.PreciousMetalsScore),
		decArg(score.CommodityScore),
		decArg(score.ForeignRevenueScore),
		decArg(score.PricingPowerScore),
		decArg(score.DebtStructureScore),
		decArg(score.EssentialServicesScore),
		decArg(score.ScenarioGradual),
		decArg(score.ScenarioRapid),
		decArg(score.ScenarioHyper),
		score.ScoringVersion,
		score.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert score: %w", err)
	}

	r.log.Debug().
		Str("company_id", score.CompanyID).
		Str("score_date", score.ScoreDate.Format(dateFormat)).
		Str("tier", score.Tier).
		Msg("Score upserted")
	return nil
}

// GetLatest returns the most recent score for a company, or nil when the
// company has never been scored.
func (r *Repository) GetLatest(companyID string) (*domain.SurvivalScore, error) {
	scores, err := r.GetLatestN(companyID, 1)
	if err != nil {
		return nil, err
	}
	if len(scores) == 0 {
		return nil, nil
	}
	return &scores[0], nil
}

// GetLatestN returns up to n most recent scores for a company, newest first.
// The alert evaluator uses n=2 to compare consecutive runs.
func (r *Repository) GetLatestN(companyID string, n int) ([]domain.SurvivalScore, error) {
	query := "SELECT " + scoreColumns + ` FROM survival_scores
		WHERE company_id = ?
		ORDER BY score_date DESC
		LIMIT ?`

	rows, err := r.db.Query(query, companyID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest scores: %w", err)
	}
	defer rows.Close()

	return collectScores(rows)
}

// History returns a company's score series newest first, optionally bounded
// by inclusive start/end dates (YYYY-MM-DD). Limit is clamped to 365 and
// defaults to 90.
func (r *Repository) History(companyID, startDate, endDate string, limit int) ([]domain.SurvivalScore, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	query := "SELECT " + scoreColumns + " FROM survival_scores WHERE company_id = ?"
	args := []interface{}{companyID}
	if startDate != "" {
		query += " AND score_date >= ?"
		args = append(args, startDate)
	}
	if endDate != "" {
		query += " AND score_date <= ?"
		args = append(args, endDate)
	}
	query += " ORDER BY score_date DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query score history: %w", err)
	}
	defer rows.Close()

	return collectScores(rows)
}

// LatestScores returns the most recent score per company, keyed by company id.
// The screener and the company list join against this map.
func (r *Repository) LatestScores() (map[string]*domain.SurvivalScore, error) {
	query := "SELECT " + scoreColumns + ` FROM survival_scores s
		WHERE score_date = (
			SELECT MAX(score_date) FROM survival_scores WHERE company_id = s.company_id
		)`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest scores: %w", err)
	}
	defer rows.Close()

	return collectScoreMap(rows)
}

// CreateRun inserts a new scoring run row. The runner commits this before
// writing any score rows so a crash still leaves an audit trail.
func (r *Repository) CreateRun(run *domain.ScoringRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	query := `
		INSERT INTO scoring_runs
		(id, run_date, companies_scored, companies_failed, avg_score, median_score,
		 duration_seconds, scoring_version, status, error_message, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		run.ID,
		run.RunDate.Format(dateFormat),
		run.CompaniesScored,
		run.CompaniesFailed,
		decArg(run.AvgScore),
		decArg(run.MedianScore),
		floatArg(run.DurationSeconds),
		run.ScoringVersion,
		run.Status,
		nullString(run.ErrorMessage),
		run.StartedAt.Format(time.RFC3339),
		timeArg(run.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create scoring run: %w", err)
	}

	return nil
}

// UpdateRun writes a run's mutable fields: counts, aggregates, duration,
// status, error message, and completion time.
func (r *Repository) UpdateRun(run *domain.ScoringRun) error {
	query := `
		UPDATE scoring_runs SET
			companies_scored = ?,
			companies_failed = ?,
			avg_score = ?,
			median_score = ?,
			duration_seconds = ?,
			status = ?,
			error_message = ?,
			completed_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query,
		run.CompaniesScored,
		run.CompaniesFailed,
		decArg(run.AvgScore),
		decArg(run.MedianScore),
		floatArg(run.DurationSeconds),
		run.Status,
		nullString(run.ErrorMessage),
		timeArg(run.CompletedAt),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update scoring run: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("scoring run %s not found", run.ID)
	}

	return nil
}

// GetRun returns one run by id, or nil when it does not exist.
func (r *Repository) GetRun(id string) (*domain.ScoringRun, error) {
	query := "SELECT " + runColumns + " FROM scoring_runs WHERE id = ?"

	rows, err := r.db.Query(query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query scoring run: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	run, err := scanRun(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan scoring run: %w", err)
	}

	return &run, nil
}

// RecentRuns returns runs newest first. Limit is clamped to 100 and defaults
// to 10.
func (r *Repository) RecentRuns(limit int) ([]domain.ScoringRun, error) {
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	if limit > maxRunsLimit {
		limit = maxRunsLimit
	}

	query := "SELECT " + runColumns + " FROM scoring_runs ORDER BY started_at DESC LIMIT ?"

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.ScoringRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scoring run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scoring runs: %w", err)
	}

	return runs, nil
}

func collectScores(rows *sql.Rows) ([]domain.SurvivalScore, error) {
	var scores []domain.SurvivalScore
	for rows.Next() {
		score, err := scanScore(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		scores = append(scores, score)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scores: %w", err)
	}

	return scores, nil
}

func collectScoreMap(rows *sql.Rows) (map[string]*domain.SurvivalScore, error) {
	scores := make(map[string]*domain.SurvivalScore)
	for rows.Next() {
		score, err := scanScore(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		s := score
		scores[s.CompanyID] = &s
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scores: %w", err)
	}

	return scores, nil
}

func scanScore(rows *sql.Rows) (domain.SurvivalScore, error) {
	var score domain.SurvivalScore
	var scoreDate, createdAt string
	var totalScore, confidence float64
	var tier, version sql.NullString
	var hardAssets, preciousMetals, commodities, foreignRevenue sql.NullFloat64
	var pricingPower, debtStructure, essentialServices sql.NullFloat64
	var gradual, rapid, hyper sql.NullFloat64

	err := rows.Scan(
		&score.ID,
		&score.CompanyID,
		&scoreDate,
		&totalScore,
		&confidence,
		&tier,
		&hardAssets,
		&preciousMetals,
		&commodities,
		&foreignRevenue,
		&pricingPower,
		&debtStructure,
		&essentialServices,
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

	score.HardAssetsScore = decPtr(hardAssets)
	score.PreciousMetalsScore = decPtr(preciousMetals)
	score.CommodityScore = decPtr(commodities)
	score.ForeignRevenueScore = decPtr(foreignRevenue)
	score.PricingPowerScore = decPtr(pricingPower)
	score.DebtStructureScore = decPtr(debtStructure)
	score.EssentialServicesScore = decPtr(essentialServices)
	score.ScenarioGradual = decPtr(gradual)
	score.ScenarioRapid = decPtr(rapid)
	score.ScenarioHyper = decPtr(hyper)

	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		score.CreatedAt = ts
	}

	return score, nil
}

func scanRun(rows *sql.Rows) (domain.ScoringRun, error) {
	var run domain.ScoringRun
	var runDate, startedAt string
	var avg, median, duration sql.NullFloat64
	var version, errorMessage, completedAt sql.NullString

	err := rows.Scan(
		&run.ID,
		&runDate,
		&run.CompaniesScored,
		&run.CompaniesFailed,
		&avg,
		&median,
		&duration,
		&version,
		&run.Status,
		&errorMessage,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return run, err
	}

	date, err := time.Parse(dateFormat, runDate)
	if err != nil {
		return run, fmt.Errorf("invalid run_date %q: %w", runDate, err)
	}
	run.RunDate = date

	run.AvgScore = decPtr(avg)
	run.MedianScore = decPtr(median)
	if duration.Valid {
		d := duration.Float64
		run.DurationSeconds = &d
	}
	run.ScoringVersion = version.String
	run.ErrorMessage = errorMessage.String

	if ts, err := time.Parse(time.RFC3339, startedAt); err == nil {
		run.StartedAt = ts
	}
	if completedAt.Valid {
		if ts, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
			run.CompletedAt = &ts
		}
	}

	return run, nil
}

// decArg converts an optional decimal into a nullable REAL bind argument.
func decArg(d *decimal.Decimal) sql.NullFloat64 {
	if d == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: d.InexactFloat64(), Valid: true}
}

// decPtr converts a nullable REAL column back into an optional decimal.
func decPtr(v sql.NullFloat64) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	d := decimal.NewFromFloat(v.Float64)
	return &d
}

func floatArg(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func timeArg(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}
