package scoring

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hedge/internal/domain"
)

const scoresTestSchema = `
CREATE TABLE survival_scores (
    id TEXT PRIMARY KEY,
    company_id TEXT NOT NULL,
    score_date TEXT NOT NULL,
    total_score REAL NOT NULL,
    confidence REAL NOT NULL DEFAULT 0.5,
    tier TEXT,
    hard_assets_score REAL,
    precious_metals_score REAL,
    commodity_score REAL,
    foreign_revenue_score REAL,
    pricing_power_score REAL,
    debt_structure_score REAL,
    essential_services_score REAL,
    scenario_gradual REAL,
    scenario_rapid REAL,
    scenario_hyper REAL,
    scoring_version TEXT,
    created_at TEXT NOT NULL,
    UNIQUE (company_id, score_date)
);

CREATE TABLE scoring_runs (
    id TEXT PRIMARY KEY,
    run_date TEXT NOT NULL,
    companies_scored INTEGER NOT NULL DEFAULT 0,
    companies_failed INTEGER NOT NULL DEFAULT 0,
    avg_score REAL,
    median_score REAL,
    duration_seconds REAL,
    scoring_version TEXT,
    status TEXT NOT NULL DEFAULT 'running',
    error_message TEXT,
    started_at TEXT NOT NULL,
    completed_at TEXT
);
`

func setupScoresDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// In-memory SQLite is per-connection; a second pooled connection would
	// see an empty database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(scoresTestSchema)
	require.NoError(t, err)

	return db
}

func setupScoreRepo(t *testing.T) (*Repository, *sql.DB) {
	t.Helper()
	db := setupScoresDB(t)
	return NewRepository(db, zerolog.Nop()), db
}

func testScore(companyID, date string, total float64) *domain.SurvivalScore {
	day, _ := time.Parse(dateFormat, date)
	totalDec := decimal.NewFromFloat(total)
	hard := decimal.NewFromFloat(82.5)
	gradual := decimal.NewFromFloat(total + 1)

	return &domain.SurvivalScore{
		CompanyID:       companyID,
		ScoreDate:       day,
		TotalScore:      totalDec,
		Confidence:      decimal.NewFromFloat(0.79),
		Tier:            TierFor(totalDec),
		HardAssetsScore: &hard,
		ScenarioGradual: &gradual,
		ScoringVersion:  Version,
	}
}

func TestUpsertScore_RoundTrip(t *testing.T) {
	repo, _ := setupScoreRepo(t)

	err := repo.UpsertScore(testScore("c-nem", "2026-08-24", 78.25))
	require.NoError(t, err)

	got, err := repo.GetLatest("c-nem")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "c-nem", got.CompanyID)
	assert.Equal(t, "2026-08-24", got.ScoreDate.Format(dateFormat))
	assert.True(t, got.TotalScore.Equal(decimal.NewFromFloat(78.25)))
	assert.True(t, got.Confidence.Equal(decimal.NewFromFloat(0.79)))
	assert.Equal(t, TierResilient, got.Tier)
	assert.Equal(t, Version, got.ScoringVersion)
	require.NotNil(t, got.HardAssetsScore)
	assert.True(t, got.HardAssetsScore.Equal(decimal.NewFromFloat(82.5)))
	require.NotNil(t, got.ScenarioGradual)
	assert.Nil(t, got.ScenarioRapid)
	assert.Nil(t, got.PreciousMetalsScore)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestUpsertScore_SameDayOverwritesInPlace(t *testing.T) {
	repo, db := setupScoreRepo(t)

	first := testScore("c-nem", "2026-08-24", 70)
	require.NoError(t, repo.UpsertScore(first))

	second := testScore("c-nem", "2026-08-24", 85)
	require.NoError(t, repo.UpsertScore(second))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM survival_scores").Scan(&count))
	assert.Equal(t, 1, count)

	got, err := repo.GetLatest("c-nem")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID, "row id survives a same-day re-run")
	assert.True(t, got.TotalScore.Equal(decimal.NewFromInt(85)))
}

func TestUpsertScore_RequiresCompanyID(t *testing.T) {
	repo, _ := setupScoreRepo(t)

	err := repo.UpsertScore(&domain.SurvivalScore{ScoreDate: time.Now()})
	assert.Error(t, err)
}

func TestGetLatest_NotFound(t *testing.T) {
	repo, _ := setupScoreRepo(t)

	got, err := repo.GetLatest("missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetLatestN_NewestFirst(t *testing.T) {
	repo, _ := setupScoreRepo(t)

	require.NoError(t, repo.UpsertScore(testScore("c-nem", "2026-08-20", 70)))
	require.NoError(t, repo.UpsertScore(testScore("c-nem", "2026-08-22", 72)))
	require.NoError(t, repo.UpsertScore(testScore("c-nem", "2026-08-24", 74)))

	scores, err := repo.GetLatestN("c-nem", 2)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, "2026-08-24", scores[0].ScoreDate.Format(dateFormat))
	assert.Equal(t, "2026-08-22", scores[1].ScoreDate.Format(dateFormat))
}

func TestHistory_RangeAndLimit(t *testing.T) {
	repo, _ := setupScoreRepo(t)

	dates := []string{"2026-08-01", "2026-08-10", "2026-08-20", "2026-08-24"}
	for i, d := range dates {
		require.NoError(t, repo.UpsertScore(testScore("c-nem", d, 60+float64(i))))
	}

	scores, err := repo.History("c-nem", "2026-08-05", "2026-08-21", 0)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, "2026-08-20", scores[0].ScoreDate.Format(dateFormat))
	assert.Equal(t, "2026-08-10", scores[1].ScoreDate.Format(dateFormat))

	scores, err = repo.History("c-nem", "", "", 3)
	require.NoError(t, err)
	assert.Len(t, scores, 3)
}

func TestLatestScores_OneRowPerCompany(t *testing.T) {
	repo, _ := setupScoreRepo(t)

	require.NoError(t, repo.UpsertScore(testScore("c-nem", "2026-08-20", 70)))
	require.NoError(t, repo.UpsertScore(testScore("c-nem", "2026-08-24", 74)))
	require.NoError(t, repo.UpsertScore(testScore("c-aapl", "2026-08-24", 41)))

	latest, err := repo.LatestScores()
	require.NoError(t, err)
	require.Len(t, latest, 2)

	require.NotNil(t, latest["c-nem"])
	assert.Equal(t, "2026-08-24", latest["c-nem"].ScoreDate.Format(dateFormat))
	assert.True(t, latest["c-nem"].TotalScore.Equal(decimal.NewFromInt(74)))
	require.NotNil(t, latest["c-aapl"])
}

func TestRunLifecycle(t *testing.T) {
	repo, _ := setupScoreRepo(t)

	started := time.Now().UTC()
	run := &domain.ScoringRun{
		RunDate:        started,
		ScoringVersion: Version,
		Status:         domain.RunStatusRunning,
		StartedAt:      started,
	}
	require.NoError(t, repo.CreateRun(run))
	require.NotEmpty(t, run.ID)

	got, err := repo.GetRun(run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.RunStatusRunning, got.Status)
	assert.Nil(t, got.AvgScore)
	assert.Nil(t, got.CompletedAt)

	avg := decimal.NewFromFloat(63.41)
	median := decimal.NewFromFloat(64.2)
	duration := 12.5
	completed := time.Now().UTC()
	run.CompaniesScored = 120
	run.CompaniesFailed = 3
	run.AvgScore = &avg
	run.MedianScore = &median
	run.DurationSeconds = &duration
	run.Status = domain.RunStatusCompleted
	run.CompletedAt = &completed
	require.NoError(t, repo.UpdateRun(run))

	got, err = repo.GetRun(run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.RunStatusCompleted, got.Status)
	assert.Equal(t, 120, got.CompaniesScored)
	assert.Equal(t, 3, got.CompaniesFailed)
	require.NotNil(t, got.AvgScore)
	assert.True(t, got.AvgScore.Equal(avg))
	require.NotNil(t, got.DurationSeconds)
	assert.InDelta(t, 12.5, *got.DurationSeconds, 0.001)
	require.NotNil(t, got.CompletedAt)
}

func TestUpdateRun_NotFound(t *testing.T) {
	repo, _ := setupScoreRepo(t)

	err := repo.UpdateRun(&domain.ScoringRun{ID: "missing", Status: domain.RunStatusFailed})
	assert.Error(t, err)
}

func TestGetRun_NotFound(t *testing.T) {
	repo, _ := setupScoreRepo(t)

	got, err := repo.GetRun("missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRecentRuns_NewestFirst(t *testing.T) {
	repo, _ := setupScoreRepo(t)

	base := time.Date(2026, 8, 24, 6, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := &domain.ScoringRun{
			RunDate:        base.AddDate(0, 0, i),
			ScoringVersion: Version,
			Status:         domain.RunStatusCompleted,
			StartedAt:      base.AddDate(0, 0, i),
		}
		require.NoError(t, repo.CreateRun(run))
	}

	runs, err := repo.RecentRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "2026-08-26", runs[0].RunDate.Format(dateFormat))
	assert.Equal(t, "2026-08-25", runs[1].RunDate.Format(dateFormat))
}
