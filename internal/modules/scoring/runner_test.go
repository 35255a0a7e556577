package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hedge/internal/domain"
	"github.com/aristath/hedge/internal/events"
)

type fakeCompanySource struct {
	companies    []domain.Company
	fundamentals map[string]*domain.Fundamental
	fundErr      map[string]error
	listErr      error
}

func (f *fakeCompanySource) ListActive() ([]domain.Company, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.companies, nil
}

func (f *fakeCompanySource) LatestFundamental(companyID string) (*domain.Fundamental, error) {
	if err := f.fundErr[companyID]; err != nil {
		return nil, err
	}
	return f.fundamentals[companyID], nil
}

func minerFundamental() *domain.Fundamental {
	return &domain.Fundamental{
		FiscalYear:           2025,
		TotalAssets:          i64(35_000_000_000),
		TangibleAssets:       i64(30_000_000_000),
		ForeignRevenuePct:    dec("45"),
		GrossMargin:          dec("35"),
		GrossMargin5yrStd:    dec("5"),
		TotalDebt:            i64(8_000_000_000),
		FixedRateDebtPct:     dec("75"),
		AvgDebtMaturityYears: dec("8"),
		ProvenReservesOz:     i64(100_000_000),
	}
}

func testUniverse() *fakeCompanySource {
	return &fakeCompanySource{
		companies: []domain.Company{
			{ID: "c-auco", Ticker: "AUCO", Sector: "Materials", Industry: "Gold Mining", IsActive: true},
			{ID: "c-bigb", Ticker: "BIGB", Sector: "Financials", Industry: "Banks", IsActive: true},
			{ID: "c-volt", Ticker: "VOLT", Sector: "Utilities", Industry: "Electric Utilities", IsActive: true},
		},
		fundamentals: map[string]*domain.Fundamental{
			"c-auco": minerFundamental(),
		},
		fundErr: map[string]error{},
	}
}

func newTestRunner(t *testing.T, source CompanySource) (*Runner, *Repository) {
	t.Helper()
	repo, _ := setupScoreRepo(t)
	bus := events.NewBus(zerolog.Nop())
	return NewRunner(repo, source, NewEngine(), bus, 4, zerolog.Nop()), repo
}

func TestRunBatch_ScoresAllActiveCompanies(t *testing.T) {
	runner, repo := newTestRunner(t, testUniverse())

	run, err := runner.RunBatch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, 3, run.CompaniesScored)
	assert.Equal(t, 0, run.CompaniesFailed)
	assert.Equal(t, Version, run.ScoringVersion)
	require.NotNil(t, run.AvgScore)
	require.NotNil(t, run.MedianScore)
	require.NotNil(t, run.DurationSeconds)
	require.NotNil(t, run.CompletedAt)

	for _, companyID := range []string{"c-auco", "c-bigb", "c-volt"} {
		score, err := repo.GetLatest(companyID)
		require.NoError(t, err)
		require.NotNil(t, score, "missing score for %s", companyID)
		assert.True(t, score.TotalScore.IsPositive())
		assert.True(t, ValidTier(score.Tier))
	}

	// The miner's fundamentals carry it well above the bank.
	miner, _ := repo.GetLatest("c-auco")
	bank, _ := repo.GetLatest("c-bigb")
	assert.True(t, miner.TotalScore.GreaterThan(bank.TotalScore))

	persisted, err := repo.GetRun(run.ID)
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, domain.RunStatusCompleted, persisted.Status)
}

func TestRunBatch_PartialFailureIsolated(t *testing.T) {
	source := testUniverse()
	source.fundErr["c-bigb"] = errors.New("edgar unavailable")
	runner, repo := newTestRunner(t, source)

	run, err := runner.RunBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.CompaniesScored)
	assert.Equal(t, 1, run.CompaniesFailed)

	score, err := repo.GetLatest("c-bigb")
	require.NoError(t, err)
	assert.Nil(t, score)
}

func TestRunBatch_ListFailureFailsRun(t *testing.T) {
	runner, repo := newTestRunner(t, &fakeCompanySource{listErr: errors.New("universe db locked")})

	run, err := runner.RunBatch(context.Background())
	require.Error(t, err)
	require.NotNil(t, run)

	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "failed to list active companies")
	require.NotNil(t, run.DurationSeconds)
	require.NotNil(t, run.CompletedAt)

	persisted, err := repo.GetRun(run.ID)
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, domain.RunStatusFailed, persisted.Status)
}

func TestRunBatch_SameDayRerunOverwrites(t *testing.T) {
	runner, repo := newTestRunner(t, testUniverse())

	first, err := runner.RunBatch(context.Background())
	require.NoError(t, err)
	second, err := runner.RunBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.CompaniesScored, second.CompaniesScored)
	assert.Equal(t, first.CompaniesFailed, second.CompaniesFailed)

	// Re-running the same day leaves one row per company.
	scores, err := repo.GetLatestN("c-auco", 10)
	require.NoError(t, err)
	assert.Len(t, scores, 1)
}

func TestRunBatch_EmptyUniverse(t *testing.T) {
	runner, _ := newTestRunner(t, &fakeCompanySource{})

	run, err := runner.RunBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, 0, run.CompaniesScored)
	assert.Nil(t, run.AvgScore)
	assert.Nil(t, run.MedianScore)
}

func TestRunBatch_CanceledContextFailsRun(t *testing.T) {
	runner, repo := newTestRunner(t, &fakeCompanySource{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := runner.RunBatch(ctx)
	require.Error(t, err)
	require.NotNil(t, run)

	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "scoring run aborted")

	persisted, err := repo.GetRun(run.ID)
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, domain.RunStatusFailed, persisted.Status)
}

func TestRunBatch_PublishesEvents(t *testing.T) {
	repo, _ := setupScoreRepo(t)
	bus := events.NewBus(zerolog.Nop())

	scoreEvents := make(chan *events.Event, 8)
	runEvents := make(chan *events.Event, 2)
	bus.Subscribe(events.ScoreUpdated, func(e *events.Event) { scoreEvents <- e })
	bus.Subscribe(events.ScoringCompleted, func(e *events.Event) { runEvents <- e })

	runner := NewRunner(repo, testUniverse(), NewEngine(), bus, 2, zerolog.Nop())
	run, err := runner.RunBatch(context.Background())
	require.NoError(t, err)

	select {
	case e := <-runEvents:
		data, ok := e.Data.(*events.ScoringCompletedData)
		require.True(t, ok)
		assert.Equal(t, run.ID, data.RunID)
		assert.Equal(t, 3, data.CompaniesScored)
		assert.Equal(t, domain.RunStatusCompleted, data.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("no scoring.completed event published")
	}

	for i := 0; i < 3; i++ {
		select {
		case e := <-scoreEvents:
			data, ok := e.Data.(*events.ScoreUpdatedData)
			require.True(t, ok)
			assert.NotEmpty(t, data.Ticker)
			assert.NotEmpty(t, data.Tier)
		case <-time.After(2 * time.Second):
			t.Fatalf("expected 3 score.updated events, received %d", i)
		}
	}
}

func TestScoreNow_SingleCompany(t *testing.T) {
	runner, repo := newTestRunner(t, testUniverse())

	company := domain.Company{ID: "c-auco", Ticker: "AUCO", Sector: "Materials", Industry: "Gold Mining"}
	score, err := runner.ScoreNow(company)
	require.NoError(t, err)
	require.NotNil(t, score)

	assert.Equal(t, time.Now().UTC().Format(dateFormat), score.ScoreDate.Format(dateFormat))

	persisted, err := repo.GetLatest("c-auco")
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.True(t, persisted.TotalScore.Equal(score.TotalScore))
}

func TestBuildCompanyData_NilFundamental(t *testing.T) {
	company := domain.Company{Ticker: "AUCO", Sector: "Materials", Industry: "Gold Mining"}

	data := buildCompanyData(company, nil)
	assert.Equal(t, "AUCO", data.Ticker)
	assert.Equal(t, "Gold Mining", data.Industry)
	assert.Nil(t, data.TotalAssets)
	assert.Nil(t, data.GrossMargin)
}

func TestLowerMedian(t *testing.T) {
	assert.Equal(t, 5.0, lowerMedian([]float64{5}))
	assert.Equal(t, 2.0, lowerMedian([]float64{3, 1, 2}))
	assert.Equal(t, 2.0, lowerMedian([]float64{4, 1, 3, 2}), "even count takes the lower middle")
}
