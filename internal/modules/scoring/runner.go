package scoring

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/hedge/internal/domain"
	"github.com/aristath/hedge/internal/events"
)

const (
	defaultWorkers = 16
	maxRunDuration = 60 * time.Minute
)

// CompanySource supplies the active scoring universe and its fundamentals.
// The companies repository implements it.
type CompanySource interface {
	ListActive() ([]domain.Company, error)
	LatestFundamental(companyID string) (*domain.Fundamental, error)
}

// Runner executes batch scoring runs: it enumerates the active universe,
// scores every company on a bounded worker pool, and records the run outcome.
// Workers only write score rows; the runner owns the run row.
type Runner struct {
	repo      *Repository
	companies CompanySource
	engine    *Engine
	bus       *events.Bus
	workers   int
	log       zerolog.Logger
}

// NewRunner creates a batch runner. workers <= 0 selects the default pool
// size of 16.
func NewRunner(repo *Repository, companies CompanySource, engine *Engine, bus *events.Bus, workers int, log zerolog.Logger) *Runner {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Runner{
		repo:      repo,
		companies: companies,
		engine:    engine,
		bus:       bus,
		workers:   workers,
		log:       log.With().Str("component", "scoring_runner").Logger(),
	}
}

// RunBatch scores every active company once and returns the completed run
// record. Per-company failures are counted, logged, and never abort the run;
// exceeding the wall-clock limit marks the run failed. The returned run is
// non-nil whenever the run row was created, even on failure.
func (r *Runner) RunBatch(ctx context.Context) (*domain.ScoringRun, error) {
	started := time.Now().UTC()
	run := &domain.ScoringRun{
		ID:             uuid.NewString(),
		RunDate:        started,
		ScoringVersion: Version,
		Status:         domain.RunStatusRunning,
		StartedAt:      started,
	}
	if err := r.repo.CreateRun(run); err != nil {
		return nil, fmt.Errorf("failed to create scoring run: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, maxRunDuration)
	defer cancel()

	companies, err := r.companies.ListActive()
	if err != nil {
		return run, r.failRun(run, started, fmt.Errorf("failed to list active companies: %w", err))
	}

	r.log.Info().
		Str("run_id", run.ID).
		Int("companies", len(companies)).
		Int("workers", r.workers).
		Msg("Scoring run started")

	var (
		mu     sync.Mutex
		totals []float64
		failed int
	)

	jobs := make(chan domain.Company)
	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for company := range jobs {
				score, err := r.ScoreCompany(company, run.RunDate)
				if err != nil {
					r.log.Warn().Err(err).Str("ticker", company.Ticker).Msg("Company scoring failed")
				}

				mu.Lock()
				if err != nil {
					failed++
				} else {
					totals = append(totals, score.TotalScore.InexactFloat64())
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, company := range companies {
		select {
		case jobs <- company:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	run.CompaniesScored = len(totals)
	run.CompaniesFailed = failed

	if err := ctx.Err(); err != nil {
		return run, r.failRun(run, started, fmt.Errorf("scoring run aborted: %w", err))
	}

	now := time.Now().UTC()
	duration := now.Sub(started).Seconds()
	run.Status = domain.RunStatusCompleted
	run.DurationSeconds = &duration
	run.CompletedAt = &now
	if len(totals) > 0 {
		avg := round2(decimal.NewFromFloat(stat.Mean(totals, nil)))
		median := round2(decimal.NewFromFloat(lowerMedian(totals)))
		run.AvgScore = &avg
		run.MedianScore = &median
	}

	if err := r.repo.UpdateRun(run); err != nil {
		return run, fmt.Errorf("failed to complete scoring run: %w", err)
	}

	r.publishRunCompleted(run)

	r.log.Info().
		Str("run_id", run.ID).
		Int("scored", run.CompaniesScored).
		Int("failed", run.CompaniesFailed).
		Float64("duration_seconds", duration).
		Msg("Scoring run completed")

	return run, nil
}

// ScoreCompany scores one company for the given date, persists the row, and
// publishes a score.updated event. Used by batch workers and the manual
// trigger path.
func (r *Runner) ScoreCompany(company domain.Company, scoreDate time.Time) (*domain.SurvivalScore, error) {
	fundamental, err := r.companies.LatestFundamental(company.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load fundamentals for %s: %w", company.Ticker, err)
	}

	result := r.engine.Score(buildCompanyData(company, fundamental))

	score := newScoreRow(company.ID, scoreDate, result)
	if err := r.repo.UpsertScore(score); err != nil {
		return nil, fmt.Errorf("failed to store score for %s: %w", company.Ticker, err)
	}

	r.bus.Publish(events.ScoreUpdated, "scoring", &events.ScoreUpdatedData{
		Ticker:     company.Ticker,
		TotalScore: score.TotalScore.InexactFloat64(),
		Tier:       score.Tier,
		ScoreDate:  scoreDate.Format(dateFormat),
	})

	return score, nil
}

// ScoreNow scores a single company on demand, dated today.
func (r *Runner) ScoreNow(company domain.Company) (*domain.SurvivalScore, error) {
	return r.ScoreCompany(company, time.Now().UTC())
}

func (r *Runner) failRun(run *domain.ScoringRun, started time.Time, cause error) error {
	now := time.Now().UTC()
	duration := now.Sub(started).Seconds()
	run.Status = domain.RunStatusFailed
	run.ErrorMessage = cause.Error()
	run.DurationSeconds = &duration
	run.CompletedAt = &now

	if err := r.repo.UpdateRun(run); err != nil {
		r.log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to mark scoring run failed")
	}
	r.publishRunCompleted(run)

	r.log.Error().
		Err(cause).
		Str("run_id", run.ID).
		Int("scored", run.CompaniesScored).
		Int("failed", run.CompaniesFailed).
		Msg("Scoring run failed")

	return cause
}

func (r *Runner) publishRunCompleted(run *domain.ScoringRun) {
	data := &events.ScoringCompletedData{
		RunID:           run.ID,
		CompaniesScored: run.CompaniesScored,
		CompaniesFailed: run.CompaniesFailed,
		Status:          run.Status,
	}
	if run.AvgScore != nil {
		data.AvgScore = run.AvgScore.InexactFloat64()
	}
	if run.DurationSeconds != nil {
		data.DurationSeconds = *run.DurationSeconds
	}
	r.bus.Publish(events.ScoringCompleted, "scoring", data)
}

// buildCompanyData projects a company and its latest fundamental onto the
// scoring input. A nil fundamental leaves every financial input unknown, so
// the engine falls back to sector and industry signals alone.
func buildCompanyData(company domain.Company, f *domain.Fundamental) CompanyData {
	data := CompanyData{
		Ticker:   company.Ticker,
		Sector:   company.Sector,
		Industry: company.Industry,
	}
	if f == nil {
		return data
	}

	data.TotalAssets = f.TotalAssets
	data.TangibleAssets = f.TangibleAssets
	data.IntangibleAssets = f.IntangibleAssets
	data.TotalRevenue = f.TotalRevenue
	data.ForeignRevenue = f.ForeignRevenue
	data.ForeignRevenuePct = f.ForeignRevenuePct
	data.CommodityRevenue = f.CommodityRevenue
	data.CommodityRevenuePct = f.CommodityRevenuePct
	data.PreciousMetalsRevenue = f.PreciousMetalsRevenue
	data.PreciousMetalsRevenuePct = f.PreciousMetalsRevenuePct
	data.TotalDebt = f.TotalDebt
	data.FixedRateDebtPct = f.FixedRateDebtPct
	data.AvgDebtMaturityYears = f.AvgDebtMaturityYears
	data.GrossMargin = f.GrossMargin
	data.GrossMargin5yrStd = f.GrossMargin5yrStd
	data.ProvenReservesOz = f.ProvenReservesOz

	return data
}

// newScoreRow converts an engine result into a persistable score row.
func newScoreRow(companyID string, scoreDate time.Time, result ScoreResult) *domain.SurvivalScore {
	score := &domain.SurvivalScore{
		ID:             uuid.NewString(),
		CompanyID:      companyID,
		ScoreDate:      scoreDate,
		TotalScore:     result.TotalScore,
		Confidence:     result.Confidence,
		Tier:           result.Tier,
		ScoringVersion: Version,
		CreatedAt:      time.Now().UTC(),
	}

	factor := func(name string) *decimal.Decimal {
		if v, ok := result.Factors[name]; ok {
			return &v
		}
		return nil
	}
	score.HardAssetsScore = factor(domain.FactorHardAssets)
	score.PreciousMetalsScore = factor(domain.FactorPreciousMetals)
	score.CommodityScore = factor(domain.FactorCommodities)
	score.ForeignRevenueScore = factor(domain.FactorForeignRevenue)
	score.PricingPowerScore = factor(domain.FactorPricingPower)
	score.DebtStructureScore = factor(domain.FactorDebtStructure)
	score.EssentialServicesScore = factor(domain.FactorEssentialServices)

	scenario := func(s domain.Scenario) *decimal.Decimal {
		if v, ok := result.ScenarioScores[s]; ok {
			return &v
		}
		return nil
	}
	score.ScenarioGradual = scenario(domain.ScenarioGradual)
	score.ScenarioRapid = scenario(domain.ScenarioRapid)
	score.ScenarioHyper = scenario(domain.ScenarioHyper)

	return score
}

// lowerMedian returns the median, taking the lower-middle element on
// even-length inputs.
func lowerMedian(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return sorted[(len(sorted)-1)/2]
}
