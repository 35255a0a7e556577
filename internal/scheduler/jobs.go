package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hedge/internal/domain"
	"github.com/aristath/hedge/internal/modules/ingestion"
)

// Per-run deadlines for the wrapped service calls. The scoring batch gets
// an hour; refreshes are bounded by upstream rate limits, not compute.
const (
	scoringTimeout      = 60 * time.Minute
	macroTimeout        = 10 * time.Minute
	marketTimeout       = 10 * time.Minute
	fundamentalsTimeout = 30 * time.Minute
)

// BatchScorer runs a full scoring pass over the universe.
// *scoring.Runner satisfies it.
type BatchScorer interface {
	RunBatch(ctx context.Context) (*domain.ScoringRun, error)
}

// AlertEvaluator sweeps all enabled alert rules.
// *alerts.Evaluator satisfies it.
type AlertEvaluator interface {
	EvaluateAll() (int, error)
}

// MacroRefresher pulls a fresh macro snapshot.
// *macro.Service satisfies it.
type MacroRefresher interface {
	Refresh(ctx context.Context) (*domain.MacroSnapshot, error)
}

// MarketRefresher updates market quotes for the tracked universe.
// *ingestion.MarketService satisfies it.
type MarketRefresher interface {
	RefreshTop(ctx context.Context) (*ingestion.MarketStats, error)
}

// FundamentalsRefresher re-ingests filings for every company.
// *ingestion.FundamentalsService satisfies it.
type FundamentalsRefresher interface {
	RefreshAll(ctx context.Context) (*ingestion.FundamentalsStats, error)
}

// ScoringJob runs the daily batch scoring pass.
type ScoringJob struct {
	scorer BatchScorer
}

func NewScoringJob(scorer BatchScorer) *ScoringJob {
	return &ScoringJob{scorer: scorer}
}

func (j *ScoringJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), scoringTimeout)
	defer cancel()

	_, err := j.scorer.RunBatch(ctx)
	return err
}

func (j *ScoringJob) Name() string { return "scoring" }

// AlertsJob sweeps alert rules against current scores.
type AlertsJob struct {
	evaluator AlertEvaluator
	log       zerolog.Logger
}

func NewAlertsJob(evaluator AlertEvaluator, log zerolog.Logger) *AlertsJob {
	return &AlertsJob{
		evaluator: evaluator,
		log:       log.With().Str("job", "alerts").Logger(),
	}
}

func (j *AlertsJob) Run() error {
	triggered, err := j.evaluator.EvaluateAll()
	if err != nil {
		return err
	}
	if triggered > 0 {
		j.log.Info().Int("triggered", triggered).Msg("Alerts fired")
	}
	return nil
}

func (j *AlertsJob) Name() string { return "alerts" }

// MacroJob refreshes the macro indicator snapshot.
type MacroJob struct {
	service MacroRefresher
}

func NewMacroJob(service MacroRefresher) *MacroJob {
	return &MacroJob{service: service}
}

func (j *MacroJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), macroTimeout)
	defer cancel()

	_, err := j.service.Refresh(ctx)
	return err
}

func (j *MacroJob) Name() string { return "macro" }

// MarketDataJob refreshes quotes during the trading day.
type MarketDataJob struct {
	market MarketRefresher
}

func NewMarketDataJob(market MarketRefresher) *MarketDataJob {
	return &MarketDataJob{market: market}
}

func (j *MarketDataJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), marketTimeout)
	defer cancel()

	_, err := j.market.RefreshTop(ctx)
	return err
}

func (j *MarketDataJob) Name() string { return "market_data" }

// FundamentalsJob re-ingests filings for the whole universe. Fundamentals
// move on quarterly filings, so a weekly pass is plenty; the job is also
// triggerable on demand after universe changes.
type FundamentalsJob struct {
	fundamentals FundamentalsRefresher
}

func NewFundamentalsJob(fundamentals FundamentalsRefresher) *FundamentalsJob {
	return &FundamentalsJob{fundamentals: fundamentals}
}

func (j *FundamentalsJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), fundamentalsTimeout)
	defer cancel()

	_, err := j.fundamentals.RefreshAll(ctx)
	return err
}

func (j *FundamentalsJob) Name() string { return "fundamentals" }
