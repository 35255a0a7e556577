package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/hedge/internal/clients/fred"
	"github.com/aristath/hedge/internal/clients/marketdata"
	"github.com/aristath/hedge/internal/clients/metalsdev"
	"github.com/aristath/hedge/internal/clients/secedgar"
	"github.com/aristath/hedge/internal/config"
	"github.com/aristath/hedge/internal/events"
	"github.com/aristath/hedge/internal/modules/alerts"
	"github.com/aristath/hedge/internal/modules/ingestion"
	"github.com/aristath/hedge/internal/modules/macro"
	"github.com/aristath/hedge/internal/modules/portfolio"
	"github.com/aristath/hedge/internal/modules/scoring"
	"github.com/aristath/hedge/internal/modules/screener"
)

// InitializeServices creates the event bus, the vendor clients, and all
// domain services, and stores them in the container.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	// ==========================================
	// STEP 1: Event bus
	// ==========================================

	container.Bus = events.NewBus(log)

	// ==========================================
	// STEP 2: Vendor clients
	// ==========================================
	// All four read and write through the shared response cache, so repeated
	// fetches inside a vendor's TTL never leave the process.

	container.EdgarClient = secedgar.NewClient(cfg.SECUserAgent, container.CacheRepo, log)
	log.Info().Msg("SEC EDGAR client initialized with persistent cache")

	container.FREDClient = fred.NewClient(cfg.FREDAPIKey, container.CacheRepo, log)
	if cfg.FREDAPIKey == "" {
		log.Warn().Msg("FRED API key not configured, macro refreshes will fail")
	} else {
		log.Info().Msg("FRED client initialized with persistent cache")
	}

	container.MetalsClient = metalsdev.NewClient(cfg.MetalsAPIKey, container.CacheRepo, log)
	container.MarketDataClient = marketdata.NewClient(cfg.PolygonAPIKey, container.CacheRepo, log)

	// ==========================================
	// STEP 3: Domain services
	// ==========================================

	container.ScoringEngine = scoring.NewEngine()
	container.ScoringRunner = scoring.NewRunner(
		container.ScoreRepo,
		container.CompanyRepo,
		container.ScoringEngine,
		container.Bus,
		cfg.ScoringWorkers,
		log,
	)

	notifier := alerts.NewLogNotifier(container.Bus, log)
	container.AlertEvaluator = alerts.NewEvaluator(
		container.AlertRepo,
		container.ScoreRepo,
		container.CompanyRepo,
		notifier,
		log,
	)

	container.MacroService = macro.NewService(
		container.MacroRepo,
		container.FREDClient,
		container.MetalsClient,
		container.Bus,
		log,
	)

	container.PortfolioService = portfolio.NewService(
		container.PortfolioRepo,
		container.CompanyRepo,
		container.ScoreRepo,
		log,
	)

	container.ScreenerService = screener.NewService(container.CompanyRepo, container.ScoreRepo, log)

	container.Fundamentals = ingestion.NewFundamentalsService(container.CompanyRepo, container.EdgarClient, log)
	container.MarketData = ingestion.NewMarketService(container.CompanyRepo, container.MarketDataClient, container.Bus, log)

	log.Info().Msg("All services initialized")

	return nil
}
