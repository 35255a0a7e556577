// Package di wires the application together: stores, vendor clients,
// repositories, services, and the scheduled jobs. Wire() is the single
// entry point; everything hangs off the Container it returns.
package di

import (
	"database/sql"

	"github.com/aristath/hedge/internal/clientdata"
	"github.com/aristath/hedge/internal/clients/fred"
	"github.com/aristath/hedge/internal/clients/marketdata"
	"github.com/aristath/hedge/internal/clients/metalsdev"
	"github.com/aristath/hedge/internal/clients/secedgar"
	"github.com/aristath/hedge/internal/database"
	"github.com/aristath/hedge/internal/events"
	"github.com/aristath/hedge/internal/modules/alerts"
	"github.com/aristath/hedge/internal/modules/companies"
	"github.com/aristath/hedge/internal/modules/ingestion"
	"github.com/aristath/hedge/internal/modules/macro"
	"github.com/aristath/hedge/internal/modules/portfolio"
	"github.com/aristath/hedge/internal/modules/rankings"
	"github.com/aristath/hedge/internal/modules/scoring"
	"github.com/aristath/hedge/internal/modules/screener"
	"github.com/aristath/hedge/internal/modules/watchlist"
	"github.com/aristath/hedge/internal/reliability"
	"github.com/aristath/hedge/internal/scheduler"
)

// Container holds every application dependency. It is created by Wire and
// handed to main for server assembly.
type Container struct {
	// Four managed stores plus the vendor-specific macro history handle,
	// which the macro module opens with its own driver.
	UniverseDB  *database.DB
	ScoresDB    *database.DB
	PortfolioDB *database.DB
	CacheDB     *database.DB
	MacroDB     *sql.DB

	Bus *events.Bus

	// Vendor clients, all reading through the shared response cache.
	EdgarClient      *secedgar.Client
	FREDClient       *fred.Client
	MetalsClient     *metalsdev.Client
	MarketDataClient *marketdata.Client

	// Repositories
	CacheRepo     *clientdata.Repository
	CompanyRepo   *companies.Repository
	ScoreRepo     *scoring.Repository
	RankingsRepo  *rankings.Repository
	PortfolioRepo *portfolio.Repository
	WatchlistRepo *watchlist.Repository
	AlertRepo     *alerts.Repository
	MacroRepo     *macro.Repository

	// Services
	ScoringEngine    *scoring.Engine
	ScoringRunner    *scoring.Runner
	AlertEvaluator   *alerts.Evaluator
	MacroService     *macro.Service
	PortfolioService *portfolio.Service
	ScreenerService  *screener.Service
	Fundamentals     *ingestion.FundamentalsService
	MarketData       *ingestion.MarketService

	// Background work. OffsiteBackups stays nil unless credentials are
	// configured.
	Scheduler      *scheduler.Scheduler
	BackupService  *reliability.BackupService
	OffsiteBackups *reliability.OffsiteBackupService
}

// Databases returns the managed stores keyed by name, the shape the backup
// and maintenance passes and the status endpoint all consume.
func (c *Container) Databases() map[string]*database.DB {
	return map[string]*database.DB{
		"universe":  c.UniverseDB,
		"scores":    c.ScoresDB,
		"portfolio": c.PortfolioDB,
		"cache":     c.CacheDB,
	}
}

// Close releases every store. Safe on a partially initialized container, so
// failed startup paths can call it unconditionally.
func (c *Container) Close() {
	for _, db := range []*database.DB{c.UniverseDB, c.ScoresDB, c.PortfolioDB, c.CacheDB} {
		if db != nil {
			db.Close()
		}
	}
	if c.MacroDB != nil {
		c.MacroDB.Close()
	}
}
