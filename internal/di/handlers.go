package di

import (
	"github.com/rs/zerolog"

	"github.com/aristath/hedge/internal/config"
	alertshandlers "github.com/aristath/hedge/internal/modules/alerts/handlers"
	companieshandlers "github.com/aristath/hedge/internal/modules/companies/handlers"
	macrohandlers "github.com/aristath/hedge/internal/modules/macro/handlers"
	portfoliohandlers "github.com/aristath/hedge/internal/modules/portfolio/handlers"
	rankingshandlers "github.com/aristath/hedge/internal/modules/rankings/handlers"
	screenerhandlers "github.com/aristath/hedge/internal/modules/screener/handlers"
	watchlisthandlers "github.com/aristath/hedge/internal/modules/watchlist/handlers"
	"github.com/aristath/hedge/internal/server"
)

// Handlers builds the HTTP handler set for every API module. Each entry
// mounts its own routes under /api/v1.
func (c *Container) Handlers(cfg *config.Config, log zerolog.Logger) []server.ModuleRouter {
	return []server.ModuleRouter{
		companieshandlers.NewHandlers(c.CompanyRepo, c.ScoreRepo, log),
		rankingshandlers.NewHandlers(c.RankingsRepo, c.CompanyRepo, log),
		screenerhandlers.NewHandlers(c.ScreenerService, log),
		watchlisthandlers.NewHandlers(c.WatchlistRepo, c.CompanyRepo, c.ScoreRepo, log),
		portfoliohandlers.NewHandlers(c.PortfolioRepo, c.PortfolioService, c.CompanyRepo, c.ScoreRepo, cfg.MaxPortfolios, log),
		alertshandlers.NewHandlers(c.AlertRepo, c.CompanyRepo, c.PortfolioRepo, log),
		macrohandlers.NewHandlers(c.MacroRepo, log),
	}
}
