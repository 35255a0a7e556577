package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/hedge/internal/clientdata"
	"github.com/aristath/hedge/internal/modules/alerts"
	"github.com/aristath/hedge/internal/modules/companies"
	"github.com/aristath/hedge/internal/modules/macro"
	"github.com/aristath/hedge/internal/modules/portfolio"
	"github.com/aristath/hedge/internal/modules/rankings"
	"github.com/aristath/hedge/internal/modules/scoring"
	"github.com/aristath/hedge/internal/modules/watchlist"
)

// InitializeRepositories creates all repositories and stores them in the container.
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	// External API response cache (cache.db)
	container.CacheRepo = clientdata.NewRepository(container.CacheDB.Conn())

	// Company and fundamentals data (universe.db)
	container.CompanyRepo = companies.NewRepository(container.UniverseDB.Conn(), log)

	// Survival scores and run history (scores.db)
	container.ScoreRepo = scoring.NewRepository(container.ScoresDB.Conn(), log)

	// Ranked score reads (scores.db, read-only views over survival_scores)
	container.RankingsRepo = rankings.NewRepository(container.ScoresDB.Conn(), log)

	// Portfolios, watchlists, and alert rules (portfolio.db)
	container.PortfolioRepo = portfolio.NewRepository(container.PortfolioDB.Conn(), log)
	container.WatchlistRepo = watchlist.NewRepository(container.PortfolioDB.Conn(), log)
	container.AlertRepo = alerts.NewRepository(container.PortfolioDB.Conn(), log)

	// Macro snapshots (macro.db, vendor-specific handle)
	container.MacroRepo = macro.NewRepository(container.MacroDB, log)

	log.Info().Msg("All repositories initialized")

	return nil
}
