package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/hedge/internal/config"
	"github.com/aristath/hedge/internal/database"
	"github.com/aristath/hedge/internal/modules/macro"
)

// InitializeDatabases opens the four managed stores, applies their schemas,
// and opens the macro history database.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	stores := []struct {
		name    string
		profile database.DatabaseProfile
		target  **database.DB
	}{
		// universe.db - companies and fundamentals
		{"universe", database.ProfileStandard, &container.UniverseDB},
		// scores.db - survival scores and scoring runs, append-heavy
		{"scores", database.ProfileArchive, &container.ScoresDB},
		// portfolio.db - portfolios, watchlists, alerts
		{"portfolio", database.ProfileStandard, &container.PortfolioDB},
		// cache.db - external API response cache, rebuildable
		{"cache", database.ProfileCache, &container.CacheDB},
	}

	for _, s := range stores {
		db, err := database.New(database.Config{
			Path:    filepath.Join(cfg.DataDir, s.name+".db"),
			Profile: s.profile,
			Name:    s.name,
		})
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to initialize %s database: %w", s.name, err)
		}
		*s.target = db

		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	macroDB, err := macro.OpenHistoryDB(filepath.Join(cfg.DataDir, "macro.db"), log)
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize macro history database: %w", err)
	}
	container.MacroDB = macroDB

	log.Info().Msg("All databases initialized and schemas applied")

	return container, nil
}
