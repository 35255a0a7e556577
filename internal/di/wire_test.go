package di

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hedge/internal/config"
)

func TestWire(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := &config.Config{
		DataDir:      tmpDir,
		SECUserAgent: "hedge-test admin@example.com",
	}
	log := zerolog.Nop()

	container, err := Wire(cfg, log)
	require.NoError(t, err)
	require.NotNil(t, container)
	defer container.Close()

	// Stores
	assert.NotNil(t, container.UniverseDB)
	assert.NotNil(t, container.ScoresDB)
	assert.NotNil(t, container.PortfolioDB)
	assert.NotNil(t, container.CacheDB)
	assert.NotNil(t, container.MacroDB)

	// Repositories
	assert.NotNil(t, container.CacheRepo)
	assert.NotNil(t, container.CompanyRepo)
	assert.NotNil(t, container.ScoreRepo)
	assert.NotNil(t, container.RankingsRepo)
	assert.NotNil(t, container.PortfolioRepo)
	assert.NotNil(t, container.WatchlistRepo)
	assert.NotNil(t, container.AlertRepo)
	assert.NotNil(t, container.MacroRepo)

	// Services
	assert.NotNil(t, container.ScoringRunner)
	assert.NotNil(t, container.AlertEvaluator)
	assert.NotNil(t, container.MacroService)
	assert.NotNil(t, container.PortfolioService)
	assert.NotNil(t, container.ScreenerService)
	assert.NotNil(t, container.Fundamentals)
	assert.NotNil(t, container.MarketData)

	// Jobs registered on the scheduler: scoring, alerts, macro, market_data,
	// fundamentals, maintenance, backup.
	require.NotNil(t, container.Scheduler)
	assert.Len(t, container.Scheduler.Status(), 7)

	// No S3 credentials configured, so offsite replication stays off.
	assert.Nil(t, container.OffsiteBackups)
	assert.NotNil(t, container.BackupService)
}

func TestWire_HandlersCoverEveryModule(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := &config.Config{
		DataDir:       tmpDir,
		MaxPortfolios: 10,
	}
	log := zerolog.Nop()

	container, err := Wire(cfg, log)
	require.NoError(t, err)
	defer container.Close()

	handlers := container.Handlers(cfg, log)
	assert.Len(t, handlers, 7)
	for _, h := range handlers {
		assert.NotNil(t, h)
	}
}

func TestContainer_DatabasesKeyedByName(t *testing.T) {
	tmpDir := t.TempDir()

	container, err := InitializeDatabases(&config.Config{DataDir: tmpDir}, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	dbs := container.Databases()
	require.Len(t, dbs, 4)
	for _, name := range []string{"universe", "scores", "portfolio", "cache"} {
		require.Contains(t, dbs, name)
		assert.Equal(t, name, dbs[name].Name())
	}
}

func TestContainer_CloseOnPartialContainer(t *testing.T) {
	// Failed startup paths close whatever was opened so far; Close must
	// tolerate the rest being nil.
	c := &Container{}
	c.Close()
}
