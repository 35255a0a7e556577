// Package main is the entry point for the Hedge survival scoring service.
// The application maintains a universe of publicly traded companies, scores
// each one on its resilience to dollar devaluation, and serves the scores,
// rankings, screens, portfolios, watchlists, and alerts over a REST API.
//
// Startup sequence:
// 1. Load configuration from environment variables
// 2. Initialize logging
// 3. Validate the scoring weight tables
// 4. Wire all dependencies via the DI container (stores, repositories, services, jobs)
// 5. Assemble the HTTP server and start it
// 6. Start the job scheduler
// 7. Wait for a shutdown signal and drain gracefully
//
// Data lives in five SQLite stores under the data directory:
// - universe.db: companies and their fundamentals
// - scores.db: survival scores and scoring run history
// - portfolio.db: portfolios, watchlists, alert rules
// - cache.db: external API response cache
// - macro.db: macro indicator history (owned by the macro module)
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aristath/hedge/internal/config"
	"github.com/aristath/hedge/internal/di"
	"github.com/aristath/hedge/internal/modules/scoring"
	"github.com/aristath/hedge/internal/server"
	"github.com/aristath/hedge/internal/version"
	"github.com/aristath/hedge/pkg/logger"
)

func main() {
	// Load configuration first to get the log level.
	cfg, err := config.Load()
	if err != nil {
		// Use a fallback logger so the configuration error is still visible.
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("version", version.Version).Msg("Starting Hedge")

	// A bad weight table would make every score computed afterwards wrong,
	// so refuse to start at all.
	if err := scoring.ValidateWeights(); err != nil {
		log.Fatal().Err(err).Msg("Scoring weight validation failed")
	}

	// Wire all dependencies: stores, repositories, services, and the
	// scheduled jobs.
	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// The event stream and the system handlers mount alongside the module
	// APIs; the stream holds the bus subscription for every websocket client.
	stream := server.NewStreamHandler(container.Bus, log)
	system := server.NewSystemHandlers(
		container.Databases(),
		cfg.DataDir,
		container.Scheduler,
		container.ScoreRepo,
		stream,
		log,
	)
	modules := append(container.Handlers(cfg, log), system)

	srv := server.New(server.Config{
		Log:                log,
		Port:               cfg.Port,
		DevMode:            cfg.DevMode,
		Modules:            modules,
		CORSOrigins:        splitOrigins(cfg.CORSOrigins),
		RateLimitPerSecond: float64(cfg.RateLimitRPS),
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	container.Scheduler.Start()
	log.Info().Msg("Job scheduler started")

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	// Stop the HTTP server first so manual job triggers stop arriving, then
	// drain the scheduler, which waits for running jobs to finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	container.Scheduler.Stop()
	log.Info().Msg("Job scheduler stopped")

	log.Info().Msg("Server stopped")
}

// splitOrigins turns the comma-separated HEDGE_CORS_ORIGINS value into the
// origin list the CORS middleware consumes. "*" stays a single wildcard.
func splitOrigins(origins string) []string {
	if origins == "" {
		return nil
	}
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
