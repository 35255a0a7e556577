package di

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/hedge/internal/clientdata"
	"github.com/aristath/hedge/internal/config"
	"github.com/aristath/hedge/internal/reliability"
	"github.com/aristath/hedge/internal/scheduler"
)

// RegisterJobs creates the scheduler, the backup services, and every
// recurring job, and registers the jobs on their schedules. The scheduler is
// not started here; main starts it once the HTTP server is ready.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	sched, err := scheduler.New(container.Bus, log)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	container.Scheduler = sched

	// ==========================================
	// Backup services
	// ==========================================

	container.BackupService = reliability.NewBackupService(
		container.Databases(),
		container.MacroDB,
		filepath.Join(cfg.DataDir, "backups"),
		log,
	)

	// Offsite replication only runs when S3 credentials are configured.
	if cfg.Backup.Enabled() {
		store, err := reliability.NewS3Store(context.Background(), cfg.Backup, log)
		if err != nil {
			return fmt.Errorf("failed to initialize offsite backup store: %w", err)
		}
		container.OffsiteBackups = reliability.NewOffsiteBackupService(
			store,
			container.BackupService,
			cfg.DataDir,
			cfg.Backup.RetentionDays,
			log,
		)
		log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Offsite backup replication enabled")
	}

	// ==========================================
	// Recurring jobs
	// ==========================================

	cleaner := clientdata.NewCleanupJob(container.CacheRepo, log)
	maintenance := reliability.NewMaintenanceJob(
		container.Databases(),
		container.MacroDB,
		cfg.DataDir,
		cleaner,
		log,
	)

	registrations := []struct {
		schedule string
		job      scheduler.Job
	}{
		{scheduler.ScheduleScoring, scheduler.NewScoringJob(container.ScoringRunner)},
		{scheduler.ScheduleAlerts, scheduler.NewAlertsJob(container.AlertEvaluator, log)},
		{scheduler.ScheduleMacro, scheduler.NewMacroJob(container.MacroService)},
		{scheduler.ScheduleMarketData, scheduler.NewMarketDataJob(container.MarketData)},
		{scheduler.ScheduleFundamentals, scheduler.NewFundamentalsJob(container.Fundamentals)},
		{scheduler.ScheduleMaintenance, maintenance},
		{scheduler.ScheduleBackup, reliability.NewBackupJob(container.BackupService, container.OffsiteBackups, log)},
	}

	for _, r := range registrations {
		if err := sched.Register(r.schedule, r.job); err != nil {
			return fmt.Errorf("failed to register job: %w", err)
		}
	}

	log.Info().Int("jobs", len(registrations)).Msg("All scheduled jobs registered")

	return nil
}
