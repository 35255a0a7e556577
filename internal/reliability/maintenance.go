package reliability

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/hedge/internal/database"
)

const (
	// integrityTimeout bounds the nightly integrity pass over all stores.
	integrityTimeout = 5 * time.Minute

	// minFreeDiskGB is the floor under which the job fails outright;
	// lowFreeDiskGB only warns.
	minFreeDiskGB = 0.5
	lowFreeDiskGB = 5.0
)

// CacheCleaner removes expired vendor cache rows.
// *clientdata.CleanupJob satisfies it.
type CacheCleaner interface {
	Run() error
}

// MaintenanceJob is the nightly pass over every store: expired cache rows
// are removed, integrity is checked, WAL files are truncated, the cache
// store is compacted, and disk headroom is verified.
type MaintenanceJob struct {
	databases map[string]*database.DB
	macroDB   *sql.DB
	dataDir   string
	cleaner   CacheCleaner
	log       zerolog.Logger
}

// NewMaintenanceJob creates the nightly maintenance job. macroDB and cleaner
// may be nil.
func NewMaintenanceJob(databases map[string]*database.DB, macroDB *sql.DB, dataDir string, cleaner CacheCleaner, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		macroDB:   macroDB,
		dataDir:   dataDir,
		cleaner:   cleaner,
		log:       log.With().Str("job", "maintenance").Logger(),
	}
}

// Run executes the maintenance job.
func (j *MaintenanceJob) Run() error {
	j.log.Info().Msg("Starting maintenance")
	startTime := time.Now()

	if j.cleaner != nil {
		if err := j.cleaner.Run(); err != nil {
			j.log.Error().Err(err).Msg("Cache cleanup failed")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), integrityTimeout)
	defer cancel()

	for name, conn := range j.connections() {
		var result string
		if err := conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
			return fmt.Errorf("integrity check query failed for %s: %w", name, err)
		}
		if result != "ok" {
			return fmt.Errorf("integrity check failed for %s: %s", name, result)
		}
	}

	for name, conn := range j.connections() {
		if _, err := conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			j.log.Warn().Err(err).Str("database", name).Msg("WAL checkpoint failed")
		}
	}

	if cache, ok := j.databases["cache"]; ok {
		if err := cache.Vacuum(); err != nil {
			j.log.Error().Err(err).Msg("Cache vacuum failed")
		}
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	j.logStoreSizes()

	j.log.Info().Dur("duration_ms", time.Since(startTime)).Msg("Maintenance completed")
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// connections returns every live connection by store name, macro included.
func (j *MaintenanceJob) connections() map[string]*sql.DB {
	conns := make(map[string]*sql.DB, len(j.databases)+1)
	for name, db := range j.databases {
		conns[name] = db.Conn()
	}
	if j.macroDB != nil {
		conns["macro"] = j.macroDB
	}
	return conns
}

// checkDiskSpace verifies the data volume still has headroom.
func (j *MaintenanceJob) checkDiskSpace() error {
	usage, err := disk.Usage(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat data volume: %w", err)
	}

	freeGB := float64(usage.Free) / 1e9
	if freeGB < minFreeDiskGB {
		j.log.Error().Float64("free_gb", freeGB).Msg("Data volume nearly full")
		return fmt.Errorf("only %.2f GB free on data volume", freeGB)
	}
	if freeGB < lowFreeDiskGB {
		j.log.Warn().Float64("free_gb", freeGB).Msg("Data volume running low")
	}

	j.log.Debug().Float64("free_gb", freeGB).Msg("Disk space check")
	return nil
}

// logStoreSizes records per-store file and WAL sizes for growth tracking.
func (j *MaintenanceJob) logStoreSizes() {
	for name, db := range j.databases {
		stats, err := db.GetStats()
		if err != nil {
			j.log.Warn().Err(err).Str("database", name).Msg("Failed to read store stats")
			continue
		}

		j.log.Info().
			Str("database", name).
			Float64("size_mb", float64(stats.SizeBytes)/1024/1024).
			Float64("wal_size_mb", float64(stats.WALSizeBytes)/1024/1024).
			Msg("Store size")
	}
}
