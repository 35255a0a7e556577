// Package reliability keeps the data directory recoverable: online SQLite
// snapshots with rotation, an optional offsite archive upload, and the
// nightly maintenance pass over every store.
package reliability

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hedge/internal/database"
)

const (
	// snapshotRetentionDays bounds how long dated snapshot directories are kept.
	snapshotRetentionDays = 30

	snapshotDirFormat = "2006-01-02"
)

// BackupService writes online snapshots of every SQLite store with
// VACUUM INTO, verifies each copy, and rotates dated snapshot directories.
type BackupService struct {
	targets   map[string]*sql.DB
	backupDir string
	log       zerolog.Logger
}

// NewBackupService creates a backup service covering the managed databases
// plus the macro history store. macroDB may be nil when the macro store is
// not open.
func NewBackupService(databases map[string]*database.DB, macroDB *sql.DB, backupDir string, log zerolog.Logger) *BackupService {
	targets := make(map[string]*sql.DB, len(databases)+1)
	for name, db := range databases {
		targets[name] = db.Conn()
	}
	if macroDB != nil {
		targets["macro"] = macroDB
	}

	return &BackupService{
		targets:   targets,
		backupDir: backupDir,
		log:       log.With().Str("service", "backup").Logger(),
	}
}

// DatabaseNames returns the names of every store the service covers, sorted
// so snapshot and archive layouts stay deterministic.
func (s *BackupService) DatabaseNames() []string {
	names := make([]string, 0, len(s.targets))
	for name := range s.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SnapshotAll writes one verified snapshot per store into a dated directory
// and rotates directories older than the retention window. It returns the
// snapshot directory path.
func (s *BackupService) SnapshotAll() (string, error) {
	s.log.Info().Msg("Starting snapshot pass")
	startTime := time.Now()

	snapshotDir := filepath.Join(s.backupDir, time.Now().Format(snapshotDirFormat))
	if err := os.MkdirAll(snapshotDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	var written, failed int
	for _, name := range s.DatabaseNames() {
		backupPath := filepath.Join(snapshotDir, name+".db")

		if err := s.BackupDatabase(name, backupPath); err != nil {
			s.log.Error().Err(err).Str("database", name).Msg("Snapshot failed")
			failed++
			continue
		}

		if err := s.verifyBackup(backupPath); err != nil {
			s.log.Error().Err(err).Str("database", name).Msg("Snapshot verification failed")
			os.Remove(backupPath)
			failed++
			continue
		}

		written++
	}

	if written == 0 && failed > 0 {
		return "", fmt.Errorf("no databases could be snapshotted")
	}

	if err := s.rotateSnapshots(); err != nil {
		s.log.Error().Err(err).Msg("Failed to rotate old snapshots")
	}

	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Int("written", written).
		Int("failed", failed).
		Str("snapshot_dir", snapshotDir).
		Msg("Snapshot pass completed")

	return snapshotDir, nil
}

// BackupDatabase writes a single store to destPath using VACUUM INTO, which
// produces a compact copy without WAL side files while the store stays live.
func (s *BackupService) BackupDatabase(name, destPath string) error {
	conn, ok := s.targets[name]
	if !ok {
		return fmt.Errorf("unknown database %q", name)
	}

	if _, err := conn.Exec(fmt.Sprintf("VACUUM INTO '%s'", destPath)); err != nil {
		return fmt.Errorf("vacuum into failed for %s: %w", name, err)
	}

	info, err := os.Stat(destPath)
	if err != nil {
		return fmt.Errorf("failed to stat backup: %w", err)
	}

	s.log.Debug().
		Str("database", name).
		Float64("size_mb", float64(info.Size())/1024/1024).
		Msg("Backup written")

	return nil
}

// verifyBackup opens a snapshot file and runs an integrity check on it.
func (s *BackupService) verifyBackup(backupPath string) error {
	backupDB, err := sql.Open("sqlite", backupPath)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer backupDB.Close()

	var result string
	if err := backupDB.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	return nil
}

// rotateSnapshots deletes dated snapshot directories older than the
// retention window. Directories that are not date-named are left alone.
func (s *BackupService) rotateSnapshots() error {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		return fmt.Errorf("failed to read backup directory: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -snapshotRetentionDays)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dirDate, err := time.Parse(snapshotDirFormat, entry.Name())
		if err != nil {
			continue
		}

		if dirDate.Before(cutoff) {
			path := filepath.Join(s.backupDir, entry.Name())
			if err := os.RemoveAll(path); err != nil {
				s.log.Warn().Err(err).Str("path", path).Msg("Failed to delete old snapshot")
				continue
			}
			s.log.Debug().Str("path", path).Msg("Deleted old snapshot")
		}
	}

	return nil
}

// LatestSnapshot returns the newest snapshot file for a store, for manual
// restores after corruption.
func (s *BackupService) LatestSnapshot(name string) (string, error) {
	filename := name + ".db"

	var newest string
	var newestTime time.Time
	err := filepath.Walk(s.backupDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if filepath.Base(path) == filename && info.ModTime().After(newestTime) {
			newest = path
			newestTime = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to walk backup directory: %w", err)
	}

	if newest == "" {
		return "", fmt.Errorf("no snapshot found for %s", name)
	}

	return newest, nil
}

// BackupJob is the weekly snapshot pass. When an offsite store is configured
// it also archives the pass, uploads it, and rotates old archives.
type BackupJob struct {
	backups *BackupService
	offsite *OffsiteBackupService
	log     zerolog.Logger
}

// NewBackupJob creates the scheduled backup job. offsite may be nil; the job
// then only writes local snapshots.
func NewBackupJob(backups *BackupService, offsite *OffsiteBackupService, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		backups: backups,
		offsite: offsite,
		log:     log.With().Str("job", "backup").Logger(),
	}
}

// Run executes the backup job.
func (j *BackupJob) Run() error {
	if _, err := j.backups.SnapshotAll(); err != nil {
		return err
	}

	if j.offsite == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), offsiteUploadTimeout)
	defer cancel()

	if err := j.offsite.CreateAndUpload(ctx); err != nil {
		return err
	}

	return j.offsite.RotateOld(ctx)
}

// Name returns the job name for scheduling and logging.
func (j *BackupJob) Name() string {
	return "backup"
}
