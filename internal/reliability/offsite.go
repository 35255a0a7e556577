package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hedge/internal/version"
)

const (
	archivePrefix = "hedge-backup-"
	archiveStamp  = "2006-01-02-150405"
	manifestName  = "manifest.json"

	// minOffsiteBackups are always kept regardless of age.
	minOffsiteBackups = 3

	offsiteUploadTimeout = 30 * time.Minute
)

// RemoteObject is one object stored in the offsite bucket.
type RemoteObject struct {
	Key  string
	Size int64
}

// ObjectStore is the slice of the offsite bucket the backup service uses.
// *S3Store satisfies it.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader) error
	List(ctx context.Context, prefix string) ([]RemoteObject, error)
	Delete(ctx context.Context, key string) error
}

// BackupManifest describes the contents of one uploaded archive.
type BackupManifest struct {
	CreatedAt  time.Time       `json:"created_at"`
	AppVersion string          `json:"app_version"`
	Databases  []ManifestEntry `json:"databases"`
}

// ManifestEntry describes one database file inside an archive.
type ManifestEntry struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// OffsiteInfo summarizes one archive stored offsite.
type OffsiteInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// OffsiteBackupService stages fresh snapshots of every store, archives them
// into a tar.gz with a checksum manifest, and uploads the archive to an
// S3-compatible bucket.
type OffsiteBackupService struct {
	store         ObjectStore
	backups       *BackupService
	dataDir       string
	retentionDays int
	log           zerolog.Logger
}

// NewOffsiteBackupService creates an offsite backup service. retentionDays
// of 0 keeps archives forever.
func NewOffsiteBackupService(store ObjectStore, backups *BackupService, dataDir string, retentionDays int, log zerolog.Logger) *OffsiteBackupService {
	return &OffsiteBackupService{
		store:         store,
		backups:       backups,
		dataDir:       dataDir,
		retentionDays: retentionDays,
		log:           log.With().Str("service", "offsite_backup").Logger(),
	}
}

// CreateAndUpload snapshots every store into a staging directory, archives
// the snapshots with a manifest, and uploads the archive.
func (s *OffsiteBackupService) CreateAndUpload(ctx context.Context) error {
	s.log.Info().Msg("Starting offsite backup")
	startTime := time.Now()

	stagingDir := filepath.Join(s.dataDir, "backup-staging")
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	names := s.backups.DatabaseNames()
	manifest := BackupManifest{
		CreatedAt:  time.Now().UTC(),
		AppVersion: version.Version,
		Databases:  make([]ManifestEntry, 0, len(names)),
	}

	for _, name := range names {
		dbPath := filepath.Join(stagingDir, name+".db")

		if err := s.backups.BackupDatabase(name, dbPath); err != nil {
			return fmt.Errorf("failed to stage %s: %w", name, err)
		}

		info, err := os.Stat(dbPath)
		if err != nil {
			return fmt.Errorf("failed to stat staged %s: %w", name, err)
		}

		checksum, err := fileChecksum(dbPath)
		if err != nil {
			return fmt.Errorf("failed to checksum staged %s: %w", name, err)
		}

		manifest.Databases = append(manifest.Databases, ManifestEntry{
			Name:      name,
			Filename:  name + ".db",
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
	}

	if err := writeManifest(filepath.Join(stagingDir, manifestName), manifest); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	archiveName := archivePrefix + time.Now().Format(archiveStamp) + ".tar.gz"
	archivePath := filepath.Join(stagingDir, archiveName)

	filenames := make([]string, 0, len(names)+1)
	for _, name := range names {
		filenames = append(filenames, name+".db")
	}
	filenames = append(filenames, manifestName)

	if err := createArchive(archivePath, stagingDir, filenames); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveFile.Close()

	if err := s.store.Upload(ctx, archiveName, archiveFile); err != nil {
		return fmt.Errorf("failed to upload archive: %w", err)
	}

	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("archive", archiveName).
		Int64("size_bytes", archiveInfo.Size()).
		Msg("Offsite backup completed")

	return nil
}

// ListBackups lists archives stored offsite, newest first.
func (s *OffsiteBackupService) ListBackups(ctx context.Context) ([]OffsiteInfo, error) {
	objects, err := s.store.List(ctx, archivePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list offsite backups: %w", err)
	}

	backups := make([]OffsiteInfo, 0, len(objects))
	now := time.Now()

	for _, obj := range objects {
		if !strings.HasPrefix(obj.Key, archivePrefix) || !strings.HasSuffix(obj.Key, ".tar.gz") {
			continue
		}

		stamp := strings.TrimSuffix(strings.TrimPrefix(obj.Key, archivePrefix), ".tar.gz")
		timestamp, err := time.Parse(archiveStamp, stamp)
		if err != nil {
			s.log.Warn().Str("key", obj.Key).Msg("Failed to parse timestamp from archive key")
			continue
		}

		backups = append(backups, OffsiteInfo{
			Filename:  obj.Key,
			Timestamp: timestamp,
			SizeBytes: obj.Size,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return backups, nil
}

// RotateOld deletes archives older than the retention window, always keeping
// the newest minOffsiteBackups.
func (s *OffsiteBackupService) RotateOld(ctx context.Context) error {
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return err
	}

	if len(backups) <= minOffsiteBackups || s.retentionDays == 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)

	deleted := 0
	for i, backup := range backups {
		if i < minOffsiteBackups {
			continue
		}
		if !backup.Timestamp.Before(cutoff) {
			continue
		}

		if err := s.store.Delete(ctx, backup.Filename); err != nil {
			s.log.Error().Err(err).Str("archive", backup.Filename).Msg("Failed to delete old archive")
			continue
		}

		s.log.Info().
			Str("archive", backup.Filename).
			Time("timestamp", backup.Timestamp).
			Msg("Deleted old archive")
		deleted++
	}

	if deleted > 0 {
		s.log.Info().
			Int("deleted", deleted).
			Int("remaining", len(backups)-deleted).
			Msg("Offsite rotation completed")
	}

	return nil
}

// fileChecksum returns the sha256 of a file, prefixed with the algorithm.
func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}

	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeManifest(path string, manifest BackupManifest) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(manifest)
}

// createArchive writes a tar.gz containing the named files from sourceDir.
func createArchive(archivePath, sourceDir string, filenames []string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	defer gzipWriter.Close()

	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	for _, filename := range filenames {
		if err := addFileToArchive(tarWriter, filepath.Join(sourceDir, filename), filename); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", filename, err)
		}
	}

	return nil
}

func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}
	if _, err := io.Copy(tarWriter, f); err != nil {
		return err
	}

	return nil
}
