package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hedge/internal/database"
	"github.com/aristath/hedge/internal/version"
)

type fakeObjectStore struct {
	uploads map[string][]byte
	objects []RemoteObject
	deleted []string
	err     error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{uploads: make(map[string][]byte)}
}

func (f *fakeObjectStore) Upload(_ context.Context, key string, body io.Reader) error {
	if f.err != nil {
		return f.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.uploads[key] = data
	f.objects = append(f.objects, RemoteObject{Key: key, Size: int64(len(data))})
	return nil
}

func (f *fakeObjectStore) List(_ context.Context, prefix string) ([]RemoteObject, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []RemoteObject
	for _, obj := range f.objects {
		if strings.HasPrefix(obj.Key, prefix) {
			out = append(out, obj)
		}
	}
	return out, nil
}

func (f *fakeObjectStore) Delete(_ context.Context, key string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, key)
	return nil
}

// untar expands a tar.gz archive into filename -> contents.
func untar(t *testing.T, archive []byte) map[string][]byte {
	t.Helper()

	gz, err := gzip.NewReader(bytes.NewReader(archive))
	require.NoError(t, err)
	defer gz.Close()

	contents := make(map[string][]byte)
	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		contents[header.Name] = data
	}
	return contents
}

func TestOffsiteBackupService_CreateAndUpload(t *testing.T) {
	tempDir := t.TempDir()
	dataDir := filepath.Join(tempDir, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0755))

	universeDB := newStoreDB(t, dataDir, "universe", 3)
	backups := NewBackupService(map[string]*database.DB{"universe": universeDB}, nil, filepath.Join(tempDir, "backups"), zerolog.Nop())

	store := newFakeObjectStore()
	svc := NewOffsiteBackupService(store, backups, dataDir, 90, zerolog.Nop())

	require.NoError(t, svc.CreateAndUpload(context.Background()))

	require.Len(t, store.uploads, 1)
	var key string
	for k := range store.uploads {
		key = k
	}
	assert.True(t, strings.HasPrefix(key, "hedge-backup-"))
	assert.True(t, strings.HasSuffix(key, ".tar.gz"))

	contents := untar(t, store.uploads[key])
	require.Contains(t, contents, "universe.db")
	require.Contains(t, contents, "manifest.json")

	var manifest BackupManifest
	require.NoError(t, json.Unmarshal(contents["manifest.json"], &manifest))
	assert.Equal(t, version.Version, manifest.AppVersion)
	assert.False(t, manifest.CreatedAt.IsZero())

	require.Len(t, manifest.Databases, 1)
	entry := manifest.Databases[0]
	assert.Equal(t, "universe", entry.Name)
	assert.Equal(t, "universe.db", entry.Filename)
	assert.True(t, strings.HasPrefix(entry.Checksum, "sha256:"))
	assert.Equal(t, int64(len(contents["universe.db"])), entry.SizeBytes)

	// Staging does not outlive the run.
	_, err := os.Stat(filepath.Join(dataDir, "backup-staging"))
	assert.True(t, os.IsNotExist(err))
}

func TestOffsiteBackupService_UploadFailure(t *testing.T) {
	tempDir := t.TempDir()
	universeDB := newStoreDB(t, tempDir, "universe", 1)
	backups := NewBackupService(map[string]*database.DB{"universe": universeDB}, nil, filepath.Join(tempDir, "backups"), zerolog.Nop())

	store := newFakeObjectStore()
	store.err = fmt.Errorf("bucket unreachable")
	svc := NewOffsiteBackupService(store, backups, tempDir, 90, zerolog.Nop())

	err := svc.CreateAndUpload(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to upload archive")
}

func TestOffsiteBackupService_ListBackups(t *testing.T) {
	newer := time.Now().Add(-2 * time.Hour)
	older := time.Now().Add(-72 * time.Hour)

	store := newFakeObjectStore()
	store.objects = []RemoteObject{
		{Key: archivePrefix + older.Format(archiveStamp) + ".tar.gz", Size: 100},
		{Key: archivePrefix + newer.Format(archiveStamp) + ".tar.gz", Size: 200},
		{Key: archivePrefix + "not-a-timestamp.tar.gz", Size: 5},
	}

	svc := NewOffsiteBackupService(store, nil, "", 90, zerolog.Nop())

	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 2, "unparseable keys are skipped")

	assert.Equal(t, int64(200), backups[0].SizeBytes)
	assert.True(t, backups[0].Timestamp.After(backups[1].Timestamp), "newest first")
	assert.GreaterOrEqual(t, backups[0].AgeHours, int64(2))
	assert.GreaterOrEqual(t, backups[1].AgeHours, int64(72))
}

func TestOffsiteBackupService_RotateOld(t *testing.T) {
	now := time.Now()
	key := func(age time.Duration) string {
		return archivePrefix + now.Add(-age).Format(archiveStamp) + ".tar.gz"
	}

	store := newFakeObjectStore()
	store.objects = []RemoteObject{
		{Key: key(24 * time.Hour)},
		{Key: key(48 * time.Hour)},
		{Key: key(40 * 24 * time.Hour)},
		{Key: key(50 * 24 * time.Hour)},
		{Key: key(60 * 24 * time.Hour)},
	}

	svc := NewOffsiteBackupService(store, nil, "", 30, zerolog.Nop())
	require.NoError(t, svc.RotateOld(context.Background()))

	// The newest three survive even past retention; only older extras go.
	assert.ElementsMatch(t, []string{
		key(50 * 24 * time.Hour),
		key(60 * 24 * time.Hour),
	}, store.deleted)
}

func TestOffsiteBackupService_RotateOld_ZeroRetentionKeepsAll(t *testing.T) {
	now := time.Now()

	store := newFakeObjectStore()
	for days := 1; days <= 5; days++ {
		stamp := now.AddDate(0, 0, -days*100).Format(archiveStamp)
		store.objects = append(store.objects, RemoteObject{Key: archivePrefix + stamp + ".tar.gz"})
	}

	svc := NewOffsiteBackupService(store, nil, "", 0, zerolog.Nop())
	require.NoError(t, svc.RotateOld(context.Background()))
	assert.Empty(t, store.deleted)
}
