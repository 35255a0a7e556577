package clientdata

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCleanupJob(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	job := NewCleanupJob(repo, zerolog.Nop())

	assert.NotNil(t, job)
}

func TestCleanupJobName(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	job := NewCleanupJob(repo, zerolog.Nop())

	assert.Equal(t, "cache_cleanup", job.Name())
}

func TestCleanupJobRun(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	job := NewCleanupJob(repo, zerolog.Nop())

	now := time.Now()
	expiredAt := now.Add(-time.Hour).Unix()
	freshAt := now.Add(time.Hour).Unix()

	// Insert expired and fresh entries across multiple tables
	insertExpiredAndFresh(t, db, "sec_submissions", "cik", expiredAt, freshAt)
	insertExpiredAndFresh(t, db, "fred_series", "series", expiredAt, freshAt)
	insertExpiredAndFresh(t, db, "market_quotes", "ticker", expiredAt, freshAt)

	var countBefore int
	db.QueryRow("SELECT (SELECT COUNT(*) FROM sec_submissions) + (SELECT COUNT(*) FROM fred_series) + (SELECT COUNT(*) FROM market_quotes)").Scan(&countBefore)
	assert.Equal(t, 6, countBefore) // 2 per table (1 expired + 1 fresh)

	err := job.Run()
	require.NoError(t, err)

	// Only fresh entries should survive
	var countAfter int
	db.QueryRow("SELECT (SELECT COUNT(*) FROM sec_submissions) + (SELECT COUNT(*) FROM fred_series) + (SELECT COUNT(*) FROM market_quotes)").Scan(&countAfter)
	assert.Equal(t, 3, countAfter)
}

func TestCleanupJobRunEmptyTables(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	job := NewCleanupJob(repo, zerolog.Nop())

	// Run cleanup on empty tables - should not error
	err := job.Run()
	require.NoError(t, err)
}

func TestCleanupJobRunAllExpired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	job := NewCleanupJob(repo, zerolog.Nop())

	expiredAt := time.Now().Add(-time.Hour).Unix()

	_, err := db.Exec("INSERT INTO sec_submissions (cik, data, expires_at) VALUES (?, ?, ?)", "0001164727", []byte{0xc0}, expiredAt)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO sec_submissions (cik, data, expires_at) VALUES (?, ?, ?)", "0000320193", []byte{0xc0}, expiredAt)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO fred_series (series, data, expires_at) VALUES (?, ?, ?)", "M2SL", []byte{0xc0}, expiredAt)
	require.NoError(t, err)

	err = job.Run()
	require.NoError(t, err)

	var count int
	db.QueryRow("SELECT COUNT(*) FROM sec_submissions").Scan(&count)
	assert.Equal(t, 0, count)
	db.QueryRow("SELECT COUNT(*) FROM fred_series").Scan(&count)
	assert.Equal(t, 0, count)
}

func TestCleanupJobRunAllFresh(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	job := NewCleanupJob(repo, zerolog.Nop())

	freshAt := time.Now().Add(time.Hour).Unix()

	_, err := db.Exec("INSERT INTO sec_submissions (cik, data, expires_at) VALUES (?, ?, ?)", "0001164727", []byte{0xc0}, freshAt)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO sec_submissions (cik, data, expires_at) VALUES (?, ?, ?)", "0000320193", []byte{0xc0}, freshAt)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO fred_series (series, data, expires_at) VALUES (?, ?, ?)", "M2SL", []byte{0xc0}, freshAt)
	require.NoError(t, err)

	err = job.Run()
	require.NoError(t, err)

	var count int
	db.QueryRow("SELECT COUNT(*) FROM sec_submissions").Scan(&count)
	assert.Equal(t, 2, count)
	db.QueryRow("SELECT COUNT(*) FROM fred_series").Scan(&count)
	assert.Equal(t, 1, count)
}

// Helper function to insert one expired and one fresh entry per table
func insertExpiredAndFresh(t *testing.T, db *sql.DB, table, keyCol string, expiredAt, freshAt int64) {
	t.Helper()

	key1 := "EXPIRED_" + table
	key2 := "FRESH_" + table

	_, err := db.Exec(
		"INSERT INTO "+table+" ("+keyCol+", data, expires_at) VALUES (?, ?, ?)",
		key1, []byte{0xc0}, expiredAt,
	)
	require.NoError(t, err)

	_, err = db.Exec(
		"INSERT INTO "+table+" ("+keyCol+", data, expires_at) VALUES (?, ?, ?)",
		key2, []byte{0xc0}, freshAt,
	)
	require.NoError(t, err)
}
