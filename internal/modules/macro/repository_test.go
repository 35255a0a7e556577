package macro

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hedge/internal/domain"
)

func setupRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// In-memory SQLite is per-connection; a second pooled connection would
	// see an empty database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(macroSchema)
	require.NoError(t, err)

	return NewRepository(db, zerolog.Nop())
}

func dp(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func assertDec(t *testing.T, want float64, got *decimal.Decimal) {
	t.Helper()
	require.NotNil(t, got)
	assert.True(t, got.Equal(decimal.NewFromFloat(want)), "want %v, got %s", want, got)
}

func TestUpsert_MergesNonNullFields(t *testing.T) {
	repo := setupRepo(t)

	date := day(2026, 8, 25)
	require.NoError(t, repo.Upsert(&domain.MacroSnapshot{
		DataDate:  date,
		DXYIndex:  dp(104.2),
		GoldPrice: dp(2450),
	}))

	// Same-day refresh: gold missing, silver newly available.
	require.NoError(t, repo.Upsert(&domain.MacroSnapshot{
		DataDate:    date,
		SilverPrice: dp(29.4),
	}))

	got, err := repo.Latest()
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.True(t, got.DataDate.Equal(date))
	assertDec(t, 104.2, got.DXYIndex)
	assertDec(t, 2450, got.GoldPrice)
	assertDec(t, 29.4, got.SilverPrice)
	assert.Nil(t, got.OilPrice)
}

func TestUpsert_KeepsOneRowPerDate(t *testing.T) {
	repo := setupRepo(t)

	date := day(2026, 8, 25)
	first := &domain.MacroSnapshot{DataDate: date, DXYIndex: dp(104)}
	require.NoError(t, repo.Upsert(first))
	require.NoError(t, repo.Upsert(&domain.MacroSnapshot{DataDate: date, DXYIndex: dp(105)}))

	rows, err := repo.Range(date, date, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	// The original row id survives merges.
	assert.Equal(t, first.ID, rows[0].ID)
	assertDec(t, 105, rows[0].DXYIndex)
}

func TestLatest_EmptyReturnsNil(t *testing.T) {
	repo := setupRepo(t)

	got, err := repo.Latest()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBaselineLookups(t *testing.T) {
	repo := setupRepo(t)

	for _, row := range []struct {
		date time.Time
		dxy  float64
	}{
		{day(2025, 8, 20), 98},
		{day(2026, 1, 2), 100},
		{day(2026, 8, 24), 105},
		{day(2026, 8, 25), 110},
	} {
		require.NoError(t, repo.Upsert(&domain.MacroSnapshot{DataDate: row.date, DXYIndex: dp(row.dxy)}))
	}

	latest, err := repo.Latest()
	require.NoError(t, err)
	assertDec(t, 110, latest.DXYIndex)

	previous, err := repo.LatestBefore(latest.DataDate)
	require.NoError(t, err)
	require.NotNil(t, previous)
	assertDec(t, 105, previous.DXYIndex)

	ytdStart, err := repo.FirstSince(day(2026, 1, 1))
	require.NoError(t, err)
	require.NotNil(t, ytdStart)
	assertDec(t, 100, ytdStart.DXYIndex)

	yearAgo, err := repo.LatestThrough(latest.DataDate.AddDate(-1, 0, 0))
	require.NoError(t, err)
	require.NotNil(t, yearAgo)
	assertDec(t, 98, yearAgo.DXYIndex)

	none, err := repo.LatestBefore(day(2025, 8, 20))
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRange_AscendingWithinBounds(t *testing.T) {
	repo := setupRepo(t)

	for d := 1; d <= 5; d++ {
		require.NoError(t, repo.Upsert(&domain.MacroSnapshot{
			DataDate: day(2026, 8, d),
			DXYIndex: dp(float64(100 + d)),
		}))
	}

	rows, err := repo.Range(day(2026, 8, 2), day(2026, 8, 4), 10)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.True(t, rows[0].DataDate.Equal(day(2026, 8, 2)))
	assert.True(t, rows[2].DataDate.Equal(day(2026, 8, 4)))

	capped, err := repo.Range(day(2026, 8, 1), day(2026, 8, 5), 2)
	require.NoError(t, err)
	assert.Len(t, capped, 2)
}

func TestOpenHistoryDB_CreatesAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "macro.db")

	db, err := OpenHistoryDB(path, zerolog.Nop())
	require.NoError(t, err)

	repo := NewRepository(db, zerolog.Nop())
	require.NoError(t, repo.Upsert(&domain.MacroSnapshot{
		DataDate: day(2026, 8, 25),
		DXYIndex: dp(104.2),
	}))
	require.NoError(t, db.Close())

	db, err = OpenHistoryDB(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	got, err := NewRepository(db, zerolog.Nop()).Latest()
	require.NoError(t, err)
	require.NotNil(t, got)
	assertDec(t, 104.2, got.DXYIndex)
}

func TestRecent_LastNAscending(t *testing.T) {
	repo := setupRepo(t)

	for d := 1; d <= 5; d++ {
		require.NoError(t, repo.Upsert(&domain.MacroSnapshot{
			DataDate: day(2026, 8, d),
			DXYIndex: dp(float64(100 + d)),
		}))
	}

	rows, err := repo.Recent(3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.True(t, rows[0].DataDate.Equal(day(2026, 8, 3)))
	assert.True(t, rows[1].DataDate.Equal(day(2026, 8, 4)))
	assert.True(t, rows[2].DataDate.Equal(day(2026, 8, 5)))
}
