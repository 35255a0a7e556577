package watchlist

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hedge/internal/domain"
)

const watchlistTestSchema = `
CREATE TABLE watchlist_items (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL DEFAULT 'local',
    company_id TEXT NOT NULL,
    notes TEXT,
    target_score REAL,
    created_at TEXT NOT NULL,
    UNIQUE (user_id, company_id)
);
`

func setupRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// In-memory SQLite is per-connection; a second pooled connection would
	// see an empty database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(watchlistTestSchema)
	require.NoError(t, err)

	return NewRepository(db, zerolog.Nop())
}

func TestAdd_DefaultsAndRoundTrip(t *testing.T) {
	repo := setupRepo(t)

	target := decimal.NewFromFloat(75.5)
	item := &domain.WatchlistItem{
		CompanyID:   "c-gold",
		Notes:       "core inflation hedge",
		TargetScore: &target,
	}
	require.NoError(t, repo.Add(item))

	assert.NotEmpty(t, item.ID)
	assert.Equal(t, domain.DefaultUserID, item.UserID)
	assert.False(t, item.CreatedAt.IsZero())

	got, err := repo.Get(domain.DefaultUserID, "c-gold")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, item.ID, got.ID)
	assert.Equal(t, "core inflation hedge", got.Notes)
	require.NotNil(t, got.TargetScore)
	assert.True(t, got.TargetScore.Equal(target))
	assert.WithinDuration(t, item.CreatedAt, got.CreatedAt, time.Second)
}

func TestGet_MissingReturnsNil(t *testing.T) {
	repo := setupRepo(t)

	got, err := repo.Get(domain.DefaultUserID, "c-none")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAdd_DuplicateCompanyFails(t *testing.T) {
	repo := setupRepo(t)

	require.NoError(t, repo.Add(&domain.WatchlistItem{CompanyID: "c-gold"}))
	err := repo.Add(&domain.WatchlistItem{CompanyID: "c-gold"})
	assert.Error(t, err)

	// Another user may track the same company.
	require.NoError(t, repo.Add(&domain.WatchlistItem{UserID: "other", CompanyID: "c-gold"}))
}

func TestList_NewestFirstScopedToUser(t *testing.T) {
	repo := setupRepo(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, companyID := range []string{"c-oldest", "c-middle", "c-newest"} {
		require.NoError(t, repo.Add(&domain.WatchlistItem{
			CompanyID: companyID,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, repo.Add(&domain.WatchlistItem{UserID: "other", CompanyID: "c-foreign"}))

	items, err := repo.List(domain.DefaultUserID)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "c-newest", items[0].CompanyID)
	assert.Equal(t, "c-middle", items[1].CompanyID)
	assert.Equal(t, "c-oldest", items[2].CompanyID)

	// Optional fields stay nil when unset.
	assert.Empty(t, items[0].Notes)
	assert.Nil(t, items[0].TargetScore)
}

func TestRemove_ReportsWhetherRowExisted(t *testing.T) {
	repo := setupRepo(t)

	require.NoError(t, repo.Add(&domain.WatchlistItem{CompanyID: "c-gold"}))

	removed, err := repo.Remove(domain.DefaultUserID, "c-gold")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.Remove(domain.DefaultUserID, "c-gold")
	require.NoError(t, err)
	assert.False(t, removed)

	items, err := repo.List(domain.DefaultUserID)
	require.NoError(t, err)
	assert.Empty(t, items)
}
