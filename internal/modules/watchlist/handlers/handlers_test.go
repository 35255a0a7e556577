package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hedge/internal/domain"
	"github.com/aristath/hedge/internal/modules/watchlist"
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

type fakeCompanies struct {
	byTicker map[string]*domain.Company
}

func (f *fakeCompanies) GetByTicker(ticker string) (*domain.Company, error) {
	return f.byTicker[strings.ToUpper(ticker)], nil
}

func (f *fakeCompanies) GetByID(id string) (*domain.Company, error) {
	for _, c := range f.byTicker {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}

type fakeScores struct {
	latest map[string]*domain.SurvivalScore
}

func (f *fakeScores) LatestScores() (map[string]*domain.SurvivalScore, error) {
	return f.latest, nil
}

func (f *fakeScores) GetLatest(companyID string) (*domain.SurvivalScore, error) {
	return f.latest[companyID], nil
}

type testEnv struct {
	router *chi.Mux
	repo   *watchlist.Repository
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// In-memory SQLite is per-connection; a second pooled connection would
	// see an empty database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(watchlistTestSchema)
	require.NoError(t, err)

	companies := &fakeCompanies{byTicker: map[string]*domain.Company{
		"GOLD": {ID: "c-gold", Ticker: "GOLD", Name: "Aurora Gold Corp", Sector: "Materials"},
		"VOLT": {ID: "c-volt", Ticker: "VOLT", Name: "Voltaic Power", Sector: "Utilities"},
	}}
	scores := &fakeScores{latest: map[string]*domain.SurvivalScore{
		"c-gold": {CompanyID: "c-gold", TotalScore: decimal.RequireFromString("78.25"), Tier: "RESILIENT"},
	}}

	repo := watchlist.NewRepository(db, zerolog.Nop())
	router := chi.NewRouter()
	NewHandlers(repo, companies, scores, zerolog.Nop()).RegisterRoutes(router)

	return &testEnv{router: router, repo: repo}
}

func do(t *testing.T, env *testEnv, method, path, body string) (int, map[string]interface{}) {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if len(rec.Body.Bytes()) > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec.Code, decoded
}

func TestHandleAdd_CreatesAndDecorates(t *testing.T) {
	env := setupEnv(t)

	code, body := do(t, env, "POST", "/watchlist", `{"ticker":"gold","notes":"inflation hedge","target_score":85}`)
	require.Equal(t, http.StatusCreated, code)

	assert.NotEmpty(t, body["id"])
	assert.Equal(t, "GOLD", body["ticker"])
	assert.Equal(t, "Aurora Gold Corp", body["name"])
	assert.Equal(t, "Materials", body["sector"])
	assert.Equal(t, "inflation hedge", body["notes"])
	assert.Equal(t, 85.0, body["target_score"])
	assert.Equal(t, 78.25, body["score"])
	assert.Equal(t, "RESILIENT", body["tier"])

	item, err := env.repo.Get(domain.DefaultUserID, "c-gold")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "inflation hedge", item.Notes)
}

func TestHandleAdd_Validation(t *testing.T) {
	env := setupEnv(t)

	for name, body := range map[string]string{
		"malformed json":  `{`,
		"missing ticker":  `{"notes":"no ticker"}`,
		"target over 100": `{"ticker":"GOLD","target_score":150}`,
		"negative target": `{"ticker":"GOLD","target_score":-5}`,
	} {
		code, decoded := do(t, env, "POST", "/watchlist", body)
		assert.Equal(t, http.StatusBadRequest, code, name)
		assert.Contains(t, decoded, "error", name)
	}
}

func TestHandleAdd_UnknownTicker(t *testing.T) {
	env := setupEnv(t)

	code, body := do(t, env, "POST", "/watchlist", `{"ticker":"NOPE"}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Company not found: NOPE", body["error"])
}

func TestHandleAdd_DuplicateConflicts(t *testing.T) {
	env := setupEnv(t)

	code, _ := do(t, env, "POST", "/watchlist", `{"ticker":"GOLD"}`)
	require.Equal(t, http.StatusCreated, code)

	code, body := do(t, env, "POST", "/watchlist", `{"ticker":"GOLD"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "GOLD is already on the watchlist", body["error"])
}

func TestHandleList_JoinsScoresNewestFirst(t *testing.T) {
	env := setupEnv(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, env.repo.Add(&domain.WatchlistItem{CompanyID: "c-gold", CreatedAt: base}))
	require.NoError(t, env.repo.Add(&domain.WatchlistItem{CompanyID: "c-volt", CreatedAt: base.Add(time.Hour)}))

	code, body := do(t, env, "GET", "/watchlist", "")
	require.Equal(t, http.StatusOK, code)

	data := body["data"].([]interface{})
	require.Len(t, data, 2)

	volt := data[0].(map[string]interface{})
	assert.Equal(t, "VOLT", volt["ticker"])
	assert.Nil(t, volt["score"])
	assert.Nil(t, volt["tier"])

	gold := data[1].(map[string]interface{})
	assert.Equal(t, "GOLD", gold["ticker"])
	assert.Equal(t, 78.25, gold["score"])
	assert.Equal(t, "RESILIENT", gold["tier"])
}

func TestHandleList_SkipsOrphanedEntries(t *testing.T) {
	env := setupEnv(t)

	require.NoError(t, env.repo.Add(&domain.WatchlistItem{CompanyID: "c-gold"}))
	require.NoError(t, env.repo.Add(&domain.WatchlistItem{CompanyID: "c-deleted"}))

	code, body := do(t, env, "GET", "/watchlist", "")
	require.Equal(t, http.StatusOK, code)

	data := body["data"].([]interface{})
	require.Len(t, data, 1)
	assert.Equal(t, "GOLD", data[0].(map[string]interface{})["ticker"])
}

func TestHandleRemove(t *testing.T) {
	env := setupEnv(t)

	require.NoError(t, env.repo.Add(&domain.WatchlistItem{CompanyID: "c-gold"}))

	code, body := do(t, env, "DELETE", "/watchlist/gold", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])

	code, body = do(t, env, "DELETE", "/watchlist/GOLD", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "GOLD is not on the watchlist", body["error"])

	code, body = do(t, env, "DELETE", "/watchlist/NOPE", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Company not found: NOPE", body["error"])
}
