package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hedge/internal/domain"
	"github.com/aristath/hedge/internal/modules/companies"
)

const universeTestSchema = `
CREATE TABLE companies (
    id TEXT PRIMARY KEY,
    ticker TEXT UNIQUE NOT NULL,
    name TEXT NOT NULL,
    sector TEXT,
    industry TEXT,
    market_cap INTEGER,
    country TEXT NOT NULL DEFAULT 'USA',
    exchange TEXT,
    description TEXT,
    website TEXT,
    logo_url TEXT,
    cik TEXT,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE fundamentals (
    id TEXT PRIMARY KEY,
    company_id TEXT NOT NULL,
    fiscal_year INTEGER NOT NULL,
    fiscal_quarter INTEGER,
    report_type TEXT,
    total_assets INTEGER,
    tangible_assets INTEGER,
    intangible_assets INTEGER,
    total_revenue INTEGER,
    foreign_revenue INTEGER,
    foreign_revenue_pct REAL,
    commodity_revenue INTEGER,
    commodity_revenue_pct REAL,
    precious_metals_revenue INTEGER,
    precious_metals_revenue_pct REAL,
    total_debt INTEGER,
    fixed_rate_debt_pct REAL,
    avg_debt_maturity_years REAL,
    gross_margin REAL,
    gross_margin_5yr_std REAL,
    proven_reserves_oz INTEGER,
    revenue_by_region TEXT,
    filing_date TEXT,
    filing_url TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    UNIQUE (company_id, fiscal_year, fiscal_quarter)
);
`

// fakeScores satisfies ScoreReader without a scores database.
type fakeScores struct {
	latest  map[string]*domain.SurvivalScore
	history map[string][]domain.SurvivalScore
}

func (f *fakeScores) LatestScores() (map[string]*domain.SurvivalScore, error) {
	return f.latest, nil
}

func (f *fakeScores) GetLatest(companyID string) (*domain.SurvivalScore, error) {
	return f.latest[companyID], nil
}

func (f *fakeScores) History(companyID, startDate, endDate string, limit int) ([]domain.SurvivalScore, error) {
	rows := f.history[companyID]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

type testEnv struct {
	router *chi.Mux
	repo   *companies.Repository
	scores *fakeScores
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// In-memory SQLite is per-connection; a second pooled connection would
	// see an empty database.
	db.SetMaxOpenConns(1)
	_, err = db.Exec(universeTestSchema)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := companies.NewRepository(db, zerolog.Nop())
	scores := &fakeScores{
		latest:  make(map[string]*domain.SurvivalScore),
		history: make(map[string][]domain.SurvivalScore),
	}

	router := chi.NewRouter()
	NewHandlers(repo, scores, zerolog.Nop()).RegisterRoutes(router)

	return &testEnv{router: router, repo: repo, scores: scores}
}

func (e *testEnv) addCompany(t *testing.T, ticker, name, sector string, marketCap int64) *domain.Company {
	t.Helper()
	c := &domain.Company{Ticker: ticker, Name: name, Sector: sector, IsActive: true}
	if marketCap > 0 {
		c.MarketCap = &marketCap
	}
	require.NoError(t, e.repo.UpsertCompany(c))
	return c
}

func (e *testEnv) addScore(c *domain.Company, total, tier, date string) {
	day, _ := time.Parse("2006-01-02", date)
	hard := decimal.RequireFromString("82.5")
	gradual := decimal.RequireFromString("71.3")
	s := domain.SurvivalScore{
		ID:              c.ID + "-" + date,
		CompanyID:       c.ID,
		ScoreDate:       day,
		TotalScore:      decimal.RequireFromString(total),
		Confidence:      decimal.RequireFromString("0.86"),
		Tier:            tier,
		HardAssetsScore: &hard,
		ScenarioGradual: &gradual,
	}
	e.scores.latest[c.ID] = &s
	e.scores.history[c.ID] = append([]domain.SurvivalScore{s}, e.scores.history[c.ID]...)
}

func (e *testEnv) get(t *testing.T, path string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var body map[string]interface{}
	if len(rec.Body.Bytes()) > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec.Code, body
}

func dataRows(t *testing.T, body map[string]interface{}) []map[string]interface{} {
	t.Helper()
	raw, ok := body["data"].([]interface{})
	require.True(t, ok, "response has no data array")
	rows := make([]map[string]interface{}, len(raw))
	for i, item := range raw {
		rows[i] = item.(map[string]interface{})
	}
	return rows
}

func tickersOf(rows []map[string]interface{}) []string {
	tickers := make([]string, len(rows))
	for i, row := range rows {
		tickers[i] = row["ticker"].(string)
	}
	return tickers
}

func seedUniverse(t *testing.T, env *testEnv) {
	auco := env.addCompany(t, "AUCO", "Aurora Gold Corp", "Materials", 12_000_000_000)
	volt := env.addCompany(t, "VOLT", "Voltaic Power", "Utilities", 30_000_000_000)
	bigb := env.addCompany(t, "BIGB", "Big Bank", "Financials", 90_000_000_000)
	env.addCompany(t, "NOSC", "Unscored Holdings", "Materials", 0)

	env.addScore(auco, "78.25", "RESILIENT", "2026-03-02")
	env.addScore(volt, "55.10", "MODERATE", "2026-03-02")
	env.addScore(bigb, "32.40", "EXPOSED", "2026-03-02")
}

func TestHandleList_DefaultScoreDescWithEnvelope(t *testing.T) {
	env := setupEnv(t)
	seedUniverse(t, env)

	code, body := env.get(t, "/companies")
	require.Equal(t, http.StatusOK, code)

	rows := dataRows(t, body)
	assert.Equal(t, []string{"AUCO", "VOLT", "BIGB", "NOSC"}, tickersOf(rows))

	// Decimal fields marshal as JSON numbers.
	assert.Equal(t, 78.25, rows[0]["score"])
	assert.Equal(t, "RESILIENT", rows[0]["tier"])
	assert.Equal(t, 0.86, rows[0]["confidence"])
	assert.Nil(t, rows[3]["score"])
	assert.Nil(t, rows[3]["tier"])

	p := body["pagination"].(map[string]interface{})
	assert.Equal(t, float64(1), p["page"])
	assert.Equal(t, float64(50), p["limit"])
	assert.Equal(t, float64(4), p["total"])
	assert.Equal(t, float64(1), p["pages"])
}

func TestHandleList_Filters(t *testing.T) {
	env := setupEnv(t)
	seedUniverse(t, env)

	code, body := env.get(t, "/companies?min_score=50")
	require.Equal(t, http.StatusOK, code)
	// Score filters drop companies without a score.
	assert.Equal(t, []string{"AUCO", "VOLT"}, tickersOf(dataRows(t, body)))

	code, body = env.get(t, "/companies?max_score=40")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"BIGB"}, tickersOf(dataRows(t, body)))

	code, body = env.get(t, "/companies?tier=exposed")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"BIGB"}, tickersOf(dataRows(t, body)))

	code, body = env.get(t, "/companies?sector=Materials")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"AUCO", "NOSC"}, tickersOf(dataRows(t, body)))

	code, body = env.get(t, "/companies?search=volt")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"VOLT"}, tickersOf(dataRows(t, body)))
}

func TestHandleList_SortVariants(t *testing.T) {
	env := setupEnv(t)
	seedUniverse(t, env)

	code, body := env.get(t, "/companies?sort_by=ticker&sort_order=asc")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"AUCO", "BIGB", "NOSC", "VOLT"}, tickersOf(dataRows(t, body)))

	code, body = env.get(t, "/companies?sort_by=market_cap&sort_order=desc")
	require.Equal(t, http.StatusOK, code)
	// NOSC has no market cap and sorts last on a descending sort.
	assert.Equal(t, []string{"BIGB", "VOLT", "AUCO", "NOSC"}, tickersOf(dataRows(t, body)))

	code, body = env.get(t, "/companies?sort_by=score&sort_order=asc")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"NOSC", "BIGB", "VOLT", "AUCO"}, tickersOf(dataRows(t, body)))
}

func TestHandleList_Pagination(t *testing.T) {
	env := setupEnv(t)
	seedUniverse(t, env)

	code, body := env.get(t, "/companies?limit=2&page=2")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"BIGB", "NOSC"}, tickersOf(dataRows(t, body)))

	p := body["pagination"].(map[string]interface{})
	assert.Equal(t, float64(2), p["page"])
	assert.Equal(t, float64(4), p["total"])
	assert.Equal(t, float64(2), p["pages"])

	// Past the last page: empty data, stable envelope.
	code, body = env.get(t, "/companies?limit=2&page=5")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, dataRows(t, body))
}

func TestHandleList_InvalidParams(t *testing.T) {
	env := setupEnv(t)
	seedUniverse(t, env)

	paths := []string{
		"/companies?page=0",
		"/companies?page=x",
		"/companies?limit=0",
		"/companies?limit=101",
		"/companies?limit=ten",
		"/companies?min_score=abc",
		"/companies?min_score=150",
		"/companies?max_score=-5",
		"/companies?tier=SOLID",
		"/companies?sort_by=bogus",
		"/companies?sort_order=sideways",
	}
	for _, path := range paths {
		code, body := env.get(t, path)
		assert.Equal(t, http.StatusBadRequest, code, path)
		assert.NotEmpty(t, body["error"], path)
	}
}

func TestHandleSearch(t *testing.T) {
	env := setupEnv(t)
	env.addCompany(t, "GOLD", "Barrick Mining", "Materials", 0)
	env.addCompany(t, "AUMN", "Golden Minerals", "Materials", 0)
	env.addCompany(t, "BIGB", "Big Bank", "Financials", 0)

	code, body := env.get(t, "/companies/search?q=gold")
	require.Equal(t, http.StatusOK, code)
	rows := dataRows(t, body)
	require.Len(t, rows, 2)
	assert.Equal(t, "GOLD", rows[0]["ticker"])
	assert.Equal(t, "AUMN", rows[1]["ticker"])
	// Search rows are lean: no score join.
	_, hasScore := rows[0]["score"]
	assert.False(t, hasScore)

	code, body = env.get(t, "/companies/search")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.NotEmpty(t, body["error"])

	code, _ = env.get(t, "/companies/search?q=gold&limit=51")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHandleDetail(t *testing.T) {
	env := setupEnv(t)
	seedUniverse(t, env)

	auco, err := env.repo.GetByTicker("AUCO")
	require.NoError(t, err)
	require.NoError(t, env.repo.UpsertFundamental(&domain.Fundamental{
		CompanyID:    auco.ID,
		FiscalYear:   2025,
		ReportType:   "10-K",
		TotalAssets:  int64Ptr(10_000_000_000),
		TotalRevenue: int64Ptr(4_000_000_000),
	}))

	code, body := env.get(t, "/companies/auco")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "AUCO", body["ticker"])

	score := body["score"].(map[string]interface{})
	assert.Equal(t, 78.25, score["total"])
	assert.Equal(t, "RESILIENT", score["tier"])
	assert.Equal(t, "2026-03-02", score["date"])
	factors := score["factors"].(map[string]interface{})
	assert.Equal(t, 82.5, factors["hard_assets"])
	assert.Nil(t, factors["precious_metals"])
	scenarios := score["scenarios"].(map[string]interface{})
	assert.Equal(t, 71.3, scenarios["gradual"])
	assert.Nil(t, scenarios["hyper"])

	fundamentals := body["fundamentals"].(map[string]interface{})
	assert.Equal(t, float64(2025), fundamentals["fiscal_year"])
	assert.Equal(t, float64(10_000_000_000), fundamentals["total_assets"])

	// A company without score or fundamentals still resolves.
	code, body = env.get(t, "/companies/NOSC")
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["score"])
	assert.Nil(t, body["fundamentals"])

	code, body = env.get(t, "/companies/NOPE")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Company NOPE not found", body["error"])
}

func TestHandleScores(t *testing.T) {
	env := setupEnv(t)
	auco := env.addCompany(t, "AUCO", "Aurora Gold Corp", "Materials", 0)
	env.addScore(auco, "70.00", "RESILIENT", "2026-03-01")
	env.addScore(auco, "78.25", "RESILIENT", "2026-03-02")

	code, body := env.get(t, "/companies/AUCO/scores")
	require.Equal(t, http.StatusOK, code)
	rows := dataRows(t, body)
	require.Len(t, rows, 2)
	assert.Equal(t, "2026-03-02", rows[0]["date"])
	assert.Equal(t, 78.25, rows[0]["total_score"])
	assert.Contains(t, rows[0], "factors")
	assert.Contains(t, rows[0], "scenarios")

	code, body = env.get(t, "/companies/AUCO/scores?limit=1")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, dataRows(t, body), 1)

	code, _ = env.get(t, "/companies/AUCO/scores?limit=400")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.get(t, "/companies/AUCO/scores?start_date=03-01-2026")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.get(t, "/companies/NOPE/scores")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHandleFundamentals(t *testing.T) {
	env := setupEnv(t)
	auco := env.addCompany(t, "AUCO", "Aurora Gold Corp", "Materials", 0)
	for year := 2021; year <= 2025; year++ {
		require.NoError(t, env.repo.UpsertFundamental(&domain.Fundamental{
			CompanyID:  auco.ID,
			FiscalYear: year,
			ReportType: "10-K",
		}))
	}

	code, body := env.get(t, "/companies/AUCO/fundamentals?years=3")
	require.Equal(t, http.StatusOK, code)
	rows := dataRows(t, body)
	require.Len(t, rows, 3)
	assert.Equal(t, float64(2025), rows[0]["fiscal_year"])
	assert.Equal(t, float64(2023), rows[2]["fiscal_year"])

	code, _ = env.get(t, "/companies/AUCO/fundamentals?years=11")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.get(t, "/companies/NOPE/fundamentals")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHandlePeers(t *testing.T) {
	env := setupEnv(t)
	auco := env.addCompany(t, "AUCO", "Aurora Gold Corp", "Materials", 0)
	cumx := env.addCompany(t, "CUMX", "Copper Max", "Materials", 0)
	slvr := env.addCompany(t, "SLVR", "Silver Ridge", "Materials", 0)
	bigb := env.addCompany(t, "BIGB", "Big Bank", "Financials", 0)
	nosector := env.addCompany(t, "BLNK", "Blank Holdings", "", 0)

	env.addScore(auco, "78.25", "RESILIENT", "2026-03-02")
	env.addScore(cumx, "61.00", "MODERATE", "2026-03-02")
	env.addScore(slvr, "74.50", "RESILIENT", "2026-03-02")
	env.addScore(bigb, "32.40", "EXPOSED", "2026-03-02")

	code, body := env.get(t, "/companies/AUCO/peers")
	require.Equal(t, http.StatusOK, code)
	rows := dataRows(t, body)
	// Same sector only, self excluded, ranked by score.
	assert.Equal(t, []string{"SLVR", "CUMX"}, tickersOf(rows))
	assert.Equal(t, 74.5, rows[0]["score"])

	code, body = env.get(t, "/companies/"+nosector.Ticker+"/peers")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, dataRows(t, body))
}

func int64Ptr(v int64) *int64 {
	return &v
}
