package secedgar

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hedge/internal/clientdata"
)

func TestNewClient(t *testing.T) {
	client := NewClient("HEDGE test@example.com", nil, zerolog.Nop())
	assert.NotNil(t, client)
	assert.Equal(t, "HEDGE test@example.com", client.userAgent)
}

func TestNormalizeCIK(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"1164727", "0001164727"},
		{"0001164727", "0001164727"},
		{" 320193 ", "0000320193"},
		{"0", "0000000000"},
		{"", "0000000000"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizeCIK(tc.input))
		})
	}
}

func setupCacheRepo(t *testing.T) *clientdata.Repository {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE sec_submissions (cik TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL);
		CREATE TABLE sec_company_facts (cik TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL);
	`)
	require.NoError(t, err)

	return clientdata.NewRepository(db)
}

func TestGetSubmissions_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/submissions/CIK0001164727.json", r.URL.Path)
		assert.Equal(t, "HEDGE test@example.com", r.Header.Get("User-Agent"))

		resp := Submissions{
			CIK:            "1164727",
			SIC:            "1040",
			SICDescription: "Gold Mining",
			Name:           "NEWMONT Corp",
			Tickers:        []string{"NEM"},
			Exchanges:      []string{"NYSE"},
			Filings: FilingsSection{
				Recent: RecentFilings{
					AccessionNumber: []string{"0001164727-25-000011"},
					FilingDate:      []string{"2025-02-21"},
					Form:            []string{"10-K"},
					PrimaryDocument: []string{"nem-20241231.htm"},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient("HEDGE test@example.com", nil, zerolog.Nop())
	client.dataBaseURL = server.URL

	subs, err := client.GetSubmissions(context.Background(), "1164727")
	require.NoError(t, err)
	require.NotNil(t, subs)

	assert.Equal(t, "NEWMONT Corp", subs.Name)
	assert.Equal(t, "Gold Mining", subs.SICDescription)
	assert.Equal(t, []string{"NEM"}, subs.Tickers)
	require.Len(t, subs.Filings.Recent.Form, 1)
	assert.Equal(t, "10-K", subs.Filings.Recent.Form[0])
}

func TestGetSubmissions_CacheHit(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		json.NewEncoder(w).Encode(Submissions{CIK: "1164727", Name: "NEWMONT Corp"})
	}))
	defer server.Close()

	client := NewClient("HEDGE test@example.com", setupCacheRepo(t), zerolog.Nop())
	client.dataBaseURL = server.URL

	// First call hits the server, second is served from cache.
	_, err := client.GetSubmissions(context.Background(), "1164727")
	require.NoError(t, err)

	subs, err := client.GetSubmissions(context.Background(), "1164727")
	require.NoError(t, err)
	assert.Equal(t, "NEWMONT Corp", subs.Name)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestGetSubmissions_StaleFallback(t *testing.T) {
	cacheRepo := setupCacheRepo(t)

	// Seed an already-expired cache entry.
	stale := Submissions{CIK: "1164727", Name: "NEWMONT Corp (stale)"}
	require.NoError(t, cacheRepo.Store("sec_submissions", "0001164727", &stale, -1))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient("HEDGE test@example.com", cacheRepo, zerolog.Nop())
	client.dataBaseURL = server.URL

	subs, err := client.GetSubmissions(context.Background(), "1164727")
	require.NoError(t, err, "stale cache should rescue a failed request")
	assert.Equal(t, "NEWMONT Corp (stale)", subs.Name)
}

func TestGetCompanyFacts_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/xbrl/companyfacts/CIK0001164727.json", r.URL.Path)

		resp := CompanyFacts{
			CIK:        1164727,
			EntityName: "NEWMONT CORPORATION",
			Facts: map[string]map[string]Fact{
				"us-gaap": {
					"Assets": {
						Label: "Assets",
						Units: map[string][]FactValue{
							"USD": {
								{End: "2024-12-31", Val: 55506000000, FY: 2024, FP: "FY", Form: "10-K"},
							},
						},
					},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient("HEDGE test@example.com", nil, zerolog.Nop())
	client.dataBaseURL = server.URL

	facts, err := client.GetCompanyFacts(context.Background(), "1164727")
	require.NoError(t, err)
	require.NotNil(t, facts)

	assert.Equal(t, "NEWMONT CORPORATION", facts.EntityName)
	assets := facts.Facts["us-gaap"]["Assets"].Units["USD"]
	require.Len(t, assets, 1)
	assert.InDelta(t, 55506000000, assets[0].Val, 1)
	assert.Equal(t, 2024, assets[0].FY)
}

func TestGetCompanyFacts_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient("HEDGE test@example.com", nil, zerolog.Nop())
	client.dataBaseURL = server.URL

	_, err := client.GetCompanyFacts(context.Background(), "9999999999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestGetJSON_RetriesOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(Submissions{CIK: "1164727", Name: "NEWMONT Corp"})
	}))
	defer server.Close()

	client := NewClient("HEDGE test@example.com", nil, zerolog.Nop())
	client.dataBaseURL = server.URL

	subs, err := client.GetSubmissions(context.Background(), "1164727")
	require.NoError(t, err)
	assert.Equal(t, "NEWMONT Corp", subs.Name)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFindCIKByTicker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/company_tickers.json", r.URL.Path)

		raw := map[string]TickerEntry{
			"0": {CIK: 320193, Ticker: "AAPL", Title: "Apple Inc."},
			"1": {CIK: 1164727, Ticker: "NEM", Title: "NEWMONT Corp"},
		}
		json.NewEncoder(w).Encode(raw)
	}))
	defer server.Close()

	client := NewClient("HEDGE test@example.com", nil, zerolog.Nop())
	client.filesURL = server.URL

	cik, err := client.FindCIKByTicker(context.Background(), "nem")
	require.NoError(t, err)
	assert.Equal(t, "0001164727", cik)

	cik, err = client.FindCIKByTicker(context.Background(), "UNKNOWN")
	require.NoError(t, err)
	assert.Empty(t, cik)
}
