package metalsdev

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
	"golang.org/x/time/rate"

	"github.com/aristath/hedge/internal/clientdata"
)

func setupCacheRepo(t *testing.T) *clientdata.Repository {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE metals_spot (metal TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL)`)
	require.NoError(t, err)

	return clientdata.NewRepository(db)
}

func spotHandler(hits *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":   "success",
			"currency": "USD",
			"unit":     "toz",
			"metals": map[string]float64{
				"gold":      2350.25,
				"silver":    28.54,
				"platinum":  970.10,
				"palladium": 930.00,
			},
		})
	}
}

func TestGetSpot_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest", r.URL.Path)
		assert.Equal(t, "demo", r.URL.Query().Get("api_key"))
		assert.Equal(t, "USD", r.URL.Query().Get("currency"))
		assert.Equal(t, "toz", r.URL.Query().Get("unit"))
		spotHandler(nil)(w, r)
	}))
	defer server.Close()

	client := NewClient("demo", nil, zerolog.Nop())
	client.baseURL = server.URL

	spot, err := client.GetSpot(context.Background(), MetalGold)
	require.NoError(t, err)
	require.NotNil(t, spot)

	assert.Equal(t, "gold", spot.Metal)
	assert.InDelta(t, 2350.25, spot.Price, 0.001)
	assert.Equal(t, "USD", spot.Currency)
	assert.Equal(t, "toz", spot.Unit)
}

func TestGetSpot_OneFetchWarmsBothMetals(t *testing.T) {
	var hits int32
	server := httptest.NewServer(spotHandler(&hits))
	defer server.Close()

	client := NewClient("demo", setupCacheRepo(t), zerolog.Nop())
	client.baseURL = server.URL

	gold, err := client.GetSpot(context.Background(), MetalGold)
	require.NoError(t, err)
	assert.InDelta(t, 2350.25, gold.Price, 0.001)

	// Silver was cached by the gold fetch.
	silver, err := client.GetSpot(context.Background(), MetalSilver)
	require.NoError(t, err)
	assert.InDelta(t, 28.54, silver.Price, 0.001)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestGetSpot_UnknownMetal(t *testing.T) {
	server := httptest.NewServer(spotHandler(nil))
	defer server.Close()

	client := NewClient("demo", nil, zerolog.Nop())
	client.baseURL = server.URL

	_, err := client.GetSpot(context.Background(), "unobtainium")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unobtainium")
}

func TestGetSpot_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "failure"})
	}))
	defer server.Close()

	client := NewClient("demo", nil, zerolog.Nop())
	client.baseURL = server.URL

	_, err := client.GetSpot(context.Background(), MetalGold)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failure")
}

func TestGetSpot_StaleFallback(t *testing.T) {
	cacheRepo := setupCacheRepo(t)

	// Seed an already-expired gold quote.
	stale := SpotPrice{Metal: "gold", Price: 2290.00, Currency: "USD", Unit: "toz"}
	require.NoError(t, cacheRepo.Store("metals_spot", "gold", &stale, -1))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient("demo", cacheRepo, zerolog.Nop())
	client.baseURL = server.URL
	client.limiter = rate.NewLimiter(rate.Inf, 1) // keep retries from stalling the test

	spot, err := client.GetSpot(context.Background(), MetalGold)
	require.NoError(t, err, "stale cache should rescue a failed request")
	assert.InDelta(t, 2290.00, spot.Price, 0.001)
}
