package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingModule struct{}

func (pingModule) RegisterRoutes(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"pong":true}`))
	})
}

func TestServer_Health(t *testing.T) {
	srv := New(Config{Log: zerolog.Nop(), Port: 0})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["version"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestServer_MountsModulesUnderAPIPrefix(t *testing.T) {
	srv := New(Config{
		Log:     zerolog.Nop(),
		Port:    0,
		Modules: []ModuleRouter{pingModule{}},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Module routes do not leak outside the prefix.
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_RateLimitReturns429(t *testing.T) {
	srv := New(Config{
		Log:                zerolog.Nop(),
		Port:               0,
		Modules:            []ModuleRouter{pingModule{}},
		RateLimitPerSecond: 1,
		RateLimitBurst:     2,
	})

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
		req.RemoteAddr = "203.0.113.9:1234"
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Contains(t, codes[2:], http.StatusTooManyRequests)
}

func TestServer_RateLimitIsPerIP(t *testing.T) {
	srv := New(Config{
		Log:                zerolog.Nop(),
		Port:               0,
		Modules:            []ModuleRouter{pingModule{}},
		RateLimitPerSecond: 1,
		RateLimitBurst:     1,
	})

	first := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	first.RemoteAddr = "203.0.113.9:1234"
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	exhausted := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	exhausted.RemoteAddr = "203.0.113.9:9999"
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, exhausted)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// A different client keeps its own bucket.
	other := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	other.RemoteAddr = "198.51.100.7:1234"
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_NoLimiterWhenDisabled(t *testing.T) {
	srv := New(Config{
		Log:     zerolog.Nop(),
		Port:    0,
		Modules: []ModuleRouter{pingModule{}},
	})

	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
		req.RemoteAddr = "203.0.113.9:1234"
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
}
