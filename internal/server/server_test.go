package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/di"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		DataDir: t.TempDir(),
		Port:    8001,
		Optimizer: config.OptimizerConfig{
			NumPortfolios:   100,
			RiskFreeRate:    0.02,
			Strategy:        "sampled",
			FrontierPoints:  5,
			SamplesPerPoint: 50,
			ReturnTolerance: 0.01,
			MinDataPoints:   30,
			Workers:         1,
		},
		Yahoo: config.YahooConfig{
			BaseURL:          "http://127.0.0.1:1",
			FetchConcurrency: 1,
		},
		CacheCleanupSchedule:  "0 0 3 * * *",
		WALCheckpointSchedule: "0 30 * * * *",
	}

	container, jobs, err := di.Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	srv := New(Config{Log: zerolog.Nop(), Port: cfg.Port, DevMode: true, Container: container})
	srv.SetJobs(jobs)
	return srv
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "frontier", body["service"])
}

func TestSystemStatus(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/system/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var status SystemStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "closed", status.YahooBreaker)
	assert.Contains(t, status.CacheEntries, "yahoo_history")
	require.NotNil(t, status.CacheDB)
	assert.Greater(t, status.CacheDB.PageSize, int64(0))
	assert.Greater(t, status.Goroutines, 0)
	assert.Nil(t, status.LastCleanup)
}

func TestTriggerJob(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/system/jobs/cache_cleanup", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "success", body["status"])

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/system/status", nil))
	var status SystemStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.NotNil(t, status.LastCleanup)
	assert.Contains(t, status.LastCleanup.Remaining, "yahoo_quote")

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/system/jobs/unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPIRoutesMounted(t *testing.T) {
	srv := newTestServer(t)

	// Validation fails before any upstream request is made.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/portfolio/optimize", bytes.NewBufferString(`{"tickers":["AAPL"]}`))
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/search", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/portfolio/optimize", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
