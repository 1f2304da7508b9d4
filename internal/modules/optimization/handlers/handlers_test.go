package handlers

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/frontier/internal/clients/yahoo"
	"github.com/aristath/frontier/internal/modules/marketdata"
	"github.com/aristath/frontier/internal/modules/optimization"
	testutil "github.com/aristath/frontier/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	points    int
	searchErr error
}

func (f *fakeClient) GetDailyPrices(_ context.Context, symbol string, from, _ time.Time) ([]marketdata.PricePoint, error) {
	switch symbol {
	case "MISSING":
		return nil, fmt.Errorf("%s: %w", symbol, yahoo.ErrSymbolNotFound)
	case "SHORT":
		return testutil.SyntheticPrices(symbol, from, 5), nil
	}
	return testutil.SyntheticPrices(symbol, from, f.points), nil
}

func (f *fakeClient) GetQuote(_ context.Context, symbol string) (*yahoo.Quote, error) {
	if symbol == "MISSING" {
		return nil, yahoo.ErrSymbolNotFound
	}
	return &yahoo.Quote{Symbol: symbol, Price: 123.45, Currency: "USD"}, nil
}

func (f *fakeClient) Search(_ context.Context, query string) ([]yahoo.SearchResult, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return []yahoo.SearchResult{{Symbol: "AAPL", Name: "Apple Inc.", Exchange: "NASDAQ", QuoteType: "EQUITY"}}, nil
}

func setupRouter(t *testing.T, client *fakeClient) http.Handler {
	t.Helper()
	log := zerolog.Nop()
	optimizer := optimization.NewService(optimization.Options{
		NumPortfolios:   500,
		RiskFreeRate:    optimization.DefaultRiskFreeRate,
		FrontierPoints:  10,
		SamplesPerPoint: 200,
		Workers:         2,
	}, log)
	market := marketdata.NewService(client, 2, 30, log)
	handler := NewHandler(optimizer, market, client, log)

	router := chi.NewRouter()
	router.Route("/api", handler.RegisterRoutes)
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type optimizeResponse struct {
	Data     optimization.OptimizationResult `json:"data"`
	Metadata struct {
		FailedTickers []marketdata.FetchFailure `json:"failedTickers"`
	} `json:"metadata"`
}

func TestHandleOptimize(t *testing.T) {
	router := setupRouter(t, &fakeClient{points: 90})

	w := doJSON(t, router, http.MethodPost, "/api/portfolio/optimize", map[string]interface{}{
		"tickers":       []string{"aapl", "MSFT", "GOOG"},
		"startDate":     "2024-01-01",
		"endDate":       "2024-06-30",
		"numPortfolios": 300,
		"seed":          42,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp optimizeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"AAPL", "MSFT", "GOOG"}, resp.Data.Metadata.Tickers)
	assert.Equal(t, 300, resp.Data.Metadata.NumPortfolios)
	assert.Equal(t, optimization.DefaultRiskFreeRate, resp.Data.Metadata.RiskFreeRate)
	assert.Equal(t, int64(42), resp.Data.Metadata.Seed)
	assert.Len(t, resp.Data.AssetStats, 3)
	require.NotNil(t, resp.Data.BestPortfolio)
	assert.NotEmpty(t, resp.Data.EfficientFrontier)
	assert.Empty(t, resp.Metadata.FailedTickers)
}

func TestHandleOptimize_PartialFailure(t *testing.T) {
	router := setupRouter(t, &fakeClient{points: 90})

	w := doJSON(t, router, http.MethodPost, "/api/portfolio/optimize", map[string]interface{}{
		"tickers":   []string{"AAPL", "MSFT", "MISSING", "SHORT"},
		"startDate": "2024-01-01",
		"endDate":   "2024-06-30",
		"strategy":  "analytic",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp optimizeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"AAPL", "MSFT"}, resp.Data.Metadata.Tickers)
	require.Len(t, resp.Metadata.FailedTickers, 2)
	assert.Equal(t, "MISSING", resp.Metadata.FailedTickers[0].Ticker)
	assert.Equal(t, "SHORT", resp.Metadata.FailedTickers[1].Ticker)
	assert.GreaterOrEqual(t, len(resp.Data.Warnings), 2)
}

func TestHandleOptimize_BadRequests(t *testing.T) {
	router := setupRouter(t, &fakeClient{points: 90})

	tests := []struct {
		name string
		body interface{}
	}{
		{"single ticker", map[string]interface{}{"tickers": []string{"AAPL"}}},
		{"duplicate tickers collapse", map[string]interface{}{"tickers": []string{"AAPL", "aapl"}}},
		{"bad start date", map[string]interface{}{"tickers": []string{"AAPL", "MSFT"}, "startDate": "01/01/2024"}},
		{"start after end", map[string]interface{}{"tickers": []string{"AAPL", "MSFT"}, "startDate": "2024-06-01", "endDate": "2024-01-01"}},
		{"zero portfolios", map[string]interface{}{"tickers": []string{"AAPL", "MSFT"}, "numPortfolios": 0}},
		{"unknown strategy", map[string]interface{}{"tickers": []string{"AAPL", "MSFT"}, "strategy": "genetic"}},
		{"unknown field", map[string]interface{}{"tickers": []string{"AAPL", "MSFT"}, "foo": 1}},
		{"too few usable", map[string]interface{}{"tickers": []string{"AAPL", "MISSING"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/api/portfolio/optimize", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestHandleOptimize_TooFewUsableIncludesDetails(t *testing.T) {
	router := setupRouter(t, &fakeClient{points: 90})

	w := doJSON(t, router, http.MethodPost, "/api/portfolio/optimize", map[string]interface{}{
		"tickers": []string{"AAPL", "MISSING"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Error   string                    `json:"error"`
		Details []marketdata.FetchFailure `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Details, 1)
	assert.Equal(t, "MISSING", body.Details[0].Ticker)
}

func TestHandleFrontierCSV(t *testing.T) {
	router := setupRouter(t, &fakeClient{points: 90})

	w := doJSON(t, router, http.MethodPost, "/api/portfolio/frontier.csv", map[string]interface{}{
		"tickers":   []string{"AAPL", "MSFT"},
		"startDate": "2024-01-01",
		"endDate":   "2024-06-30",
		"seed":      7,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "efficient-frontier.csv")

	records, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, []string{"volatility", "expected_return", "sharpe_ratio", "AAPL", "MSFT"}, records[0])
	assert.Greater(t, len(records), 1)
}

func TestHandleAnalyze(t *testing.T) {
	router := setupRouter(t, &fakeClient{points: 60})

	w := doJSON(t, router, http.MethodPost, "/api/stocks/analyze", map[string]interface{}{
		"tickers":   []string{"AAPL", "MISSING", "MSFT"},
		"startDate": "2024-01-01",
		"endDate":   "2024-06-30",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data []optimization.AssetAnalysis `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 3)

	assert.Equal(t, "AAPL", resp.Data[0].Ticker)
	require.NotNil(t, resp.Data[0].Stats)
	assert.Equal(t, 60, resp.Data[0].DataPoints)
	assert.Empty(t, resp.Data[0].Error)

	assert.Equal(t, "MISSING", resp.Data[1].Ticker)
	assert.Nil(t, resp.Data[1].Stats)
	assert.NotEmpty(t, resp.Data[1].Error)

	assert.Equal(t, "MSFT", resp.Data[2].Ticker)
	assert.NotNil(t, resp.Data[2].Stats)
}

func TestHandleAnalyze_NoTickers(t *testing.T) {
	router := setupRouter(t, &fakeClient{points: 60})
	w := doJSON(t, router, http.MethodPost, "/api/stocks/analyze", map[string]interface{}{"tickers": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetHistory(t *testing.T) {
	router := setupRouter(t, &fakeClient{points: 10})

	w := doJSON(t, router, http.MethodGet, "/api/stock/aapl/history?startDate=2024-01-01&endDate=2024-02-01", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			Symbol string                  `json:"symbol"`
			Prices []marketdata.PricePoint `json:"prices"`
			Count  int                     `json:"count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "AAPL", resp.Data.Symbol)
	assert.Equal(t, 10, resp.Data.Count)
	assert.Len(t, resp.Data.Prices, 10)

	w = doJSON(t, router, http.MethodGet, "/api/stock/MISSING/history", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetQuote(t *testing.T) {
	router := setupRouter(t, &fakeClient{points: 10})

	w := doJSON(t, router, http.MethodGet, "/api/stock/AAPL", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data yahoo.Quote `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "AAPL", resp.Data.Symbol)
	assert.Equal(t, 123.45, resp.Data.Price)

	w = doJSON(t, router, http.MethodGet, "/api/stock/MISSING", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleSearch(t *testing.T) {
	router := setupRouter(t, &fakeClient{points: 10})

	w := doJSON(t, router, http.MethodGet, "/api/search?query=apple", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []yahoo.SearchResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "AAPL", resp.Data[0].Symbol)

	w = doJSON(t, router, http.MethodGet, "/api/search", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSearch_BreakerOpen(t *testing.T) {
	router := setupRouter(t, &fakeClient{points: 10, searchErr: gobreaker.ErrOpenState})

	w := doJSON(t, router, http.MethodGet, "/api/search?query=apple", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestParseRange(t *testing.T) {
	from, to, err := parseRange("2024-01-01", "2024-12-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), to)

	from, to, err = parseRange("", "2024-12-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), to)

	_, _, err = parseRange("2024-12-31", "2024-12-31")
	assert.Error(t, err)
}
