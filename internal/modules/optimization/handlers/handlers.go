// Package handlers provides HTTP handlers for portfolio optimization and market data lookups.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/frontier/internal/clients/yahoo"
	"github.com/aristath/frontier/internal/modules/marketdata"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

const (
	dateLayout       = "2006-01-02"
	maxTickers       = 50
	maxNumPortfolios = 100000
	maxBodyBytes     = 1 << 20
	defaultLookback  = 1 // years
)

// MarketClient is the subset of the market data client used by the lookup endpoints.
type MarketClient interface {
	marketdata.PriceProvider
	GetQuote(ctx context.Context, symbol string) (*yahoo.Quote, error)
	Search(ctx context.Context, query string) ([]yahoo.SearchResult, error)
}

// Handler handles optimization HTTP requests
type Handler struct {
	optimizer *optimization.Service
	market    *marketdata.Service
	client    MarketClient
	log       zerolog.Logger
}

// NewHandler creates a new optimization handler
func NewHandler(
	optimizer *optimization.Service,
	market *marketdata.Service,
	client MarketClient,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		optimizer: optimizer,
		market:    market,
		client:    client,
		log:       log.With().Str("handler", "optimization").Logger(),
	}
}

// OptimizeRequest is the JSON body of the optimize and frontier endpoints.
type OptimizeRequest struct {
	Tickers       []string `json:"tickers"`
	StartDate     string   `json:"startDate"`
	EndDate       string   `json:"endDate"`
	NumPortfolios *int     `json:"numPortfolios"`
	RiskFreeRate  *float64 `json:"riskFreeRate"`
	Seed          int64    `json:"seed"`
	Strategy      string   `json:"strategy"`
}

// AnalyzeRequest is the JSON body of the analyze endpoint.
type AnalyzeRequest struct {
	Tickers   []string `json:"tickers"`
	StartDate string   `json:"startDate"`
	EndDate   string   `json:"endDate"`
}

// requestError is a client error carrying optional structured details.
type requestError struct {
	status  int
	message string
	details interface{}
}

func (e *requestError) Error() string { return e.message }

func badRequest(format string, args ...interface{}) *requestError {
	return &requestError{status: http.StatusBadRequest, message: fmt.Sprintf(format, args...)}
}

// HandleOptimize handles POST /api/portfolio/optimize
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	result, failures, err := h.runOptimization(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp":     time.Now().Format(time.RFC3339),
			"failedTickers": failures,
		},
	})
}

// HandleFrontierCSV handles POST /api/portfolio/frontier.csv
func (h *Handler) HandleFrontierCSV(w http.ResponseWriter, r *http.Request) {
	result, _, err := h.runOptimization(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := optimization.WriteFrontierCSV(&buf, result.Metadata.Tickers, result.EfficientFrontier); err != nil {
		h.log.Error().Err(err).Msg("Failed to write frontier CSV")
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="efficient-frontier.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) runOptimization(r *http.Request) (*optimization.OptimizationResult, []marketdata.FetchFailure, error) {
	var req OptimizeRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, nil, err
	}

	tickers := marketdata.NormalizeTickers(req.Tickers)
	if len(tickers) < 2 {
		return nil, nil, badRequest("%s", optimization.ErrInsufficientTickers.Error())
	}
	if len(tickers) > maxTickers {
		return nil, nil, badRequest("at most %d tickers are allowed", maxTickers)
	}

	from, to, err := parseRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, nil, err
	}

	opts := h.optimizer.Options()
	numPortfolios := opts.NumPortfolios
	if req.NumPortfolios != nil {
		numPortfolios = *req.NumPortfolios
	}
	if numPortfolios < 1 || numPortfolios > maxNumPortfolios {
		return nil, nil, badRequest("numPortfolios must be between 1 and %d", maxNumPortfolios)
	}
	riskFree := opts.RiskFreeRate
	if req.RiskFreeRate != nil {
		riskFree = *req.RiskFreeRate
	}
	strategy := optimization.FrontierStrategy(strings.ToLower(req.Strategy))
	if strategy != "" && !strategy.Valid() {
		return nil, nil, badRequest("unknown strategy %q (expected %q or %q)",
			req.Strategy, optimization.StrategySampled, optimization.StrategyAnalytic)
	}

	histories := h.market.FetchHistories(r.Context(), tickers, from, to)
	assets, failures := marketdata.Split(histories)
	if len(assets) < 2 {
		return nil, nil, &requestError{
			status:  http.StatusBadRequest,
			message: fmt.Sprintf("need at least 2 tickers with usable price history, got %d", len(assets)),
			details: failures,
		}
	}

	result, err := h.optimizer.Optimize(r.Context(), optimization.OptimizeRequest{
		Assets:        assets,
		NumPortfolios: numPortfolios,
		RiskFreeRate:  riskFree,
		Seed:          req.Seed,
		Strategy:      strategy,
	})
	if err != nil {
		return nil, nil, err
	}

	for _, f := range failures {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s excluded: %s", f.Ticker, f.Error))
	}
	return result, failures, nil
}

// HandleAnalyze handles POST /api/stocks/analyze
func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	tickers := marketdata.NormalizeTickers(req.Tickers)
	if len(tickers) == 0 {
		h.writeError(w, badRequest("at least 1 ticker is required"))
		return
	}
	if len(tickers) > maxTickers {
		h.writeError(w, badRequest("at most %d tickers are allowed", maxTickers))
		return
	}

	from, to, err := parseRange(req.StartDate, req.EndDate)
	if err != nil {
		h.writeError(w, err)
		return
	}

	histories := h.market.FetchHistories(r.Context(), tickers, from, to)
	assets, _ := marketdata.Split(histories)
	analyzed := h.optimizer.Analyze(assets)

	byTicker := make(map[string]optimization.AssetAnalysis, len(analyzed))
	for _, a := range analyzed {
		byTicker[a.Ticker] = a
	}

	results := make([]optimization.AssetAnalysis, 0, len(histories))
	for _, hist := range histories {
		if hist.Err != nil {
			results = append(results, optimization.AssetAnalysis{Ticker: hist.Ticker, Error: hist.Err.Error()})
			continue
		}
		results = append(results, byTicker[hist.Ticker])
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": results,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"startDate": from.Format(dateLayout),
			"endDate":   to.Format(dateLayout),
		},
	})
}

// HandleGetHistory handles GET /api/stock/{symbol}/history
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request, symbol string) {
	from, to, err := parseRange(r.URL.Query().Get("startDate"), r.URL.Query().Get("endDate"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	points, err := h.client.GetDailyPrices(r.Context(), symbol, from, to)
	if err != nil {
		h.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to get price history")
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"symbol": symbol,
			"prices": points,
			"count":  len(points),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"startDate": from.Format(dateLayout),
			"endDate":   to.Format(dateLayout),
		},
	})
}

// HandleGetQuote handles GET /api/stock/{symbol}
func (h *Handler) HandleGetQuote(w http.ResponseWriter, r *http.Request, symbol string) {
	quote, err := h.client.GetQuote(r.Context(), symbol)
	if err != nil {
		h.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to get quote")
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": quote,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleSearch handles GET /api/search?query=
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		h.writeError(w, badRequest("query parameter is required"))
		return
	}

	results, err := h.client.Search(r.Context(), query)
	if err != nil {
		h.log.Warn().Err(err).Str("query", query).Msg("Search failed")
		h.writeError(w, err)
		return
	}
	if results == nil {
		results = []yahoo.SearchResult{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": results,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"count":     len(results),
		},
	})
}

func decodeJSON(r *http.Request, out interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

// parseRange parses YYYY-MM-DD dates. A missing end defaults to today and a
// missing start to one year before the end.
func parseRange(start, end string) (time.Time, time.Time, error) {
	to := time.Now().UTC().Truncate(24 * time.Hour)
	if end != "" {
		t, err := time.Parse(dateLayout, end)
		if err != nil {
			return time.Time{}, time.Time{}, badRequest("invalid endDate %q: expected YYYY-MM-DD", end)
		}
		to = t
	}

	from := to.AddDate(-defaultLookback, 0, 0)
	if start != "" {
		t, err := time.Parse(dateLayout, start)
		if err != nil {
			return time.Time{}, time.Time{}, badRequest("invalid startDate %q: expected YYYY-MM-DD", start)
		}
		from = t
	}

	if !from.Before(to) {
		return time.Time{}, time.Time{}, badRequest("startDate must be before endDate")
	}
	return from, to, nil
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := map[string]interface{}{"error": err.Error()}

	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		status = reqErr.status
		if reqErr.details != nil {
			body["details"] = reqErr.details
		}
	case optimization.IsInputError(err):
		status = http.StatusBadRequest
	case errors.Is(err, yahoo.ErrSymbolNotFound), errors.Is(err, yahoo.ErrNoData):
		status = http.StatusNotFound
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	h.writeJSON(w, status, body)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
