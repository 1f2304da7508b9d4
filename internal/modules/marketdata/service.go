package marketdata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidSeries is returned when a provider history breaks price or ordering rules.
var ErrInvalidSeries = errors.New("invalid price series")

// DefaultConcurrency bounds simultaneous provider requests.
const DefaultConcurrency = 4

// Service fetches and validates price histories for many tickers.
type Service struct {
	provider    PriceProvider
	concurrency int
	minPoints   int
	log         zerolog.Logger
}

// NewService creates a market data service.
func NewService(provider PriceProvider, concurrency, minPoints int, log zerolog.Logger) *Service {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	if minPoints < 2 {
		minPoints = 2
	}
	return &Service{
		provider:    provider,
		concurrency: concurrency,
		minPoints:   minPoints,
		log:         log.With().Str("service", "marketdata").Logger(),
	}
}

// MinPoints returns the minimum history length accepted per ticker.
func (s *Service) MinPoints() int {
	return s.minPoints
}

// FetchHistories loads every ticker concurrently. Results keep the order of tickers.
// A failing ticker records its error in its own History and never cancels the others.
func (s *Service) FetchHistories(ctx context.Context, tickers []string, from, to time.Time) []History {
	histories := make([]History, len(tickers))

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i, ticker := range tickers {
		i, ticker := i, ticker
		histories[i].Ticker = ticker
		g.Go(func() error {
			points, err := s.fetchOne(ctx, ticker, from, to)
			if err != nil {
				s.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to load price history")
				histories[i].Err = err
				return nil
			}
			histories[i].Points = points
			return nil
		})
	}
	_ = g.Wait()

	return histories
}

func (s *Service) fetchOne(ctx context.Context, ticker string, from, to time.Time) ([]PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	points, err := s.provider.GetDailyPrices(ctx, ticker, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", ticker, err)
	}
	if err := ValidateSeries(points); err != nil {
		return nil, fmt.Errorf("%s: %w", ticker, err)
	}
	if len(points) < s.minPoints {
		return nil, fmt.Errorf("%s has %d data points, need %d: %w",
			ticker, len(points), s.minPoints, optimization.ErrInsufficientData)
	}
	return points, nil
}

// ValidateSeries checks that prices are positive and finite and dates strictly increase.
func ValidateSeries(points []PricePoint) error {
	for i, p := range points {
		if !(p.Close > 0) || math.IsInf(p.Close, 0) {
			return fmt.Errorf("%w: price %v at %s", ErrInvalidSeries, p.Close, p.Date.Format("2006-01-02"))
		}
		if i > 0 && !p.Date.After(points[i-1].Date) {
			return fmt.Errorf("%w: timestamps not strictly increasing at %s", ErrInvalidSeries, p.Date.Format("2006-01-02"))
		}
	}
	return nil
}

// NormalizeTickers upper-cases, trims and de-duplicates tickers, keeping first-seen order.
func NormalizeTickers(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Split separates usable histories from failed ones.
func Split(histories []History) ([]optimization.AssetPrices, []FetchFailure) {
	assets := make([]optimization.AssetPrices, 0, len(histories))
	var failures []FetchFailure
	for _, h := range histories {
		if h.Err != nil {
			failures = append(failures, FetchFailure{Ticker: h.Ticker, Error: h.Err.Error()})
			continue
		}
		assets = append(assets, optimization.AssetPrices{Ticker: h.Ticker, Prices: h.Closes()})
	}
	return assets, failures
}
