package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu     sync.Mutex
	series map[string][]PricePoint
	errs   map[string]error
	calls  []string
}

func (f *fakeProvider) GetDailyPrices(_ context.Context, symbol string, _, _ time.Time) ([]PricePoint, error) {
	f.mu.Lock()
	f.calls = append(f.calls, symbol)
	f.mu.Unlock()

	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	points, ok := f.series[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol %s", symbol)
	}
	return points, nil
}

func dailySeries(n int, start float64) []PricePoint {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]PricePoint, n)
	for i := range points {
		points[i] = PricePoint{Date: base.AddDate(0, 0, i), Close: start + float64(i)}
	}
	return points
}

func TestFetchHistories(t *testing.T) {
	provider := &fakeProvider{
		series: map[string][]PricePoint{
			"AAPL": dailySeries(40, 100),
			"MSFT": dailySeries(40, 200),
			"TINY": dailySeries(5, 10),
		},
		errs: map[string]error{"FAIL": errors.New("boom")},
	}
	svc := NewService(provider, 2, 30, zerolog.Nop())

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	histories := svc.FetchHistories(context.Background(), []string{"AAPL", "FAIL", "MSFT", "TINY"}, from, from.AddDate(0, 3, 0))
	require.Len(t, histories, 4)

	assert.Equal(t, "AAPL", histories[0].Ticker)
	assert.NoError(t, histories[0].Err)
	assert.Len(t, histories[0].Points, 40)

	assert.Equal(t, "FAIL", histories[1].Ticker)
	assert.Error(t, histories[1].Err)

	assert.NoError(t, histories[2].Err)

	assert.Equal(t, "TINY", histories[3].Ticker)
	assert.ErrorIs(t, histories[3].Err, optimization.ErrInsufficientData)

	assert.Len(t, provider.calls, 4)
}

func TestFetchHistories_InvalidSeries(t *testing.T) {
	bad := dailySeries(40, 100)
	bad[10].Close = 0
	provider := &fakeProvider{series: map[string][]PricePoint{"BAD": bad}}
	svc := NewService(provider, 1, 30, zerolog.Nop())

	histories := svc.FetchHistories(context.Background(), []string{"BAD"}, time.Time{}, time.Now())
	assert.ErrorIs(t, histories[0].Err, ErrInvalidSeries)
}

func TestFetchHistories_CancelledContext(t *testing.T) {
	provider := &fakeProvider{series: map[string][]PricePoint{"AAPL": dailySeries(40, 100)}}
	svc := NewService(provider, 1, 30, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	histories := svc.FetchHistories(ctx, []string{"AAPL"}, time.Time{}, time.Now())
	assert.ErrorIs(t, histories[0].Err, context.Canceled)
	assert.Empty(t, provider.calls)
}

func TestValidateSeries(t *testing.T) {
	assert.NoError(t, ValidateSeries(dailySeries(3, 1)))
	assert.NoError(t, ValidateSeries(nil))

	negative := dailySeries(3, 1)
	negative[1].Close = -1
	assert.ErrorIs(t, ValidateSeries(negative), ErrInvalidSeries)

	unordered := dailySeries(3, 1)
	unordered[2].Date = unordered[1].Date
	assert.ErrorIs(t, ValidateSeries(unordered), ErrInvalidSeries)
}

func TestNormalizeTickers(t *testing.T) {
	got := NormalizeTickers([]string{" aapl", "MSFT", "", "AAPL", "goog "})
	assert.Equal(t, []string{"AAPL", "MSFT", "GOOG"}, got)
}

func TestSplit(t *testing.T) {
	histories := []History{
		{Ticker: "AAPL", Points: dailySeries(3, 10)},
		{Ticker: "FAIL", Err: errors.New("not found")},
	}

	assets, failures := Split(histories)
	require.Len(t, assets, 1)
	assert.Equal(t, "AAPL", assets[0].Ticker)
	assert.Equal(t, []float64{10, 11, 12}, assets[0].Prices)

	require.Len(t, failures, 1)
	assert.Equal(t, FetchFailure{Ticker: "FAIL", Error: "not found"}, failures[0])
}

func TestNewService_Defaults(t *testing.T) {
	svc := NewService(&fakeProvider{}, 0, 0, zerolog.Nop())
	assert.Equal(t, DefaultConcurrency, svc.concurrency)
	assert.Equal(t, 2, svc.MinPoints())
}
