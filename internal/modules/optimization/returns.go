package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// CalculateReturns converts a price series into simple daily returns:
// r[i] = (p[i+1] - p[i]) / p[i]. The result has len(prices)-1 elements.
func CalculateReturns(prices []float64) ([]float64, error) {
	if len(prices) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 prices, got %d", ErrInsufficientData, len(prices))
	}

	for i, p := range prices {
		if !(p > 0) || math.IsInf(p, 1) {
			return nil, fmt.Errorf("%w: %v at index %d", ErrInvalidPrice, p, i)
		}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
	}

	return returns, nil
}

// EstimateAssetStats computes daily mean and sample standard deviation (N-1)
// of a return series and their annualized counterparts.
func EstimateAssetStats(ticker string, returns []float64) (AssetStats, error) {
	if len(returns) < 2 {
		return AssetStats{}, fmt.Errorf("%w: %s needs at least 2 returns, got %d", ErrInsufficientData, ticker, len(returns))
	}

	mean, std := stat.MeanStdDev(returns, nil)

	kept := make([]float64, len(returns))
	copy(kept, returns)

	return AssetStats{
		Ticker:          ticker,
		ExpectedReturn:  mean * TradingDaysPerYear,
		Volatility:      std * math.Sqrt(TradingDaysPerYear),
		DailyReturn:     mean,
		DailyVolatility: std,
		Returns:         kept,
	}, nil
}

// AnalyzeAsset computes statistics for one price series together with
// the price summary shown by batch analysis.
func AnalyzeAsset(asset AssetPrices) (AssetAnalysis, error) {
	returns, err := CalculateReturns(asset.Prices)
	if err != nil {
		return AssetAnalysis{}, fmt.Errorf("%s: %w", asset.Ticker, err)
	}

	stats, err := EstimateAssetStats(asset.Ticker, returns)
	if err != nil {
		return AssetAnalysis{}, err
	}
	stats.Returns = nil

	start := asset.Prices[0]
	end := asset.Prices[len(asset.Prices)-1]

	return AssetAnalysis{
		Ticker:      asset.Ticker,
		Stats:       &stats,
		DataPoints:  len(asset.Prices),
		StartPrice:  start,
		EndPrice:    end,
		TotalReturn: (end - start) / start,
	}, nil
}

// AlignTail truncates every price series to the length of the shortest one,
// keeping the most recent observations. Inputs are not modified.
func AlignTail(assets []AssetPrices) ([]AssetPrices, int) {
	if len(assets) == 0 {
		return nil, 0
	}

	shortest := len(assets[0].Prices)
	for _, a := range assets[1:] {
		if len(a.Prices) < shortest {
			shortest = len(a.Prices)
		}
	}

	aligned := make([]AssetPrices, len(assets))
	for i, a := range assets {
		prices := make([]float64, shortest)
		copy(prices, a.Prices[len(a.Prices)-shortest:])
		aligned[i] = AssetPrices{Ticker: a.Ticker, Prices: prices}
	}

	return aligned, shortest
}
