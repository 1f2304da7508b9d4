package optimization

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

// syntheticPrices generates a deterministic random walk starting at 100.
func syntheticPrices(seed int64, n int, drift, vol float64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	prices := make([]float64, n)
	prices[0] = 100
	for i := 1; i < n; i++ {
		prices[i] = prices[i-1] * (1 + drift + vol*rng.NormFloat64())
	}
	return prices
}

func testAssets() []AssetPrices {
	return []AssetPrices{
		{Ticker: "AAA", Prices: syntheticPrices(1, 120, 0.0008, 0.012)},
		{Ticker: "BBB", Prices: syntheticPrices(2, 120, 0.0003, 0.006)},
		{Ticker: "CCC", Prices: syntheticPrices(3, 120, 0.0011, 0.02)},
	}
}

func testCovariance() *mat.SymDense {
	return mat.NewSymDense(3, []float64{
		0.040, 0.006, 0.004,
		0.006, 0.020, 0.002,
		0.004, 0.002, 0.090,
	})
}

var testExpectedReturns = []float64{0.10, 0.06, 0.15}

func assertValidWeights(t *testing.T, weights []float64) {
	t.Helper()
	sum := 0.0
	for _, w := range weights {
		assert.GreaterOrEqual(t, w, 0.0, "weights should be non-negative")
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9, "weights should sum to 1")
}
