package optimization

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestEvaluatePortfolio_TwoAssets(t *testing.T) {
	cov := mat.NewSymDense(2, []float64{0.04, 0.01, 0.01, 0.03})

	perf, err := EvaluatePortfolio([]float64{0.5, 0.5}, []float64{0.12, 0.08}, cov)
	require.NoError(t, err)

	assert.InDelta(t, 0.10, perf.Return, 1e-12)
	assert.InDelta(t, 0.15, perf.Volatility, 1e-12)
}

func TestEvaluatePortfolio_SingleAsset(t *testing.T) {
	cov := mat.NewSymDense(1, []float64{0.09})

	perf, err := EvaluatePortfolio([]float64{1}, []float64{0.07}, cov)
	require.NoError(t, err)

	assert.InDelta(t, 0.07, perf.Return, 1e-12)
	assert.InDelta(t, 0.3, perf.Volatility, 1e-12)
}

func TestEvaluatePortfolio_NegativeVarianceClamped(t *testing.T) {
	// Not positive semi-definite.
	cov := mat.NewSymDense(2, []float64{1, 2, 2, 1})

	perf, err := EvaluatePortfolio([]float64{0.5, -0.5}, []float64{0.1, 0.1}, cov)
	require.NoError(t, err)
	assert.Equal(t, 0.0, perf.Volatility)
}

func TestEvaluatePortfolio_DimensionMismatch(t *testing.T) {
	cov := mat.NewSymDense(2, []float64{0.04, 0.01, 0.01, 0.03})

	_, err := EvaluatePortfolio([]float64{1}, []float64{0.12, 0.08}, cov)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = EvaluatePortfolio([]float64{0.5, 0.5}, []float64{0.12}, cov)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = EvaluatePortfolio(nil, nil, mat.NewSymDense(1, nil))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSharpeRatio(t *testing.T) {
	s, ok := SharpeRatio(0.12, 0.2, 0.02)
	assert.True(t, ok)
	assert.InDelta(t, 0.5, s, 1e-12)

	_, ok = SharpeRatio(0.12, 0, 0.02)
	assert.False(t, ok)

	_, ok = SharpeRatio(math.Inf(1), 0.2, 0.02)
	assert.False(t, ok)
}

func TestNormalizeWeights(t *testing.T) {
	w, ok := normalizeWeights([]float64{0.6, -0.2, 0.2})
	require.True(t, ok)
	assert.InDeltaSlice(t, []float64{0.75, 0, 0.25}, w, 1e-12)

	_, ok = normalizeWeights([]float64{-1, 0})
	assert.False(t, ok)
}

func TestMaxReturnPortfolio(t *testing.T) {
	p, err := maxReturnPortfolio(testExpectedReturns, testCovariance(), 0.02)
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 0, 1}, p.Weights)
	assert.InDelta(t, 0.15, p.ExpectedReturn, 1e-12)
	assert.InDelta(t, 0.3, p.Volatility, 1e-12)
	require.NotNil(t, p.SharpeRatio)
	assert.InDelta(t, 0.13/0.3, *p.SharpeRatio, 1e-12)
}
