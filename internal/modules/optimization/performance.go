package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// volatilityEpsilon is the volatility below which a Sharpe ratio is undefined.
const volatilityEpsilon = 1e-12

// Performance is the annualized expected return and volatility of a portfolio.
type Performance struct {
	Return     float64 `json:"return"`
	Volatility float64 `json:"volatility"`
}

// EvaluatePortfolio computes expected return wᵗμ and volatility sqrt(wᵗΣw).
// Variance is clamped at 0 to absorb rounding errors.
func EvaluatePortfolio(weights, expectedReturns []float64, cov mat.Symmetric) (Performance, error) {
	n := len(weights)
	if n == 0 {
		return Performance{}, fmt.Errorf("%w: empty weight vector", ErrDimensionMismatch)
	}
	if len(expectedReturns) != n || cov.SymmetricDim() != n {
		return Performance{}, fmt.Errorf("%w: %d weights, %d returns, %dx%d covariance",
			ErrDimensionMismatch, n, len(expectedReturns), cov.SymmetricDim(), cov.SymmetricDim())
	}

	w := mat.NewVecDense(n, weights)
	variance := mat.Inner(w, cov, w)
	if variance < 0 || math.IsNaN(variance) {
		variance = 0
	}

	return Performance{
		Return:     floats.Dot(weights, expectedReturns),
		Volatility: math.Sqrt(variance),
	}, nil
}

// SharpeRatio returns (ret - riskFree) / vol. The second result is false when
// the ratio is undefined because vol is zero or the result is not finite.
func SharpeRatio(ret, vol, riskFree float64) (float64, bool) {
	if vol < volatilityEpsilon {
		return 0, false
	}
	s := (ret - riskFree) / vol
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0, false
	}
	return s, true
}

// evaluate builds a Portfolio from weights. The weights slice is retained.
func evaluate(weights, expectedReturns []float64, cov mat.Symmetric, riskFree float64) (Portfolio, error) {
	perf, err := EvaluatePortfolio(weights, expectedReturns, cov)
	if err != nil {
		return Portfolio{}, err
	}

	p := Portfolio{
		Weights:        weights,
		ExpectedReturn: perf.Return,
		Volatility:     perf.Volatility,
	}
	if s, ok := SharpeRatio(perf.Return, perf.Volatility, riskFree); ok {
		p.SharpeRatio = &s
	}
	return p, nil
}

// betterSharpe reports whether a has a strictly higher defined Sharpe ratio than b.
func betterSharpe(a Portfolio, b *Portfolio) bool {
	if a.SharpeRatio == nil {
		return false
	}
	return b == nil || b.SharpeRatio == nil || *a.SharpeRatio > *b.SharpeRatio
}

// normalizeWeights clamps negative weights to 0 and rescales the rest to sum to 1.
// It returns false when nothing positive remains.
func normalizeWeights(weights []float64) ([]float64, bool) {
	out := make([]float64, len(weights))
	sum := 0.0
	for i, w := range weights {
		if w > 0 && !math.IsInf(w, 1) {
			out[i] = w
			sum += w
		}
	}
	if !(sum > 0) || math.IsInf(sum, 0) {
		return nil, false
	}
	floats.Scale(1/sum, out)
	return out, true
}

// maxReturnPortfolio is the fully concentrated portfolio in the asset with the
// highest expected return.
func maxReturnPortfolio(expectedReturns []float64, cov mat.Symmetric, riskFree float64) (*Portfolio, error) {
	if len(expectedReturns) == 0 {
		return nil, fmt.Errorf("%w: no assets", ErrDimensionMismatch)
	}
	weights := make([]float64, len(expectedReturns))
	weights[floats.MaxIdx(expectedReturns)] = 1

	p, err := evaluate(weights, expectedReturns, cov, riskFree)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
