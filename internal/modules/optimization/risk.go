package optimization

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// MaxConditionNumber is the largest covariance condition number accepted for inversion.
const MaxConditionNumber = 1e12

// RiskModel is the covariance structure of a set of assets.
type RiskModel struct {
	Tickers          []string
	Covariance       *mat.SymDense // annualized
	Correlation      [][]float64
	HighCorrelations []CorrelationPair
	Shrinkage        float64 // intensity applied, 0 when disabled
}

// RiskModelBuilder builds covariance matrices and correlation diagnostics.
type RiskModelBuilder struct {
	shrink bool
	log    zerolog.Logger
}

// NewRiskModelBuilder creates a new risk model builder. When shrink is set the
// sample covariance is shrunk towards a constant-correlation target.
func NewRiskModelBuilder(shrink bool, log zerolog.Logger) *RiskModelBuilder {
	return &RiskModelBuilder{
		shrink: shrink,
		log:    log.With().Str("component", "risk_model").Logger(),
	}
}

// Build estimates the annualized covariance matrix from per-asset statistics.
// All stats must carry return series of equal length.
func (rb *RiskModelBuilder) Build(stats []AssetStats) (*RiskModel, error) {
	tickers := make([]string, len(stats))
	series := make([][]float64, len(stats))
	for i, s := range stats {
		tickers[i] = s.Ticker
		series[i] = s.Returns
	}

	cov, err := BuildCovarianceMatrix(series)
	if err != nil {
		return nil, fmt.Errorf("failed to build covariance matrix: %w", err)
	}

	model := &RiskModel{Tickers: tickers, Covariance: cov}

	if rb.shrink {
		shrunk, intensity := ShrinkCovariance(cov)
		model.Covariance = shrunk
		model.Shrinkage = intensity
		rb.log.Debug().Float64("intensity", intensity).Msg("Applied covariance shrinkage")
	}

	model.Correlation = CorrelationMatrix(model.Covariance)
	model.HighCorrelations = HighCorrelations(model.Correlation, tickers, HighCorrelationThreshold)

	rb.log.Info().
		Int("matrix_size", len(tickers)).
		Int("high_correlations", len(model.HighCorrelations)).
		Msg("Built risk model")

	return model, nil
}

// BuildCovarianceMatrix computes the annualized sample covariance (N-1 denominator)
// of equally long return series. Element (i,j) is the covariance of series i and j.
func BuildCovarianceMatrix(returns [][]float64) (*mat.SymDense, error) {
	n := len(returns)
	if n == 0 {
		return nil, fmt.Errorf("%w: no return series", ErrInsufficientData)
	}

	t := len(returns[0])
	for i, r := range returns {
		if len(r) != t {
			return nil, fmt.Errorf("%w: series %d has %d returns, expected %d", ErrDimensionMismatch, i, len(r), t)
		}
	}
	if t < 2 {
		return nil, fmt.Errorf("%w: need at least 2 observations, got %d", ErrInsufficientData, t)
	}

	// Each column is one asset's returns.
	data := mat.NewDense(t, n, nil)
	for j, r := range returns {
		data.SetCol(j, r)
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, nil)
	cov.ScaleSym(TradingDaysPerYear, &cov)

	return &cov, nil
}

// InvertCovariance returns the inverse of a covariance matrix using LU
// decomposition with partial pivoting. Singular or near-singular matrices
// yield ErrSingularMatrix.
func InvertCovariance(cov mat.Symmetric) (*mat.Dense, error) {
	n := cov.SymmetricDim()
	if n == 0 {
		return nil, fmt.Errorf("%w: empty covariance matrix", ErrDimensionMismatch)
	}

	var lu mat.LU
	lu.Factorize(cov)

	if cond := lu.Cond(); math.IsNaN(cond) || cond > MaxConditionNumber {
		return nil, fmt.Errorf("%w: condition number %.3g", ErrSingularMatrix, cond)
	}

	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}

	var inv mat.Dense
	if err := lu.SolveTo(&inv, false, mat.NewDiagDense(n, ones)); err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) {
			return nil, fmt.Errorf("%w: %v", ErrSingularMatrix, err)
		}
		return nil, fmt.Errorf("failed to invert covariance matrix: %w", err)
	}

	return &inv, nil
}

// ShrinkCovariance shrinks a sample covariance matrix towards a constant-correlation
// target: Σ' = (1-δ)Σ + δT. The intensity δ is estimated from the dispersion of the
// sample elements and capped at 0.5. The input is not modified.
func ShrinkCovariance(sample mat.Symmetric) (*mat.SymDense, float64) {
	n := sample.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	out.CopySym(sample)
	if n < 2 {
		return out, 0
	}

	var avgVar, avgCov float64
	for i := 0; i < n; i++ {
		avgVar += sample.At(i, i)
		for j := 0; j < n; j++ {
			if i != j {
				avgCov += sample.At(i, j)
			}
		}
	}
	avgVar /= float64(n)
	avgCov /= float64(n * (n - 1))

	target := func(i, j int) float64 {
		if i == j {
			return avgVar
		}
		if avgVar > 0 {
			return avgCov
		}
		return 0
	}

	shrinkage := 0.2
	if n > 2 && avgVar > 0 {
		var sumSqDiff, sum, sumSq float64
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				v := sample.At(i, j)
				d := v - target(i, j)
				sumSqDiff += d * d
				sum += v
				sumSq += v * v
			}
		}
		count := float64(n * n)
		meanSqDiff := sumSqDiff / count
		mean := sum / count
		variance := sumSq/count - mean*mean

		if variance > 0 && meanSqDiff > 0 {
			shrinkage = math.Min(0.5, math.Max(0, variance/(variance+meanSqDiff)))
		}
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, (1-shrinkage)*sample.At(i, j)+shrinkage*target(i, j))
		}
	}

	return out, shrinkage
}

// CorrelationMatrix derives the correlation matrix from a covariance matrix.
// Entries involving a zero-variance asset are 0.
func CorrelationMatrix(cov mat.Symmetric) [][]float64 {
	n := cov.SymmetricDim()
	std := make([]float64, n)
	for i := range std {
		std[i] = math.Sqrt(math.Max(cov.At(i, i), 0))
	}

	corr := make([][]float64, n)
	for i := range corr {
		corr[i] = make([]float64, n)
		for j := range corr[i] {
			if std[i] == 0 || std[j] == 0 {
				continue
			}
			if i == j {
				corr[i][j] = 1
				continue
			}
			c := cov.At(i, j) / (std[i] * std[j])
			corr[i][j] = math.Max(-1, math.Min(1, c))
		}
	}

	return corr
}

// HighCorrelations lists asset pairs whose absolute correlation is at least threshold.
func HighCorrelations(corr [][]float64, tickers []string, threshold float64) []CorrelationPair {
	pairs := make([]CorrelationPair, 0)
	for i := 0; i < len(corr) && i < len(tickers); i++ {
		for j := i + 1; j < len(corr[i]) && j < len(tickers); j++ {
			if math.Abs(corr[i][j]) >= threshold {
				pairs = append(pairs, CorrelationPair{
					Ticker1:     tickers[i],
					Ticker2:     tickers[j],
					Correlation: corr[i][j],
				})
			}
		}
	}
	return pairs
}

// symToRows converts a symmetric matrix to row slices for serialization.
func symToRows(m mat.Symmetric) [][]float64 {
	n := m.SymmetricDim()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, n)
		for j := range rows[i] {
			rows[i][j] = m.At(i, j)
		}
	}
	return rows
}
