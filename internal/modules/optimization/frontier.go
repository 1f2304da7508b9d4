package optimization

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// FrontierInput is the input of frontier generation.
type FrontierInput struct {
	ExpectedReturns []float64
	Covariance      mat.Symmetric
	RiskFreeRate    float64
	Seed            int64
}

// Frontier is a set of efficient portfolios sorted by ascending volatility,
// plus the two reference portfolios at its ends.
type Frontier struct {
	Points      []Portfolio
	MinVariance *Portfolio
	MaxReturn   *Portfolio
}

// FrontierGenerator produces an efficient frontier.
type FrontierGenerator interface {
	Generate(ctx context.Context, in FrontierInput) (*Frontier, error)
	Strategy() FrontierStrategy
}

func validateFrontierInput(in FrontierInput) error {
	n := len(in.ExpectedReturns)
	if n == 0 || in.Covariance == nil || in.Covariance.SymmetricDim() != n {
		return fmt.Errorf("%w: frontier needs matching returns and covariance", ErrDimensionMismatch)
	}
	return nil
}

// targetReturns returns k evenly spaced levels from lo to hi inclusive.
// A degenerate range yields a single level.
func targetReturns(lo, hi float64, k int) []float64 {
	if k <= 1 || hi <= lo {
		return []float64{lo}
	}
	levels := make([]float64, k)
	floats.Span(levels, lo, hi)
	return levels
}

func sortByVolatility(points []Portfolio) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Volatility < points[j].Volatility
	})
}

// SampledFrontier approximates the frontier by sampling random portfolios for
// each target return and keeping the least volatile one within tolerance.
type SampledFrontier struct {
	points    int
	samples   int
	tolerance float64
	workers   int
	log       zerolog.Logger
}

// NewSampledFrontier creates a sampled frontier generator.
func NewSampledFrontier(points, samples int, tolerance float64, workers int, log zerolog.Logger) *SampledFrontier {
	if points <= 0 {
		points = DefaultFrontierPoints
	}
	if samples <= 0 {
		samples = DefaultSamplesPerPoint
	}
	if tolerance <= 0 {
		tolerance = DefaultReturnTolerance
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &SampledFrontier{
		points:    points,
		samples:   samples,
		tolerance: tolerance,
		workers:   workers,
		log:       log.With().Str("component", "sampled_frontier").Logger(),
	}
}

// Strategy implements FrontierGenerator.
func (sf *SampledFrontier) Strategy() FrontierStrategy { return StrategySampled }

type levelResult struct {
	point  *Portfolio
	minVol *Portfolio
}

// Generate implements FrontierGenerator. Levels without a portfolio inside the
// tolerance band are skipped. Each point reports its realized return.
func (sf *SampledFrontier) Generate(ctx context.Context, in FrontierInput) (*Frontier, error) {
	if err := validateFrontierInput(in); err != nil {
		return nil, err
	}

	levels := targetReturns(floats.Min(in.ExpectedReturns), floats.Max(in.ExpectedReturns), sf.points)
	seeds := deriveSeeds(resolveSeed(in.Seed), len(levels))
	results := make([]levelResult, len(levels))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sf.workers)
	for i, target := range levels {
		i, target := i, target
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := sf.sampleLevel(rand.New(rand.NewSource(seeds[i])), target, in)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("frontier sampling aborted: %w", err)
	}

	frontier := &Frontier{Points: make([]Portfolio, 0, len(levels))}
	for _, r := range results {
		if r.point != nil {
			frontier.Points = append(frontier.Points, *r.point)
		}
		if r.minVol != nil && (frontier.MinVariance == nil || r.minVol.Volatility < frontier.MinVariance.Volatility) {
			frontier.MinVariance = r.minVol
		}
	}
	sortByVolatility(frontier.Points)

	maxRet, err := maxReturnPortfolio(in.ExpectedReturns, in.Covariance, in.RiskFreeRate)
	if err != nil {
		return nil, err
	}
	frontier.MaxReturn = maxRet

	sf.log.Debug().
		Int("levels", len(levels)).
		Int("points", len(frontier.Points)).
		Msg("Generated sampled frontier")

	return frontier, nil
}

func (sf *SampledFrontier) sampleLevel(rng *rand.Rand, target float64, in FrontierInput) (levelResult, error) {
	var res levelResult
	n := len(in.ExpectedReturns)

	for i := 0; i < sf.samples; i++ {
		p, err := evaluate(randomWeights(rng, n), in.ExpectedReturns, in.Covariance, in.RiskFreeRate)
		if err != nil {
			return levelResult{}, err
		}
		if res.minVol == nil || p.Volatility < res.minVol.Volatility {
			mv := p
			res.minVol = &mv
		}
		diff := p.ExpectedReturn - target
		if diff < 0 {
			diff = -diff
		}
		if diff < sf.tolerance && (res.point == nil || p.Volatility < res.point.Volatility) {
			pt := p
			res.point = &pt
		}
	}

	return res, nil
}

// discriminantEpsilon is the relative size of A·C - B² below which expected
// returns are treated as identical.
const discriminantEpsilon = 1e-10

// AnalyticFrontier computes frontier weights in closed form:
//
//	w(r) = ((C - B·r)·Σ⁻¹1 + (A·r - B)·Σ⁻¹μ) / (A·C - B²)
//
// with A = 1ᵗΣ⁻¹1, B = 1ᵗΣ⁻¹μ and C = μᵗΣ⁻¹μ. Negative weights are clamped to 0
// and the remainder renormalized before metrics are computed.
type AnalyticFrontier struct {
	points int
	log    zerolog.Logger
}

// NewAnalyticFrontier creates an analytic frontier generator.
func NewAnalyticFrontier(points int, log zerolog.Logger) *AnalyticFrontier {
	if points <= 0 {
		points = DefaultFrontierPoints
	}
	return &AnalyticFrontier{
		points: points,
		log:    log.With().Str("component", "analytic_frontier").Logger(),
	}
}

// Strategy implements FrontierGenerator.
func (af *AnalyticFrontier) Strategy() FrontierStrategy { return StrategyAnalytic }

// Generate implements FrontierGenerator. It returns ErrSingularMatrix when the
// covariance matrix cannot be inverted.
func (af *AnalyticFrontier) Generate(ctx context.Context, in FrontierInput) (*Frontier, error) {
	if err := validateFrontierInput(in); err != nil {
		return nil, err
	}

	inv, err := InvertCovariance(in.Covariance)
	if err != nil {
		return nil, err
	}

	n := len(in.ExpectedReturns)
	onesData := make([]float64, n)
	for i := range onesData {
		onesData[i] = 1
	}
	ones := mat.NewVecDense(n, onesData)
	mu := mat.NewVecDense(n, in.ExpectedReturns)

	var invOnes, invMu mat.VecDense
	invOnes.MulVec(inv, ones)
	invMu.MulVec(inv, mu)

	a := mat.Dot(ones, &invOnes)
	b := mat.Dot(ones, &invMu)
	c := mat.Dot(mu, &invMu)
	disc := a*c - b*b

	frontier := &Frontier{}

	maxRet, err := maxReturnPortfolio(in.ExpectedReturns, in.Covariance, in.RiskFreeRate)
	if err != nil {
		return nil, err
	}
	frontier.MaxReturn = maxRet

	if a <= 0 {
		af.log.Warn().Float64("a", a).Msg("Inverse covariance is not positive definite, no frontier")
		frontier.Points = []Portfolio{}
		return frontier, nil
	}

	// Global minimum variance: Σ⁻¹1 / A.
	if w, ok := normalizeWeights(invOnes.RawVector().Data); ok {
		p, err := evaluate(w, in.ExpectedReturns, in.Covariance, in.RiskFreeRate)
		if err != nil {
			return nil, err
		}
		frontier.MinVariance = &p
	}

	levels := targetReturns(b/a, floats.Max(in.ExpectedReturns), af.points)
	frontier.Points = make([]Portfolio, 0, len(levels))

	if disc <= discriminantEpsilon*math.Abs(a*c) {
		af.log.Warn().Float64("discriminant", disc).Msg("Degenerate expected returns, no frontier points")
		return frontier, nil
	}

	raw := make([]float64, n)
	for _, r := range levels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			raw[i] = ((c-b*r)*invOnes.AtVec(i) + (a*r-b)*invMu.AtVec(i)) / disc
		}
		w, ok := normalizeWeights(raw)
		if !ok {
			continue
		}
		p, err := evaluate(w, in.ExpectedReturns, in.Covariance, in.RiskFreeRate)
		if err != nil {
			return nil, err
		}
		frontier.Points = append(frontier.Points, p)
	}
	sortByVolatility(frontier.Points)

	af.log.Debug().
		Int("points", len(frontier.Points)).
		Float64("a", a).
		Float64("b", b).
		Float64("c", c).
		Msg("Generated analytic frontier")

	return frontier, nil
}
