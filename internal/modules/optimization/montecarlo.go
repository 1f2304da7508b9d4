package optimization

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// simulationChunkSize is the number of trials drawn from one generator.
// Chunks are merged in order, so results depend only on the seed.
const simulationChunkSize = 500

// SimulationInput is the input of one Monte Carlo run.
type SimulationInput struct {
	ExpectedReturns []float64
	Covariance      mat.Symmetric
	NumPortfolios   int
	RiskFreeRate    float64
	Seed            int64 // 0 picks a seed from the clock
}

// SimulationResult holds the simulated portfolios with a defined Sharpe ratio in
// trial order. Best is nil when no trial had a defined Sharpe ratio.
// MinVolatility considers every trial.
type SimulationResult struct {
	Population    []Portfolio
	Best          *Portfolio
	MinVolatility *Portfolio
	Trials        int
	Seed          int64
}

// Simulator draws random long-only, fully invested portfolios.
type Simulator struct {
	workers int
	log     zerolog.Logger
}

// NewSimulator creates a simulator that evaluates up to workers chunks in parallel.
func NewSimulator(workers int, log zerolog.Logger) *Simulator {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Simulator{
		workers: workers,
		log:     log.With().Str("component", "monte_carlo").Logger(),
	}
}

type chunkResult struct {
	portfolios []Portfolio
	best       int
	minVol     int
}

// Run simulates in.NumPortfolios portfolios. Zero portfolios yields an empty
// population and no best portfolio.
func (s *Simulator) Run(ctx context.Context, in SimulationInput) (*SimulationResult, error) {
	n := len(in.ExpectedReturns)
	if n == 0 || in.Covariance == nil || in.Covariance.SymmetricDim() != n {
		return nil, fmt.Errorf("%w: simulation needs matching returns and covariance", ErrDimensionMismatch)
	}
	if in.NumPortfolios < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPortfolioCount, in.NumPortfolios)
	}

	seed := resolveSeed(in.Seed)
	result := &SimulationResult{Population: []Portfolio{}, Seed: seed}
	if in.NumPortfolios == 0 {
		return result, nil
	}

	start := time.Now()
	numChunks := (in.NumPortfolios + simulationChunkSize - 1) / simulationChunkSize
	seeds := deriveSeeds(seed, numChunks)
	chunks := make([]chunkResult, numChunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for c := 0; c < numChunks; c++ {
		c := c
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			size := min(simulationChunkSize, in.NumPortfolios-c*simulationChunkSize)
			res, err := runChunk(rand.New(rand.NewSource(seeds[c])), size, in)
			if err != nil {
				return err
			}
			chunks[c] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("simulation aborted: %w", err)
	}

	result.Population = make([]Portfolio, 0, in.NumPortfolios)
	for _, ch := range chunks {
		if ch.best >= 0 && betterSharpe(ch.portfolios[ch.best], result.Best) {
			best := ch.portfolios[ch.best]
			result.Best = &best
		}
		if ch.minVol >= 0 && (result.MinVolatility == nil || ch.portfolios[ch.minVol].Volatility < result.MinVolatility.Volatility) {
			mv := ch.portfolios[ch.minVol]
			result.MinVolatility = &mv
		}
		for _, p := range ch.portfolios {
			if p.SharpeRatio != nil {
				result.Population = append(result.Population, p)
			}
		}
		result.Trials += len(ch.portfolios)
	}

	s.log.Debug().
		Int("trials", result.Trials).
		Int("portfolios", len(result.Population)).
		Int("chunks", numChunks).
		Int64("seed", seed).
		Dur("elapsed", time.Since(start)).
		Msg("Monte Carlo simulation complete")

	return result, nil
}

func runChunk(rng *rand.Rand, size int, in SimulationInput) (chunkResult, error) {
	res := chunkResult{portfolios: make([]Portfolio, 0, size), best: -1, minVol: -1}
	n := len(in.ExpectedReturns)

	for i := 0; i < size; i++ {
		p, err := evaluate(randomWeights(rng, n), in.ExpectedReturns, in.Covariance, in.RiskFreeRate)
		if err != nil {
			return chunkResult{}, err
		}
		res.portfolios = append(res.portfolios, p)

		if res.best < 0 {
			if p.SharpeRatio != nil {
				res.best = i
			}
		} else if betterSharpe(p, &res.portfolios[res.best]) {
			res.best = i
		}
		if res.minVol < 0 || p.Volatility < res.portfolios[res.minVol].Volatility {
			res.minVol = i
		}
	}

	return res, nil
}

// randomWeights draws n independent uniform values and normalizes them to sum to 1.
func randomWeights(rng *rand.Rand, n int) []float64 {
	w := make([]float64, n)
	for {
		sum := 0.0
		for i := range w {
			w[i] = rng.Float64()
			sum += w[i]
		}
		if sum > 0 {
			for i := range w {
				w[i] /= sum
			}
			return w
		}
	}
}

// resolveSeed replaces a zero seed with one taken from the clock.
func resolveSeed(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	if s := time.Now().UnixNano(); s != 0 {
		return s
	}
	return 1
}

// deriveSeeds expands a master seed into k independent generator seeds.
func deriveSeeds(seed int64, k int) []int64 {
	master := rand.New(rand.NewSource(seed))
	seeds := make([]int64, k)
	for i := range seeds {
		seeds[i] = master.Int63()
	}
	return seeds
}
