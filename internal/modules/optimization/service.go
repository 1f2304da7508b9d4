package optimization

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service runs the full optimization pipeline on already fetched price histories.
type Service struct {
	opts        Options
	riskBuilder *RiskModelBuilder
	simulator   *Simulator
	sampled     *SampledFrontier
	analytic    *AnalyticFrontier
	log         zerolog.Logger
}

// NewService creates an optimization service. Zero option fields take defaults.
func NewService(opts Options, log zerolog.Logger) *Service {
	opts = opts.withDefaults()
	return &Service{
		opts:        opts,
		riskBuilder: NewRiskModelBuilder(opts.Shrinkage, log),
		simulator:   NewSimulator(opts.Workers, log),
		sampled:     NewSampledFrontier(opts.FrontierPoints, opts.SamplesPerPoint, opts.ReturnTolerance, opts.Workers, log),
		analytic:    NewAnalyticFrontier(opts.FrontierPoints, log),
		log:         log.With().Str("service", "optimization").Logger(),
	}
}

// Options returns the effective engine options.
func (s *Service) Options() Options {
	return s.opts
}

// Generator returns the frontier generator for a strategy. Unknown strategies
// resolve to the configured default.
func (s *Service) Generator(strategy FrontierStrategy) FrontierGenerator {
	if !strategy.Valid() {
		strategy = s.opts.Strategy
	}
	if strategy == StrategyAnalytic {
		return s.analytic
	}
	return s.sampled
}

// Optimize estimates asset statistics, simulates random portfolios and builds
// the efficient frontier. Series of unequal length are aligned to the most
// recent observations of the shortest one.
func (s *Service) Optimize(ctx context.Context, req OptimizeRequest) (*OptimizationResult, error) {
	start := time.Now()

	if len(req.Assets) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInsufficientTickers, len(req.Assets))
	}
	if req.NumPortfolios < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPortfolioCount, req.NumPortfolios)
	}
	for _, a := range req.Assets {
		if len(a.Prices) < s.opts.MinDataPoints {
			return nil, fmt.Errorf("%w: %s has %d data points, need at least %d",
				ErrInsufficientData, a.Ticker, len(a.Prices), s.opts.MinDataPoints)
		}
	}

	aligned, dataPoints := AlignTail(req.Assets)
	for _, a := range req.Assets {
		if len(a.Prices) != dataPoints {
			s.log.Debug().
				Str("ticker", a.Ticker).
				Int("from", len(a.Prices)).
				Int("to", dataPoints).
				Msg("Truncated price history to common length")
		}
	}

	tickers := make([]string, len(aligned))
	stats := make([]AssetStats, len(aligned))
	expected := make([]float64, len(aligned))
	for i, a := range aligned {
		returns, err := CalculateReturns(a.Prices)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", a.Ticker, err)
		}
		st, err := EstimateAssetStats(a.Ticker, returns)
		if err != nil {
			return nil, err
		}
		tickers[i] = a.Ticker
		stats[i] = st
		expected[i] = st.ExpectedReturn
	}

	model, err := s.riskBuilder.Build(stats)
	if err != nil {
		return nil, err
	}

	seed := resolveSeed(req.Seed)
	master := rand.New(rand.NewSource(seed))
	simSeed, frontierSeed := master.Int63()|1, master.Int63()|1

	sim, err := s.simulator.Run(ctx, SimulationInput{
		ExpectedReturns: expected,
		Covariance:      model.Covariance,
		NumPortfolios:   req.NumPortfolios,
		RiskFreeRate:    req.RiskFreeRate,
		Seed:            simSeed,
	})
	if err != nil {
		return nil, err
	}

	var warnings []string
	frontierIn := FrontierInput{
		ExpectedReturns: expected,
		Covariance:      model.Covariance,
		RiskFreeRate:    req.RiskFreeRate,
		Seed:            frontierSeed,
	}
	gen := s.Generator(req.Strategy)
	frontier, err := gen.Generate(ctx, frontierIn)
	if errors.Is(err, ErrSingularMatrix) && gen.Strategy() == StrategyAnalytic {
		s.log.Warn().Err(err).Msg("Analytic frontier unavailable, falling back to sampling")
		warnings = append(warnings, "covariance matrix is singular; efficient frontier was sampled instead of solved analytically")
		gen = s.sampled
		frontier, err = gen.Generate(ctx, frontierIn)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to generate efficient frontier: %w", err)
	}

	minVar := frontier.MinVariance
	if gen.Strategy() == StrategySampled && sim.MinVolatility != nil &&
		(minVar == nil || sim.MinVolatility.Volatility < minVar.Volatility) {
		minVar = sim.MinVolatility
	}

	result := &OptimizationResult{
		Metadata: Metadata{
			RunID:         uuid.NewString(),
			Tickers:       tickers,
			DataPoints:    dataPoints,
			NumPortfolios: req.NumPortfolios,
			RiskFreeRate:  req.RiskFreeRate,
			Seed:          seed,
			Strategy:      gen.Strategy(),
			Shrinkage:     s.opts.Shrinkage,
		},
		AssetStats:        stats,
		CovarianceMatrix:  symToRows(model.Covariance),
		CorrelationMatrix: model.Correlation,
		HighCorrelations:  model.HighCorrelations,
		Population:        sim.Population,
		BestPortfolio:     sim.Best,
		EfficientFrontier: frontier.Points,
		MinVariance:       minVar,
		MaxReturn:         frontier.MaxReturn,
		Summary:           Summary{TotalPortfolios: len(sim.Population)},
		Warnings:          warnings,
	}
	if sim.Best != nil {
		result.Summary.BestSharpeRatio = *sim.Best.SharpeRatio
		result.Summary.BestReturn = sim.Best.ExpectedReturn
		result.Summary.BestVolatility = sim.Best.Volatility
	} else {
		result.Warnings = append(result.Warnings, "no simulated portfolio has a defined Sharpe ratio")
	}
	result.Metadata.ElapsedMillis = time.Since(start).Milliseconds()

	s.log.Info().
		Str("run_id", result.Metadata.RunID).
		Strs("tickers", tickers).
		Int("data_points", dataPoints).
		Int("portfolios", len(sim.Population)).
		Int("frontier_points", len(frontier.Points)).
		Str("strategy", string(gen.Strategy())).
		Int64("elapsed_ms", result.Metadata.ElapsedMillis).
		Msg("Optimization complete")

	return result, nil
}

// Analyze computes statistics for each asset independently. A failing asset
// produces an entry with Error set and does not affect the others.
func (s *Service) Analyze(assets []AssetPrices) []AssetAnalysis {
	out := make([]AssetAnalysis, len(assets))
	for i, a := range assets {
		analysis, err := AnalyzeAsset(a)
		if err != nil {
			s.log.Debug().Err(err).Str("ticker", a.Ticker).Msg("Asset analysis failed")
			out[i] = AssetAnalysis{Ticker: a.Ticker, DataPoints: len(a.Prices), Error: err.Error()}
			continue
		}
		out[i] = analysis
	}
	return out
}
