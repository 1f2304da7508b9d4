package optimization

import "runtime"

// Constants for the mean-variance engine.
const (
	TradingDaysPerYear       = 252  // annualization factor for returns and covariance
	HighCorrelationThreshold = 0.80 // |correlation| reported as a high-correlation pair

	DefaultNumPortfolios   = 5000
	DefaultRiskFreeRate    = 0.02
	DefaultFrontierPoints  = 100
	DefaultSamplesPerPoint = 1000
	DefaultReturnTolerance = 0.01 // one percentage point of annualized return
	DefaultMinDataPoints   = 30
)

// FrontierStrategy selects how the efficient frontier is generated.
type FrontierStrategy string

const (
	// StrategySampled buckets randomly sampled portfolios by target return.
	StrategySampled FrontierStrategy = "sampled"
	// StrategyAnalytic solves the Lagrangian closed form using the inverse covariance matrix.
	StrategyAnalytic FrontierStrategy = "analytic"
)

// Valid reports whether the strategy is known.
func (s FrontierStrategy) Valid() bool {
	return s == StrategySampled || s == StrategyAnalytic
}

// AssetPrices is the closing price history of one ticker, oldest first.
type AssetPrices struct {
	Ticker string    `json:"ticker"`
	Prices []float64 `json:"prices"`
}

// AssetStats holds annualized and daily statistics for one asset.
type AssetStats struct {
	Ticker          string    `json:"ticker"`
	ExpectedReturn  float64   `json:"expectedReturn"`
	Volatility      float64   `json:"volatility"`
	DailyReturn     float64   `json:"dailyReturn"`
	DailyVolatility float64   `json:"dailyVolatility"`
	Returns         []float64 `json:"dailyReturns,omitempty"`
}

// AssetAnalysis is one entry of a batch analysis. Exactly one of Stats and Error is set.
type AssetAnalysis struct {
	Ticker      string      `json:"ticker"`
	Stats       *AssetStats `json:"stats,omitempty"`
	DataPoints  int         `json:"dataPoints,omitempty"`
	StartPrice  float64     `json:"startPrice,omitempty"`
	EndPrice    float64     `json:"endPrice,omitempty"`
	TotalReturn float64     `json:"totalReturn,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// Portfolio is a weight vector together with its evaluated performance.
// SharpeRatio is nil when the ratio is undefined (zero volatility or non-finite).
type Portfolio struct {
	Weights        []float64 `json:"weights"`
	ExpectedReturn float64   `json:"expectedReturn"`
	Volatility     float64   `json:"volatility"`
	SharpeRatio    *float64  `json:"sharpeRatio"`
}

// CorrelationPair is a pair of assets whose returns are highly correlated.
type CorrelationPair struct {
	Ticker1     string  `json:"ticker1"`
	Ticker2     string  `json:"ticker2"`
	Correlation float64 `json:"correlation"`
}

// OptimizeRequest is the input of Service.Optimize.
// A zero Seed picks a seed from the clock; an empty Strategy uses the service default.
type OptimizeRequest struct {
	Assets        []AssetPrices
	NumPortfolios int
	RiskFreeRate  float64
	Seed          int64
	Strategy      FrontierStrategy
}

// Metadata describes how an optimization run was produced.
type Metadata struct {
	RunID         string           `json:"runId"`
	Tickers       []string         `json:"tickers"`
	DataPoints    int              `json:"dataPoints"`
	NumPortfolios int              `json:"numPortfolios"`
	RiskFreeRate  float64          `json:"riskFreeRate"`
	Seed          int64            `json:"seed"`
	Strategy      FrontierStrategy `json:"strategy"`
	Shrinkage     bool             `json:"shrinkage"`
	ElapsedMillis int64            `json:"elapsedMs"`
}

// Summary condenses the best portfolio for display.
type Summary struct {
	TotalPortfolios int     `json:"totalPortfolios"`
	BestSharpeRatio float64 `json:"bestSharpeRatio"`
	BestReturn      float64 `json:"bestReturn"`
	BestVolatility  float64 `json:"bestVolatility"`
}

// OptimizationResult is the full output of one optimization run.
type OptimizationResult struct {
	Metadata          Metadata          `json:"metadata"`
	AssetStats        []AssetStats      `json:"assetStats"`
	CovarianceMatrix  [][]float64       `json:"covarianceMatrix"`
	CorrelationMatrix [][]float64       `json:"correlationMatrix"`
	HighCorrelations  []CorrelationPair `json:"highCorrelations"`
	Population        []Portfolio       `json:"portfolios"`
	BestPortfolio     *Portfolio        `json:"bestPortfolio"`
	EfficientFrontier []Portfolio       `json:"efficientFrontier"`
	MinVariance       *Portfolio        `json:"minVariance"`
	MaxReturn         *Portfolio        `json:"maxReturn"`
	Summary           Summary           `json:"summary"`
	Warnings          []string          `json:"warnings,omitempty"`
}

// Options configures the engine. Zero fields are replaced by defaults in NewService.
type Options struct {
	NumPortfolios   int
	RiskFreeRate    float64
	Strategy        FrontierStrategy
	FrontierPoints  int
	SamplesPerPoint int
	ReturnTolerance float64
	MinDataPoints   int
	Workers         int
	Shrinkage       bool
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		NumPortfolios:   DefaultNumPortfolios,
		RiskFreeRate:    DefaultRiskFreeRate,
		Strategy:        StrategySampled,
		FrontierPoints:  DefaultFrontierPoints,
		SamplesPerPoint: DefaultSamplesPerPoint,
		ReturnTolerance: DefaultReturnTolerance,
		MinDataPoints:   DefaultMinDataPoints,
		Workers:         runtime.NumCPU(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.NumPortfolios <= 0 {
		o.NumPortfolios = d.NumPortfolios
	}
	if !o.Strategy.Valid() {
		o.Strategy = d.Strategy
	}
	if o.FrontierPoints <= 0 {
		o.FrontierPoints = d.FrontierPoints
	}
	if o.SamplesPerPoint <= 0 {
		o.SamplesPerPoint = d.SamplesPerPoint
	}
	if o.ReturnTolerance <= 0 {
		o.ReturnTolerance = d.ReturnTolerance
	}
	if o.MinDataPoints < 2 {
		o.MinDataPoints = d.MinDataPoints
	}
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	return o
}
