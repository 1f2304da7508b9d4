// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Directory for the cache database (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	Optimizer OptimizerConfig
	Yahoo     YahooConfig

	CacheCleanupSchedule  string // six-field cron specs
	WALCheckpointSchedule string
}

// OptimizerConfig holds engine defaults.
type OptimizerConfig struct {
	NumPortfolios   int
	RiskFreeRate    float64
	Strategy        string
	FrontierPoints  int
	SamplesPerPoint int
	ReturnTolerance float64
	MinDataPoints   int
	Workers         int
	Shrinkage       bool
}

// YahooConfig holds market data client settings.
type YahooConfig struct {
	BaseURL           string
	RequestsPerSecond float64
	FetchConcurrency  int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("FRONTIER_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8001),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Optimizer: OptimizerConfig{
			NumPortfolios:   getEnvAsInt("NUM_PORTFOLIOS", optimization.DefaultNumPortfolios),
			RiskFreeRate:    getEnvAsFloat("RISK_FREE_RATE", optimization.DefaultRiskFreeRate),
			Strategy:        getEnv("FRONTIER_STRATEGY", string(optimization.StrategySampled)),
			FrontierPoints:  getEnvAsInt("FRONTIER_POINTS", optimization.DefaultFrontierPoints),
			SamplesPerPoint: getEnvAsInt("FRONTIER_SAMPLES", optimization.DefaultSamplesPerPoint),
			ReturnTolerance: getEnvAsFloat("FRONTIER_TOLERANCE", optimization.DefaultReturnTolerance),
			MinDataPoints:   getEnvAsInt("MIN_DATA_POINTS", optimization.DefaultMinDataPoints),
			Workers:         getEnvAsInt("OPTIMIZER_WORKERS", runtime.NumCPU()),
			Shrinkage:       getEnvAsBool("COVARIANCE_SHRINKAGE", false),
		},
		Yahoo: YahooConfig{
			BaseURL:           getEnv("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),
			RequestsPerSecond: getEnvAsFloat("YAHOO_REQUESTS_PER_SECOND", 4),
			FetchConcurrency:  getEnvAsInt("YAHOO_FETCH_CONCURRENCY", 4),
		},
		CacheCleanupSchedule:  getEnv("CACHE_CLEANUP_SCHEDULE", "0 0 3 * * *"),
		WALCheckpointSchedule: getEnv("WAL_CHECKPOINT_SCHEDULE", "0 30 * * * *"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// OptimizationOptions converts the optimizer settings into engine options.
func (c *Config) OptimizationOptions() optimization.Options {
	o := c.Optimizer
	return optimization.Options{
		NumPortfolios:   o.NumPortfolios,
		RiskFreeRate:    o.RiskFreeRate,
		Strategy:        optimization.FrontierStrategy(o.Strategy),
		FrontierPoints:  o.FrontierPoints,
		SamplesPerPoint: o.SamplesPerPoint,
		ReturnTolerance: o.ReturnTolerance,
		MinDataPoints:   o.MinDataPoints,
		Workers:         o.Workers,
		Shrinkage:       o.Shrinkage,
	}
}

// Validate checks that configuration values are usable
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}

	o := c.Optimizer
	if o.NumPortfolios < 1 {
		return fmt.Errorf("NUM_PORTFOLIOS must be at least 1, got %d", o.NumPortfolios)
	}
	if !optimization.FrontierStrategy(o.Strategy).Valid() {
		return fmt.Errorf("FRONTIER_STRATEGY must be %q or %q, got %q",
			optimization.StrategySampled, optimization.StrategyAnalytic, o.Strategy)
	}
	if o.FrontierPoints < 2 {
		return fmt.Errorf("FRONTIER_POINTS must be at least 2, got %d", o.FrontierPoints)
	}
	if o.SamplesPerPoint < 1 {
		return fmt.Errorf("FRONTIER_SAMPLES must be at least 1, got %d", o.SamplesPerPoint)
	}
	if o.ReturnTolerance <= 0 {
		return fmt.Errorf("FRONTIER_TOLERANCE must be positive, got %v", o.ReturnTolerance)
	}
	if o.MinDataPoints < 3 {
		return fmt.Errorf("MIN_DATA_POINTS must be at least 3, got %d", o.MinDataPoints)
	}
	if o.Workers < 1 {
		return fmt.Errorf("OPTIMIZER_WORKERS must be at least 1, got %d", o.Workers)
	}

	if c.Yahoo.BaseURL == "" {
		return fmt.Errorf("YAHOO_BASE_URL must not be empty")
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, schedule := range map[string]string{
		"CACHE_CLEANUP_SCHEDULE":  c.CacheCleanupSchedule,
		"WAL_CHECKPOINT_SCHEDULE": c.WALCheckpointSchedule,
	} {
		if _, err := parser.Parse(schedule); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, schedule, err)
		}
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
