package di

import (
	"github.com/aristath/frontier/internal/clientdata"
	"github.com/aristath/frontier/internal/clients/yahoo"
	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/modules/marketdata"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/rs/zerolog"
)

// InitializeServices creates repositories, clients and services.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) {
	container.ClientDataRepo = clientdata.NewRepository(container.CacheDB.Conn())

	container.YahooClient = yahoo.NewClient(yahoo.Config{
		BaseURL:           cfg.Yahoo.BaseURL,
		RequestsPerSecond: cfg.Yahoo.RequestsPerSecond,
	}, container.ClientDataRepo, log)

	container.MarketDataService = marketdata.NewService(
		container.YahooClient,
		cfg.Yahoo.FetchConcurrency,
		cfg.Optimizer.MinDataPoints,
		log,
	)

	container.OptimizationService = optimization.NewService(cfg.OptimizationOptions(), log)
}
