// Package di provides dependency injection type definitions.
package di

import (
	"github.com/aristath/frontier/internal/clientdata"
	"github.com/aristath/frontier/internal/clients/yahoo"
	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/modules/marketdata"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/scheduler"
)

// Container holds all application dependencies.
// It is created by Wire() and passed to the server for access to services.
type Container struct {
	// Databases
	CacheDB *database.DB // Market data response cache (history, quotes, search)

	// Repositories
	ClientDataRepo *clientdata.Repository

	// Clients
	YahooClient *yahoo.Client

	// Services
	MarketDataService   *marketdata.Service
	OptimizationService *optimization.Service

	// Background jobs
	Scheduler *scheduler.Scheduler
}

// JobInstances holds scheduled job instances for manual triggering.
type JobInstances struct {
	CacheCleanup  *clientdata.CleanupJob
	WALCheckpoint scheduler.Job
}

// Close releases resources held by the container.
func (c *Container) Close() error {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.CacheDB != nil {
		return c.CacheDB.Close()
	}
	return nil
}
