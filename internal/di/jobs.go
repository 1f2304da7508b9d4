package di

import (
	"fmt"

	"github.com/aristath/frontier/internal/clientdata"
	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/scheduler"
	"github.com/rs/zerolog"
)

// RegisterJobs creates maintenance jobs and registers them with the scheduler.
// The scheduler is not started here.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	sched := scheduler.New(log)

	jobs := &JobInstances{
		CacheCleanup:  clientdata.NewCleanupJob(container.ClientDataRepo, log),
		WALCheckpoint: scheduler.NewWALCheckpointJob(container.CacheDB, log),
	}

	if err := sched.AddJob(cfg.CacheCleanupSchedule, jobs.CacheCleanup); err != nil {
		return nil, fmt.Errorf("failed to register cache cleanup job: %w", err)
	}
	if err := sched.AddJob(cfg.WALCheckpointSchedule, jobs.WALCheckpoint); err != nil {
		return nil, fmt.Errorf("failed to register WAL checkpoint job: %w", err)
	}

	container.Scheduler = sched
	return jobs, nil
}
