package clientdata

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CleanupReport summarizes one pass of the cache cleanup job.
type CleanupReport struct {
	RanAt     time.Time        `json:"ranAt"`
	Duration  time.Duration    `json:"duration"`
	Deleted   map[string]int64 `json:"deleted"`
	Remaining map[string]int64 `json:"remaining"`
}

// CleanupJob evicts expired market data responses from the cache tables.
type CleanupJob struct {
	repo *Repository
	log  zerolog.Logger

	mu   sync.RWMutex
	last *CleanupReport
}

// NewCleanupJob creates a cache cleanup job over repo.
func NewCleanupJob(repo *Repository, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo: repo,
		log:  log.With().Str("job", "cache_cleanup").Logger(),
	}
}

// Name returns the job name for scheduling and manual triggering.
func (j *CleanupJob) Name() string {
	return "cache_cleanup"
}

// Run deletes expired rows from every cache table and records a report.
func (j *CleanupJob) Run() error {
	start := time.Now()

	deleted, err := j.repo.DeleteAllExpired()
	if err != nil {
		j.log.Error().Err(err).Msg("Cache cleanup failed")
		return fmt.Errorf("cache cleanup: %w", err)
	}

	remaining, err := j.repo.Counts()
	if err != nil {
		return fmt.Errorf("cache cleanup: %w", err)
	}

	report := &CleanupReport{
		RanAt:     start,
		Duration:  time.Since(start),
		Deleted:   deleted,
		Remaining: remaining,
	}

	j.mu.Lock()
	j.last = report
	j.mu.Unlock()

	var total int64
	for _, n := range deleted {
		total += n
	}

	event := j.log.Debug()
	if total > 0 {
		event = j.log.Info()
	}
	event.
		Int64("evicted", total).
		Int64("history_left", remaining[TableHistory]).
		Int64("quotes_left", remaining[TableQuote]).
		Int64("searches_left", remaining[TableSearch]).
		Dur("took", report.Duration).
		Msg("Cache cleanup finished")

	return nil
}

// LastReport returns the most recent successful run, or nil before the first.
func (j *CleanupJob) LastReport() *CleanupReport {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.last
}
