package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/frontier/internal/clientdata"
	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/di"
	"github.com/aristath/frontier/internal/scheduler"
)

// BreakerReporter exposes the upstream circuit breaker state.
type BreakerReporter interface {
	BreakerState() string
}

// SystemHandlers handles system-wide monitoring and operations
type SystemHandlers struct {
	log       zerolog.Logger
	cacheDB   *database.DB
	cacheRepo *clientdata.Repository
	breaker   BreakerReporter
	startedAt time.Time

	mu      sync.RWMutex
	jobs    map[string]scheduler.Job
	cleanup *clientdata.CleanupJob
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(
	log zerolog.Logger,
	cacheDB *database.DB,
	cacheRepo *clientdata.Repository,
	breaker BreakerReporter,
) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		cacheDB:   cacheDB,
		cacheRepo: cacheRepo,
		breaker:   breaker,
		startedAt: time.Now(),
		jobs:      make(map[string]scheduler.Job),
	}
}

// SetJobs registers job instances for manual triggering
func (h *SystemHandlers) SetJobs(jobs *di.JobInstances) {
	if jobs == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if jobs.CacheCleanup != nil {
		h.cleanup = jobs.CacheCleanup
		h.jobs[jobs.CacheCleanup.Name()] = jobs.CacheCleanup
	}
	if jobs.WALCheckpoint != nil {
		h.jobs[jobs.WALCheckpoint.Name()] = jobs.WALCheckpoint
	}
}

// SystemStatusResponse is the payload of GET /api/system/status
type SystemStatusResponse struct {
	Status        string                    `json:"status"`
	UptimeSeconds int64                     `json:"uptimeSeconds"`
	Goroutines    int                       `json:"goroutines"`
	CPUPercent    float64                   `json:"cpuPercent"`
	MemoryPercent float64                   `json:"memoryPercent"`
	YahooBreaker  string                    `json:"yahooBreaker,omitempty"`
	CacheEntries  map[string]int64          `json:"cacheEntries,omitempty"`
	CacheDB       *database.Stats           `json:"cacheDb,omitempty"`
	LastCleanup   *clientdata.CleanupReport `json:"lastCleanup,omitempty"`
	Warnings      []string                  `json:"warnings,omitempty"`
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	resp := SystemStatusResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
	}
	resp.CPUPercent, resp.MemoryPercent = h.getSystemStats()

	if h.breaker != nil {
		resp.YahooBreaker = h.breaker.BreakerState()
		if resp.YahooBreaker != "closed" {
			resp.Status = "degraded"
		}
	}

	if h.cacheRepo != nil {
		counts, err := h.cacheRepo.Counts()
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to count cache entries")
			resp.Warnings = append(resp.Warnings, "cache entry counts unavailable")
		}
		resp.CacheEntries = counts
	}

	if h.cacheDB != nil {
		if err := h.cacheDB.QuickCheck(r.Context()); err != nil {
			h.log.Warn().Err(err).Msg("Cache database health check failed")
			resp.Status = "degraded"
			resp.Warnings = append(resp.Warnings, "cache database unreachable")
		} else if stats, err := h.cacheDB.GetStats(); err != nil {
			h.log.Warn().Err(err).Msg("Failed to get cache database stats")
			resp.Warnings = append(resp.Warnings, "cache database stats unavailable")
		} else {
			resp.CacheDB = stats
		}
	}

	h.mu.RLock()
	if h.cleanup != nil {
		resp.LastCleanup = h.cleanup.LastReport()
	}
	h.mu.RUnlock()

	writeJSON(w, http.StatusOK, resp, h.log)
}

// HandleTriggerJob handles POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	h.mu.RLock()
	job, ok := h.jobs[name]
	h.mu.RUnlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"status":  "error",
			"message": "unknown job: " + name,
		}, h.log)
		return
	}

	start := time.Now()
	if err := job.Run(); err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("Manually triggered job failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"message": err.Error(),
		}, h.log)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "success",
		"job":        name,
		"durationMs": time.Since(start).Milliseconds(),
	}, h.log)
}

// getSystemStats calculates CPU and RAM usage percentages
// Uses a short sampling interval so the endpoint stays responsive
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}, log zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
