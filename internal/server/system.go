package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/hedge/internal/database"
	"github.com/aristath/hedge/internal/domain"
	"github.com/aristath/hedge/internal/scheduler"
	"github.com/aristath/hedge/internal/version"
)

const (
	defaultRunsLimit = 10
	maxRunsLimit     = 100
)

// JobControl triggers jobs and reports their state.
// *scheduler.Scheduler satisfies it.
type JobControl interface {
	Trigger(name string) error
	Status() []scheduler.JobStatus
}

// RunSource lists recent scoring runs.
// *scoring.Repository satisfies it.
type RunSource interface {
	RecentRuns(limit int) ([]domain.ScoringRun, error)
}

// SystemHandlers serves the /system endpoints: process and host stats,
// store sizes, scheduler state, run history, manual job triggers, and the
// live event stream.
type SystemHandlers struct {
	databases map[string]*database.DB
	dataDir   string
	jobs      JobControl
	runs      RunSource
	stream    *StreamHandler
	startedAt time.Time
	log       zerolog.Logger
}

func NewSystemHandlers(databases map[string]*database.DB, dataDir string, jobs JobControl, runs RunSource, stream *StreamHandler, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		databases: databases,
		dataDir:   dataDir,
		jobs:      jobs,
		runs:      runs,
		stream:    stream,
		startedAt: time.Now(),
		log:       log.With().Str("module", "system_handlers").Logger(),
	}
}

// RegisterRoutes registers all system routes
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/system", func(r chi.Router) {
		r.Get("/status", h.HandleStatus)
		r.Get("/runs", h.HandleRuns)
		r.Post("/jobs/{name}/trigger", h.HandleTriggerJob)
		if h.stream != nil {
			r.Get("/events", h.stream.ServeHTTP)
		}
	})
}

// HandleStatus handles GET /system/status.
func (h *SystemHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.hostStats()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"version":        version.Version,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"process": map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"go_version": runtime.Version(),
		},
		"host": map[string]interface{}{
			"cpu_percent":    round1(cpuPercent),
			"memory_percent": round1(memPercent),
		},
		"databases": h.databaseSizes(),
		"scheduler": h.schedulerState(),
	}, h.log)
}

// HandleRuns handles GET /system/runs.
func (h *SystemHandlers) HandleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxRunsLimit {
			writeError(w, "limit must be between 1 and 100", http.StatusBadRequest, h.log)
			return
		}
		limit = parsed
	}

	runs, err := h.runs.RecentRuns(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load scoring runs")
		writeError(w, "Failed to load scoring runs", http.StatusInternalServerError, h.log)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	}, h.log)
}

// HandleTriggerJob handles POST /system/jobs/{name}/trigger.
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	err := h.jobs.Trigger(name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		writeError(w, "unknown job: "+name, http.StatusNotFound, h.log)
		return
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		writeError(w, "job already running: "+name, http.StatusConflict, h.log)
		return
	case err != nil:
		h.log.Error().Err(err).Str("job", name).Msg("Failed to trigger job")
		writeError(w, "Failed to trigger job", http.StatusInternalServerError, h.log)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "triggered",
		"job":    name,
	}, h.log)
}

func (h *SystemHandlers) hostStats() (float64, float64) {
	// 100ms sample keeps the status endpoint snappy.
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to read CPU usage")
		cpuPercent = []float64{0}
	}
	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to read memory usage")
		return cpuAvg, 0
	}
	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) databaseSizes() map[string]interface{} {
	sizes := make(map[string]interface{}, len(h.databases)+1)
	for name, db := range h.databases {
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to read database stats")
			continue
		}
		sizes[name] = map[string]float64{
			"size_mb":     roundMB(stats.SizeBytes),
			"wal_size_mb": roundMB(stats.WALSizeBytes),
		}
	}

	// The macro history store lives outside the managed pool; size it
	// from the file.
	if info, err := os.Stat(filepath.Join(h.dataDir, "macro.db")); err == nil {
		sizes["macro"] = map[string]float64{"size_mb": roundMB(info.Size())}
	}
	return sizes
}

func (h *SystemHandlers) schedulerState() map[string]interface{} {
	if h.jobs == nil {
		return map[string]interface{}{"jobs": []scheduler.JobStatus{}}
	}
	return map[string]interface{}{"jobs": h.jobs.Status()}
}

func roundMB(bytes int64) float64 {
	return float64(bytes*100/(1024*1024)) / 100
}

func round1(v float64) float64 {
	return float64(int(v*10)) / 10
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}, log zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, message string, status int, log zerolog.Logger) {
	writeJSON(w, status, map[string]string{"error": message}, log)
}
