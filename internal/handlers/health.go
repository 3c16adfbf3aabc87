package handlers

import (
	"net/http"
	"runtime"
	"time"

	"library-indexer/internal/pool"
	"library-indexer/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Libraries int    `json:"libraries"`

	ActiveScans  int  `json:"activeScans"`
	Watchers     int  `json:"watchers"`
	MemoryPaused bool `json:"memoryPaused"`

	Pool *pool.Stats `json:"pool,omitempty"`

	GoVersion    string `json:"goVersion"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck reports the state of the service. It is degraded, and answers
// 503, while scans are paused for memory.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:       statusHealthy,
		Version:      startup.Version,
		Uptime:       time.Since(h.startedAt).Round(time.Second).String(),
		Libraries:    len(h.Libraries.List()),
		ActiveScans:  len(h.Scans.ActiveStates()),
		Watchers:     len(h.Watchers.List()),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
	}
	if h.Pool != nil {
		stats := h.Pool.Stats()
		resp.Pool = &stats
	}

	status := http.StatusOK
	if h.Memory != nil && h.Memory.IsPaused() {
		resp.MemoryPaused = true
		resp.Status = statusDegraded
		status = http.StatusServiceUnavailable
	}

	if r.Method == http.MethodHead {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, resp)
}

// LivenessCheck answers 200 while the process is serving.
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}
