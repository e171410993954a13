package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/darbyjahn/smallphot0-backend/internal/filesystem"
	"github.com/darbyjahn/smallphot0-backend/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	Galleries      int           `json:"galleries"`
	TranscodeQueue int           `json:"transcodeQueue"`
	Encoding       int           `json:"encoding"`
	JournalError   string        `json:"journalError,omitempty"`
	Memory         *MemoryStatus `json:"memory,omitempty"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// MemoryStatus is the memory guard's view of the heap.
type MemoryStatus struct {
	HeapBytes  uint64  `json:"heapBytes"`
	LimitBytes int64   `json:"limitBytes"`
	Ratio      float64 `json:"ratio"`
	Throttled  bool    `json:"throttled"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:       statusHealthy,
		Ready:        h.ready(r.Context()),
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	if entries, err := h.galleries.List(); err == nil {
		response.Galleries = len(entries)
	}
	if h.queue != nil {
		response.TranscodeQueue = h.queue.Pending()
	}
	if h.encoder != nil {
		response.Encoding = h.encoder.Running()
	}
	if h.memory != nil && h.memory.Limit() > 0 {
		alloc, ratio := h.memory.Usage()
		response.Memory = &MemoryStatus{
			HeapBytes:  alloc,
			LimitBytes: h.memory.Limit(),
			Ratio:      ratio,
			Throttled:  h.memory.Throttled(),
		}
	}
	if h.jobs != nil {
		if err := h.jobs.Ping(r.Context()); err != nil {
			response.JournalError = err.Error()
			response.Status = statusDegraded
		}
	}

	status := http.StatusOK
	if !response.Ready {
		status = http.StatusServiceUnavailable
		response.Status = statusDegraded
	}
	writeJSONStatus(w, status, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the data directory is reachable
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if h.ready(r.Context()) {
		writeJSONStatus(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}

func (h *Handlers) ready(ctx context.Context) bool {
	if _, err := filesystem.StatWithRetry(h.store.Root(), filesystem.DefaultRetryConfig()); err != nil {
		return false
	}
	return ctx.Err() == nil
}
