package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"peekraw/internal/startup"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	Items           int    `json:"items"`
	SnapshotVersion uint64 `json:"snapshotVersion"`
	Run             uint64 `json:"run"`

	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	snap := h.gallery.Snapshot()
	pending, ready, unsupported := snap.Counts()

	response := HealthResponse{
		Status:          "healthy",
		Version:         startup.Version,
		Uptime:          time.Since(h.startTime).Round(time.Second).String(),
		Items:           pending + ready + unsupported,
		SnapshotVersion: snap.Version(),
		Run:             uint64(h.gallery.Current()),
		GoVersion:       runtime.Version(),
		NumCPU:          runtime.NumCPU(),
		NumGoroutine:    runtime.NumGoroutine(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		writeJSON(w, response)
	}
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

// readinessTimeout bounds how long the main loop may take to answer.
const readinessTimeout = 2 * time.Second

// ReadinessCheck reports ready while the main loop is processing work.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	if err := h.gallery.Ping(ctx); err != nil {
		writeJSONStatus(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeJSONStatus(w, http.StatusOK, "ready")
}
