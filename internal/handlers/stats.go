package handlers

import (
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
)

// StatsResponse reports gallery and cache state.
type StatsResponse struct {
	Items           int    `json:"items"`
	Pending         int    `json:"pending"`
	Ready           int    `json:"ready"`
	Unsupported     int    `json:"unsupported"`
	SnapshotVersion uint64 `json:"snapshotVersion"`
	Run             uint64 `json:"run"`

	MemoryItems   int    `json:"memoryItems"`
	MemoryLimit   int    `json:"memoryLimit"`
	DiskBytes     int64  `json:"diskBytes"`
	DiskLimit     int64  `json:"diskLimit"`
	DiskEntries   int    `json:"diskEntries"`
	DiskSize      string `json:"diskSize"`
	PendingWrites int    `json:"pendingWrites"`
	MemoryHits    uint64 `json:"memoryHits"`
	DiskHits      uint64 `json:"diskHits"`
	Misses        uint64 `json:"misses"`

	Uptime string `json:"uptime"`
}

// GetStats returns gallery and cache statistics
func (h *Handlers) GetStats(w http.ResponseWriter, _ *http.Request) {
	snap := h.gallery.Snapshot()
	pending, ready, unsupported := snap.Counts()
	cs := h.gallery.CacheStats()

	resp := StatsResponse{
		Items:           pending + ready + unsupported,
		Pending:         pending,
		Ready:           ready,
		Unsupported:     unsupported,
		SnapshotVersion: snap.Version(),
		Run:             uint64(h.gallery.Current()),
		MemoryItems:     cs.MemoryItems,
		MemoryLimit:     cs.MemoryLimit,
		DiskBytes:       cs.DiskBytes,
		DiskLimit:       cs.DiskLimit,
		DiskEntries:     cs.DiskEntries,
		DiskSize:        humanize.IBytes(uint64(cs.DiskBytes)),
		PendingWrites:   cs.PendingWrites,
		MemoryHits:      cs.MemoryHits,
		DiskHits:        cs.DiskHits,
		Misses:          cs.Misses,
		Uptime:          time.Since(h.startTime).Round(time.Second).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, resp)
}
