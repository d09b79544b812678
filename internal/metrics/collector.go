package metrics

import (
	"time"

	"peekraw/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current statistics
type Stats struct {
	MemoryItems      int
	DiskBytes        int64
	DiskEntries      int
	PendingItems     int
	ReadyItems       int
	UnsupportedItems int
	SnapshotVersion  uint64
}

// Collector periodically collects and updates gauges that are cheaper to
// sample than to maintain on every mutation.
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	CacheMemoryItems.Set(float64(stats.MemoryItems))
	CacheDiskBytes.Set(float64(stats.DiskBytes))
	CacheDiskEntries.Set(float64(stats.DiskEntries))
	GalleryItems.WithLabelValues("pending").Set(float64(stats.PendingItems))
	GalleryItems.WithLabelValues("ready").Set(float64(stats.ReadyItems))
	GalleryItems.WithLabelValues("unsupported").Set(float64(stats.UnsupportedItems))
	GallerySnapshotVersion.Set(float64(stats.SnapshotVersion))

	logging.Debug("Metrics collected: memory=%d, disk=%d bytes/%d entries, gallery ready=%d unsupported=%d pending=%d",
		stats.MemoryItems, stats.DiskBytes, stats.DiskEntries, stats.ReadyItems, stats.UnsupportedItems, stats.PendingItems)
}
