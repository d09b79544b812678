package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peekraw_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "peekraw_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peekraw_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Thumbnail cache metrics
var (
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peekraw_cache_requests_total",
			Help: "Thumbnail cache lookups by tier and result",
		},
		[]string{"tier", "result"}, // tier: memory, disk; result: hit, miss
	)

	CacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peekraw_cache_evictions_total",
			Help: "Entries evicted from a cache tier because a limit was reached",
		},
		[]string{"tier"},
	)

	CacheMemoryItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peekraw_cache_memory_items",
			Help: "Number of thumbnails resident in the memory tier",
		},
	)

	CacheDiskBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peekraw_cache_disk_bytes",
			Help: "Tracked byte size of the disk tier",
		},
	)

	CacheDiskEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peekraw_cache_disk_entries",
			Help: "Number of thumbnails stored in the disk tier",
		},
	)

	CacheDiskErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peekraw_cache_disk_errors_total",
			Help: "Disk tier I/O failures that were recovered locally",
		},
		[]string{"operation"}, // read, write, evict, index
	)

	CacheWriteQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peekraw_cache_write_queue_depth",
			Help: "Write-through operations waiting for the disk tier",
		},
	)
)

// Cache index database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peekraw_index_db_queries_total",
			Help: "Queries against the disk tier index database",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "peekraw_index_db_query_duration_seconds",
			Help:    "Disk tier index query duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation"},
	)

	DBSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peekraw_index_db_size_bytes",
			Help: "Size of the disk tier index database file",
		},
	)
)

// Pipeline metrics
var (
	PipelineRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peekraw_pipeline_runs_total",
			Help: "Total number of pipeline runs started",
		},
	)

	PipelineRunsCanceled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peekraw_pipeline_runs_canceled_total",
			Help: "Pipeline runs superseded by a newer run before finishing",
		},
	)

	PipelineRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "peekraw_pipeline_run_duration_seconds",
			Help:    "Wall time of completed pipeline runs",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	PipelineIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peekraw_pipeline_running",
			Help: "Whether a pipeline run is active (1 = running, 0 = idle)",
		},
	)

	PipelineItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peekraw_pipeline_items_total",
			Help: "Pipeline items by outcome",
		},
		[]string{"outcome"}, // cache_hit, decoded, failed
	)

	PipelineStaleEventsDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peekraw_pipeline_stale_events_discarded_total",
			Help: "Events from superseded runs dropped before delivery",
		},
	)
)

// Decoder metrics
var (
	DecodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "peekraw_decode_duration_seconds",
			Help:    "Time spent decoding images",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"kind"}, // thumbnail, full
	)

	DecodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peekraw_decode_errors_total",
			Help: "Decode failures by kind and reason",
		},
		[]string{"kind", "reason"},
	)
)

// Gallery and file source metrics
var (
	GalleryItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "peekraw_gallery_items",
			Help: "Items in the current gallery snapshot by state",
		},
		[]string{"state"}, // pending, ready, unsupported
	)

	GallerySnapshotVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peekraw_gallery_snapshot_version",
			Help: "Current version of the gallery snapshot",
		},
	)

	EnumerationFilesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peekraw_enumeration_files_total",
			Help: "Files produced by folder enumeration",
		},
	)

	EnumerationSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peekraw_enumeration_skipped_total",
			Help: "Unreadable entries skipped during folder enumeration",
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peekraw_filesystem_retry_attempts_total",
			Help: "Retries of filesystem operations after a stale file handle",
		},
		[]string{"operation"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peekraw_filesystem_retry_success_total",
			Help: "Filesystem operations that succeeded after retrying",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peekraw_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after exhausting retries",
		},
		[]string{"operation"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peekraw_filesystem_stale_errors_total",
			Help: "Stale file handle errors observed",
		},
		[]string{"operation"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "peekraw_filesystem_retry_duration_seconds",
			Help:    "Total duration of retried filesystem operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"operation"},
	)
)

// Memory backpressure metrics
var (
	GoMemLimit = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peekraw_go_memlimit_bytes",
			Help: "Configured GOMEMLIMIT in bytes, 0 when unset",
		},
	)

	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peekraw_memory_usage_ratio",
			Help: "Heap allocation as a ratio of the memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peekraw_memory_paused",
			Help: "1 while decodes are held back by memory pressure",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peekraw_memory_gc_pauses_total",
			Help: "Times decoding was paused and a GC forced because memory was critical",
		},
	)
)
