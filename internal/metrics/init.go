package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, tier := range []string{"memory", "disk"} {
		CacheRequestsTotal.WithLabelValues(tier, "hit")
		CacheRequestsTotal.WithLabelValues(tier, "miss")
		CacheEvictionsTotal.WithLabelValues(tier)
	}

	for _, op := range []string{"read", "write", "evict", "index"} {
		CacheDiskErrorsTotal.WithLabelValues(op)
	}

	for _, op := range []string{"load", "upsert", "delete", "purge", "vacuum"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, outcome := range []string{"cache_hit", "decoded", "failed"} {
		PipelineItemsTotal.WithLabelValues(outcome)
	}

	for _, kind := range []string{"thumbnail", "full"} {
		DecodeDuration.WithLabelValues(kind)
		for _, reason := range []string{"unsupported_format", "corrupt_data", "io_error", "no_thumbnail"} {
			DecodeErrorsTotal.WithLabelValues(kind, reason)
		}
	}

	for _, state := range []string{"pending", "ready", "unsupported"} {
		GalleryItems.WithLabelValues(state)
	}

	for _, op := range []string{"stat", "open", "read"} {
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetrySuccess.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
		FilesystemStaleErrors.WithLabelValues(op)
		FilesystemRetryDuration.WithLabelValues(op)
	}
}
