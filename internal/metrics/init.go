package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, kind := range []string{"full", "incremental"} {
		for _, status := range []string{"completed", "failed"} {
			ScanRunsTotal.WithLabelValues(kind, status)
		}
		ScanCoalescedTotal.WithLabelValues(kind)
		ScanDuration.WithLabelValues(kind)
	}

	for _, kind := range []string{"io", "decode"} {
		ScanFailuresTotal.WithLabelValues(kind)
	}

	for _, backend := range []string{"vips", "imaging"} {
		for _, status := range []string{"success", "skipped", "decode_error", "io_error", "write_error"} {
			ThumbnailGenerationsTotal.WithLabelValues(backend, status)
		}
		ThumbnailGenerationDuration.WithLabelValues(backend)
	}

	for _, result := range []string{"reuse", "open", "error"} {
		PoolAcquiresTotal.WithLabelValues(result)
	}
	for _, reason := range []string{"idle", "evicted", "forced"} {
		PoolClosesTotal.WithLabelValues(reason)
	}

	for _, ev := range []string{"add", "change", "unlink", "addDir", "unlinkDir", "error", "ready"} {
		WatcherEventsTotal.WithLabelValues(ev)
	}

	for _, kind := range []string{"routine", "emergency"} {
		CleanupRunsTotal.WithLabelValues(kind)
		CleanupLastFreedBytes.WithLabelValues(kind)
	}

	for _, op := range []string{"stat", "open", "readdir"} {
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
		FilesystemStaleErrors.WithLabelValues(op)
	}

	for _, op := range []string{"upsert_batch", "search", "delete_path", "delete_prefix",
		"recompute_folder_count", "upsert_folders", "indexed_state", "delete_indexed_before", "vacuum"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, t := range []string{"commit", "rollback"} {
		DBTransactionDuration.WithLabelValues(t)
	}
}
