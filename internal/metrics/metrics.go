package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_indexer_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "library_indexer_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "library_indexer_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_indexer_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "library_indexer_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "library_indexer_db_transaction_duration_seconds",
			Help:    "Duration of database transactions in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"type"},
	)

	DBLockRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_indexer_db_lock_retries_total",
			Help: "Number of retries caused by a locked database",
		},
		[]string{"operation"},
	)
)

// Scan metrics
var (
	ScanRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_indexer_scan_runs_total",
			Help: "Total number of scan sessions by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	ScanCoalescedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_indexer_scan_coalesced_total",
			Help: "Scan requests that attached to an in-flight session",
		},
		[]string{"kind"},
	)

	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "library_indexer_scan_duration_seconds",
			Help:    "Scan session duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		},
		[]string{"kind"},
	)

	ScanFilesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "library_indexer_scan_files_processed_total",
			Help: "Total number of files processed by scans",
		},
	)

	ScanFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_indexer_scan_failures_total",
			Help: "Per-file scan failures by kind (io, decode)",
		},
		[]string{"kind"},
	)

	ScansInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "library_indexer_scans_in_progress",
			Help: "Number of scan sessions currently running",
		},
	)

	ScanLastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "library_indexer_scan_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last finished scan per library",
		},
		[]string{"library"},
	)
)

// Thumbnail metrics
var (
	ThumbnailGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_indexer_thumbnail_generations_total",
			Help: "Total number of thumbnail generations",
		},
		[]string{"backend", "status"},
	)

	ThumbnailGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "library_indexer_thumbnail_generation_duration_seconds",
			Help:    "Thumbnail generation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"backend"},
	)

	ThumbnailBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "library_indexer_thumbnail_bytes_written_total",
			Help: "Bytes of thumbnail artifacts written",
		},
	)

	ThumbnailOrphansRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "library_indexer_thumbnail_orphans_removed_total",
			Help: "Thumbnail artifacts removed because no image references them",
		},
	)
)

// Connection pool metrics
var (
	PoolOpenHandles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "library_indexer_pool_open_handles",
			Help: "Number of library databases currently open",
		},
	)

	PoolAcquiresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_indexer_pool_acquires_total",
			Help: "Pool acquires by result (reuse, open, error)",
		},
		[]string{"result"},
	)

	PoolClosesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_indexer_pool_closes_total",
			Help: "Pooled handles closed by reason (idle, evicted, forced)",
		},
		[]string{"reason"},
	)

	PoolWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "library_indexer_pool_wait_duration_seconds",
			Help:    "Time spent waiting for a free pool slot",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60},
		},
	)

	PoolExhaustedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "library_indexer_pool_exhausted_total",
			Help: "Acquires that found the pool at its ceiling with no idle handle",
		},
	)
)

// Watcher metrics
var (
	WatchersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "library_indexer_watchers_active",
			Help: "Number of libraries currently being watched",
		},
	)

	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_indexer_watcher_events_total",
			Help: "Total number of filesystem watcher events",
		},
		[]string{"event_type"},
	)

	WatcherErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "library_indexer_watcher_errors_total",
			Help: "Total number of filesystem watcher errors",
		},
	)

	WatcherRestartsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "library_indexer_watcher_restarts_total",
			Help: "Watchers restarted after their watch primitive died",
		},
	)

	WatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "library_indexer_watched_directories",
			Help: "Number of directories currently being watched",
		},
	)
)

// Cleanup and memory metrics
var (
	CleanupRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_indexer_cleanup_runs_total",
			Help: "Cleanup cycles by kind (routine, emergency)",
		},
		[]string{"kind"},
	)

	CleanupLastFreedBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "library_indexer_cleanup_last_freed_bytes",
			Help: "Heap bytes released by the last cleanup cycle",
		},
		[]string{"kind"},
	)

	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "library_indexer_memory_usage_ratio",
			Help: "Heap usage as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "library_indexer_memory_paused",
			Help: "1 while processing is paused for memory pressure",
		},
	)

	MemoryCriticalTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "library_indexer_memory_critical_total",
			Help: "Times heap usage crossed the critical watermark",
		},
	)
)

// Cache metrics
var (
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_indexer_cache_requests_total",
			Help: "In-memory cache lookups by cache and result",
		},
		[]string{"cache", "result"},
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "library_indexer_cache_entries",
			Help: "Entries held by each in-memory cache",
		},
		[]string{"cache"},
	)
)

// Filesystem metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_indexer_filesystem_retry_attempts_total",
			Help: "Filesystem operations retried after a transient error",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_indexer_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after all retries",
		},
		[]string{"operation"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_indexer_filesystem_stale_errors_total",
			Help: "Stale file handle errors seen on network filesystems",
		},
		[]string{"operation"},
	)
)

// Library metrics
var (
	LibraryImagesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "library_indexer_library_images",
			Help: "Indexed images per library",
		},
		[]string{"library"},
	)

	LibraryThumbnailBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "library_indexer_library_thumbnail_bytes",
			Help: "Total thumbnail artifact bytes per library",
		},
		[]string{"library"},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "library_indexer_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
