// Package startup loads configuration from the environment and writes the
// startup and shutdown log.
//
// # Configuration
//
// [LoadConfig] reads the following variables. Invalid numbers and durations
// fall back to the default with a warning; unsupported enumerations fail.
//
//   - LIBRARIES_FILE: YAML file listing the libraries (default: /config/libraries.yaml)
//   - PORT: HTTP port (default: 8080)
//   - METRICS_ENABLED: serve /metrics (default: true)
//   - LOG_HEALTH_CHECKS: log /healthz requests (default: false)
//   - WATCH_ON_START: start a watcher for every library (default: true)
//   - SEARCH_CACHE_SIZE: cached search pages (default: 256)
//   - SCAN_CONCURRENCY, SCAN_BATCH_SIZE, SCAN_WORKERS, SCAN_IGNORE, SCAN_SWEEP_ORPHANS
//   - THUMBNAIL_HEIGHT, THUMBNAIL_QUALITY, THUMBNAIL_EFFORT, THUMBNAIL_FORMAT (webp, jpg, png)
//   - POOL_MAX_OPEN, POOL_IDLE_TIMEOUT, POOL_EXHAUSTION_POLICY (block, fail)
//   - SYNC_DELAY: how long watcher changes accumulate before a sync (default: 2s)
//   - CLEANUP_INTERVAL: routine cleanup period, 0 disables it (default: 10m)
//   - DB_JOURNAL_MODE, DB_SYNCHRONOUS, DB_CACHE_SIZE, DB_BUSY_TIMEOUT, DB_MMAP_SIZE
//
// Memory limits (MEMORY_LIMIT, MEMORY_RATIO, GOMEMLIMIT) are handled by the
// memory package; [LogMemoryConfig] reports the outcome.
//
// # Build Information
//
// Version, Commit and BuildTime are injected via ldflags and exposed through
// [GetBuildInfo].
package startup
