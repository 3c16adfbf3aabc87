// Package metrics provides Prometheus instrumentation for the library indexer.
//
// All metrics are registered with promauto at package init and are prefixed
// with "library_indexer_". They are grouped by subsystem:
//
//   - HTTP: request counts, durations and in-flight requests
//   - Database: query counts and durations per operation, transaction
//     durations, retries caused by a locked database
//   - Scan: session outcomes per kind, coalesced requests, per-file failures,
//     scans in progress
//   - Thumbnail: generations per backend and status, durations, bytes written,
//     orphaned artifacts removed
//   - Pool: open handles, acquires, closes by reason, wait time, exhaustion
//   - Watcher: active watchers, events by type, errors, restarts
//   - Cleanup and memory: cycles by kind, bytes freed, heap usage ratio
//   - Cache: lookups by result, entry counts
//   - Filesystem: retries and stale handle errors
//   - Library: indexed images and thumbnail bytes per library, refreshed by
//     the Collector
//
// Call InitializeMetrics once at startup so labelled series are exported from
// the first scrape.
package metrics
