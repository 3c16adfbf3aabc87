// Package memory sizes the Go heap limit from the container limit and
// watches heap usage against it.
//
// [ConfigureFromEnv] sets GOMEMLIMIT from MEMORY_LIMIT and MEMORY_RATIO
// unless GOMEMLIMIT is already set. Call it first in main.
//
// The [Monitor] samples heap usage on an interval. Crossing the critical
// watermark pauses work that calls [Monitor.WaitIfPaused] and fires the
// OnCritical hook once; dropping below the high watermark resumes work and
// fires OnRecover. The indexer uses the pause between batches and the
// cleanup manager hangs its emergency cycle on OnCritical.
//
// MEMORY_RATIO leaves room for memory the Go heap limit does not cover:
// libvips decode buffers, SQLite page caches and mmap regions. The default
// of 0.85 suits the vips backend with one concurrent decode; lower it when
// raising THUMBNAIL_DECODES or DB_MMAP_SIZE.
package memory
