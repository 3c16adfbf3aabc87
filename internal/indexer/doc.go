// Package indexer walks library trees and keeps their metadata store and
// thumbnail cache up to date.
//
// A Scanner runs two operations:
//   - Scan: a full walk. Every image is stat'ed, its thumbnail is generated
//     or reused, and rows are written in batches. Rows for files that were
//     not seen are deleted and folder counts are rebuilt.
//   - Apply: an incremental update for a Delta of added, changed and
//     removed paths, as reported by the watcher or by DetectChanges.
//
// Files are processed with bounded concurrency (errgroup with SetLimit) one
// batch at a time, so memory stays proportional to the batch size. Each
// batch is committed atomically with UpsertBatch.
//
// Per-file failures never abort a scan:
//   - an IOError (missing, unreadable) skips the file
//   - a media.DecodeError keeps the row without a thumbnail
//
// Both are counted and sampled in the Result. A database.StoreError aborts
// the scan.
//
// Hidden files, the library metadata directory and configured ignore
// patterns are skipped. Only files with an image extension are indexed.
package indexer
