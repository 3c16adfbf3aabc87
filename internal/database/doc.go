// Package database is the per-library metadata store.
//
// Each library owns one SQLite database holding:
//   - images: one row per library-relative path, replaced on re-index
//   - folders: aggregate image counts, always recomputed from images
//   - metadata: small key/value settings such as the last scan time
//
// Writes go through UpsertBatch, which commits a whole batch in a single
// transaction so readers never observe part of it. Search composes keyword,
// folder, format, size and date filters and paginates by offset/limit.
//
// The SQLite driver is chosen at build time: mattn/go-sqlite3 by default,
// or modernc.org/sqlite with the purego build tag. Pragmas are injected
// through Options. Timestamps are stored as Unix nanoseconds so that
// modification times compare exactly with the filesystem.
package database
