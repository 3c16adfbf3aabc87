package database

import "time"

// Options carries SQLite tuning. It is configuration, not schema: every
// library database is opened with the same Options.
type Options struct {
	JournalMode string
	Synchronous string
	// CacheSize follows PRAGMA cache_size: negative values are KiB, positive
	// values are pages.
	CacheSize   int
	BusyTimeout time.Duration
	MMapSize    int64
	// MaxOpenConns caps connections per library. The default of 1 makes
	// every caller of one library serialize through a single connection.
	MaxOpenConns int
}

// DefaultOptions returns WAL mode with NORMAL sync, a 20MB page cache and a
// 5s busy timeout.
func DefaultOptions() Options {
	return Options{
		JournalMode:  "WAL",
		Synchronous:  "NORMAL",
		CacheSize:    -20000,
		BusyTimeout:  5 * time.Second,
		MMapSize:     0,
		MaxOpenConns: 1,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.JournalMode == "" {
		o.JournalMode = def.JournalMode
	}
	if o.Synchronous == "" {
		o.Synchronous = def.Synchronous
	}
	if o.CacheSize == 0 {
		o.CacheSize = def.CacheSize
	}
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = def.BusyTimeout
	}
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = def.MaxOpenConns
	}
	return o
}
