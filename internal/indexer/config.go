package indexer

import (
	"context"
	"time"

	"library-indexer/internal/media"
	"library-indexer/internal/workers"
)

// Config holds scanner settings.
type Config struct {
	// Concurrency bounds the files processed at once within a batch.
	Concurrency int
	// BatchSize is the number of rows committed per transaction.
	BatchSize int
	// ProgressInterval is the minimum time between progress callbacks.
	ProgressInterval time.Duration
	// SweepOrphans removes unreferenced thumbnails after a full scan.
	SweepOrphans bool
	// Ignore holds extra .gitignore style patterns.
	Ignore []string
	// Thumbnail is the generator template. Root is set per library.
	Thumbnail media.Options
	// Backpressure, if set, is consulted before every batch.
	Backpressure Backpressure
}

// Backpressure pauses scans while memory is short. *memory.Monitor
// implements it.
type Backpressure interface {
	// WaitIfPaused blocks while paused and returns false on shutdown or
	// when ctx is done.
	WaitIfPaused(ctx context.Context) bool
}

// DefaultConfig returns the default scanner settings.
func DefaultConfig() Config {
	return Config{
		Concurrency:      workers.ForMixed(4),
		BatchSize:        500,
		ProgressInterval: 500 * time.Millisecond,
		Thumbnail:        media.DefaultOptions(""),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = def.ProgressInterval
	}
	return c
}
