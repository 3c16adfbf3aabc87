package metrics

import (
	"context"
	"sync"
	"time"

	"library-indexer/internal/logging"
)

// StatsProvider reports per-library statistics. *catalog.Service
// implements it.
type StatsProvider interface {
	LibraryStats() []LibraryStats
}

// LibraryStats is the size of one library's index and thumbnail cache.
type LibraryStats struct {
	LibraryID      string
	Images         int
	ThumbnailBytes int64
}

// Collector copies library statistics into gauges on an interval. Gauges
// of libraries that stop being reported are removed.
type Collector struct {
	provider StatsProvider
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	known map[string]struct{}
}

// NewCollector returns a stopped collector.
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		provider: provider,
		interval: interval,
		done:     make(chan struct{}),
		known:    make(map[string]struct{}),
	}
}

// Start collects once, then on every tick until Stop.
func (c *Collector) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(ctx)
}

// Stop ends collection and waits for the loop. It is safe to call more
// than once.
func (c *Collector) Stop() {
	c.once.Do(func() {
		if c.cancel == nil {
			close(c.done)
			return
		}
		c.cancel()
		<-c.done
	})
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		c.collect()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Collector) collect() {
	if c.provider == nil {
		return
	}

	seen := make(map[string]struct{}, len(c.known))
	stats := c.provider.LibraryStats()
	for _, s := range stats {
		LibraryImagesTotal.WithLabelValues(s.LibraryID).Set(float64(s.Images))
		LibraryThumbnailBytes.WithLabelValues(s.LibraryID).Set(float64(s.ThumbnailBytes))
		seen[s.LibraryID] = struct{}{}
	}
	for id := range c.known {
		if _, ok := seen[id]; !ok {
			LibraryImagesTotal.DeleteLabelValues(id)
			LibraryThumbnailBytes.DeleteLabelValues(id)
		}
	}
	c.known = seen

	logging.Debug("Collected statistics for %d libraries", len(stats))
}
