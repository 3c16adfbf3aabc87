package indexer

import (
	"sync"
	"sync/atomic"
	"time"

	"library-indexer/internal/logging"
	"library-indexer/internal/metrics"
)

// Progress is a snapshot of a running operation.
type Progress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
	Failed    int `json:"failed"`
}

// ProgressFunc receives progress snapshots. It is called from scanner
// goroutines and must not block.
type ProgressFunc func(Progress)

// tracker counts processed files and reports at most once per interval.
type tracker struct {
	kind     string
	total    int
	interval time.Duration
	fn       ProgressFunc

	processed atomic.Int64
	failed    atomic.Int64

	mu       sync.Mutex
	last     time.Time
	failures []Failure
}

func newTracker(kind string, total int, interval time.Duration, fn ProgressFunc) *tracker {
	return &tracker{kind: kind, total: total, interval: interval, fn: fn}
}

func (t *tracker) done() {
	t.processed.Add(1)
	metrics.ScanFilesProcessed.Inc()
	t.report(false)
}

func (t *tracker) fail(f Failure) {
	t.failed.Add(1)
	metrics.ScanFailuresTotal.WithLabelValues(string(f.Kind)).Inc()
	logging.Warn("%s scan: %s failure for %s: %s", t.kind, f.Kind, f.Path, f.Error)

	t.mu.Lock()
	if len(t.failures) < MaxFailureSamples {
		t.failures = append(t.failures, f)
	}
	t.mu.Unlock()
}

func (t *tracker) snapshot() Progress {
	return Progress{
		Processed: int(t.processed.Load()),
		Total:     t.total,
		Failed:    int(t.failed.Load()),
	}
}

// report calls the progress function if the interval has elapsed or force
// is set.
func (t *tracker) report(force bool) {
	if t.fn == nil {
		return
	}
	t.mu.Lock()
	now := time.Now()
	if !force && now.Sub(t.last) < t.interval {
		t.mu.Unlock()
		return
	}
	t.last = now
	t.mu.Unlock()

	t.fn(t.snapshot())
}

func (t *tracker) samples() []Failure {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Failure, len(t.failures))
	copy(out, t.failures)
	return out
}
