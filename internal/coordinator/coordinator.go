package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"library-indexer/internal/database"
	"library-indexer/internal/events"
	"library-indexer/internal/indexer"
	"library-indexer/internal/library"
	"library-indexer/internal/logging"
	"library-indexer/internal/metrics"
	"library-indexer/internal/workers"
)

// ErrClosed is returned for requests made after Close.
var ErrClosed = errors.New("coordinator closed")

// Resolver maps library ids to libraries. *library.Registry implements it.
type Resolver interface {
	Get(id string) (library.Library, error)
}

// Store hands out library databases. *pool.Pool implements it.
type Store interface {
	Acquire(ctx context.Context, libraryID string) (*database.Database, error)
	ReleaseHandle(libraryID string, db *database.Database) error
}

// Scanner does the indexing work. *indexer.Scanner implements it.
type Scanner interface {
	Scan(ctx context.Context, lib library.Library, db *database.Database, progress indexer.ProgressFunc) (*indexer.Result, error)
	Apply(ctx context.Context, lib library.Library, db *database.Database, delta indexer.Delta, progress indexer.ProgressFunc) (*indexer.Result, error)
	DetectChanges(ctx context.Context, lib library.Library, db *database.Database) (indexer.Delta, error)
}

// Config holds coordinator settings.
type Config struct {
	// Workers bounds how many libraries are scanned at once.
	Workers int
	// QueueSize bounds sessions waiting for a worker.
	QueueSize int
	// SyncDelay is how long watcher deltas accumulate before a sync.
	SyncDelay time.Duration
}

// DefaultConfig returns the default coordinator settings.
func DefaultConfig() Config {
	return Config{
		Workers:   workers.ForIO(2),
		QueueSize: 64,
		SyncDelay: 2 * time.Second,
	}
}

// libState is the coordinator's view of one library.
type libState struct {
	current *run
	last    *Session
	pending map[string]op
	timer   *time.Timer
}

// Coordinator serializes scans per library and coalesces duplicate
// requests.
type Coordinator struct {
	cfg     Config
	libs    Resolver
	store   Store
	scanner Scanner
	bus     *events.Bus
	pool    *workers.Pool

	nextID atomic.Uint64

	mu     sync.Mutex
	state  map[string]*libState
	closed bool
	wg     sync.WaitGroup
}

// New creates a coordinator. bus may be nil.
func New(cfg Config, libs Resolver, store Store, scanner Scanner, bus *events.Bus) *Coordinator {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.SyncDelay <= 0 {
		cfg.SyncDelay = def.SyncDelay
	}
	return &Coordinator{
		cfg:     cfg,
		libs:    libs,
		store:   store,
		scanner: scanner,
		bus:     bus,
		pool:    workers.NewPool(cfg.Workers, cfg.QueueSize),
		state:   make(map[string]*libState),
	}
}

// FullScan rebuilds the index of a library. If the library is already
// scanning the call attaches to that session. With wait set, FullScan
// returns the terminal session; otherwise it returns immediately.
func (c *Coordinator) FullScan(ctx context.Context, libraryID string, wait bool) (Session, error) {
	return c.start(ctx, libraryID, indexer.KindFull, wait)
}

// IncrementalSync applies pending watcher deltas, or, when there are none,
// the changes found by comparing the library with its index.
func (c *Coordinator) IncrementalSync(ctx context.Context, libraryID string, wait bool) (Session, error) {
	return c.start(ctx, libraryID, indexer.KindIncremental, wait)
}

func (c *Coordinator) start(ctx context.Context, libraryID, kind string, wait bool) (Session, error) {
	lib, err := c.libs.Get(libraryID)
	if err != nil {
		return Session{}, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Session{}, ErrClosed
	}
	st := c.libState(libraryID)
	r := st.current
	if r != nil {
		metrics.ScanCoalescedTotal.WithLabelValues(kind).Inc()
		logging.Debug("Library %s already scanning (session %d), attaching %s request", libraryID, r.session.ID, kind)
	} else {
		r = newRun(c.nextID.Add(1), libraryID, kind)
		if err := c.submit(lib, r); err != nil {
			c.mu.Unlock()
			return Session{}, err
		}
		st.current = r
	}
	c.mu.Unlock()

	if !wait {
		return r.snapshot(), nil
	}
	select {
	case <-r.done:
		return r.snapshot(), nil
	case <-ctx.Done():
		return r.snapshot(), ctx.Err()
	}
}

// submit queues the run. Callers hold c.mu.
func (c *Coordinator) submit(lib library.Library, r *run) error {
	kind := r.session.Kind
	job, err := c.pool.Submit(fmt.Sprintf("%s scan of %s", kind, lib.ID), func(ctx context.Context) error {
		return c.execute(ctx, lib, r)
	})
	if err != nil {
		return fmt.Errorf("queue %s scan of %s: %w", kind, lib.ID, err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		// Jobs dropped by a closing pool never reach execute.
		if err := <-job.Done(); err != nil {
			c.complete(lib.ID, r, nil, err)
		}
	}()
	return nil
}

func (c *Coordinator) execute(ctx context.Context, lib library.Library, r *run) error {
	s := r.snapshot()
	log := logging.WithLibrary(lib.ID)
	log.Infof("Starting %s session %d", s.Kind, s.ID)

	metrics.ScansInProgress.Inc()
	defer metrics.ScansInProgress.Dec()
	c.publish(events.ScanStarted, lib.ID, s)

	res, err := c.scan(ctx, lib, r)
	c.complete(lib.ID, r, res, err)
	return err
}

func (c *Coordinator) scan(ctx context.Context, lib library.Library, r *run) (*indexer.Result, error) {
	db, err := c.store.Acquire(ctx, lib.ID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := c.store.ReleaseHandle(lib.ID, db); err != nil {
			logging.Warn("Release %s: %v", lib.ID, err)
		}
	}()

	progress := func(p indexer.Progress) {
		r.progress(p)
		c.publish(events.ScanProgress, lib.ID, p)
	}

	if r.session.Kind == indexer.KindFull {
		// The walk sees everything queued so far.
		c.takePending(lib.ID)
		return c.scanner.Scan(ctx, lib, db, progress)
	}

	delta := c.takePending(lib.ID)
	if delta.Empty() {
		delta, err = c.scanner.DetectChanges(ctx, lib, db)
		if err != nil {
			return nil, err
		}
	}
	res, err := c.scanner.Apply(ctx, lib, db, delta, progress)
	if err != nil {
		c.requeue(lib.ID, delta)
	}
	return res, err
}

// complete records the terminal state, publishes it and schedules a
// follow-up sync for deltas that arrived meanwhile.
func (c *Coordinator) complete(libraryID string, r *run, res *indexer.Result, err error) {
	s, ok := r.finish(res, err)
	if !ok {
		return
	}

	duration := s.FinishedAt.Sub(s.StartedAt)
	metrics.ScanDuration.WithLabelValues(s.Kind).Observe(duration.Seconds())
	metrics.ScanLastRunTimestamp.WithLabelValues(libraryID).Set(float64(s.FinishedAt.Unix()))
	if err != nil {
		metrics.ScanRunsTotal.WithLabelValues(s.Kind, "failed").Inc()
		logging.Error("Library %s %s session %d failed: %v", libraryID, s.Kind, s.ID, err)
		c.publish(events.ScanFailed, libraryID, s)
	} else {
		metrics.ScanRunsTotal.WithLabelValues(s.Kind, "completed").Inc()
		logging.Info("Library %s %s session %d completed: %d processed, %d failed in %v",
			libraryID, s.Kind, s.ID, s.Processed, s.Failed, duration)
		c.publish(events.ScanCompleted, libraryID, s)
	}

	c.mu.Lock()
	st := c.libState(libraryID)
	if st.current == r {
		st.current = nil
	}
	st.last = &s
	if len(st.pending) > 0 && !c.closed {
		c.scheduleLocked(libraryID, st)
	}
	c.mu.Unlock()

	close(r.done)
}

// Status returns the running session of a library, else its last session,
// else an idle session.
func (c *Coordinator) Status(libraryID string) Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.state[libraryID]
	switch {
	case !ok:
	case st.current != nil:
		return st.current.snapshot()
	case st.last != nil:
		return *st.last
	}
	return Session{LibraryID: libraryID, State: StateIdle}
}

// ActiveStates returns every running session ordered by library id.
func (c *Coordinator) ActiveStates() []Session {
	c.mu.Lock()
	runs := make([]*run, 0, len(c.state))
	for _, st := range c.state {
		if st.current != nil {
			runs = append(runs, st.current)
		}
	}
	c.mu.Unlock()

	out := make([]Session, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LibraryID < out[j].LibraryID })
	return out
}

// Pending returns the number of queued deltas for a library.
func (c *Coordinator) Pending(libraryID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.state[libraryID]; ok {
		return len(st.pending)
	}
	return 0
}

// Close stops scheduled syncs, cancels running sessions and fails queued
// ones. It waits for the workers to exit.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, st := range c.state {
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
	}
	c.mu.Unlock()

	c.pool.Close()
	c.wg.Wait()
}

func (c *Coordinator) libState(libraryID string) *libState {
	st, ok := c.state[libraryID]
	if !ok {
		st = &libState{pending: make(map[string]op)}
		c.state[libraryID] = st
	}
	return st
}

func (c *Coordinator) publish(t events.Type, libraryID string, payload interface{}) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(events.Event{Type: t, LibraryID: libraryID, Payload: payload})
}
