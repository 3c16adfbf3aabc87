package pool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"library-indexer/internal/database"
	"library-indexer/internal/library"
	"library-indexer/internal/logging"
	"library-indexer/internal/metrics"
)

var (
	// ErrPoolExhausted is returned by Acquire under PolicyFail when the
	// ceiling is reached and no handle is idle.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrNotAcquired is returned by Release when the library has no
	// outstanding Acquire.
	ErrNotAcquired = errors.New("library handle not acquired")

	// ErrClosed is returned after Shutdown.
	ErrClosed = errors.New("connection pool closed")

	// ErrLocked is returned when another process holds the library lock.
	ErrLocked = errors.New("library is locked by another process")
)

// Policy selects what Acquire does when the pool is full and busy.
type Policy string

const (
	PolicyBlock Policy = "block"
	PolicyFail  Policy = "fail"
)

// ParsePolicy converts a configuration string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyBlock:
		return PolicyBlock, nil
	case PolicyFail:
		return PolicyFail, nil
	}
	return "", library.Invalid("policy", "unknown exhaustion policy %q", s)
}

// Config holds pool settings.
type Config struct {
	MaxOpen      int
	IdleTimeout  time.Duration
	Policy       Policy
	LockTimeout  time.Duration
	StoreOptions database.Options
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		MaxOpen:      16,
		IdleTimeout:  5 * time.Minute,
		Policy:       PolicyBlock,
		LockTimeout:  5 * time.Second,
		StoreOptions: database.DefaultOptions(),
	}
}

// Resolver maps library ids to libraries. *library.Registry implements it.
type Resolver interface {
	Get(id string) (library.Library, error)
}

type entryState int

const (
	stateOpening entryState = iota
	stateOpen
	stateClosing
)

func (s entryState) String() string {
	switch s {
	case stateOpening:
		return "opening"
	case stateOpen:
		return "open"
	case stateClosing:
		return "closing"
	}
	return "unknown"
}

type entry struct {
	id          string
	db          *database.Database
	lock        *flock.Flock
	refs        int
	lastRelease time.Time
	timer       *time.Timer
	timerGen    uint64
	state       entryState
	// done is closed when the current opening or closing phase ends.
	done        chan struct{}
}

// Pool is a reference-counted cache of open library databases.
type Pool struct {
	cfg  Config
	libs Resolver

	mu      sync.Mutex
	entries map[string]*entry
	// forced counts, per library and handle, holders whose handle was
	// force-closed under them.
	forced  map[string]map[*database.Database]int
	changed chan struct{}
	closed  bool
}

// New creates a pool resolving library ids through libs.
func New(libs Resolver, cfg Config) *Pool {
	def := DefaultConfig()
	if cfg.MaxOpen <= 0 {
		cfg.MaxOpen = def.MaxOpen
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.Policy == "" {
		cfg.Policy = def.Policy
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = def.LockTimeout
	}

	return &Pool{
		cfg:     cfg,
		libs:    libs,
		entries: make(map[string]*entry),
		forced:  make(map[string]map[*database.Database]int),
		changed: make(chan struct{}),
	}
}

// Acquire returns the open database of the library, opening it if needed.
// Every successful Acquire must be matched by a Release.
func (p *Pool) Acquire(ctx context.Context, libraryID string) (*database.Database, error) {
	lib, err := p.libs.Get(libraryID)
	if err != nil {
		return nil, err
	}

	waitStart := time.Now()
	waited := false
	defer func() {
		if waited {
			metrics.PoolWaitDuration.Observe(time.Since(waitStart).Seconds())
		}
	}()

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrClosed
		}

		if e, ok := p.entries[libraryID]; ok {
			if e.state == stateOpen {
				e.refs++
				e.cancelIdle()
				p.mu.Unlock()
				metrics.PoolAcquiresTotal.WithLabelValues("reuse").Inc()
				return e.db, nil
			}
			// Opening or closing: wait for that phase to end.
			done := e.done
			p.mu.Unlock()
			waited = true
			if err := wait(ctx, done); err != nil {
				return nil, err
			}
			continue
		}

		if len(p.entries) >= p.cfg.MaxOpen {
			if victim := p.idleVictim(); victim != nil {
				logging.Debug("Pool full, evicting idle library %s", victim.id)
				p.beginClose(victim)
				p.mu.Unlock()
				p.finishClose(victim, "evicted")
				continue
			}
			if p.cfg.Policy == PolicyFail {
				p.mu.Unlock()
				metrics.PoolExhaustedTotal.Inc()
				return nil, ErrPoolExhausted
			}
			changed := p.changed
			p.mu.Unlock()
			metrics.PoolExhaustedTotal.Inc()
			waited = true
			if err := wait(ctx, changed); err != nil {
				return nil, err
			}
			continue
		}

		e := &entry{id: libraryID, state: stateOpening, done: make(chan struct{})}
		p.entries[libraryID] = e
		p.mu.Unlock()

		db, lock, err := p.open(ctx, lib)

		p.mu.Lock()
		if err != nil {
			delete(p.entries, libraryID)
			close(e.done)
			p.notifyLocked()
			p.mu.Unlock()
			metrics.PoolAcquiresTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		e.db = db
		e.lock = lock
		e.refs = 1
		e.state = stateOpen
		close(e.done)
		p.updateGaugeLocked()
		p.mu.Unlock()

		metrics.PoolAcquiresTotal.WithLabelValues("open").Inc()
		logging.Debug("Opened database for library %s", libraryID)
		return db, nil
	}
}

// Release gives back a handle obtained from Acquire. When the last holder
// releases, the handle is closed after the idle timeout unless it is
// acquired again first. After a forced close Release cannot tell holders
// of the closed handle from holders of a reopened one and settles the
// closed handle first; ReleaseHandle does not have that limitation.
func (p *Pool) Release(libraryID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for db := range p.forced[libraryID] {
		p.takeForcedLocked(libraryID, db)
		return nil
	}

	e, ok := p.entries[libraryID]
	if !ok || e.state != stateOpen || e.refs == 0 {
		return fmt.Errorf("release %s: %w", libraryID, ErrNotAcquired)
	}
	p.releaseLocked(e)
	return nil
}

// ReleaseHandle gives back db, a handle Acquire returned for libraryID.
func (p *Pool) ReleaseHandle(libraryID string, db *database.Database) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.entries[libraryID]; ok && e.state == stateOpen && e.db == db && e.refs > 0 {
		p.releaseLocked(e)
		return nil
	}
	if p.takeForcedLocked(libraryID, db) {
		return nil
	}
	return fmt.Errorf("release %s: %w", libraryID, ErrNotAcquired)
}

func (p *Pool) takeForcedLocked(libraryID string, db *database.Database) bool {
	byHandle := p.forced[libraryID]
	if byHandle[db] == 0 {
		return false
	}
	byHandle[db]--
	if byHandle[db] == 0 {
		delete(byHandle, db)
	}
	if len(byHandle) == 0 {
		delete(p.forced, libraryID)
	}
	return true
}

func (p *Pool) forceLocked(e *entry) {
	if e.refs == 0 {
		return
	}
	if p.forced[e.id] == nil {
		p.forced[e.id] = make(map[*database.Database]int)
	}
	p.forced[e.id][e.db] += e.refs
	e.refs = 0
}

func (p *Pool) releaseLocked(e *entry) {
	e.refs--
	if e.refs > 0 {
		return
	}

	e.lastRelease = time.Now()
	e.timerGen++
	gen := e.timerGen
	e.timer = time.AfterFunc(p.cfg.IdleTimeout, func() { p.expire(e, gen) })
	p.notifyLocked()
}

// With acquires the library database, runs fn and releases it.
func (p *Pool) With(ctx context.Context, libraryID string, fn func(db *database.Database) error) error {
	db, err := p.Acquire(ctx, libraryID)
	if err != nil {
		return err
	}
	defer func() {
		if relErr := p.ReleaseHandle(libraryID, db); relErr != nil {
			logging.Warn("Pool release failed: %v", relErr)
		}
	}()
	return fn(db)
}

// CloseAll synchronously closes every open handle regardless of holders.
// Holders keep their reference count so their Release calls still balance;
// their handles return errors until they acquire again.
func (p *Pool) CloseAll() error {
	p.mu.Lock()
	var victims []*entry
	for _, e := range p.entries {
		if e.state != stateOpen {
			continue
		}
		p.forceLocked(e)
		p.beginClose(e)
		victims = append(victims, e)
	}
	p.mu.Unlock()

	var errs []error
	for _, e := range victims {
		if err := p.finishClose(e, "forced"); err != nil {
			errs = append(errs, err)
		}
	}
	if len(victims) > 0 {
		logging.Warn("Force-closed %d pooled database handles", len(victims))
	}
	return errors.Join(errs...)
}

// Close force-closes the handle of one library if it is open.
func (p *Pool) Close(libraryID string) error {
	p.mu.Lock()
	e, ok := p.entries[libraryID]
	if !ok || e.state != stateOpen {
		p.mu.Unlock()
		return nil
	}
	p.forceLocked(e)
	p.beginClose(e)
	p.mu.Unlock()

	return p.finishClose(e, "forced")
}

// Shutdown closes every handle and rejects further acquires.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	p.closed = true
	p.notifyLocked()
	p.mu.Unlock()
	return p.CloseAll()
}

// EntryStats describes one pooled handle.
type EntryStats struct {
	LibraryID   string    `json:"libraryId"`
	Refs        int       `json:"refs"`
	State       string    `json:"state"`
	LastRelease time.Time `json:"lastRelease,omitempty"`
}

// Stats is a snapshot of the pool.
type Stats struct {
	MaxOpen int          `json:"maxOpen"`
	Open    int          `json:"open"`
	InUse   int          `json:"inUse"`
	Idle    int          `json:"idle"`
	Entries []EntryStats `json:"entries"`
}

// Stats returns a snapshot of the pool state.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{MaxOpen: p.cfg.MaxOpen, Entries: make([]EntryStats, 0, len(p.entries))}
	for _, e := range p.entries {
		if e.state == stateOpen {
			s.Open++
			if e.refs > 0 {
				s.InUse++
			} else {
				s.Idle++
			}
		}
		s.Entries = append(s.Entries, EntryStats{
			LibraryID:   e.id,
			Refs:        e.refs,
			State:       e.state.String(),
			LastRelease: e.lastRelease,
		})
	}
	sort.Slice(s.Entries, func(i, j int) bool { return s.Entries[i].LibraryID < s.Entries[j].LibraryID })
	return s
}

func (p *Pool) open(ctx context.Context, lib library.Library) (*database.Database, *flock.Flock, error) {
	if err := os.MkdirAll(lib.MetaDir(), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create metadata directory: %w", err)
	}

	lock := flock.New(lib.LockPath())
	lockCtx, cancel := context.WithTimeout(ctx, p.cfg.LockTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, nil, fmt.Errorf("lock library %s: %w", lib.ID, err)
	}
	if !locked {
		return nil, nil, fmt.Errorf("%s: %w", lib.ID, ErrLocked)
	}

	db, err := database.Open(ctx, lib.DBPath(), p.cfg.StoreOptions)
	if err != nil {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			logging.Warn("Failed to unlock %s: %v", lib.LockPath(), unlockErr)
		}
		return nil, nil, err
	}
	return db, lock, nil
}

func (p *Pool) expire(e *entry, gen uint64) {
	p.mu.Lock()
	if p.entries[e.id] != e || e.state != stateOpen || e.refs > 0 || e.timerGen != gen {
		p.mu.Unlock()
		return
	}
	p.beginClose(e)
	p.mu.Unlock()

	logging.Debug("Closing idle database for library %s", e.id)
	if err := p.finishClose(e, "idle"); err != nil {
		logging.Warn("Failed to close idle database %s: %v", e.id, err)
	}
}

// idleVictim returns the least recently released idle entry.
func (p *Pool) idleVictim() *entry {
	var victim *entry
	for _, e := range p.entries {
		if e.state != stateOpen || e.refs > 0 {
			continue
		}
		if victim == nil || e.lastRelease.Before(victim.lastRelease) {
			victim = e
		}
	}
	return victim
}

// beginClose marks e as closing. The caller holds p.mu.
func (p *Pool) beginClose(e *entry) {
	e.cancelIdle()
	e.state = stateClosing
	e.done = make(chan struct{})
}

// finishClose closes the handle and removes the entry. The caller must not
// hold p.mu.
func (p *Pool) finishClose(e *entry, reason string) error {
	err := e.db.Close()
	if e.lock != nil {
		if unlockErr := e.lock.Unlock(); unlockErr != nil {
			err = errors.Join(err, unlockErr)
		}
	}

	p.mu.Lock()
	if p.entries[e.id] == e {
		delete(p.entries, e.id)
	}
	close(e.done)
	p.notifyLocked()
	p.updateGaugeLocked()
	p.mu.Unlock()

	metrics.PoolClosesTotal.WithLabelValues(reason).Inc()
	if err != nil {
		return fmt.Errorf("close %s: %w", e.id, err)
	}
	return nil
}

// notifyLocked wakes every Acquire waiting for a free slot.
func (p *Pool) notifyLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
}

func (p *Pool) updateGaugeLocked() {
	open := 0
	for _, e := range p.entries {
		if e.state == stateOpen {
			open++
		}
	}
	metrics.PoolOpenHandles.Set(float64(open))
}

func (e *entry) cancelIdle() {
	e.timerGen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func wait(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
