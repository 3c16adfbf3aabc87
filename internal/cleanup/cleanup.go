package cleanup

import (
	"runtime"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"library-indexer/internal/logging"
	"library-indexer/internal/metrics"
)

// Cycle kinds.
const (
	KindRoutine   = "routine"
	KindEmergency = "emergency"
)

// Clearable is a cache that can drop its contents.
type Clearable interface {
	Clear()
}

// Closer force-closes pooled resources. pool.Pool.CloseAll fits.
type Closer func() error

// Config holds cleanup settings.
type Config struct {
	// Interval between routine cycles. Zero disables the schedule.
	Interval time.Duration
	// RoutinePasses is the number of reclamation passes per routine cycle.
	RoutinePasses int
	// EmergencyPasses is the number of passes per emergency cycle.
	EmergencyPasses int
}

// DefaultConfig returns the default cleanup settings.
func DefaultConfig() Config {
	return Config{
		Interval:        10 * time.Minute,
		RoutinePasses:   2,
		EmergencyPasses: 5,
	}
}

// MemSnapshot is the part of runtime.MemStats a report carries.
type MemSnapshot struct {
	HeapAlloc    uint64 `json:"heapAlloc"`
	HeapInuse    uint64 `json:"heapInuse"`
	HeapReleased uint64 `json:"heapReleased"`
	Sys          uint64 `json:"sys"`
	NumGC        uint32 `json:"numGC"`
}

// Report describes one cleanup cycle.
type Report struct {
	Kind          string        `json:"kind"`
	Reason        string        `json:"reason,omitempty"`
	Caches        []string      `json:"caches"`
	ClosedHandles bool          `json:"closedHandles"`
	CloseError    string        `json:"closeError,omitempty"`
	Passes        int           `json:"passes"`
	Before        MemSnapshot   `json:"before"`
	After         MemSnapshot   `json:"after"`
	Freed         int64         `json:"freed"`
	Started       time.Time     `json:"started"`
	Duration      time.Duration `json:"duration"`
}

// Manager runs cleanup cycles. Cycles never overlap.
type Manager struct {
	cfg    Config
	closer Closer

	mu     sync.Mutex
	caches map[string]Clearable
	last   map[string]Report

	// cycle serializes cycles
	cycle sync.Mutex

	// reclaim and readStats are replaced in tests
	reclaim   func()
	readStats func(*runtime.MemStats)

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	started  bool
}

// New creates a manager. closer may be nil.
func New(cfg Config, closer Closer) *Manager {
	def := DefaultConfig()
	if cfg.RoutinePasses <= 0 {
		cfg.RoutinePasses = def.RoutinePasses
	}
	if cfg.EmergencyPasses <= 0 {
		cfg.EmergencyPasses = def.EmergencyPasses
	}
	return &Manager{
		cfg:       cfg,
		closer:    closer,
		caches:    make(map[string]Clearable),
		last:      make(map[string]Report),
		reclaim:   debug.FreeOSMemory,
		readStats: runtime.ReadMemStats,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Register adds a named cache to future cycles, replacing any cache with
// the same name.
func (m *Manager) Register(name string, c Clearable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches[name] = c
}

// Unregister removes a cache from future cycles. Its contents are kept.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.caches, name)
}

// Names returns the registered cache names in order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.caches))
	for name := range m.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Last returns the most recent report of a kind.
func (m *Manager) Last(kind string) (Report, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.last[kind]
	return r, ok
}

// RunRoutine clears every cache and reclaims memory.
func (m *Manager) RunRoutine() Report {
	return m.run(KindRoutine, "", false, m.cfg.RoutinePasses)
}

// RunEmergency closes every pooled handle, clears every cache and reclaims
// memory with more passes than a routine cycle. In-flight work that holds a
// handle fails.
func (m *Manager) RunEmergency(reason string) Report {
	return m.run(KindEmergency, reason, true, m.cfg.EmergencyPasses)
}

func (m *Manager) run(kind, reason string, closeHandles bool, passes int) Report {
	m.cycle.Lock()
	defer m.cycle.Unlock()

	rep := Report{Kind: kind, Reason: reason, Passes: passes, Started: time.Now()}
	rep.Before = m.snapshot()

	if kind == KindEmergency {
		logging.Warn("Emergency cleanup: %s", reason)
	}

	if closeHandles && m.closer != nil {
		rep.ClosedHandles = true
		if err := m.closer(); err != nil {
			rep.CloseError = err.Error()
			logging.Error("Emergency cleanup failed to close pooled handles: %v", err)
		}
	}

	m.mu.Lock()
	caches := make(map[string]Clearable, len(m.caches))
	for name, c := range m.caches {
		caches[name] = c
	}
	m.mu.Unlock()

	for name, c := range caches {
		c.Clear()
		rep.Caches = append(rep.Caches, name)
	}
	sort.Strings(rep.Caches)

	for i := 0; i < passes; i++ {
		m.reclaim()
	}

	rep.After = m.snapshot()
	rep.Freed = int64(rep.Before.HeapAlloc) - int64(rep.After.HeapAlloc)
	rep.Duration = time.Since(rep.Started)

	metrics.CleanupRunsTotal.WithLabelValues(kind).Inc()
	metrics.CleanupLastFreedBytes.WithLabelValues(kind).Set(float64(rep.Freed))
	logging.Debug("%s cleanup: cleared %d caches, heap %d -> %d bytes in %v",
		kind, len(rep.Caches), rep.Before.HeapAlloc, rep.After.HeapAlloc, rep.Duration)

	m.mu.Lock()
	m.last[kind] = rep
	m.mu.Unlock()
	return rep
}

func (m *Manager) snapshot() MemSnapshot {
	var ms runtime.MemStats
	m.readStats(&ms)
	return MemSnapshot{
		HeapAlloc:    ms.HeapAlloc,
		HeapInuse:    ms.HeapInuse,
		HeapReleased: ms.HeapReleased,
		Sys:          ms.Sys,
		NumGC:        ms.NumGC,
	}
}

// Start runs routine cycles every Interval until Stop. It does nothing when
// Interval is zero or the manager was already started.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started || m.cfg.Interval <= 0 {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	logging.Info("Routine cleanup every %v", m.cfg.Interval)
	go m.loop()
}

func (m *Manager) loop() {
	defer close(m.done)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.RunRoutine()
		case <-m.stop:
			return
		}
	}
}

// Stop ends the schedule and waits for a running cycle to finish.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		m.mu.Lock()
		started := m.started
		m.mu.Unlock()
		if started {
			<-m.done
		}
	})
}
