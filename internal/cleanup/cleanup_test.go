package cleanup

import (
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-indexer/internal/cache"
)

type countingCache struct{ cleared atomic.Int32 }

func (c *countingCache) Clear() { c.cleared.Add(1) }

// newTestManager replaces reclamation with a counter and memory stats with
// a heap that shrinks by 100 bytes per pass.
func newTestManager(t *testing.T, cfg Config, closer Closer) (*Manager, *atomic.Int32) {
	t.Helper()
	m := New(cfg, closer)
	var passes atomic.Int32
	var heap atomic.Uint64
	heap.Store(10_000)
	m.reclaim = func() {
		passes.Add(1)
		heap.Add(^uint64(99))
	}
	m.readStats = func(ms *runtime.MemStats) { ms.HeapAlloc = heap.Load() }
	t.Cleanup(m.Stop)
	return m, &passes
}

func TestRegistration(t *testing.T) {
	m, _ := newTestManager(t, Config{}, nil)
	m.Register("search", &countingCache{})
	m.Register("folders", &countingCache{})
	m.Register("search", &countingCache{})
	assert.Equal(t, []string{"folders", "search"}, m.Names())

	m.Unregister("search")
	m.Unregister("missing")
	assert.Equal(t, []string{"folders"}, m.Names())
}

func TestRoutineCycle(t *testing.T) {
	closes := 0
	m, passes := newTestManager(t, Config{RoutinePasses: 2}, func() error {
		closes++
		return nil
	})
	a, b := &countingCache{}, &countingCache{}
	m.Register("a", a)
	m.Register("b", b)

	rep := m.RunRoutine()

	assert.Equal(t, KindRoutine, rep.Kind)
	assert.Equal(t, []string{"a", "b"}, rep.Caches)
	assert.EqualValues(t, 1, a.cleared.Load())
	assert.EqualValues(t, 1, b.cleared.Load())
	assert.EqualValues(t, 2, passes.Load())
	assert.Zero(t, closes, "routine cycles never close pooled handles")
	assert.False(t, rep.ClosedHandles)
	assert.EqualValues(t, 10_000, rep.Before.HeapAlloc)
	assert.EqualValues(t, 9_800, rep.After.HeapAlloc)
	assert.EqualValues(t, 200, rep.Freed)

	last, ok := m.Last(KindRoutine)
	require.True(t, ok)
	assert.Equal(t, rep.Started, last.Started)
	_, ok = m.Last(KindEmergency)
	assert.False(t, ok)
}

func TestEmergencyCycle(t *testing.T) {
	var order []string
	c := &orderedCache{order: &order}
	m, passes := newTestManager(t, Config{RoutinePasses: 2, EmergencyPasses: 5}, func() error {
		order = append(order, "close")
		return nil
	})
	m.Register("search", c)

	rep := m.RunEmergency("heap at 90%")

	assert.Equal(t, KindEmergency, rep.Kind)
	assert.Equal(t, "heap at 90%", rep.Reason)
	assert.True(t, rep.ClosedHandles)
	assert.Empty(t, rep.CloseError)
	assert.EqualValues(t, 5, passes.Load())
	assert.Greater(t, rep.Passes, m.cfg.RoutinePasses)
	assert.Equal(t, []string{"close", "clear"}, order)
}

type orderedCache struct{ order *[]string }

func (c *orderedCache) Clear() { *c.order = append(*c.order, "clear") }

func TestEmergencyCloseErrorIsReported(t *testing.T) {
	m, _ := newTestManager(t, Config{}, func() error { return errors.New("busy") })
	cc := &countingCache{}
	m.Register("c", cc)

	rep := m.RunEmergency("test")
	assert.Equal(t, "busy", rep.CloseError)
	assert.EqualValues(t, 1, cc.cleared.Load(), "caches are cleared even when closing fails")
}

func TestUnregisteredCacheKeepsContents(t *testing.T) {
	m, _ := newTestManager(t, Config{}, nil)
	lru, err := cache.New[string, int]("test", 4)
	require.NoError(t, err)
	lru.Add("k", 1)
	m.Register("lru", lru)
	m.Unregister("lru")

	m.RunRoutine()
	assert.Equal(t, 1, lru.Len())

	m.Register("lru", lru)
	m.RunRoutine()
	assert.Zero(t, lru.Len())
}

func TestSchedule(t *testing.T) {
	m, passes := newTestManager(t, Config{Interval: 5 * time.Millisecond, RoutinePasses: 1}, nil)
	m.Start()
	m.Start()

	require.Eventually(t, func() bool { return passes.Load() >= 2 }, time.Second, time.Millisecond)
	m.Stop()
	after := passes.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, passes.Load(), "no cycles after Stop")
}

func TestStartWithoutInterval(t *testing.T) {
	m, passes := newTestManager(t, Config{}, nil)
	m.Start()
	time.Sleep(10 * time.Millisecond)
	m.Stop()
	assert.Zero(t, passes.Load())
}
