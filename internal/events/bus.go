package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of an event.
type Type string

const (
	ScanStarted   Type = "scan.started"
	ScanProgress  Type = "scan.progress"
	ScanCompleted Type = "scan.completed"
	ScanFailed    Type = "scan.failed"
	WatchAdd      Type = "watch.add"
	WatchChange   Type = "watch.change"
	WatchUnlink   Type = "watch.unlink"
	WatchError    Type = "watch.error"
)

// Event is one notification.
type Event struct {
	ID        string      `json:"id"`
	Type      Type        `json:"type"`
	LibraryID string      `json:"libraryId"`
	Time      time.Time   `json:"time"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Subscription receives events until it is cancelled.
type Subscription struct {
	C      <-chan Event
	id     uint64
	bus    *Bus
	ch     chan Event
	filter func(Event) bool
	once   sync.Once
}

// Cancel stops delivery and closes C.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.bus.remove(s.id)
	})
}

// Bus fans events out to subscribers.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  uint64
	dropped atomic.Int64
	closed  bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]*Subscription)}
}

// Subscribe registers a subscriber with the given buffer size. A nil filter
// accepts every event.
func (b *Bus) Subscribe(buffer int, filter func(Event) bool) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	s := &Subscription{C: ch, id: b.nextID, bus: b, ch: ch, filter: filter}
	if b.closed {
		close(ch)
		return s
	}
	b.subs[s.id] = s
	return s
}

// Publish stamps ev with an id and time and delivers it to every matching
// subscriber without blocking.
func (b *Bus) Publish(ev Event) Event {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		if s.filter != nil && !s.filter(ev) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
	return ev
}

// Dropped returns how many deliveries were skipped because a subscriber was
// full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close cancels every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for id, s := range b.subs {
		delete(b.subs, id)
		close(s.ch)
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(s.ch)
	}
}

// ForLibrary returns a filter that accepts events of one library.
func ForLibrary(libraryID string) func(Event) bool {
	return func(ev Event) bool { return ev.LibraryID == libraryID }
}

// OfType returns a filter that accepts the given event types.
func OfType(types ...Type) func(Event) bool {
	set := make(map[Type]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return func(ev Event) bool { return set[ev.Type] }
}
