package watcher

import (
	"errors"
	"sort"
	"sync"
	"time"

	"library-indexer/internal/library"
	"library-indexer/internal/logging"
	"library-indexer/internal/metrics"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("watcher manager closed")

// statusTimeout bounds how long Status waits for a busy actor.
const statusTimeout = 2 * time.Second

// Resolver maps library ids to libraries. *library.Registry implements it.
type Resolver interface {
	Get(id string) (library.Library, error)
}

// Config holds watcher settings.
type Config struct {
	// Ignore holds extra .gitignore style patterns.
	Ignore []string
	// EventBuffer is the capacity of the Events channel.
	EventBuffer int
}

// Manager owns one actor per watched library.
type Manager struct {
	libs    Resolver
	matcher *library.Matcher
	events  chan Event

	mu     sync.Mutex
	actors map[string]*actor
	closed bool
}

// NewManager creates a manager. Nothing is watched until Start.
func NewManager(libs Resolver, cfg Config) *Manager {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 1024
	}
	return &Manager{
		libs:    libs,
		matcher: library.NewMatcher(cfg.Ignore...),
		events:  make(chan Event, cfg.EventBuffer),
		actors:  make(map[string]*actor),
	}
}

// Events returns the channel every actor reports to. It is closed by Close.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Start watches the library. Starting a library that is already watched
// returns its current status.
func (m *Manager) Start(libraryID string) (Status, error) {
	lib, err := m.libs.Get(libraryID)
	if err != nil {
		return Status{}, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Status{}, ErrClosed
	}
	if a, ok := m.actors[libraryID]; ok {
		m.mu.Unlock()
		<-a.started
		if a.startErr != nil {
			return Status{}, a.startErr
		}
		return m.Status(libraryID), nil
	}

	a := newActor(lib, m.matcher, m.events)
	m.actors[libraryID] = a
	m.mu.Unlock()

	go a.run(m.actorExited)
	<-a.started

	if a.startErr != nil {
		logging.Error("Failed to watch library %s: %v", libraryID, a.startErr)
		<-a.done
		return Status{}, a.startErr
	}

	metrics.WatchersActive.Inc()
	return m.Status(libraryID), nil
}

// Stop stops watching the library and waits for its actor to exit. Stopping
// an unwatched library is a no-op.
func (m *Manager) Stop(libraryID string) {
	m.mu.Lock()
	a, ok := m.actors[libraryID]
	if ok {
		delete(m.actors, libraryID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	a.cancel()
	<-a.done
	logging.Info("Stopped watching library %s", libraryID)
}

// Restart stops and starts the library watcher. It is used after a fatal
// error event.
func (m *Manager) Restart(libraryID string) (Status, error) {
	m.Stop(libraryID)
	metrics.WatcherRestartsTotal.Inc()
	return m.Start(libraryID)
}

// Status reports the watcher state of the library.
func (m *Manager) Status(libraryID string) Status {
	m.mu.Lock()
	a, ok := m.actors[libraryID]
	m.mu.Unlock()

	idle := Status{LibraryID: libraryID}
	if !ok {
		return idle
	}

	reply := make(chan Status, 1)
	timer := time.NewTimer(statusTimeout)
	defer timer.Stop()

	select {
	case a.mailbox <- statusMsg{reply: reply}:
	case <-a.done:
		return idle
	case <-timer.C:
		return Status{LibraryID: libraryID, Watching: true}
	}

	select {
	case s := <-reply:
		return s
	case <-a.done:
		return idle
	case <-timer.C:
		return Status{LibraryID: libraryID, Watching: true}
	}
}

// List returns the status of every watched library ordered by id.
func (m *Manager) List() []Status {
	m.mu.Lock()
	ids := make([]string, 0, len(m.actors))
	for id := range m.actors {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	sort.Strings(ids)
	out := make([]Status, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.Status(id))
	}
	return out
}

// Close stops every actor and closes the Events channel.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	ids := make([]string, 0, len(m.actors))
	for id := range m.actors {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Stop(id)
	}
	close(m.events)
}

// actorExited forgets an actor that stopped on its own.
func (m *Manager) actorExited(a *actor) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.actors[a.lib.ID] == a {
		delete(m.actors, a.lib.ID)
	}
	if a.startErr == nil {
		metrics.WatchersActive.Dec()
	}
}
