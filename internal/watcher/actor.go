package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"library-indexer/internal/library"
	"library-indexer/internal/logging"
	"library-indexer/internal/mediatypes"
	"library-indexer/internal/metrics"
)

// eventHook, when set, is called for every raw fsnotify event before it is
// translated.
var eventHook atomic.Pointer[func(fsnotify.Event)]

type message interface{ isMessage() }

type statusMsg struct {
	reply chan Status
}

func (statusMsg) isMessage() {}

// actor watches one library. All fields below started are owned by the run
// goroutine.
type actor struct {
	lib     library.Library
	matcher *library.Matcher
	out     chan<- Event
	mailbox chan message
	ctx     context.Context
	cancel  context.CancelFunc

	// started is closed once setup finished; startErr is set before that.
	started  chan struct{}
	startErr error
	done     chan struct{}

	fsw       *fsnotify.Watcher
	dirs      map[string]bool
	ready     bool
	startedAt time.Time
	events    uint64
	errors    uint64
}

func newActor(lib library.Library, matcher *library.Matcher, out chan<- Event) *actor {
	ctx, cancel := context.WithCancel(context.Background())
	return &actor{
		lib:     lib,
		matcher: matcher,
		out:     out,
		mailbox: make(chan message),
		ctx:     ctx,
		cancel:  cancel,
		started: make(chan struct{}),
		done:    make(chan struct{}),
		dirs:    make(map[string]bool),
	}
}

func (a *actor) run(onExit func(*actor)) {
	defer close(a.done)
	defer onExit(a)
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Watcher for library %s panicked: %v", a.lib.ID, r)
			a.emit(Event{Type: EventError, Error: fmt.Sprintf("watcher panic: %v", r), Fatal: true})
		}
		a.teardown()
		a.emit(Event{Type: EventStopped})
	}()

	if err := a.setup(); err != nil {
		a.startErr = err
		close(a.started)
		return
	}
	close(a.started)

	a.ready = true
	a.emit(Event{Type: EventReady})
	logging.Info("Watching library %s (%d directories)", a.lib.ID, len(a.dirs))

	for {
		select {
		case <-a.ctx.Done():
			return

		case msg := <-a.mailbox:
			a.handleMessage(msg)

		case ev, ok := <-a.fsw.Events:
			if !ok {
				a.emit(Event{Type: EventError, Error: "fsnotify event stream closed", Fatal: true})
				return
			}
			a.handleEvent(ev)

		case err, ok := <-a.fsw.Errors:
			if !ok {
				a.emit(Event{Type: EventError, Error: "fsnotify error stream closed", Fatal: true})
				return
			}
			a.errors++
			metrics.WatcherErrorsTotal.Inc()
			logging.Warn("Watcher error for library %s: %v", a.lib.ID, err)
			a.emit(Event{Type: EventError, Error: err.Error()})
		}
	}
}

func (a *actor) setup() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	a.fsw = fsw
	a.startedAt = time.Now()

	if _, err := a.addTree(a.lib.Path, false); err != nil {
		return err
	}
	return nil
}

func (a *actor) teardown() {
	if a.fsw != nil {
		if err := a.fsw.Close(); err != nil {
			logging.Debug("Closing watcher for %s: %v", a.lib.ID, err)
		}
	}
	metrics.WatchedDirectories.Sub(float64(len(a.dirs)))
	a.dirs = map[string]bool{}
	a.ready = false
}

func (a *actor) handleMessage(msg message) {
	switch m := msg.(type) {
	case statusMsg:
		m.reply <- a.status()
	default:
		logging.Warn("Watcher for %s got unknown message %T", a.lib.ID, msg)
	}
}

func (a *actor) status() Status {
	return Status{
		LibraryID:   a.lib.ID,
		Watching:    true,
		Ready:       a.ready,
		Directories: len(a.dirs),
		Events:      a.events,
		Errors:      a.errors,
		StartedAt:   a.startedAt,
	}
}

func (a *actor) handleEvent(ev fsnotify.Event) {
	if hook := eventHook.Load(); hook != nil {
		(*hook)(ev)
	}

	rel, ok := a.rel(ev.Name)
	if !ok {
		return
	}

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Lstat(ev.Name)
		if err != nil {
			// Already gone again.
			return
		}
		if info.IsDir() {
			if a.matcher.Ignored(rel, true) {
				return
			}
			if _, err := a.addTree(ev.Name, true); err != nil {
				a.errors++
				a.emit(Event{Type: EventError, Path: rel, Error: err.Error()})
			}
			return
		}
		if a.wantFile(rel) {
			a.emit(Event{Type: EventAdd, Path: rel})
		}

	case ev.Has(fsnotify.Write):
		if !a.dirs[rel] && a.wantFile(rel) {
			a.emit(Event{Type: EventChange, Path: rel})
		}

	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if a.dirs[rel] {
			a.removeTree(rel)
			a.emit(Event{Type: EventUnlinkDir, Path: rel})
			return
		}
		if a.wantFile(rel) {
			a.emit(Event{Type: EventUnlink, Path: rel})
		}
	}
}

// addTree registers dir and every directory below it. When emit is set,
// the directories and image files found are reported as new.
func (a *actor) addTree(dir string, emit bool) (int, error) {
	added := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			logging.Debug("Watcher skipping %s: %v", path, err)
			return nil
		}

		rel, ok := a.rel(path)
		if !ok {
			return nil
		}

		if d.IsDir() {
			if a.matcher.Ignored(rel, true) {
				return filepath.SkipDir
			}
			if a.dirs[rel] {
				return nil
			}
			if err := a.fsw.Add(path); err != nil {
				if path == dir {
					return fmt.Errorf("watch %s: %w", path, err)
				}
				logging.Warn("Failed to watch %s: %v", path, err)
				return filepath.SkipDir
			}
			a.dirs[rel] = true
			added++
			metrics.WatchedDirectories.Inc()
			if emit {
				a.emit(Event{Type: EventAddDir, Path: rel})
			}
			return nil
		}

		if emit && d.Type().IsRegular() && a.wantFile(rel) {
			a.emit(Event{Type: EventAdd, Path: rel})
		}
		return nil
	})
	return added, err
}

func (a *actor) removeTree(rel string) {
	prefix := rel + "/"
	for dir := range a.dirs {
		if rel != "" && dir != rel && !strings.HasPrefix(dir, prefix) {
			continue
		}
		// Removed directories drop out of fsnotify on their own; renamed
		// ones must be removed explicitly.
		if err := a.fsw.Remove(filepath.Join(a.lib.Path, filepath.FromSlash(dir))); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
			logging.Debug("Unwatch %s: %v", dir, err)
		}
		delete(a.dirs, dir)
		metrics.WatchedDirectories.Dec()
	}
}

func (a *actor) wantFile(rel string) bool {
	return mediatypes.IsImage(rel) && !a.matcher.Ignored(rel, false)
}

// rel converts an absolute path below the library root to a slash
// separated relative path. The root itself maps to "".
func (a *actor) rel(path string) (string, bool) {
	r, err := filepath.Rel(a.lib.Path, path)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	if r == "." {
		return "", true
	}
	return filepath.ToSlash(r), true
}

// emit delivers ev unless the actor is being stopped.
func (a *actor) emit(ev Event) {
	ev.LibraryID = a.lib.ID
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if ev.Type != EventStopped {
		a.events++
		metrics.WatcherEventsTotal.WithLabelValues(string(ev.Type)).Inc()
	}

	select {
	case a.out <- ev:
	case <-a.ctx.Done():
	}
}
