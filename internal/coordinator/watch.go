package coordinator

import (
	"context"
	"strings"
	"time"

	"library-indexer/internal/events"
	"library-indexer/internal/indexer"
	"library-indexer/internal/logging"
	"library-indexer/internal/watcher"
)

// op is the pending change for one path. Later events replace earlier ones.
type op int

const (
	opUpsert op = iota
	opRemove
	opRemoveDir
)

// WatchSource delivers watcher events and restarts dead watchers.
// *watcher.Manager implements it.
type WatchSource interface {
	Events() <-chan watcher.Event
	Restart(libraryID string) (watcher.Status, error)
}

// HandleWatchEvent queues the delta carried by ev and schedules a sync.
func (c *Coordinator) HandleWatchEvent(ev watcher.Event) {
	switch ev.Type {
	case watcher.EventAdd:
		c.queue(ev.LibraryID, ev.Path, opUpsert)
		c.publish(events.WatchAdd, ev.LibraryID, ev)
	case watcher.EventChange:
		c.queue(ev.LibraryID, ev.Path, opUpsert)
		c.publish(events.WatchChange, ev.LibraryID, ev)
	case watcher.EventUnlink:
		c.queue(ev.LibraryID, ev.Path, opRemove)
		c.publish(events.WatchUnlink, ev.LibraryID, ev)
	case watcher.EventUnlinkDir:
		c.queue(ev.LibraryID, ev.Path, opRemoveDir)
		c.publish(events.WatchUnlink, ev.LibraryID, ev)
	case watcher.EventError:
		logging.Warn("Watcher error for %s (fatal=%t): %s", ev.LibraryID, ev.Fatal, ev.Error)
		c.publish(events.WatchError, ev.LibraryID, ev)
	case watcher.EventReady:
		logging.Debug("Watcher ready for %s", ev.LibraryID)
	}
}

// RunWatchLoop feeds events from src into the coordinator until ctx ends or
// the event channel is closed. A watcher that died on a fatal error is
// restarted; a deliberate stop is left alone.
func (c *Coordinator) RunWatchLoop(ctx context.Context, src WatchSource) {
	ch := src.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			c.HandleWatchEvent(ev)
			if ev.Type == watcher.EventError && ev.Fatal {
				if _, err := src.Restart(ev.LibraryID); err != nil {
					logging.Error("Failed to restart watcher for %s: %v", ev.LibraryID, err)
				} else {
					logging.Info("Restarted watcher for %s", ev.LibraryID)
				}
			}
		}
	}
}

func (c *Coordinator) queue(libraryID, path string, o op) {
	if path == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	st := c.libState(libraryID)
	if o == opRemoveDir {
		prefix := path + "/"
		for p := range st.pending {
			if strings.HasPrefix(p, prefix) {
				delete(st.pending, p)
			}
		}
	}
	st.pending[path] = o
	if st.current == nil {
		c.scheduleLocked(libraryID, st)
	}
}

// scheduleLocked arms the sync timer unless it is already armed. Callers
// hold c.mu.
func (c *Coordinator) scheduleLocked(libraryID string, st *libState) {
	if st.timer != nil {
		return
	}
	st.timer = time.AfterFunc(c.cfg.SyncDelay, func() {
		c.mu.Lock()
		st.timer = nil
		c.mu.Unlock()
		if _, err := c.IncrementalSync(context.Background(), libraryID, false); err != nil {
			logging.Warn("Scheduled sync of %s not started: %v", libraryID, err)
		}
	})
}

// takePending removes and returns the queued deltas of a library.
func (c *Coordinator) takePending(libraryID string) indexer.Delta {
	c.mu.Lock()
	st := c.libState(libraryID)
	pending := st.pending
	st.pending = make(map[string]op)
	c.mu.Unlock()

	var d indexer.Delta
	for p, o := range pending {
		switch o {
		case opUpsert:
			d.Upserts = append(d.Upserts, p)
		case opRemove:
			d.Removed = append(d.Removed, p)
		case opRemoveDir:
			d.RemovedDirs = append(d.RemovedDirs, p)
		}
	}
	return d
}

// requeue puts back a delta that failed to apply. Newer events win.
func (c *Coordinator) requeue(libraryID string, d indexer.Delta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	st := c.libState(libraryID)
	put := func(paths []string, o op) {
		for _, p := range paths {
			if _, ok := st.pending[p]; !ok {
				st.pending[p] = o
			}
		}
	}
	put(d.Upserts, opUpsert)
	put(d.Removed, opRemove)
	put(d.RemovedDirs, opRemoveDir)
}
