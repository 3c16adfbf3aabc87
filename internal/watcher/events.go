package watcher

import "time"

// EventType is the kind of a watcher event.
type EventType string

const (
	EventAdd       EventType = "add"
	EventChange    EventType = "change"
	EventUnlink    EventType = "unlink"
	EventAddDir    EventType = "addDir"
	EventUnlinkDir EventType = "unlinkDir"
	EventError     EventType = "error"
	EventReady     EventType = "ready"
	// EventStopped is sent after an actor has exited for any reason.
	EventStopped EventType = "stopped"
)

// Event is one delta reported for a library. Path is slash separated and
// relative to the library root.
type Event struct {
	LibraryID string    `json:"libraryId"`
	Type      EventType `json:"type"`
	Path      string    `json:"path,omitempty"`
	Error     string    `json:"error,omitempty"`
	// Fatal is set on error events after which the actor stopped.
	Fatal bool      `json:"fatal,omitempty"`
	Time  time.Time `json:"time"`
}

// IsFileEvent reports whether the event concerns a single file.
func (e Event) IsFileEvent() bool {
	return e.Type == EventAdd || e.Type == EventChange || e.Type == EventUnlink
}

// Status describes a library watcher.
type Status struct {
	LibraryID   string    `json:"libraryId"`
	Watching    bool      `json:"watching"`
	Ready       bool      `json:"ready"`
	Directories int       `json:"directories"`
	Events      uint64    `json:"events"`
	Errors      uint64    `json:"errors"`
	StartedAt   time.Time `json:"startedAt,omitempty"`
}
