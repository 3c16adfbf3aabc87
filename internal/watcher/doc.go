// Package watcher reports filesystem deltas for libraries.
//
// Each watched library is served by its own actor goroutine that owns an
// fsnotify watcher and the set of registered directories. The rest of the
// system talks to an actor only through messages: Start, Stop and Status
// on the Manager, and the shared Events channel for output. No watcher
// state is shared.
//
// Files that exist when watching starts are not reported; only activity
// after the ready event is. Events are delivered raw: a file being written
// may produce several change events and consumers must tolerate duplicates.
// The library metadata directory, dotfiles and configured ignore patterns
// are never watched, so cache writes cannot feed back into the watcher.
//
// A panic inside an actor, or the fsnotify watcher dying, ends that actor
// with a fatal error event. The owner may then call Restart.
package watcher
