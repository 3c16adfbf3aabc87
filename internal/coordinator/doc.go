// Package coordinator runs full scans and incremental syncs for libraries.
//
// At most one session runs per library. A request for a library that is
// already scanning attaches to the in-flight session instead of starting a
// second walk, so concurrent callers observe the same outcome. Work runs as
// jobs on a bounded worker pool; callers either wait for the terminal
// session or return immediately and poll Status.
//
// Watcher events are queued as pending deltas and flushed by an incremental
// sync after a short delay. Deltas that arrive while a session is running
// stay queued and trigger a follow-up sync when it finishes.
//
// Scans cannot be cancelled by callers. Cancelling the context passed to
// FullScan or IncrementalSync only stops the caller from waiting; Close is
// the only way to stop queued or running work.
package coordinator
