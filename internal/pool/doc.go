// Package pool manages the lifecycle of per-library database handles.
//
// A handle is opened on the first Acquire for a library and shared by every
// later caller. Each Acquire must be paired with a Release. When the last
// holder releases, the handle is not closed right away: an idle timer is
// armed and a new Acquire before it fires cancels it and reuses the handle.
//
// Opening a handle takes an exclusive file lock (gofrs/flock) next to the
// database so that only one process owns a library's store at a time.
//
// The pool has a ceiling on simultaneously open handles. When it is reached
// the least recently released idle handle is closed to make room. If every
// handle is in use, Acquire either blocks until one frees up (PolicyBlock,
// the default) or returns ErrPoolExhausted (PolicyFail).
//
// Acquire never returns a handle that is being closed: it waits for the
// close to finish and opens a fresh one. CloseAll force-closes every handle
// regardless of holders and is meant for emergency memory cleanup only.
package pool
