// Package events is an in-process publish/subscribe bus for notifications
// that an outer layer (for example a live UI) may forward: scan progress,
// scan completion or failure, and watcher deltas.
//
// Publishing never blocks. A subscriber whose buffer is full misses the
// event and the drop is counted.
package events
