package filesystem

import "sync/atomic"

// Observer receives retry outcomes for the filesystem operations in this
// package ("stat", "open", "readdir"). metrics.NewFilesystemObserver is the
// production implementation; it lives there so this package does not
// import metrics.
type Observer interface {
	ObserveRetryAttempt(op string)
	ObserveRetryFailure(op string)
	ObserveStaleError(op string)
}

var current atomic.Pointer[Observer]

// SetObserver installs o for all later retries. nil removes the observer.
func SetObserver(o Observer) {
	if o == nil {
		current.Store(nil)
		return
	}
	current.Store(&o)
}

func observe() Observer {
	if p := current.Load(); p != nil {
		return *p
	}
	return nil
}
