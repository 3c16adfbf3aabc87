package metrics

import "library-indexer/internal/filesystem"

// retryObserver feeds filesystem retry outcomes into the filesystem_*
// counters.
type retryObserver struct{}

// NewFilesystemObserver returns the observer to pass to
// filesystem.SetObserver.
func NewFilesystemObserver() filesystem.Observer { return retryObserver{} }

func (retryObserver) ObserveRetryAttempt(op string) {
	FilesystemRetryAttempts.WithLabelValues(op).Inc()
}

func (retryObserver) ObserveRetryFailure(op string) {
	FilesystemRetryFailures.WithLabelValues(op).Inc()
}

func (retryObserver) ObserveStaleError(op string) {
	FilesystemStaleErrors.WithLabelValues(op).Inc()
}
