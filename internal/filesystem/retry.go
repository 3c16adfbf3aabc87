package filesystem

import (
	"errors"
	"io/fs"
	"os"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"

	"library-indexer/internal/logging"
)

// RetryConfig configures retry behavior for filesystem operations
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns sensible defaults for NFS retry behavior
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

// isNFSStaleError checks if an error is an NFS stale file handle error
func isNFSStaleError(err error) bool {
	if err == nil {
		return false
	}

	// ESTALE is errno 116 on Linux
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE
	}

	return false
}

func (c RetryConfig) options(op, path string) []retry.Option {
	return []retry.Option{
		retry.Attempts(uint(c.MaxRetries + 1)),
		retry.Delay(c.InitialBackoff),
		retry.MaxDelay(c.MaxBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isNFSStaleError),
		retry.OnRetry(func(n uint, err error) {
			if o := observe(); o != nil {
				o.ObserveStaleError(op)
				o.ObserveRetryAttempt(op)
			}
			logging.Debug("NFS %s stale file handle for %s, retrying (attempt %d/%d)",
				op, path, n+1, c.MaxRetries)
		}),
	}
}

func withRetry[T any](op, path string, config RetryConfig, fn func() (T, error)) (T, error) {
	v, err := retry.DoWithData(fn, config.options(op, path)...)
	if err != nil && isNFSStaleError(err) {
		logging.Warn("NFS %s failed after %d retries for %s: %v", op, config.MaxRetries, path, err)
		if o := observe(); o != nil {
			o.ObserveRetryFailure(op)
		}
	}
	return v, err
}

// StatWithRetry performs os.Stat with retry logic for NFS stale file handle errors
func StatWithRetry(path string, config RetryConfig) (os.FileInfo, error) {
	return withRetry("stat", path, config, func() (os.FileInfo, error) {
		return os.Stat(path)
	})
}

// OpenWithRetry performs os.Open with retry logic for NFS stale file handle errors
func OpenWithRetry(path string, config RetryConfig) (*os.File, error) {
	return withRetry("open", path, config, func() (*os.File, error) {
		return os.Open(path)
	})
}

// ReadDirWithRetry performs os.ReadDir with retry logic for NFS stale file handle errors
func ReadDirWithRetry(path string, config RetryConfig) ([]fs.DirEntry, error) {
	return withRetry("readdir", path, config, func() ([]fs.DirEntry, error) {
		return os.ReadDir(path)
	})
}
