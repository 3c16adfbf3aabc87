/*
Package filesystem provides resilient filesystem operations with automatic retry logic
for NFS stale file handle errors.

Libraries are frequently mounted from a NAS. StatWithRetry, OpenWithRetry and
ReadDirWithRetry wrap the os functions and retry only on ESTALE, with
exponential backoff driven by retry-go:

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

Defaults:
  - MaxRetries: 3 attempts after the first
  - InitialBackoff: 50ms
  - MaxBackoff: 500ms

All other errors are returned unchanged on the first attempt, so callers can
keep using errors.Is(err, fs.ErrNotExist) and friends.
*/
package filesystem
