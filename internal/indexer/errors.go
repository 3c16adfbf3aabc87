package indexer

import (
	"errors"
	"fmt"
)

// MaxFailureSamples is the number of failures kept in a Result.
const MaxFailureSamples = 10

// ErrInterrupted is returned when backpressure shut down mid-scan.
var ErrInterrupted = errors.New("scan interrupted")

// FailureKind classifies a per-file failure.
type FailureKind string

const (
	FailureIO     FailureKind = "io"
	FailureDecode FailureKind = "decode"
)

// Failure describes one file that could not be fully processed.
type Failure struct {
	Path  string      `json:"path"`
	Kind  FailureKind `json:"kind"`
	Error string      `json:"error"`
}

// IOError reports a file that could not be read: missing, unreadable or
// permission denied.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IsIOError reports whether err is, or wraps, an *IOError.
func IsIOError(err error) bool {
	var ioe *IOError
	return errors.As(err, &ioe)
}
