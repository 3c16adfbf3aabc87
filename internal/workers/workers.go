package workers

import (
	"os"
	"runtime"
	"strconv"

	"library-indexer/internal/logging"
)

// EnvOverride names the environment variable that overrides Count.
const EnvOverride = "SCAN_WORKERS"

// Per-CPU multipliers of the helpers below.
const (
	cpuBound   = 1.0
	ioBound    = 2.0
	mixedBound = 1.5
)

// Count returns multiplier workers per available CPU, at least one and at
// most limit (0 means no cap). A positive SCAN_WORKERS replaces the
// computed value but is still capped.
func Count(multiplier float64, limit int) int {
	n, ok := override()
	if !ok {
		n = max(1, int(float64(runtime.GOMAXPROCS(0))*multiplier))
	}
	if limit > 0 {
		n = min(n, limit)
	}
	return n
}

func override() (int, bool) {
	v := os.Getenv(EnvOverride)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		logging.Warn("Ignoring %s=%q: want a positive integer", EnvOverride, v)
		return 0, false
	}
	return n, true
}

// ForCPU sizes CPU-bound work such as image decoding.
func ForCPU(limit int) int { return Count(cpuBound, limit) }

// ForIO sizes work that mostly waits on disk or database locks.
func ForIO(limit int) int { return Count(ioBound, limit) }

// ForMixed sizes work that reads, decodes and writes, like thumbnailing.
func ForMixed(limit int) int { return Count(mixedBound, limit) }
