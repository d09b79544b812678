package workers

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// EnvOverride names the environment variable that pins the worker count.
const EnvOverride = "DECODE_WORKERS"

// Count returns the number of workers for a task type, derived from
// GOMAXPROCS so that container CPU limits are respected.
//
// The multiplier adjusts for task characteristics, 1.0 being one worker
// per CPU.
//
// limit caps the result; 0 means no cap. A positive integer in
// DECODE_WORKERS overrides the calculation.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(EnvOverride); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	available := runtime.GOMAXPROCS(0)

	workers := int(float64(available) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU).
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// Parse interprets a configured worker count. "auto" selects ForCPU(limit);
// an empty value means 1 (sequential decoding).
func Parse(value string, limit int) (int, error) {
	value = strings.TrimSpace(strings.ToLower(value))
	switch value {
	case "":
		return 1, nil
	case "auto":
		return ForCPU(limit), nil
	}

	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid worker count %q: want a positive integer or \"auto\"", value)
	}
	return n, nil
}
