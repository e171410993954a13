package memory

import (
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"github.com/darbyjahn/smallphot0-backend/internal/logging"
)

// DefaultRatio is the share of the container limit given to the Go heap.
// The rest is left for ffmpeg children and goroutine stacks.
const DefaultRatio = 0.85

// Limit describes how GOMEMLIMIT was resolved.
type Limit struct {
	// Source is "GOMEMLIMIT", "MEMORY_LIMIT" or "none".
	Source string
	// Container is the container limit in bytes, 0 when unknown.
	Container int64
	// Heap is the Go soft memory limit in bytes, 0 when unset.
	Heap  int64
	Ratio float64
}

// ApplyLimit sets the Go soft memory limit from the environment. Call it
// before the server starts allocating.
//
//   - GOMEMLIMIT is honoured as-is when present.
//   - MEMORY_LIMIT (bytes, e.g. from the Kubernetes Downward API) is scaled
//     by MEMORY_RATIO, default DefaultRatio.
func ApplyLimit() Limit {
	if v := os.Getenv("GOMEMLIMIT"); v != "" {
		l := Limit{Source: "GOMEMLIMIT"}
		if heap := debug.SetMemoryLimit(-1); heap > 0 && heap < math.MaxInt64 {
			l.Heap = heap
		}
		logging.Info("GOMEMLIMIT set via environment: %s", v)
		return l
	}

	raw := os.Getenv("MEMORY_LIMIT")
	if raw == "" {
		return Limit{Source: "none"}
	}
	container, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || container <= 0 {
		logging.Warn("Ignoring MEMORY_LIMIT %q: not a positive byte count", raw)
		return Limit{Source: "none"}
	}

	ratio := parseRatio(os.Getenv("MEMORY_RATIO"))
	heap := int64(float64(container) * ratio)
	debug.SetMemoryLimit(heap)

	logging.Info("Configured GOMEMLIMIT: %s (%.0f%% of %s container limit)",
		FormatBytes(heap), ratio*100, FormatBytes(container))

	return Limit{Source: "MEMORY_LIMIT", Container: container, Heap: heap, Ratio: ratio}
}

func parseRatio(s string) float64 {
	if s == "" {
		return DefaultRatio
	}
	r, err := strconv.ParseFloat(s, 64)
	if err != nil || r <= 0 || r > 1 {
		logging.Warn("MEMORY_RATIO %q must be in (0, 1], using %.2f", s, DefaultRatio)
		return DefaultRatio
	}
	return r
}

// FormatBytes renders b with a binary unit, e.g. "1.5 GiB".
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
