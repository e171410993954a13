package memory

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/darbyjahn/smallphot0-backend/internal/logging"
	"github.com/darbyjahn/smallphot0-backend/internal/metrics"
)

// GuardConfig controls a Guard.
type GuardConfig struct {
	// LimitBytes is the heap budget. Zero means use GOMEMLIMIT; with neither
	// the guard never throttles.
	LimitBytes int64
	// HighWater is the usage ratio at which optional work is skipped.
	HighWater float64
	// Interval is the sampling period.
	Interval time.Duration
}

// DefaultGuardConfig throttles at 75% of GOMEMLIMIT, sampled every 5s.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{HighWater: 0.75, Interval: 5 * time.Second}
}

// Guard samples heap usage and reports when optional in-process work, such
// as decoding full-size images for thumbnails, should be skipped.
type Guard struct {
	config GuardConfig
	limit  int64
	read   func() uint64

	mu        sync.RWMutex
	alloc     uint64
	throttled bool

	stop chan struct{}
	once sync.Once
}

// NewGuard creates a guard. It does not sample until Start.
func NewGuard(config GuardConfig) *Guard {
	limit := config.LimitBytes
	if limit == 0 {
		if l := debug.SetMemoryLimit(-1); l > 0 && l < 1<<62 {
			limit = l
		}
	}
	if config.Interval <= 0 {
		config.Interval = DefaultGuardConfig().Interval
	}
	if config.HighWater <= 0 || config.HighWater > 1 {
		config.HighWater = DefaultGuardConfig().HighWater
	}
	return &Guard{
		config: config,
		limit:  limit,
		read:   heapAlloc,
		stop:   make(chan struct{}),
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc
}

// Limit returns the heap budget in bytes, 0 when there is none.
func (g *Guard) Limit() int64 {
	return g.limit
}

// Start samples in the background until Stop. Without a limit it does
// nothing.
func (g *Guard) Start() {
	if g.limit == 0 {
		logging.Debug("Memory guard: no limit configured, thumbnails never throttled")
		return
	}
	g.sample()
	go func() {
		ticker := time.NewTicker(g.config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.sample()
			case <-g.stop:
				return
			}
		}
	}()
}

// Stop ends sampling. It is safe to call more than once.
func (g *Guard) Stop() {
	g.once.Do(func() { close(g.stop) })
}

func (g *Guard) sample() {
	alloc := g.read()
	usage := float64(alloc) / float64(g.limit)
	throttled := usage >= g.config.HighWater

	g.mu.Lock()
	changed := throttled != g.throttled
	g.alloc, g.throttled = alloc, throttled
	g.mu.Unlock()

	metrics.MemoryUsageRatio.Set(usage)
	if !changed {
		return
	}
	if throttled {
		metrics.MemoryThrottled.Set(1)
		logging.Warn("Heap at %.0f%% of %s, skipping thumbnails", usage*100, FormatBytes(g.limit))
		go runtime.GC()
	} else {
		metrics.MemoryThrottled.Set(0)
		logging.Info("Heap back to %.0f%% of %s, thumbnails resumed", usage*100, FormatBytes(g.limit))
	}
}

// Throttled reports whether the last sample was above the high-water mark.
// A nil guard never throttles.
func (g *Guard) Throttled() bool {
	if g == nil || g.limit == 0 {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.throttled
}

// Usage returns the last sampled heap size and its ratio to the limit.
func (g *Guard) Usage() (alloc uint64, ratio float64) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.limit > 0 {
		ratio = float64(g.alloc) / float64(g.limit)
	}
	return g.alloc, ratio
}
