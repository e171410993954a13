package memory

import (
	"runtime/debug"
	"testing"
	"time"
)

func newTestGuard(limit int64, highWater float64, alloc *uint64) *Guard {
	g := NewGuard(GuardConfig{LimitBytes: limit, HighWater: highWater, Interval: time.Hour})
	g.read = func() uint64 { return *alloc }
	return g
}

func TestGuardThrottlesAboveHighWater(t *testing.T) {
	alloc := uint64(50)
	g := newTestGuard(100, 0.75, &alloc)

	g.sample()
	if g.Throttled() {
		t.Fatal("50% usage should not throttle")
	}

	alloc = 80
	g.sample()
	if !g.Throttled() {
		t.Fatal("80% usage should throttle")
	}
	if a, ratio := g.Usage(); a != 80 || ratio != 0.8 {
		t.Errorf("Usage() = (%d, %v), want (80, 0.8)", a, ratio)
	}

	alloc = 10
	g.sample()
	if g.Throttled() {
		t.Error("throttle should clear once usage drops")
	}
}

func TestGuardWithoutLimitNeverThrottles(t *testing.T) {
	prev := debug.SetMemoryLimit(-1)
	debug.SetMemoryLimit(1<<63 - 1)
	defer debug.SetMemoryLimit(prev)

	g := NewGuard(GuardConfig{})
	if g.Limit() != 0 {
		t.Fatalf("Limit() = %d, want 0", g.Limit())
	}
	g.Start()
	defer g.Stop()

	if g.Throttled() {
		t.Error("guard without a limit should never throttle")
	}
}

func TestNilGuardNeverThrottles(t *testing.T) {
	var g *Guard
	if g.Throttled() {
		t.Error("nil guard should not throttle")
	}
}

func TestGuardDefaults(t *testing.T) {
	g := NewGuard(GuardConfig{LimitBytes: 1 << 20, HighWater: 3})
	if g.config.HighWater != DefaultGuardConfig().HighWater {
		t.Errorf("HighWater = %v, want default", g.config.HighWater)
	}
	if g.config.Interval != DefaultGuardConfig().Interval {
		t.Errorf("Interval = %v, want default", g.config.Interval)
	}
}

func TestGuardStartStop(t *testing.T) {
	alloc := uint64(1)
	g := NewGuard(GuardConfig{LimitBytes: 100, Interval: 10 * time.Millisecond})
	g.read = func() uint64 { return alloc }

	g.Start()
	time.Sleep(30 * time.Millisecond)
	g.Stop()
	g.Stop()
}

func TestApplyLimitFromEnvironment(t *testing.T) {
	prev := debug.SetMemoryLimit(-1)
	defer debug.SetMemoryLimit(prev)

	tests := []struct {
		name      string
		limit     string
		ratio     string
		source    string
		heap      int64
		wantRatio float64
	}{
		{"unset", "", "", "none", 0, 0},
		{"default ratio", "1000000", "", "MEMORY_LIMIT", 850000, DefaultRatio},
		{"custom ratio", "1000000", "0.5", "MEMORY_LIMIT", 500000, 0.5},
		{"ratio out of range", "1000000", "1.5", "MEMORY_LIMIT", 850000, DefaultRatio},
		{"garbage limit", "lots", "", "none", 0, 0},
		{"negative limit", "-5", "", "none", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GOMEMLIMIT", "")
			t.Setenv("MEMORY_LIMIT", tt.limit)
			t.Setenv("MEMORY_RATIO", tt.ratio)

			l := ApplyLimit()
			if l.Source != tt.source || l.Heap != tt.heap || l.Ratio != tt.wantRatio {
				t.Errorf("ApplyLimit() = %+v, want source %s heap %d ratio %v", l, tt.source, tt.heap, tt.wantRatio)
			}
			if tt.heap > 0 {
				if got := debug.SetMemoryLimit(-1); got != tt.heap {
					t.Errorf("runtime limit = %d, want %d", got, tt.heap)
				}
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1 << 30, "1.0 GiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
