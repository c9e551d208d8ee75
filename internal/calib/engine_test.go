package calib

import (
	"testing"
	"time"
)

// testEngine returns an engine with a controllable clock and silenced log.
func testEngine(fullScale, tol int, settle time.Duration) (*Engine, *time.Time) {
	now := time.Unix(1000, 0)
	e := NewEngine(fullScale, tol, settle)
	e.now = func() time.Time { return now }
	e.logf = func(string, ...any) {}
	return e, &now
}

func TestEngineStartsCalibrating(t *testing.T) {
	e, _ := testEngine(512, 1, 500*time.Millisecond)
	if e.Mode() != ModeCalibrating {
		t.Fatalf("new engine mode = %v, want CALIBRATING", e.Mode())
	}
	if _, _, ok := e.Observe(100, 100); ok {
		t.Error("Observe must not normalize while calibrating")
	}
}

func TestEngineArmsAfterFullSweep(t *testing.T) {
	e, _ := testEngine(512, 1, 500*time.Millisecond)

	// Partial excursion on the right axis keeps the engine calibrating.
	e.Observe(-512, -100)
	e.Observe(511, 100)
	if e.Mode() != ModeCalibrating {
		t.Fatalf("mode = %v after partial sweep, want CALIBRATING", e.Mode())
	}

	// Completing the right axis arms the engine.
	e.Observe(0, -512)
	e.Observe(0, 511)
	if e.Mode() != ModeArming {
		t.Fatalf("mode = %v after full sweep, want ARMING", e.Mode())
	}
}

func TestEngineSettlesIntoControlAndNormalizes(t *testing.T) {
	e, now := testEngine(512, 1, 500*time.Millisecond)

	e.Observe(-512, -512)
	e.Observe(511, 511)
	if e.Mode() != ModeArming {
		t.Fatalf("mode = %v, want ARMING", e.Mode())
	}

	// Samples during arming are ignored.
	if _, _, ok := e.Observe(511, 511); ok {
		t.Error("Observe must not normalize while arming")
	}

	*now = now.Add(500 * time.Millisecond)
	if e.Mode() != ModeControl {
		t.Fatalf("mode = %v after settle, want CONTROL", e.Mode())
	}

	// Observed range [-512,511]: mid -0.5, half span 511.5.
	tests := []struct {
		raw  int
		want int
	}{
		{511, 1000},
		{-512, -1000},
		{0, 1},        // (0+0.5)/511.5*1000 rounds to 1
		{-1, -1},      // symmetric about the midpoint
		{1000, 1000},  // clamped past the observed max
		{-1000, -1000},
	}
	for _, tt := range tests {
		l, r, ok := e.Observe(tt.raw, tt.raw)
		if !ok {
			t.Fatalf("Observe(%d) not ok in CONTROL", tt.raw)
		}
		if l != tt.want || r != tt.want {
			t.Errorf("normalize(%d) = (%d,%d), want %d", tt.raw, l, r, tt.want)
		}
	}
}

func TestEngineResetDuringArming(t *testing.T) {
	e, now := testEngine(512, 1, 500*time.Millisecond)

	e.Observe(-512, -512)
	e.Observe(511, 511)
	if e.Mode() != ModeArming {
		t.Fatalf("mode = %v, want ARMING", e.Mode())
	}

	*now = now.Add(300 * time.Millisecond)
	e.Reset()
	*now = now.Add(time.Hour)
	if e.Mode() != ModeCalibrating {
		t.Fatalf("mode after reset = %v, want CALIBRATING", e.Mode())
	}

	// Previous excursion must be forgotten: a single sample pair cannot arm.
	e.Observe(0, 0)
	if e.Mode() != ModeCalibrating {
		t.Errorf("mode = %v, old range must not survive reset", e.Mode())
	}
}

func TestEngineResetFromControl(t *testing.T) {
	e, now := testEngine(512, 1, 500*time.Millisecond)
	e.Observe(-512, -512)
	e.Observe(511, 511)
	*now = now.Add(time.Second)
	if e.Mode() != ModeControl {
		t.Fatalf("mode = %v, want CONTROL", e.Mode())
	}

	e.Reset()
	if e.Mode() != ModeCalibrating {
		t.Fatalf("mode after reset = %v, want CALIBRATING", e.Mode())
	}
	if _, _, ok := e.Observe(511, 511); ok {
		t.Error("Observe must not normalize after reset")
	}
}

func TestEngineDegenerateSpanStaysCalibrating(t *testing.T) {
	warnings := 0
	// Tolerance as wide as the full scale: a single centered sample counts
	// as both extremes, leaving a zero span.
	e := NewEngine(10, 10, 500*time.Millisecond)
	e.now = time.Now
	e.logf = func(string, ...any) { warnings++ }

	e.Observe(0, 0)
	if e.Mode() != ModeCalibrating {
		t.Fatalf("mode = %v with zero span, want CALIBRATING", e.Mode())
	}
	if warnings == 0 {
		t.Error("degenerate span must be surfaced")
	}

	// The warning is not repeated on every sample.
	e.Observe(0, 0)
	e.Observe(0, 0)
	if warnings != 1 {
		t.Errorf("expected a single warning, got %d", warnings)
	}

	// Widening the range out of degeneracy lets the engine arm.
	e.Observe(-10, -10)
	e.Observe(10, 10)
	if e.Mode() != ModeArming {
		t.Errorf("mode = %v after widening, want ARMING", e.Mode())
	}
}

func TestEngineMonotonicWidening(t *testing.T) {
	e, _ := testEngine(512, 1, 500*time.Millisecond)
	e.Observe(-512, -512)
	e.Observe(511, 511)
	lMin, lMax, rMin, rMax := e.Ranges()
	if lMin != -512 || lMax != 511 || rMin != -512 || rMax != 511 {
		t.Fatalf("ranges = [%d,%d] [%d,%d], want [-512,511] both", lMin, lMax, rMin, rMax)
	}
}
