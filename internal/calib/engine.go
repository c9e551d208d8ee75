// Package calib derives the mapping from the controller's raw axis range to
// normalized velocity commands. The engine walks a three-state lifecycle:
// calibrating (observe the stick's full excursion), arming (mapping frozen,
// waiting for the operator to settle), control (raw samples convert to
// normalized commands).
package calib

import (
	"log"
	"math"
	"sync"
	"time"
)

// Mode is the engine's lifecycle state.
type Mode int

const (
	ModeCalibrating Mode = iota
	ModeArming
	ModeControl
)

func (m Mode) String() string {
	switch m {
	case ModeCalibrating:
		return "CALIBRATING"
	case ModeArming:
		return "ARMING"
	case ModeControl:
		return "CONTROL"
	}
	return "UNKNOWN"
}

// axisRange tracks one axis while calibrating. Min/max only ever widen.
type axisRange struct {
	min, max int
	any      bool
	sawLow   bool
	sawHigh  bool
}

func (a *axisRange) observe(raw, fullScale, tol int) {
	if !a.any {
		a.min, a.max = raw, raw
		a.any = true
	} else {
		if raw < a.min {
			a.min = raw
		}
		if raw > a.max {
			a.max = raw
		}
	}
	if raw <= -(fullScale - tol) {
		a.sawLow = true
	}
	if raw >= fullScale-tol {
		a.sawHigh = true
	}
}

func (a *axisRange) fullRangeSeen() bool {
	return a.sawLow && a.sawHigh
}

// axisMap is the frozen linear mapping for one axis.
type axisMap struct {
	mid      float64
	halfSpan float64
}

func (m axisMap) normalize(raw int) int {
	v := (float64(raw) - m.mid) / m.halfSpan
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int(math.Round(v * 1000))
}

// Engine is the calibration state machine. Instantiate one per input device;
// it is safe for concurrent use from the reader and tick goroutines.
type Engine struct {
	mu sync.Mutex

	mode        Mode
	left, right axisRange
	mapL, mapR  axisMap
	armedAt     time.Time

	fullScale int
	tolerance int
	settle    time.Duration

	// warned suppresses repeated degenerate-span warnings within one
	// calibration pass.
	warned bool

	now  func() time.Time
	logf func(format string, args ...any)
}

// NewEngine creates an engine in ModeCalibrating. fullScale is the device's
// physical extreme magnitude; an axis counts as fully swept once values within
// tolerance of both extremes have been seen. settle is the arming delay before
// control is granted.
func NewEngine(fullScale, tolerance int, settle time.Duration) *Engine {
	return &Engine{
		fullScale: fullScale,
		tolerance: tolerance,
		settle:    settle,
		now:       time.Now,
		logf:      log.Printf,
	}
}

// Mode reports the current lifecycle state, promoting ARMING to CONTROL if
// the settle delay has elapsed.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.promote()
	return e.mode
}

func (e *Engine) promote() {
	if e.mode == ModeArming && e.now().Sub(e.armedAt) >= e.settle {
		e.mode = ModeControl
		e.logf("calib: armed and settled, entering CONTROL")
	}
}

// Reset returns the engine to ModeCalibrating and clears all observed range
// state. Valid from any state; this is the handler for the physical reset
// button and for explicit recalibration requests.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = ModeCalibrating
	e.left = axisRange{}
	e.right = axisRange{}
	e.mapL = axisMap{}
	e.mapR = axisMap{}
	e.warned = false
	e.logf("calib: reset, entering CALIBRATING")
}

// Observe feeds one raw sample pair through the state machine. While
// calibrating it widens the per-axis ranges and arms once both axes have been
// fully swept. Only in ModeControl does it return a normalized pair (each in
// [-1000,1000]) with ok=true.
func (e *Engine) Observe(rawL, rawR int) (left, right int, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.promote()

	switch e.mode {
	case ModeCalibrating:
		e.left.observe(rawL, e.fullScale, e.tolerance)
		e.right.observe(rawR, e.fullScale, e.tolerance)
		if e.left.fullRangeSeen() && e.right.fullRangeSeen() {
			e.tryArm()
		}
		return 0, 0, false

	case ModeArming:
		// Mapping is frozen; samples are ignored until settled.
		return 0, 0, false

	case ModeControl:
		return e.mapL.normalize(rawL), e.mapR.normalize(rawR), true
	}
	return 0, 0, false
}

// tryArm freezes the mapping and enters ARMING. A zero half-span would make
// normalization divide by zero, so a degenerate range keeps the engine in
// CALIBRATING and is reported once per pass.
func (e *Engine) tryArm() {
	mapL := freeze(e.left)
	mapR := freeze(e.right)
	if mapL.halfSpan == 0 || mapR.halfSpan == 0 {
		if !e.warned {
			e.warned = true
			e.logf("calib: degenerate axis span (L=[%d,%d] R=[%d,%d]), staying in CALIBRATING",
				e.left.min, e.left.max, e.right.min, e.right.max)
		}
		return
	}
	e.mapL = mapL
	e.mapR = mapR
	e.mode = ModeArming
	e.armedAt = e.now()
	e.logf("calib: full range seen (L=[%d,%d] R=[%d,%d]), ARMING for %v",
		e.left.min, e.left.max, e.right.min, e.right.max, e.settle)
}

func freeze(a axisRange) axisMap {
	return axisMap{
		mid:      float64(a.min+a.max) / 2,
		halfSpan: float64(a.max-a.min) / 2,
	}
}

// Ranges reports the observed min/max per axis, for status display.
func (e *Engine) Ranges() (lMin, lMax, rMin, rMax int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.left.min, e.left.max, e.right.min, e.right.max
}
