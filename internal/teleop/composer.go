// Package teleop maps concurrently held control keys to a continuous
// left/right velocity pair for keyboard-driven operation, standing in for the
// serial joystick path.
package teleop

import (
	"math"
	"sync"
)

// Key is a semantic control key. Input surfaces translate their own key codes
// to these before calling the composer.
type Key string

const (
	// Composite keys drive both wheels together and take precedence over
	// the independent per-wheel keys whenever any of them is held.
	KeyForward   Key = "forward"
	KeyBackward  Key = "backward"
	KeyTurnLeft  Key = "turn-left"
	KeyTurnRight Key = "turn-right"

	// Independent keys drive a single wheel.
	KeyLeftForward   Key = "left-forward"
	KeyLeftBackward  Key = "left-backward"
	KeyRightForward  Key = "right-forward"
	KeyRightBackward Key = "right-backward"
)

// DefaultKeymap is the browser key binding: WASD for combined motion, the
// original per-wheel bindings (r/f left, u/j right) for independent control.
var DefaultKeymap = map[string]Key{
	"w": KeyForward,
	"s": KeyBackward,
	"a": KeyTurnLeft,
	"d": KeyTurnRight,
	"r": KeyLeftForward,
	"f": KeyLeftBackward,
	"u": KeyRightForward,
	"j": KeyRightBackward,
}

type tier int

const (
	tierComposite tier = iota
	tierIndependent
)

// contribution is one key's per-wheel fraction of the base step.
type contribution struct {
	tier  tier
	left  float64
	right float64
}

// Composer tracks the currently held key set and recomputes the output pair
// on every change. The instant the set becomes empty it invokes the stop
// callback, outside the publish cadence, to minimize stop latency.
type Composer struct {
	mu    sync.Mutex
	held  map[Key]bool
	table map[Key]contribution

	step   int
	onStop func()
}

// NewComposer builds a composer. step is the base magnitude in normalized
// units; turnScale is the fraction applied to the inner wheel on the turn
// keys. onStop may be nil.
func NewComposer(step int, turnScale float64, onStop func()) *Composer {
	return &Composer{
		held: make(map[Key]bool),
		table: map[Key]contribution{
			KeyForward:   {tierComposite, 1, 1},
			KeyBackward:  {tierComposite, -1, -1},
			KeyTurnLeft:  {tierComposite, turnScale, 1},
			KeyTurnRight: {tierComposite, 1, turnScale},

			KeyLeftForward:   {tierIndependent, 1, 0},
			KeyLeftBackward:  {tierIndependent, -1, 0},
			KeyRightForward:  {tierIndependent, 0, 1},
			KeyRightBackward: {tierIndependent, 0, -1},
		},
		step:   step,
		onStop: onStop,
	}
}

// Press marks a key held. Unknown keys are ignored.
func (c *Composer) Press(k Key) {
	c.mu.Lock()
	if _, ok := c.table[k]; ok {
		c.held[k] = true
	}
	c.mu.Unlock()
}

// Release marks a key released. Releasing the last held key fires the stop
// callback immediately.
func (c *Composer) Release(k Key) {
	c.mu.Lock()
	delete(c.held, k)
	empty := len(c.held) == 0
	stop := c.onStop
	c.mu.Unlock()
	if empty && stop != nil {
		stop()
	}
}

// ReleaseAll clears the held set (window blur, websocket close) and fires the
// stop callback if anything was held.
func (c *Composer) ReleaseAll() {
	c.mu.Lock()
	had := len(c.held) > 0
	c.held = make(map[Key]bool)
	stop := c.onStop
	c.mu.Unlock()
	if had && stop != nil {
		stop()
	}
}

// Current computes the output pair for the held set, clamped to the normal
// range. active is false when no relevant key is held. Composite keys, when
// any is held, shadow the independent tier entirely.
func (c *Composer) Current() (left, right int, active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.held) == 0 {
		return 0, 0, false
	}

	useTier := tierIndependent
	for k := range c.held {
		if c.table[k].tier == tierComposite {
			useTier = tierComposite
			break
		}
	}

	var sumL, sumR float64
	for k := range c.held {
		e := c.table[k]
		if e.tier != useTier {
			continue
		}
		sumL += e.left
		sumR += e.right
	}

	return clamp(sumL * float64(c.step)), clamp(sumR * float64(c.step)), true
}

func clamp(v float64) int {
	r := int(math.Round(v))
	if r > 1000 {
		return 1000
	}
	if r < -1000 {
		return -1000
	}
	return r
}
