package motor

import (
	"sync"
	"time"
)

// Watchdog tracks input liveness separately from the publish cadence. The
// publisher consults it on every tick, and the bridge additionally runs it on
// its own shorter timer so a stop is forced within the idle threshold even if
// the publish tick is somehow delayed. Safe for concurrent use.
type Watchdog struct {
	mu        sync.Mutex
	lastFresh time.Time
	threshold time.Duration

	now func() time.Time
}

// NewWatchdog creates a watchdog that considers input stale once no Touch has
// happened for threshold. Until the first Touch, input counts as stale: a
// session with no input yet must hold zero.
func NewWatchdog(threshold time.Duration) *Watchdog {
	return &Watchdog{threshold: threshold, now: time.Now}
}

// Touch records that a fresh shaped command was produced now.
func (d *Watchdog) Touch() {
	d.mu.Lock()
	d.lastFresh = d.now()
	d.mu.Unlock()
}

// Expired reports whether the input source has gone silent past the idle
// threshold.
func (d *Watchdog) Expired() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastFresh.IsZero() {
		return true
	}
	return d.now().Sub(d.lastFresh) > d.threshold
}

// Threshold returns the configured idle threshold.
func (d *Watchdog) Threshold() time.Duration {
	return d.threshold
}
