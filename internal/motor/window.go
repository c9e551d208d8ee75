package motor

import "sync"

// Window accumulates shaped commands that arrive faster than the publish
// cadence. The publisher drains it once per tick and emits the mean. Guarded
// by its own mutex so the serial-reader goroutine never observes a partially
// summed count from the tick goroutine.
type Window struct {
	mu    sync.Mutex
	sumL  int64
	sumR  int64
	count int64
}

// Add accumulates one shaped command pair.
func (w *Window) Add(left, right int) {
	w.mu.Lock()
	w.sumL += int64(left)
	w.sumR += int64(right)
	w.count++
	w.mu.Unlock()
}

// Drain returns the arithmetic mean of the accumulated pairs and resets the
// window. ok is false when nothing accumulated since the last drain.
func (w *Window) Drain() (left, right int, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.count == 0 {
		return 0, 0, false
	}
	left = int(w.sumL / w.count)
	right = int(w.sumR / w.count)
	w.sumL, w.sumR, w.count = 0, 0, 0
	return left, right, true
}

// Pending reports how many samples are waiting in the window.
func (w *Window) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return int(w.count)
}
