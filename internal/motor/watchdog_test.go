package motor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWatchdogStaleBeforeFirstTouch(t *testing.T) {
	d := NewWatchdog(250 * time.Millisecond)
	assert.True(t, d.Expired(), "no input yet must count as stale")
}

func TestWatchdogExpiry(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := NewWatchdog(250 * time.Millisecond)
	d.now = func() time.Time { return clock }

	d.Touch()
	assert.False(t, d.Expired())

	clock = clock.Add(250 * time.Millisecond)
	assert.False(t, d.Expired(), "exactly at threshold is still fresh")

	clock = clock.Add(time.Millisecond)
	assert.True(t, d.Expired())

	// A fresh touch revives it.
	d.Touch()
	assert.False(t, d.Expired())
}
