package teleop

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComposerIdle(t *testing.T) {
	c := NewComposer(600, 0.5, nil)
	l, r, active := c.Current()
	assert.False(t, active)
	assert.Equal(t, 0, l)
	assert.Equal(t, 0, r)
}

func TestComposerCompositeKeys(t *testing.T) {
	c := NewComposer(600, 0.5, nil)

	c.Press(KeyForward)
	l, r, active := c.Current()
	assert.True(t, active)
	assert.Equal(t, 600, l)
	assert.Equal(t, 600, r)

	c.Release(KeyForward)
	c.Press(KeyTurnLeft)
	l, r, _ = c.Current()
	assert.Equal(t, 300, l, "inner wheel scaled down on a turn")
	assert.Equal(t, 600, r)

	c.Release(KeyTurnLeft)
	c.Press(KeyTurnRight)
	l, r, _ = c.Current()
	assert.Equal(t, 600, l)
	assert.Equal(t, 300, r)
}

func TestComposerIndependentKeys(t *testing.T) {
	c := NewComposer(600, 0.5, nil)

	c.Press(KeyLeftForward)
	c.Press(KeyRightBackward)
	l, r, active := c.Current()
	assert.True(t, active)
	assert.Equal(t, 600, l)
	assert.Equal(t, -600, r)
}

func TestComposerCompositeShadowsIndependent(t *testing.T) {
	c := NewComposer(600, 0.5, nil)

	c.Press(KeyLeftForward)
	c.Press(KeyForward)
	l, r, _ := c.Current()
	assert.Equal(t, 600, l, "independent key ignored while a composite is held")
	assert.Equal(t, 600, r)

	// Composite released, the still-held independent key takes over.
	c.Press(KeyLeftForward) // already held; no-op
	c.Release(KeyForward)
	l, r, active := c.Current()
	assert.True(t, active)
	assert.Equal(t, 600, l)
	assert.Equal(t, 0, r)
}

func TestComposerOpposingKeysCancel(t *testing.T) {
	c := NewComposer(600, 0.5, nil)

	c.Press(KeyForward)
	c.Press(KeyBackward)
	l, r, active := c.Current()
	assert.True(t, active, "keys are held even though they cancel")
	assert.Equal(t, 0, l)
	assert.Equal(t, 0, r)
}

func TestComposerClamp(t *testing.T) {
	c := NewComposer(600, 0.5, nil)

	// Forward plus both turn keys sums past the normal range.
	c.Press(KeyForward)
	c.Press(KeyTurnLeft)
	c.Press(KeyTurnRight)
	l, r, _ := c.Current()
	assert.Equal(t, 1000, l)
	assert.Equal(t, 1000, r)
}

func TestComposerStopCallback(t *testing.T) {
	stops := 0
	c := NewComposer(600, 0.5, func() { stops++ })

	c.Press(KeyForward)
	c.Press(KeyTurnLeft)
	c.Release(KeyForward)
	assert.Equal(t, 0, stops, "keys still held")

	c.Release(KeyTurnLeft)
	assert.Equal(t, 1, stops, "stop fires the instant the set empties")

	c.Release(KeyTurnLeft)
	assert.Equal(t, 2, stops, "releasing with nothing held still reports an empty set")
}

func TestComposerReleaseAll(t *testing.T) {
	stops := 0
	c := NewComposer(600, 0.5, func() { stops++ })

	c.ReleaseAll()
	assert.Equal(t, 0, stops, "nothing held, nothing to stop")

	c.Press(KeyForward)
	c.ReleaseAll()
	assert.Equal(t, 1, stops)
	_, _, active := c.Current()
	assert.False(t, active)
}

func TestComposerUnknownKeyIgnored(t *testing.T) {
	c := NewComposer(600, 0.5, nil)
	c.Press(Key("volume-up"))
	_, _, active := c.Current()
	assert.False(t, active)
}

func TestDefaultKeymap(t *testing.T) {
	assert.Equal(t, KeyForward, DefaultKeymap["w"])
	assert.Equal(t, KeyLeftForward, DefaultKeymap["r"])
	assert.Equal(t, KeyRightBackward, DefaultKeymap["j"])
}
