// Package shape applies dead-zone suppression, boost scaling, and clamping to
// normalized axis commands. Everything here is a pure function; the bridge
// and the web composer share it.
package shape

// DefaultDeadZone is the stick-at-rest suppression band in normalized units.
const DefaultDeadZone = 40

const (
	// MaxNormal is the command ceiling with no boost held.
	MaxNormal = 1000
	// MaxBoost is the ceiling while the axis's boost modifier is held.
	MaxBoost = 2000
)

// Axis shapes one normalized axis value. The order matters: the dead zone is
// applied to the pre-scaled value, so a value inside the band stays zero even
// when boosted; clamping after scaling keeps a doubled near-max value inside
// the boosted ceiling.
func Axis(v, deadZone int, boost bool) int {
	if v >= -deadZone && v <= deadZone {
		return 0
	}
	limit := MaxNormal
	if boost {
		v *= 2
		limit = MaxBoost
	}
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

// Pair shapes both wheels at once.
func Pair(left, right, deadZone int, boostLeft, boostRight bool) (int, int) {
	return Axis(left, deadZone, boostLeft), Axis(right, deadZone, boostRight)
}
