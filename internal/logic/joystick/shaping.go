package joystick

import (
	"math"

	"github.com/cjeanneret/rigd/internal/logic/axis"
)

// Shape applies the deadzone and expo curve to a normalized stick value.
// The result is odd-symmetric, zero inside the deadzone and reaches ±1 at
// |x| = 1.
func Shape(x, deadzone, expo float64) float64 {
	x = axis.Clamp(x, -1, 1)
	ax := math.Abs(x)
	if ax <= deadzone {
		return 0
	}
	u := (ax - deadzone) / (1 - deadzone)
	y := (1-expo)*u + expo*u*u*u
	if x < 0 {
		return -y
	}
	return y
}

// LowPass advances a one-pole low-pass filter by dt seconds.
// A cutoff of zero (or less) passes x through unfiltered.
func LowPass(y, x, cutoffHz, dt float64) float64 {
	if cutoffHz <= 0 {
		return x
	}
	a := 1 - math.Exp(-2*math.Pi*cutoffHz*dt)
	return y + a*(x-y)
}

// Slew moves y toward x by at most rate·dt. A non-positive or infinite rate
// disables the limit.
func Slew(y, x, rate, dt float64) float64 {
	if rate <= 0 || math.IsInf(rate, 1) {
		return x
	}
	d := x - y
	m := rate * dt
	if d > m {
		d = m
	} else if d < -m {
		d = -m
	}
	return y + d
}
