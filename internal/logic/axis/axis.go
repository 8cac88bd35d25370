// Package axis describes the four motorized axes of the rig and their
// static kinematic bounds.
package axis

import (
	"fmt"
	"math"
	"strings"
)

// Axis identifies one motorized axis.
type Axis int

const (
	Pan Axis = iota
	Tilt
	Zoom
	Slide
)

// NumAxes is the fixed number of axes on the rig.
const NumAxes = 4

// All lists the axes in index order.
var All = [NumAxes]Axis{Pan, Tilt, Zoom, Slide}

var names = [NumAxes]string{"pan", "tilt", "zoom", "slide"}

func (a Axis) String() string {
	if !a.Valid() {
		return fmt.Sprintf("axis(%d)", int(a))
	}
	return names[a]
}

// Valid reports whether a is one of the four rig axes.
func (a Axis) Valid() bool {
	return a >= Pan && a <= Slide
}

// Parse converts a name such as "pan" or "Slide" to an Axis.
func Parse(s string) (Axis, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range names {
		if n == s {
			return Axis(i), nil
		}
	}
	return 0, fmt.Errorf("unknown axis %q", s)
}

// Vector holds one integer position (in steps) per axis.
type Vector [NumAxes]int64

// Limits holds the static bounds of one axis.
type Limits struct {
	Min      int64   // lowest reachable position (steps)
	Max      int64   // highest reachable position (steps)
	MaxSpeed float64 // steps/s
	MaxAccel float64 // steps/s²
}

// Validate checks that the range is non-empty and the kinematic bounds are
// positive and finite.
func (l Limits) Validate() error {
	if l.Min >= l.Max {
		return fmt.Errorf("min_limit (%d) must be lower than max_limit (%d)", l.Min, l.Max)
	}
	if !positiveFinite(l.MaxSpeed) {
		return fmt.Errorf("max_speed must be positive and finite, got %g", l.MaxSpeed)
	}
	if !positiveFinite(l.MaxAccel) {
		return fmt.Errorf("max_accel must be positive and finite, got %g", l.MaxAccel)
	}
	return nil
}

// Clamp bounds pos to [Min, Max].
func (l Limits) Clamp(pos int64) int64 {
	if pos < l.Min {
		return l.Min
	}
	if pos > l.Max {
		return l.Max
	}
	return pos
}

// Lerp maps u in [0,1] onto [Min, Max], rounding to the nearest step.
// u is clamped first.
func (l Limits) Lerp(u float64) int64 {
	u = ClampUnit(u)
	return l.Clamp(Round(float64(l.Min) + (float64(l.Max)-float64(l.Min))*u))
}

// Normalize maps pos onto [0,1] relative to the range, clamped.
func (l Limits) Normalize(pos int64) float64 {
	span := float64(l.Max) - float64(l.Min)
	if span <= 0 {
		return 0
	}
	return ClampUnit((float64(pos) - float64(l.Min)) / span)
}

// Table holds the limits of every axis, indexed by Axis.
type Table [NumAxes]Limits

// Validate checks every axis.
func (t Table) Validate() error {
	for _, a := range All {
		if err := t[a].Validate(); err != nil {
			return fmt.Errorf("%s: %w", a, err)
		}
	}
	return nil
}

// Clamp bounds every component of v to its axis range.
func (t Table) Clamp(v Vector) Vector {
	for _, a := range All {
		v[a] = t[a].Clamp(v[a])
	}
	return v
}

// Round rounds half away from zero, like C's lround.
func Round(x float64) int64 {
	return int64(math.Round(x))
}

// ClampUnit bounds x to [0,1]. NaN maps to 0.
func ClampUnit(x float64) float64 {
	return Clamp(x, 0, 1)
}

// Clamp bounds x to [lo, hi]. NaN maps to lo.
func Clamp(x, lo, hi float64) float64 {
	if x > hi {
		return hi
	}
	if x >= lo {
		return x
	}
	return lo
}

func positiveFinite(x float64) bool {
	return x > 0 && !math.IsInf(x, 1)
}
