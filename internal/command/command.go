// Package command decodes inbound control datagrams into a closed set of
// typed commands. Each datagram is decoded once; the runtime dispatches on
// the concrete type.
package command

import (
	"time"

	"github.com/cjeanneret/rigd/internal/logic/axis"
	"github.com/cjeanneret/rigd/internal/logic/coupling"
)

// Command is implemented only by the types of this package.
type Command interface {
	command()
}

// JogPan sets the raw pan joystick, in [-1,1].
type JogPan struct{ Value float64 }

// JogTilt sets the raw tilt joystick, in [-1,1].
type JogTilt struct{ Value float64 }

// JogPanTilt sets both raw pan and tilt.
type JogPanTilt struct{ Pan, Tilt float64 }

// JogSlide sets the raw slide jog, in [-1,1].
type JogSlide struct{ Value float64 }

// JoystickConfig updates the first len(Values) conditioner settings in the
// order deadzone, expo, slew, cutoff.
type JoystickConfig struct{ Values []float64 }

// AxisAbsolute moves one axis to lerp(min, max, Fraction) directly.
type AxisAbsolute struct {
	Axis     axis.Axis
	Fraction float64
}

// PresetSet overwrites a preset slot.
type PresetSet struct {
	Index int
	Goal  axis.Vector
}

// PresetRecall starts a synchronized move to a preset slot. A zero
// Duration selects the default.
type PresetRecall struct {
	Index    int
	Duration time.Duration
}

// SlideGoto starts a synchronized slide-only move to lerp(min, max, Position).
type SlideGoto struct {
	Position float64
	Duration time.Duration
}

// OffsetRange sets the pan and tilt joystick offset ranges, in steps.
type OffsetRange struct{ Pan, Tilt int64 }

// PanMap sets the slide-to-pan coupling endpoints.
type PanMap struct{ Map coupling.Map }

// TiltMap sets the slide-to-tilt coupling endpoints.
type TiltMap struct{ Map coupling.Map }

// Stop zeroes every raw joystick input.
type Stop struct{}

// ResetOffsets zeroes the raw pan and tilt inputs, which returns the live
// offsets to zero through the conditioner.
type ResetOffsets struct{}

// ResetAllAxes sends every axis to the middle of its range, like four
// AxisAbsolute commands at 0.5.
type ResetAllAxes struct{}

func (JogPan) command()         {}
func (JogTilt) command()        {}
func (JogPanTilt) command()     {}
func (JogSlide) command()       {}
func (JoystickConfig) command() {}
func (AxisAbsolute) command()   {}
func (PresetSet) command()      {}
func (PresetRecall) command()   {}
func (SlideGoto) command()      {}
func (OffsetRange) command()    {}
func (PanMap) command()         {}
func (TiltMap) command()        {}
func (Stop) command()           {}
func (ResetOffsets) command()   {}
func (ResetAllAxes) command()   {}
