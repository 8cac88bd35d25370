// Package joystick turns raw stick commands into smooth jog velocities and
// pan/tilt offsets.
//
// Each tick the raw axes go through deadzone/expo shaping, a one-pole
// low-pass filter and, for pan and tilt, a slew limiter. All rates are
// expressed in steps per second: the pan/tilt slew budget is divided by the
// configured offset range to obtain the normalized rate, so the derived
// offset never moves faster than the slew setting. Slide is a velocity
// command and has no slew stage; its ramp is left to the stepper driver's
// acceleration profile.
package joystick

import (
	"math"
	"time"

	"github.com/cjeanneret/rigd/internal/logic/axis"
)

// Output is the conditioned joystick state for one tick.
type Output struct {
	Pan        float64 `json:"pan"`  // filtered pan command, [-1,1]
	Tilt       float64 `json:"tilt"` // filtered tilt command, [-1,1]
	PanOffset  int64   `json:"pan_offset"`
	TiltOffset int64   `json:"tilt_offset"`
	SlideJog   float64 `json:"slide_jog"` // [-1,1]
}

// Conditioner owns the filtered joystick state. It is not safe for
// concurrent use: only the control tick calls Update.
type Conditioner struct {
	raw      *Raw
	settings *Settings
	ranges   *OffsetRanges

	last   time.Time
	pan    float64
	tilt   float64
	slide  float64
	output Output
}

// NewConditioner creates a conditioner reading from the given shared state.
func NewConditioner(raw *Raw, settings *Settings, ranges *OffsetRanges) *Conditioner {
	return &Conditioner{
		raw:      raw,
		settings: settings,
		ranges:   ranges,
	}
}

// Update advances the pipeline to now and returns the new output. The first
// call only records the time; calls with a non-positive elapsed time return
// the previous output unchanged.
func (c *Conditioner) Update(now time.Time) Output {
	if c.last.IsZero() {
		c.last = now
		return c.output
	}
	dt := now.Sub(c.last).Seconds()
	if dt <= 0 {
		return c.output
	}
	c.last = now
	return c.Step(dt)
}

// Step advances the pipeline by dt seconds.
func (c *Conditioner) Step(dt float64) Output {
	if dt <= 0 {
		return c.output
	}
	cfg := c.settings.Load()
	panRange, tiltRange := c.ranges.Load()
	rawPan, rawTilt, rawSlide := c.raw.Load()

	c.pan = condition(c.pan, rawPan, cfg, normalizedRate(cfg.Slew, panRange), dt)
	c.tilt = condition(c.tilt, rawTilt, cfg, normalizedRate(cfg.Slew, tiltRange), dt)
	c.slide = condition(c.slide, rawSlide, cfg, math.Inf(1), dt)

	c.output = Output{
		Pan:        c.pan,
		Tilt:       c.tilt,
		PanOffset:  axis.Round(c.pan * float64(panRange)),
		TiltOffset: axis.Round(c.tilt * float64(tiltRange)),
		SlideJog:   axis.Clamp(c.slide, -1, 1),
	}
	return c.output
}

// Reset zeroes the filtered state and forgets the last update time, so the
// next Update starts a fresh timeline.
func (c *Conditioner) Reset() {
	*c = Conditioner{raw: c.raw, settings: c.settings, ranges: c.ranges}
}

func condition(y, raw float64, cfg Values, rate, dt float64) float64 {
	shaped := Shape(raw, cfg.Deadzone, cfg.Expo)
	filtered := LowPass(y, shaped, cfg.CutoffHz, dt)
	return axis.Clamp(Slew(y, filtered, rate, dt), -1, 1)
}

// normalizedRate converts a steps/second budget into a rate on the
// normalized [-1,1] command. An empty range cannot produce an offset, so
// the limiter is disabled.
func normalizedRate(stepsPerSecond float64, offsetRange int64) float64 {
	if offsetRange <= 0 {
		return math.Inf(1)
	}
	return stepsPerSecond / float64(offsetRange)
}
