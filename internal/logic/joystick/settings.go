package joystick

import (
	"math"
	"sync/atomic"

	"github.com/cjeanneret/rigd/internal/logic/axis"
)

// Bounds applied when conditioner settings are written.
const (
	MaxDeadzone = 0.5
	MaxExpo     = 0.95
)

// atomicFloat is a float64 that can be written by the command path and read
// by the control tick without tearing.
type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) Load() float64 {
	return math.Float64frombits(f.bits.Load())
}

func (f *atomicFloat) Store(v float64) {
	f.bits.Store(math.Float64bits(v))
}

// Raw holds the unconditioned stick axes as written by inbound commands.
// Every value is clamped to [-1,1] on write.
type Raw struct {
	pan, tilt, slide atomicFloat
}

func (r *Raw) SetPan(v float64)   { r.pan.Store(clampStick(v)) }
func (r *Raw) SetTilt(v float64)  { r.tilt.Store(clampStick(v)) }
func (r *Raw) SetSlide(v float64) { r.slide.Store(clampStick(v)) }

// Load returns the current raw pan, tilt and slide values.
func (r *Raw) Load() (pan, tilt, slide float64) {
	return r.pan.Load(), r.tilt.Load(), r.slide.Load()
}

func clampStick(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return axis.Clamp(v, -1, 1)
}

// Values is a plain copy of the conditioner settings.
type Values struct {
	Deadzone float64 `json:"deadzone"`
	Expo     float64 `json:"expo"`
	Slew     float64 `json:"slew"`      // offset steps per second
	CutoffHz float64 `json:"cutoff_hz"` // 0 disables the low-pass stage
}

// DefaultValues matches the factory tuning of the rig.
var DefaultValues = Values{
	Deadzone: 0.06,
	Expo:     0.35,
	Slew:     8000,
	CutoffHz: 60,
}

// Settings holds the runtime-mutable conditioner tuning. Out-of-domain
// values are clamped when written, never when read.
type Settings struct {
	deadzone, expo, slew, cutoff atomicFloat
}

// NewSettings returns settings initialised (and clamped) from v.
func NewSettings(v Values) *Settings {
	s := &Settings{}
	s.SetDeadzone(v.Deadzone)
	s.SetExpo(v.Expo)
	s.SetSlew(v.Slew)
	s.SetCutoff(v.CutoffHz)
	return s
}

func (s *Settings) SetDeadzone(v float64) { s.deadzone.Store(axis.Clamp(v, 0, MaxDeadzone)) }
func (s *Settings) SetExpo(v float64)     { s.expo.Store(axis.Clamp(v, 0, MaxExpo)) }
func (s *Settings) SetSlew(v float64)     { s.slew.Store(nonNegative(v)) }
func (s *Settings) SetCutoff(v float64)   { s.cutoff.Store(nonNegative(v)) }

// Update applies a partial update in field order: deadzone, expo, slew,
// cutoff. Only as many fields as values supplied are touched; extra values
// are ignored.
func (s *Settings) Update(values ...float64) {
	setters := []func(float64){s.SetDeadzone, s.SetExpo, s.SetSlew, s.SetCutoff}
	for i, v := range values {
		if i >= len(setters) {
			break
		}
		setters[i](v)
	}
}

// Load returns a copy of the current settings.
func (s *Settings) Load() Values {
	return Values{
		Deadzone: s.deadzone.Load(),
		Expo:     s.expo.Load(),
		Slew:     s.slew.Load(),
		CutoffHz: s.cutoff.Load(),
	}
}

// nonNegative clamps v to [0, +Inf). NaN maps to 0, which disables the stage.
func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

// OffsetRanges holds the maximum pan/tilt offset in steps that a fully
// deflected stick produces.
type OffsetRanges struct {
	pan, tilt atomic.Int64
}

// NewOffsetRanges returns ranges initialised from pan and tilt.
func NewOffsetRanges(pan, tilt int64) *OffsetRanges {
	r := &OffsetRanges{}
	r.Set(pan, tilt)
	return r
}

// Set stores both ranges; negative values are clamped to zero.
func (r *OffsetRanges) Set(pan, tilt int64) {
	r.pan.Store(max(pan, 0))
	r.tilt.Store(max(tilt, 0))
}

// Load returns the pan and tilt ranges.
func (r *OffsetRanges) Load() (pan, tilt int64) {
	return r.pan.Load(), r.tilt.Load()
}
