package stepper

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/cjeanneret/rigd/internal/debug"
	"github.com/cjeanneret/rigd/internal/hw/gpio"
	"github.com/cjeanneret/rigd/internal/logic/axis"
)

// Config holds the hardware configuration for a stepper motor.
type Config struct {
	StepPin    int
	DirPin     int
	EnablePin  int           // A4988 ENABLE pin (BCM). 0 = not used. Active LOW (LOW=enabled).
	MaxSpeed   float64       // steps/s
	MaxAccel   float64       // steps/s²
	PulseWidth time.Duration // STEP high time. 0 = 2µs.
}

const (
	defaultMaxSpeed   = 1000
	defaultMaxAccel   = 4000
	defaultPulseWidth = 2 * time.Microsecond

	// maxAdvance bounds the time step a single Advance integrates, so a
	// stalled loop does not release a burst of pulses.
	maxAdvance = 0.05

	// spinBelow is the longest wait hold busy-waits for; time.Sleep
	// overshoots microsecond waits by tens of microseconds.
	spinBelow = 100 * time.Microsecond
)

// Stepper drives one motor toward a position target with a trapezoidal
// speed ramp. SetTarget never blocks; Advance emits the pulses due for the
// elapsed time and must be called from a single goroutine. Each step costs
// two pulse widths of that goroutine's time.
type Stepper struct {
	gpio gpio.Driver
	cfg  Config

	pos    atomic.Int64
	target atomic.Int64
	moving atomic.Bool

	// owned by the Advance goroutine
	speed   float64 // signed, steps/s
	frac    float64 // fractional steps not yet emitted
	dir     gpio.Level
	dirKnow bool
}

// NewStepper creates a new stepper motor controller at position 0.
func NewStepper(g gpio.Driver, cfg Config) *Stepper {
	_ = g.SetupPin(cfg.StepPin, gpio.Output)
	_ = g.SetupPin(cfg.DirPin, gpio.Output)

	if cfg.MaxSpeed <= 0 {
		cfg.MaxSpeed = defaultMaxSpeed
	}
	if cfg.MaxAccel <= 0 {
		cfg.MaxAccel = defaultMaxAccel
	}
	if cfg.PulseWidth <= 0 {
		cfg.PulseWidth = defaultPulseWidth
	}

	s := &Stepper{
		gpio: g,
		cfg:  cfg,
	}

	// A4988 ENABLE: active LOW. LOW = enabled, HIGH = disabled.
	if cfg.EnablePin > 0 {
		_ = g.SetupPin(cfg.EnablePin, gpio.Output)
		_ = g.WritePin(cfg.EnablePin, gpio.Low) // enable by default
	}

	return s
}

// SetTarget sets the absolute position the motor ramps toward.
func (s *Stepper) SetTarget(pos int64) {
	s.target.Store(pos)
}

// Target returns the last target.
func (s *Stepper) Target() int64 {
	return s.target.Load()
}

// Position returns the number of steps emitted so far, signed by direction.
func (s *Stepper) Position() int64 {
	return s.pos.Load()
}

// Running reports whether the motor is still moving or has not reached its
// target yet.
func (s *Stepper) Running() bool {
	return s.moving.Load() || s.pos.Load() != s.target.Load()
}

// Advance integrates the ramp over dt seconds and emits the resulting STEP
// pulses. It returns the signed number of steps emitted.
func (s *Stepper) Advance(dt float64) (int64, error) {
	togo := s.target.Load() - s.pos.Load()
	if togo == 0 {
		s.speed, s.frac = 0, 0
		s.moving.Store(false)
		return 0, nil
	}
	if dt <= 0 {
		return 0, nil
	}
	if dt > maxAdvance {
		dt = maxAdvance
	}
	s.moving.Store(true)

	// Speed is bounded so the motor can still stop within the remaining
	// distance.
	dist := math.Abs(float64(togo))
	want := math.Min(s.cfg.MaxSpeed, math.Sqrt(2*s.cfg.MaxAccel*dist))
	if togo < 0 {
		want = -want
	}
	dv := s.cfg.MaxAccel * dt
	s.speed += math.Max(-dv, math.Min(dv, want-s.speed))

	s.frac += s.speed * dt
	n := int64(s.frac)
	if n != 0 && (n > 0) == (togo > 0) && math.Abs(float64(n)) > dist {
		n = togo
	}
	s.frac -= float64(n)
	if n == 0 {
		return 0, nil
	}
	return n, s.emit(n)
}

func (s *Stepper) emit(n int64) error {
	level, delta := gpio.High, int64(1)
	if n < 0 {
		level, delta, n = gpio.Low, -1, -n
	}
	if !s.dirKnow || s.dir != level {
		if err := s.gpio.WritePin(s.cfg.DirPin, level); err != nil {
			return err
		}
		s.dir, s.dirKnow = level, true
	}
	for i := int64(0); i < n; i++ {
		if err := s.stepPulse(); err != nil {
			return err
		}
		s.pos.Add(delta)
	}
	return nil
}

// stepPulse holds STEP high then low for PulseWidth each, meeting the A4988
// minimum high and low times.
func (s *Stepper) stepPulse() error {
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.High); err != nil {
		return err
	}
	hold(s.cfg.PulseWidth)
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.Low); err != nil {
		return err
	}
	hold(s.cfg.PulseWidth)
	return nil
}

// hold waits for d, spinning when d is too short for the runtime timer.
func hold(d time.Duration) {
	if d >= spinBelow {
		time.Sleep(d)
		return
	}
	for start := time.Now(); time.Since(start) < d; {
	}
}

// Enable turns on the motor driver (A4988 ENABLE=LOW). Motors hold position.
func (s *Stepper) Enable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.Low)
}

// Disable turns off the motor driver (A4988 ENABLE=HIGH). Motors freewheel, no holding torque.
func (s *Stepper) Disable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.High)
}

// Bank groups the four rig motors behind the per-axis interface the motion
// layer drives.
type Bank struct {
	axes [axis.NumAxes]*Stepper
}

// NewBank creates one stepper per axis on the same GPIO driver.
func NewBank(g gpio.Driver, cfgs [axis.NumAxes]Config) *Bank {
	b := &Bank{}
	for _, a := range axis.All {
		b.axes[a] = NewStepper(g, cfgs[a])
		debug.Verbose("Stepper %s: STEP=%d DIR=%d EN=%d speed=%.0f accel=%.0f",
			a, cfgs[a].StepPin, cfgs[a].DirPin, cfgs[a].EnablePin, b.axes[a].cfg.MaxSpeed, b.axes[a].cfg.MaxAccel)
	}
	return b
}

func (b *Bank) SetTarget(a axis.Axis, pos int64)  { b.axes[a].SetTarget(pos) }
func (b *Bank) CurrentPosition(a axis.Axis) int64 { return b.axes[a].Position() }
func (b *Bank) TargetPosition(a axis.Axis) int64  { return b.axes[a].Target() }
func (b *Bank) IsRunning(a axis.Axis) bool        { return b.axes[a].Running() }

// Advance steps every axis by dt seconds.
func (b *Bank) Advance(dt float64) error {
	for _, a := range axis.All {
		if _, err := b.axes[a].Advance(dt); err != nil {
			return err
		}
	}
	return nil
}

// Run advances the motors every period until ctx is cancelled.
func (b *Bank) Run(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		period = time.Millisecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			if err := b.Advance(dt); err != nil {
				debug.Error(err)
				return err
			}
		}
	}
}

// Enable powers every driver.
func (b *Bank) Enable() error {
	for _, s := range b.axes {
		if err := s.Enable(); err != nil {
			return err
		}
	}
	return nil
}

// Disable releases every driver.
func (b *Bank) Disable() error {
	for _, s := range b.axes {
		if err := s.Disable(); err != nil {
			return err
		}
	}
	return nil
}
