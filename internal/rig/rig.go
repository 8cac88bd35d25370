// Package rig assembles the motion core around a motor collaborator: it owns
// the shared joystick, coupling and preset state, applies decoded commands
// from the network goroutine and runs the fixed-rate control loop.
package rig

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cjeanneret/rigd/internal/command"
	"github.com/cjeanneret/rigd/internal/config"
	"github.com/cjeanneret/rigd/internal/debug"
	"github.com/cjeanneret/rigd/internal/logic/axis"
	"github.com/cjeanneret/rigd/internal/logic/coupling"
	"github.com/cjeanneret/rigd/internal/logic/geometry"
	"github.com/cjeanneret/rigd/internal/logic/joystick"
	"github.com/cjeanneret/rigd/internal/logic/motion"
	"github.com/cjeanneret/rigd/internal/logic/preset"
)

// Status is a point-in-time view of the rig.
type Status struct {
	Time         time.Time          `json:"time"`
	Mode         string             `json:"mode"`
	Positions    axis.Vector        `json:"positions"`
	Targets      axis.Vector        `json:"targets"`
	Running      [axis.NumAxes]bool `json:"running"`
	PanDegrees   float64            `json:"pan_deg"`
	TiltDegrees  float64            `json:"tilt_deg"`
	Joystick     joystick.Output    `json:"joystick"`
	Settings     joystick.Values    `json:"settings"`
	OffsetRanges [2]int64           `json:"offset_ranges"`
	PanMap       coupling.Map       `json:"pan_map"`
	TiltMap      coupling.Map       `json:"tilt_map"`
	Move         *motion.Move       `json:"move,omitempty"`
}

// Rig is the running motion core. Apply may be called from any goroutine;
// Tick and Run belong to the control loop.
type Rig struct {
	cfg *config.Config

	raw      joystick.Raw
	settings *joystick.Settings
	ranges   *joystick.OffsetRanges
	mapper   *coupling.Mapper
	presets  *preset.Store
	ctrl     *motion.Controller
	coord    *motion.Coordinator
	cond     *joystick.Conditioner
	units    *geometry.StepsCalculator

	clock   func() time.Time
	status  atomic.Pointer[Status]
	lastLog time.Time
}

// New builds the core from the configuration and the motor collaborator.
func New(cfg *config.Config, m motion.Motors) (*Rig, error) {
	limits := cfg.Limits()
	if err := limits.Validate(); err != nil {
		return nil, fmt.Errorf("rig: %w", err)
	}
	panMap, tiltMap := cfg.CouplingMaps()
	panDrive, tiltDrive := cfg.Drives()

	r := &Rig{
		cfg:      cfg,
		settings: joystick.NewSettings(cfg.JoystickValues()),
		ranges:   joystick.NewOffsetRanges(cfg.Joystick.PanOffsetRange, cfg.Joystick.TiltOffsetRange),
		mapper:   coupling.NewMapper(limits[axis.Slide], panMap, tiltMap),
		presets:  preset.NewStore(cfg.Defaults.Presets),
		ctrl:     motion.NewController(m, limits),
		units:    geometry.NewStepsCalculator(panDrive, tiltDrive),
		clock:    time.Now,
	}
	r.cond = joystick.NewConditioner(&r.raw, r.settings, r.ranges)
	r.coord = motion.NewCoordinator(r.ctrl, r.mapper, r.presets, cfg.JogSpeeds())
	debug.Info("Motion core: %d preset slots, jog %+v", r.presets.Len(), cfg.JogSpeeds())
	return r, nil
}

// Apply executes one decoded command. Errors reject the command and leave
// the rig unchanged; none of them affects the control loop.
func (r *Rig) Apply(c command.Command) error {
	switch c := c.(type) {
	case command.JogPan:
		r.raw.SetPan(c.Value)
	case command.JogTilt:
		r.raw.SetTilt(c.Value)
	case command.JogPanTilt:
		r.raw.SetPan(c.Pan)
		r.raw.SetTilt(c.Tilt)
	case command.JogSlide:
		r.raw.SetSlide(c.Value)
	case command.JoystickConfig:
		r.settings.Update(c.Values...)
		debug.Verbose("Joystick settings: %+v", r.settings.Load())
	case command.AxisAbsolute:
		if _, err := r.ctrl.MoveToFraction(c.Axis, c.Fraction); err != nil {
			return err
		}
	case command.PresetSet:
		if err := r.presets.Set(c.Index, c.Goal); err != nil {
			return fmt.Errorf("set preset: %w", err)
		}
		debug.Info("Preset %d saved: %v", c.Index, c.Goal)
	case command.PresetRecall:
		if _, err := r.coord.StartPreset(r.clock(), c.Index, c.Duration); err != nil {
			return err
		}
	case command.SlideGoto:
		if _, err := r.coord.StartSlideGoto(r.clock(), c.Position, c.Duration); err != nil {
			return err
		}
	case command.OffsetRange:
		r.ranges.Set(c.Pan, c.Tilt)
	case command.PanMap:
		r.mapper.SetPan(c.Map.AtMin, c.Map.AtMax)
	case command.TiltMap:
		r.mapper.SetTilt(c.Map.AtMin, c.Map.AtMax)
	case command.Stop:
		r.raw.SetPan(0)
		r.raw.SetTilt(0)
		r.raw.SetSlide(0)
	case command.ResetOffsets:
		r.raw.SetPan(0)
		r.raw.SetTilt(0)
	case command.ResetAllAxes:
		for _, a := range axis.All {
			if _, err := r.ctrl.MoveToFraction(a, 0.5); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("rig: unhandled command %T", c)
	}
	return nil
}

// Tick runs one control step at now.
func (r *Rig) Tick(now time.Time) {
	out := r.cond.Update(now)
	r.coord.Tick(now, out)
	st := r.snapshot(now, out)
	r.status.Store(st)

	every := r.cfg.PositionLogInterval()
	if every > 0 && now.Sub(r.lastLog) >= every {
		r.lastLog = now
		debug.Positions(out.SlideJog, st.Positions)
	}
}

// Run ticks at the configured rate until ctx is cancelled. The joystick
// filters restart from rest so a stopped loop does not integrate the gap.
func (r *Rig) Run(ctx context.Context) error {
	period := r.cfg.TickPeriod()
	debug.Info("Control loop at %v", period)
	r.cond.Reset()
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			r.Tick(now)
		}
	}
}

// Status returns the state published by the last tick.
func (r *Rig) Status() Status {
	if st := r.status.Load(); st != nil {
		return *st
	}
	return *r.snapshot(r.clock(), joystick.Output{})
}

// Presets returns a copy of every preset slot.
func (r *Rig) Presets() []axis.Vector {
	return r.presets.Snapshot()
}

func (r *Rig) snapshot(now time.Time, out joystick.Output) *Status {
	pos := r.ctrl.Positions()
	panRange, tiltRange := r.ranges.Load()
	panMap, tiltMap := r.mapper.Maps()
	st := &Status{
		Time:         now,
		Mode:         r.coord.Mode().String(),
		Positions:    pos,
		Targets:      r.ctrl.Targets(),
		Running:      r.ctrl.Running(),
		PanDegrees:   r.units.PanAngle(pos[axis.Pan]),
		TiltDegrees:  r.units.TiltAngle(pos[axis.Tilt]),
		Joystick:     out,
		Settings:     r.settings.Load(),
		OffsetRanges: [2]int64{panRange, tiltRange},
		PanMap:       panMap,
		TiltMap:      tiltMap,
	}
	if m, ok := r.coord.Active(); ok {
		st.Move = &m
	}
	return st
}
