// Package motion arbitrates, every control tick, between manual jogging and
// timed synchronized moves, and issues the resulting targets to the stepper
// collaborator.
package motion

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/cjeanneret/rigd/internal/debug"
	"github.com/cjeanneret/rigd/internal/logic/axis"
	"github.com/cjeanneret/rigd/internal/logic/coupling"
	"github.com/cjeanneret/rigd/internal/logic/joystick"
	"github.com/cjeanneret/rigd/internal/logic/preset"
	"github.com/cjeanneret/rigd/internal/logic/trajectory"
)

// DefaultMoveDuration is used when a move request carries no positive
// duration.
const DefaultMoveDuration = 2 * time.Second

// jogThreshold is the smallest filtered command that moves an axis.
const jogThreshold = 0.001

// Mode is the coordinator state, derived from whether a move is active.
type Mode int

const (
	ModeJog Mode = iota
	ModeSynchronized
)

func (m Mode) String() string {
	if m == ModeSynchronized {
		return "synchronized"
	}
	return "jog"
}

// Move is a synchronized move. It is immutable once published.
type Move struct {
	Kind      string        `json:"kind"`
	Start     time.Time     `json:"start"`
	Duration  time.Duration `json:"duration"`
	Requested time.Duration `json:"requested"`
	StartPos  axis.Vector   `json:"start_pos"`
	GoalBase  axis.Vector   `json:"goal_base"` // goal without coupling or offsets
}

// JogSpeeds are the jog velocities at full stick deflection, in steps/s.
type JogSpeeds struct {
	Pan   float64
	Tilt  float64
	Slide float64
}

// Coordinator runs the per-tick motion logic. Tick must only be called from
// the control loop; the Start* methods may be called from any goroutine.
type Coordinator struct {
	ctrl     *Controller
	limits   axis.Table
	coupling *coupling.Mapper
	presets  *preset.Store
	speeds   JogSpeeds

	// move is the active synchronized move, nil while jogging. Publishing a
	// fully built Move is the activation; the tick clears it with a CAS so a
	// replacement published meanwhile survives.
	move atomic.Pointer[Move]

	last  time.Time
	carry [axis.NumAxes]float64
}

// NewCoordinator wires a coordinator to its collaborators.
func NewCoordinator(ctrl *Controller, m *coupling.Mapper, presets *preset.Store, speeds JogSpeeds) *Coordinator {
	return &Coordinator{
		ctrl:     ctrl,
		limits:   ctrl.Limits(),
		coupling: m,
		presets:  presets,
		speeds:   speeds,
	}
}

// Mode returns the current state.
func (c *Coordinator) Mode() Mode {
	if c.move.Load() != nil {
		return ModeSynchronized
	}
	return ModeJog
}

// Active returns a copy of the active move, if any.
func (c *Coordinator) Active() (Move, bool) {
	m := c.move.Load()
	if m == nil {
		return Move{}, false
	}
	return *m, true
}

// Start begins a synchronized move toward goalBase, replacing any move in
// flight. The start position is the current position of every axis and the
// duration is the smallest feasible stretch of requested.
func (c *Coordinator) Start(now time.Time, kind string, goalBase axis.Vector, requested time.Duration) (Move, error) {
	return c.begin(now, kind, requested, func(axis.Vector) axis.Vector { return goalBase })
}

// StartPreset recalls a preset slot as a synchronized move.
func (c *Coordinator) StartPreset(now time.Time, index int, requested time.Duration) (Move, error) {
	goals, err := c.presets.Get(index)
	if err != nil {
		return Move{}, fmt.Errorf("recall preset: %w", err)
	}
	return c.begin(now, fmt.Sprintf("preset %d", index), requested, func(axis.Vector) axis.Vector { return goals })
}

// StartSlideGoto moves the slide to lerp(min, max, u) while holding the
// other axes where they are.
func (c *Coordinator) StartSlideGoto(now time.Time, u float64, requested time.Duration) (Move, error) {
	goal := c.limits[axis.Slide].Lerp(u)
	return c.begin(now, "slide", requested, func(start axis.Vector) axis.Vector {
		start[axis.Slide] = goal
		return start
	})
}

func (c *Coordinator) begin(now time.Time, kind string, requested time.Duration, goalFn func(start axis.Vector) axis.Vector) (Move, error) {
	if requested <= 0 {
		requested = DefaultMoveDuration
	}
	start := c.ctrl.Positions()
	goal := c.limits.Clamp(goalFn(start))

	d, err := trajectory.SolveDuration(c.limits, start, goal, requested)
	if err != nil {
		return Move{}, fmt.Errorf("start %s move: %w", kind, err)
	}
	m := &Move{
		Kind:      kind,
		Start:     now,
		Duration:  d,
		Requested: requested,
		StartPos:  start,
		GoalBase:  goal,
	}
	c.move.Store(m)
	debug.MoveStarted(kind, goal, requested.Milliseconds(), d.Milliseconds())
	return *m, nil
}

// Tick runs one control step at time now with the conditioned joystick
// output. While a move is active it drives every axis along the move;
// otherwise pan, tilt and slide follow the joystick as velocities.
func (c *Coordinator) Tick(now time.Time, jog joystick.Output) {
	var dt float64
	if !c.last.IsZero() {
		dt = now.Sub(c.last).Seconds()
	}
	if dt >= 0 {
		c.last = now
	}

	if m := c.move.Load(); m != nil {
		c.follow(now, m, jog)
		return
	}
	if dt > 0 {
		c.jogAxis(axis.Pan, jog.Pan, c.speeds.Pan, dt)
		c.jogAxis(axis.Tilt, jog.Tilt, c.speeds.Tilt, dt)
		c.jogAxis(axis.Slide, jog.SlideJog, c.speeds.Slide, dt)
	}
}

// jogAxis integrates cmd·speed·dt onto the last target. Fractions of a step
// are carried to the next tick so slow jogs still move.
func (c *Coordinator) jogAxis(a axis.Axis, cmd, speed, dt float64) {
	if math.Abs(cmd) <= jogThreshold {
		c.carry[a] = 0
		return
	}
	delta := cmd*speed*dt + c.carry[a]
	whole := axis.Round(delta)
	c.carry[a] = delta - float64(whole)
	if whole == 0 {
		return
	}
	prev := c.ctrl.motors.TargetPosition(a)
	if issued := c.ctrl.MoveTo(a, prev+whole); issued != prev+whole {
		c.carry[a] = 0
	}
}

func (c *Coordinator) follow(now time.Time, m *Move, jog joystick.Output) {
	c.carry = [axis.NumAxes]float64{}

	tau := trajectory.Progress(now.Sub(m.Start), m.Duration)
	s := trajectory.MinJerk(tau)

	// The coupling follows the slide reference at this instant, not the
	// final slide goal.
	slideRef := c.limits[axis.Slide].Clamp(trajectory.Interpolate(m.StartPos[axis.Slide], m.GoalBase[axis.Slide], s))
	panComp, tiltComp := c.coupling.Compensate(slideRef)

	goal := m.GoalBase
	goal[axis.Pan] += panComp + jog.PanOffset
	goal[axis.Tilt] += tiltComp + jog.TiltOffset

	var targets axis.Vector
	for _, a := range axis.All {
		targets[a] = trajectory.Interpolate(m.StartPos[a], goal[a], s)
	}
	targets = c.ctrl.MoveAll(targets)
	if debug.IsEnabled(debug.LevelVerbose) {
		debug.Verbose("Move %s τ=%.3f targets=%v", m.Kind, tau, targets)
	}

	if tau >= 1 && c.move.CompareAndSwap(m, nil) {
		debug.Info("Move %s complete at P%d T%d Z%d S%d", m.Kind, targets[0], targets[1], targets[2], targets[3])
	}
}
