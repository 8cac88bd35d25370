package motion

import (
	"fmt"

	"github.com/cjeanneret/rigd/internal/debug"
	"github.com/cjeanneret/rigd/internal/logic/axis"
)

// Motors is the stepper-control collaborator. SetTarget must not block: the
// axis ramps toward the target under its own speed/acceleration profile, and
// re-targeting before arrival is expected. Implementations must be safe for
// concurrent use since commands and the control tick run on different
// goroutines.
type Motors interface {
	SetTarget(a axis.Axis, pos int64)
	CurrentPosition(a axis.Axis) int64
	TargetPosition(a axis.Axis) int64
	IsRunning(a axis.Axis) bool
}

// Controller is the layer between the coordination logic and the stepper
// collaborator. Every target it issues is clamped to the axis limits.
type Controller struct {
	motors Motors
	limits axis.Table
}

func NewController(m Motors, limits axis.Table) *Controller {
	return &Controller{
		motors: m,
		limits: limits,
	}
}

// Limits returns the axis limits the controller clamps against.
func (c *Controller) Limits() axis.Table {
	return c.limits
}

// MoveTo clamps pos to the axis range, issues it and returns the issued
// target.
func (c *Controller) MoveTo(a axis.Axis, pos int64) int64 {
	pos = c.limits[a].Clamp(pos)
	c.motors.SetTarget(a, pos)
	debug.Trace("Target %s -> %d", a, pos)
	return pos
}

// MoveToFraction issues the absolute target lerp(min, max, u) for an axis,
// with u clamped to [0,1]. It bypasses the joystick, coupling and any
// synchronized move; a running move overwrites it on the next tick.
func (c *Controller) MoveToFraction(a axis.Axis, u float64) (int64, error) {
	if !a.Valid() {
		return 0, fmt.Errorf("move to fraction: invalid %v", a)
	}
	pos := c.MoveTo(a, c.limits[a].Lerp(u))
	debug.Live("Axis %s: %.3f -> %d", a, u, pos)
	return pos, nil
}

// MoveAll issues one target per axis.
func (c *Controller) MoveAll(targets axis.Vector) axis.Vector {
	for _, a := range axis.All {
		targets[a] = c.MoveTo(a, targets[a])
	}
	return targets
}

// Positions returns the current position of every axis.
func (c *Controller) Positions() axis.Vector {
	var v axis.Vector
	for _, a := range axis.All {
		v[a] = c.motors.CurrentPosition(a)
	}
	return v
}

// Targets returns the last target of every axis.
func (c *Controller) Targets() axis.Vector {
	var v axis.Vector
	for _, a := range axis.All {
		v[a] = c.motors.TargetPosition(a)
	}
	return v
}

// Running reports which axes are still moving toward their target.
func (c *Controller) Running() [axis.NumAxes]bool {
	var r [axis.NumAxes]bool
	for _, a := range axis.All {
		r[a] = c.motors.IsRunning(a)
	}
	return r
}
