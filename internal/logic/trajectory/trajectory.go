// Package trajectory provides the minimum-jerk ease used by synchronized
// moves and the solver that picks a duration every axis can follow.
package trajectory

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cjeanneret/rigd/internal/debug"
	"github.com/cjeanneret/rigd/internal/logic/axis"
)

// Peak derivatives of MinJerk on a unit interval.
const (
	PeakVelocityFactor = 1.875
	PeakAccelFactor    = 5.7735
)

const (
	// Margin is the fraction of each axis' max speed/accel a move may use.
	Margin = 0.9
	// Growth is the factor applied to the trial duration after a violation.
	Growth = 1.1
	// MaxIterations bounds the duration search. 1.1^400 is about 4e16, far
	// beyond any physical move.
	MaxIterations = 400
)

var (
	// ErrInfeasible is returned when no duration can satisfy the limits.
	ErrInfeasible = errors.New("kinematically infeasible")
	// ErrInvalidDuration is returned for a non-positive requested duration.
	ErrInvalidDuration = errors.New("requested duration must be positive")
)

// MinJerk is the quintic ease 10τ³ − 15τ⁴ + 6τ⁵. τ is clamped to [0,1];
// velocity and acceleration are zero at both ends.
func MinJerk(tau float64) float64 {
	tau = axis.ClampUnit(tau)
	t3 := tau * tau * tau
	return t3 * (10 + tau*(-15+6*tau))
}

// Progress returns elapsed/duration clamped to [0,1]. A non-positive
// duration is complete immediately.
func Progress(elapsed, duration time.Duration) float64 {
	if duration <= 0 {
		return 1
	}
	return axis.ClampUnit(float64(elapsed) / float64(duration))
}

// Interpolate returns from + (to − from)·s rounded to a step.
func Interpolate(from, to int64, s float64) int64 {
	return axis.Round(float64(from) + (float64(to)-float64(from))*s)
}

// Feasible reports whether a move of duration T seconds from start to goal
// stays within Margin of every axis' speed and acceleration.
func Feasible(limits axis.Table, start, goal axis.Vector, T float64) bool {
	for _, a := range axis.All {
		if !axisFeasible(limits[a], start[a], goal[a], T) {
			return false
		}
	}
	return true
}

func axisFeasible(l axis.Limits, start, goal int64, T float64) bool {
	d := math.Abs(float64(goal) - float64(start))
	vNeed := d * PeakVelocityFactor / T
	aNeed := d * PeakAccelFactor / (T * T)
	return vNeed <= l.MaxSpeed*Margin && aNeed <= l.MaxAccel*Margin
}

// SolveDuration returns the smallest requested·Growthⁿ (n ≥ 0) for which a
// minimum-jerk move from start to goal respects every axis' limits.
func SolveDuration(limits axis.Table, start, goal axis.Vector, requested time.Duration) (time.Duration, error) {
	if requested <= 0 {
		return 0, ErrInvalidDuration
	}
	for _, a := range axis.All {
		l := limits[a]
		if !(l.MaxSpeed > 0) || !(l.MaxAccel > 0) || math.IsInf(l.MaxSpeed, 1) || math.IsInf(l.MaxAccel, 1) {
			return 0, fmt.Errorf("%w: %s has max_speed=%g max_accel=%g", ErrInfeasible, a, l.MaxSpeed, l.MaxAccel)
		}
	}

	T := requested.Seconds()
	for n := 0; n <= MaxIterations; n++ {
		if Feasible(limits, start, goal, T) {
			if n > 0 {
				debug.Verbose("Duration solver: %v -> %.4fs after %d increases", requested, T, n)
			}
			return time.Duration(math.Round(T * float64(time.Second))), nil
		}
		T *= Growth
	}
	return 0, fmt.Errorf("%w: no duration found after %d increases from %v", ErrInfeasible, MaxIterations, requested)
}
