// Package geometry converts between motor steps and output-shaft angles for
// the rotary axes.
package geometry

// Drive describes the mechanical chain of one rotary axis.
type Drive struct {
	StepsPerRev   int     // full steps per motor revolution
	Microstepping int     // driver microstep divisor
	GearRatio     float64 // motor revolutions per output revolution. 0 = direct drive.
}

// StepsPerDegree returns the microsteps per output degree, 0 for an
// unconfigured drive.
func (d Drive) StepsPerDegree() float64 {
	ratio := d.GearRatio
	if ratio <= 0 {
		ratio = 1
	}
	micro := d.Microstepping
	if micro <= 0 {
		micro = 1
	}
	return float64(d.StepsPerRev*micro) * ratio / 360.0
}

// StepsCalculator converts motor step counts to output angles.
type StepsCalculator struct {
	panStepsPerDegree  float64
	tiltStepsPerDegree float64
}

// NewStepsCalculator creates a step calculator for the pan and tilt drives.
func NewStepsCalculator(pan, tilt Drive) *StepsCalculator {
	return &StepsCalculator{
		panStepsPerDegree:  pan.StepsPerDegree(),
		tiltStepsPerDegree: tilt.StepsPerDegree(),
	}
}

// PanAngle converts a pan position to degrees. An unconfigured drive
// reports 0.
func (s *StepsCalculator) PanAngle(steps int64) float64 {
	return angle(steps, s.panStepsPerDegree)
}

// TiltAngle converts a tilt position to degrees.
func (s *StepsCalculator) TiltAngle(steps int64) float64 {
	return angle(steps, s.tiltStepsPerDegree)
}

func angle(steps int64, perDegree float64) float64 {
	if perDegree == 0 {
		return 0
	}
	return float64(steps) / perDegree
}
