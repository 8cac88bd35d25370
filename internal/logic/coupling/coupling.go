// Package coupling maps the slide position to pan/tilt compensation so the
// camera keeps framing the subject while the carriage travels.
package coupling

import (
	"sync/atomic"

	"github.com/cjeanneret/rigd/internal/logic/axis"
)

// Map is a two-point linear relation: AtMin is the compensation when the
// slide sits at its lower limit, AtMax at its upper limit.
type Map struct {
	AtMin int64 `json:"at_min"`
	AtMax int64 `json:"at_max"`
}

// At interpolates the map at u in [0,1] (clamped) and rounds to a step.
func (m Map) At(u float64) int64 {
	u = axis.ClampUnit(u)
	return axis.Round(float64(m.AtMin) + (float64(m.AtMax)-float64(m.AtMin))*u)
}

// Mapper holds the live pan and tilt maps. Each map is replaced as a whole,
// so a reader never sees one endpoint from an old map and one from a new.
type Mapper struct {
	slide axis.Limits
	pan   atomic.Pointer[Map]
	tilt  atomic.Pointer[Map]
}

// NewMapper returns a mapper normalising against the slide limits.
func NewMapper(slide axis.Limits, pan, tilt Map) *Mapper {
	m := &Mapper{slide: slide}
	m.pan.Store(&pan)
	m.tilt.Store(&tilt)
	return m
}

// SetPan replaces the pan map.
func (m *Mapper) SetPan(atMin, atMax int64) {
	m.pan.Store(&Map{AtMin: atMin, AtMax: atMax})
}

// SetTilt replaces the tilt map.
func (m *Mapper) SetTilt(atMin, atMax int64) {
	m.tilt.Store(&Map{AtMin: atMin, AtMax: atMax})
}

// Maps returns copies of the current pan and tilt maps.
func (m *Mapper) Maps() (pan, tilt Map) {
	return *m.pan.Load(), *m.tilt.Load()
}

// Compensate returns the pan and tilt compensation for a slide reference
// position. Positions beyond the slide limits use the nearest endpoint.
func (m *Mapper) Compensate(slideRef int64) (pan, tilt int64) {
	u := m.slide.Normalize(slideRef)
	return m.pan.Load().At(u), m.tilt.Load().At(u)
}
