package refine

import (
	"math"

	"github.com/golang/geo/r3"
)

// Scan maps image numbers to rotation angles for a rotation experiment.
// Image z covers angles [AngleAt(z), AngleAt(z+1)).
type Scan struct {
	ImageStart       int     `json:"image_start"`
	ImageEnd         int     `json:"image_end"`         // inclusive
	OscillationStart float64 `json:"oscillation_start"` // radians, at the start of ImageStart
	OscillationWidth float64 `json:"oscillation_width"` // radians per image
}

// AngleAt returns the rotation angle at (real-valued) image number z.
func (s Scan) AngleAt(z float64) float64 {
	return s.OscillationStart + (z-float64(s.ImageStart))*s.OscillationWidth
}

// ImageAt returns the real-valued image number at rotation angle phi.
func (s Scan) ImageAt(phi float64) float64 {
	return float64(s.ImageStart) + (phi-s.OscillationStart)/s.OscillationWidth
}

// Contains reports whether phi falls within the angular range of the scan.
func (s Scan) Contains(phi float64) bool {
	lo := s.OscillationStart
	hi := s.AngleAt(float64(s.ImageEnd + 1))
	if hi < lo {
		lo, hi = hi, lo
	}
	return phi >= lo && phi < hi
}

// ImageRange returns the first and one-past-last image numbers as reals,
// the span a scan-varying model must cover.
func (s Scan) ImageRange() [2]float64 {
	return [2]float64{float64(s.ImageStart), float64(s.ImageEnd + 1)}
}

// Experiment is one rotation sweep. Its beam, detector and crystal come
// from the parameterisations bound to it in the ExperimentMap.
type Experiment struct {
	Axis r3.Vector `json:"axis"` // rotation axis, normalised on use
	Scan Scan      `json:"scan"`
}

// wrapAngle maps a into (-π, π].
func wrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}
