package refine

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r3"
)

// Sentinel errors for the refine package.
// Use errors.Is to check: errors.Is(err, refine.ErrMissingBinding)
var (
	ErrDegenerateGeometry = errors.New("refine: degenerate diffraction geometry")
	ErrMissingBinding     = errors.New("refine: experiment has no parameterisation binding")
	ErrInvalidColumn      = errors.New("refine: required reflection column missing")
	ErrInvalidBinding     = errors.New("refine: binding refers to unknown parameterisation")
	ErrParameterCount     = errors.New("refine: wrong number of parameter values")
	ErrStaleCache         = errors.New("refine: crystal cache does not match reflection table")
	ErrSingularPanel      = errors.New("refine: panel frame is singular")
	ErrNoPrediction       = errors.New("refine: reflection cannot reach diffracting condition")
	ErrNoIntersection     = errors.New("refine: diffracted ray does not intersect panel")
	ErrInvalidConfig      = errors.New("refine: invalid configuration")
	ErrUnknownParameter   = errors.New("refine: no free parameter with that label")
	ErrInvalidConstraint  = errors.New("refine: invalid parameter constraint")
)

// DegenerateGeometryError reports reflections whose rotation-formula
// denominator (e×r)·s0 is too small for the phi derivatives to exist.
// The fields describe the reflection with the smallest denominator.
type DegenerateGeometryError struct {
	Count       int // reflections at or below DegeneracyThreshold
	Total       int
	Index       int // row in the reflection table
	Miller      Miller
	S1          r3.Vector
	R           r3.Vector
	Axis        r3.Vector
	S0          r3.Vector
	Denominator float64
	// EquatorAngle is the angle (radians) between s1 and the normal of the
	// plane containing s0 and the rotation axis.
	EquatorAngle float64
}

func (e *DegenerateGeometryError) Error() string {
	return fmt.Sprintf("%v: (e X r).s0 too small for %d of %d reflections, such as %v at row %d "+
		"(s1=%v, r=%v, e=%v, s0=%v, (e X r).s0=%g, angle to equatorial normal=%g rad)",
		ErrDegenerateGeometry, e.Count, e.Total, e.Miller, e.Index,
		e.S1, e.R, e.Axis, e.S0, e.Denominator, e.EquatorAngle)
}

// Unwrap lets errors.Is match ErrDegenerateGeometry.
func (e *DegenerateGeometryError) Unwrap() error {
	return ErrDegenerateGeometry
}
