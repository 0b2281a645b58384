package model

import (
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/sky-flux/refine"
)

// Beam parameter names.
const (
	BeamMu1 = "Mu1" // mrad, rotation about e1
	BeamMu2 = "Mu2" // mrad, rotation about e2
	BeamNu  = "Nu"  // wavenumber 1/λ
)

// Beam parameterises the incident beam vector as
//
//	s0 = Nu · R(e2, Mu2) · R(e1, Mu1) · ŝ0
//
// where ŝ0 is the initial beam direction, e1 is a unit vector orthogonal to
// it and e2 = ŝ0 × e1. The model is static.
type Beam struct {
	params

	dir    r3.Vector
	e1, e2 r3.Vector
	s0     r3.Vector
	ds0    [3]r3.Vector
}

var _ refine.BeamModel = (*Beam)(nil)

// NewBeam returns a beam model whose initial state is s0.
func NewBeam(s0 r3.Vector) (*Beam, error) {
	nu := s0.Norm()
	if nu == 0 {
		return nil, fmt.Errorf("%w: zero beam vector", ErrInvalidModel)
	}
	dir := s0.Mul(1 / nu)
	e1 := dir.Ortho()
	b := &Beam{
		params: newParams([]string{BeamMu1, BeamMu2, BeamNu}, []float64{0, 0, nu}),
		dir:    dir,
		e1:     e1,
		e2:     dir.Cross(e1),
	}
	b.Compose(0)
	return b, nil
}

// Axes returns the rotation axes e1 and e2 of Mu1 and Mu2.
func (b *Beam) Axes() (e1, e2 r3.Vector) {
	return b.e1, b.e2
}

// Compose evaluates s0 and its derivatives. t is ignored.
func (b *Beam) Compose(float64) {
	mu1 := b.value(0) / 1000
	mu2 := b.value(1) / 1000
	nu := b.value(2)

	r1 := refine.AxisAngle(b.e1, mu1)
	r2 := refine.AxisAngle(b.e2, mu2)
	v1 := r1.MulVec(b.dir)
	v := r2.MulVec(v1)

	b.s0 = v.Mul(nu)
	b.ds0[0] = r2.MulVec(b.e1.Cross(v1)).Mul(nu / 1000)
	b.ds0[1] = b.e2.Cross(v).Mul(nu / 1000)
	b.ds0[2] = v
}

// S0 returns the beam vector of the last Compose.
func (b *Beam) S0() r3.Vector {
	return b.s0
}

// DS0DP returns ds0/dp for each free parameter.
func (b *Beam) DS0DP() []r3.Vector {
	return freeOnly(&b.params, b.ds0[:])
}
