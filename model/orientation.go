package model

import (
	"github.com/golang/geo/r3"

	"github.com/sky-flux/refine"
)

// Orientation parameter names, rotations in mrad about the laboratory axes.
const (
	OrientationPhi1 = "Phi1" // about X
	OrientationPhi2 = "Phi2" // about Y
	OrientationPhi3 = "Phi3" // about Z
)

var labAxes = [3]r3.Vector{{X: 1}, {Y: 1}, {Z: 1}}

// orientationKernel evaluates U = Φ3·Φ2·Φ1·U0.
type orientationKernel struct {
	u0 refine.Mat3
}

func (orientationKernel) names() []string {
	return []string{OrientationPhi1, OrientationPhi2, OrientationPhi3}
}

func (orientationKernel) initial() []float64 {
	return []float64{0, 0, 0}
}

func (orientationKernel) check([]float64) error {
	return nil
}

func (k orientationKernel) eval(v []float64) (refine.Mat3, []refine.Mat3, error) {
	var phi [3]refine.Mat3
	for i, axis := range labAxes {
		phi[i] = refine.AxisAngle(axis, v[i]/1000)
	}
	u := phi[2].Mul(phi[1]).Mul(phi[0]).Mul(k.u0)

	const perMrad = 1.0 / 1000
	d := []refine.Mat3{
		phi[2].Mul(phi[1]).Mul(refine.Skew(labAxes[0])).Mul(phi[0]).Mul(k.u0).Scale(perMrad),
		phi[2].Mul(refine.Skew(labAxes[1])).Mul(phi[1]).Mul(phi[0]).Mul(k.u0).Scale(perMrad),
		refine.Skew(labAxes[2]).Mul(u).Scale(perMrad),
	}
	return u, d, nil
}

// Orientation is a static crystal orientation model.
type Orientation struct {
	crystal
}

var _ refine.CrystalModel = (*Orientation)(nil)

// NewOrientation returns an orientation model whose initial U matrix is u0.
func NewOrientation(u0 refine.Mat3) *Orientation {
	return &Orientation{crystal: newCrystal(orientationKernel{u0: u0})}
}

// ScanVaryingOrientation lets Phi1, Phi2 and Phi3 vary smoothly over a scan.
type ScanVaryingOrientation struct {
	scanVarying
}

var _ refine.CrystalModel = (*ScanVaryingOrientation)(nil)

// NewScanVaryingOrientation returns a scan-varying orientation model whose
// U matrix is u0 at every image until its parameters change.
func NewScanVaryingOrientation(u0 refine.Mat3, g *GaussianSmoother) *ScanVaryingOrientation {
	return &ScanVaryingOrientation{scanVarying: newScanVarying(orientationKernel{u0: u0}, g)}
}
