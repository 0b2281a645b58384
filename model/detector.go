package model

import (
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/sky-flux/refine"
)

// Detector parameter names.
const (
	DetectorDist   = "Dist"   // mm along the initial normal
	DetectorShift1 = "Shift1" // mm along the initial fast axis
	DetectorShift2 = "Shift2" // mm along the initial slow axis
	DetectorTau1   = "Tau1"   // mrad about the initial normal
	DetectorTau2   = "Tau2"   // mrad about the initial fast axis
	DetectorTau3   = "Tau3"   // mrad about the initial slow axis
)

// Panel is the initial geometry of one detector panel in the laboratory
// frame. Fast and Slow are normalised by NewDetector.
type Panel struct {
	Origin r3.Vector  `json:"origin"` // mm
	Fast   r3.Vector  `json:"fast"`
	Slow   r3.Vector  `json:"slow"`
	Size   [2]float64 `json:"size"` // extent along fast and slow, mm
}

// Detector is a rigid multi-panel detector. All panels move together: the
// translation is measured along the frame of panel 0 and the rotations turn
// about its axes through its origin. Dist starts at the distance of panel 0's
// origin along its normal.
type Detector struct {
	params

	panels []Panel
	normal r3.Vector
	fast   r3.Vector
	slow   r3.Vector
	centre r3.Vector
	dist0  float64
	states []refine.Mat3
	derivs [][6]refine.Mat3
}

var _ refine.DetectorModel = (*Detector)(nil)

// NewDetector returns a detector model whose initial state is panels.
func NewDetector(panels []Panel) (*Detector, error) {
	if len(panels) == 0 {
		return nil, fmt.Errorf("%w: detector has no panels", ErrInvalidModel)
	}
	ps := make([]Panel, len(panels))
	for i, p := range panels {
		if p.Fast.Norm() == 0 || p.Slow.Norm() == 0 {
			return nil, fmt.Errorf("%w: panel %d has a zero axis", ErrInvalidModel, i)
		}
		p.Fast = p.Fast.Normalize()
		p.Slow = p.Slow.Normalize()
		if p.Fast.Cross(p.Slow).Norm() < 1e-9 {
			return nil, fmt.Errorf("%w: panel %d has parallel axes", ErrInvalidModel, i)
		}
		ps[i] = p
	}

	p0 := ps[0]
	normal := p0.Fast.Cross(p0.Slow).Normalize()
	d := &Detector{
		panels: ps,
		normal: normal,
		fast:   p0.Fast,
		slow:   p0.Slow,
		centre: p0.Origin,
		dist0:  p0.Origin.Dot(normal),
		states: make([]refine.Mat3, len(ps)),
		derivs: make([][6]refine.Mat3, len(ps)),
	}
	d.params = newParams(
		[]string{DetectorDist, DetectorShift1, DetectorShift2, DetectorTau1, DetectorTau2, DetectorTau3},
		[]float64{d.dist0, 0, 0, 0, 0, 0},
	)
	d.Compose(0)
	return d, nil
}

// Compose evaluates every panel's d matrix and its derivatives. t is ignored.
func (d *Detector) Compose(float64) {
	shift := d.normal.Mul(d.value(0) - d.dist0).
		Add(d.fast.Mul(d.value(1))).
		Add(d.slow.Mul(d.value(2)))

	r1 := refine.AxisAngle(d.normal, d.value(3)/1000)
	r2 := refine.AxisAngle(d.fast, d.value(4)/1000)
	r3m := refine.AxisAngle(d.slow, d.value(5)/1000)
	rot := r1.Mul(r2).Mul(r3m)

	// d(R1 R2 R3)/dtau, per mrad.
	dRot := [3]refine.Mat3{
		refine.Skew(d.normal).Mul(rot).Scale(1.0 / 1000),
		r1.Mul(refine.Skew(d.fast)).Mul(r2).Mul(r3m).Scale(1.0 / 1000),
		r1.Mul(r2).Mul(refine.Skew(d.slow)).Mul(r3m).Scale(1.0 / 1000),
	}

	for i, p := range d.panels {
		arm := p.Origin.Sub(d.centre)
		origin := d.centre.Add(rot.MulVec(arm)).Add(shift)
		d.states[i] = refine.NewMat3FromColumns(rot.MulVec(p.Fast), rot.MulVec(p.Slow), origin)

		var zero r3.Vector
		d.derivs[i][0] = refine.NewMat3FromColumns(zero, zero, d.normal)
		d.derivs[i][1] = refine.NewMat3FromColumns(zero, zero, d.fast)
		d.derivs[i][2] = refine.NewMat3FromColumns(zero, zero, d.slow)
		for k, dr := range dRot {
			d.derivs[i][3+k] = refine.NewMat3FromColumns(dr.MulVec(p.Fast), dr.MulVec(p.Slow), dr.MulVec(arm))
		}
	}
}

// NumPanels returns the number of panels.
func (d *Detector) NumPanels() int {
	return len(d.panels)
}

// PanelState returns the d matrix of panel i from the last Compose.
func (d *Detector) PanelState(i int) refine.Mat3 {
	return d.states[i]
}

// PanelDerivatives returns dd/dp of panel i for each free parameter.
func (d *Detector) PanelDerivatives(i int) []refine.Mat3 {
	return freeOnly(&d.params, d.derivs[i][:])
}

// PanelSize returns the extent of panel i along fast and slow in mm.
func (d *Detector) PanelSize(i int) (fast, slow float64) {
	return d.panels[i].Size[0], d.panels[i].Size[1]
}
