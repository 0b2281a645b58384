package model

import (
	"fmt"
	"math"

	"github.com/sky-flux/refine"
)

// Unit cell parameter names.
const (
	CellA     = "A"     // Å
	CellB     = "B"     // Å
	CellC     = "C"     // Å
	CellAlpha = "Alpha" // degrees
	CellBeta  = "Beta"  // degrees
	CellGamma = "Gamma" // degrees
)

// Cell is a real-space unit cell.
type Cell struct {
	A     float64 `json:"a"`
	B     float64 `json:"b"`
	C     float64 `json:"c"`
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`
}

func cellFrom(v []float64) Cell {
	return Cell{A: v[0], B: v[1], C: v[2], Alpha: v[3], Beta: v[4], Gamma: v[5]}
}

func (c Cell) values() []float64 {
	return []float64{c.A, c.B, c.C, c.Alpha, c.Beta, c.Gamma}
}

// Validate reports cells with non-positive edges or angles that do not close.
func (c Cell) Validate() error {
	if c.A <= 0 || c.B <= 0 || c.C <= 0 {
		return fmt.Errorf("%w: edges %g, %g, %g", ErrInvalidCell, c.A, c.B, c.C)
	}
	for _, ang := range []float64{c.Alpha, c.Beta, c.Gamma} {
		if ang <= 0 || ang >= 180 {
			return fmt.Errorf("%w: angle %g", ErrInvalidCell, ang)
		}
	}
	if _, _, _, q := c.cosines(); !(q > 0) {
		return fmt.Errorf("%w: angles %g, %g, %g do not form a cell",
			ErrInvalidCell, c.Alpha, c.Beta, c.Gamma)
	}
	return nil
}

func (c Cell) cosines() (ca, cb, cg, q float64) {
	ca = math.Cos(c.Alpha * math.Pi / 180)
	cb = math.Cos(c.Beta * math.Pi / 180)
	cg = math.Cos(c.Gamma * math.Pi / 180)
	q = math.Sqrt(1 - ca*ca - cb*cb - cg*cg + 2*ca*cb*cg)
	return ca, cb, cg, q
}

// Orthogonalisation returns O, whose columns are the real-space cell vectors
// a, b and c with a along X and b in the XY plane.
func (c Cell) Orthogonalisation() refine.Mat3 {
	ca, cb, cg, q := c.cosines()
	sg := math.Sin(c.Gamma * math.Pi / 180)
	return refine.Mat3{
		c.A, c.B * cg, c.C * cb,
		0, c.B * sg, c.C * (ca - cb*cg) / sg,
		0, 0, c.C * q / sg,
	}
}

// Reciprocal returns B = (O⁻¹)ᵀ, whose columns are the reciprocal cell
// vectors a*, b* and c*.
func (c Cell) Reciprocal() (refine.Mat3, error) {
	if err := c.Validate(); err != nil {
		return refine.Mat3{}, err
	}
	inv, err := c.Orthogonalisation().Inverse()
	if err != nil {
		return refine.Mat3{}, fmt.Errorf("%w: %v", ErrInvalidCell, err)
	}
	return inv.Transpose(), nil
}

// orthogonalisationDerivatives returns dO/d(a, b, c, alpha, beta, gamma),
// angles per degree.
func (c Cell) orthogonalisationDerivatives() [6]refine.Mat3 {
	ca, cb, cg, q := c.cosines()
	rad := math.Pi / 180
	sa := math.Sin(c.Alpha * rad)
	sb := math.Sin(c.Beta * rad)
	sg := math.Sin(c.Gamma * rad)

	var d [6]refine.Mat3
	d[0] = refine.Mat3{1, 0, 0, 0, 0, 0, 0, 0, 0}
	d[1] = refine.Mat3{0, cg, 0, 0, sg, 0, 0, 0, 0}
	d[2] = refine.Mat3{0, 0, cb, 0, 0, (ca - cb*cg) / sg, 0, 0, q / sg}
	d[3] = refine.Mat3{
		0, 0, 0,
		0, 0, -c.C * sa / sg,
		0, 0, c.C * sa * (ca - cb*cg) / (q * sg),
	}.Scale(rad)
	d[4] = refine.Mat3{
		0, 0, -c.C * sb,
		0, 0, c.C * sb * cg / sg,
		0, 0, c.C * sb * (cb - ca*cg) / (q * sg),
	}.Scale(rad)
	d[5] = refine.Mat3{
		0, -c.B * sg, 0,
		0, c.B * cg, c.C * (cb - ca*cg) / (sg * sg),
		0, 0, c.C * (sg*sg*(cg-ca*cb)/q - q*cg) / (sg * sg),
	}.Scale(rad)
	return d
}

// cellKernel evaluates B and dB = -B·(dO)ᵀ·B.
type cellKernel struct {
	cell Cell
}

func (cellKernel) names() []string {
	return []string{CellA, CellB, CellC, CellAlpha, CellBeta, CellGamma}
}

func (k cellKernel) initial() []float64 {
	return k.cell.values()
}

func (cellKernel) check(v []float64) error {
	return cellFrom(v).Validate()
}

func (cellKernel) eval(v []float64) (refine.Mat3, []refine.Mat3, error) {
	c := cellFrom(v)
	b, err := c.Reciprocal()
	if err != nil {
		return refine.Mat3{}, nil, err
	}
	dO := c.orthogonalisationDerivatives()
	d := make([]refine.Mat3, len(dO))
	for i, m := range dO {
		d[i] = b.Mul(m.Transpose()).Mul(b).Scale(-1)
	}
	return b, d, nil
}

// UnitCell is a static unit cell model. Its state is the B matrix.
type UnitCell struct {
	crystal
}

var _ refine.CrystalModel = (*UnitCell)(nil)

// NewUnitCell returns a unit cell model for cell.
func NewUnitCell(cell Cell) (*UnitCell, error) {
	if err := cell.Validate(); err != nil {
		return nil, err
	}
	return &UnitCell{crystal: newCrystal(cellKernel{cell: cell})}, nil
}

// Cell returns the current cell, fixed parameters included.
func (u *UnitCell) Cell() Cell {
	return cellFrom(u.values)
}

// ScanVaryingUnitCell lets the six cell parameters vary smoothly over a scan.
type ScanVaryingUnitCell struct {
	scanVarying
}

var _ refine.CrystalModel = (*ScanVaryingUnitCell)(nil)

// NewScanVaryingUnitCell returns a scan-varying unit cell model equal to
// cell at every image until its parameters change.
func NewScanVaryingUnitCell(cell Cell, g *GaussianSmoother) (*ScanVaryingUnitCell, error) {
	if err := cell.Validate(); err != nil {
		return nil, err
	}
	return &ScanVaryingUnitCell{scanVarying: newScanVarying(cellKernel{cell: cell}, g)}, nil
}

// CellAt returns the smoothed cell at image number t.
func (u *ScanVaryingUnitCell) CellAt(t float64) Cell {
	return cellFrom(u.Values(t))
}
