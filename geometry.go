package refine

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/floats"
)

// DegeneracyThreshold is the smallest |(e×r)·s0| for which the phi
// derivatives are computed. At or below it the reflection touches the Ewald
// sphere tangentially.
const DegeneracyThreshold = 1e-6

// rayGeometry holds the per-reflection quantities shared by every
// derivative formula. All slices are indexed by table row.
type rayGeometry struct {
	h    []r3.Vector // Miller index as a vector
	r    []r3.Vector // reciprocal lattice vector at phi_calc, lab frame
	eXr  []r3.Vector // axis × r
	s0   []r3.Vector
	axis []r3.Vector
	s1   []r3.Vector
	pv   []r3.Vector // D·s1
	d    []Mat3      // panel D matrix, the inverse of the panel d matrix

	denom []float64 // (e×r)·s0
	wInv  []float64 // 1/pv.z
	uwInv []float64 // pv.x/pv.z
	vwInv []float64 // pv.y/pv.z
	phi   []float64
}

func newRayGeometry(n int) *rayGeometry {
	return &rayGeometry{
		h:     make([]r3.Vector, n),
		r:     make([]r3.Vector, n),
		eXr:   make([]r3.Vector, n),
		s0:    make([]r3.Vector, n),
		axis:  make([]r3.Vector, n),
		s1:    make([]r3.Vector, n),
		pv:    make([]r3.Vector, n),
		d:     make([]Mat3, n),
		denom: make([]float64, n),
		wInv:  make([]float64, n),
		uwInv: make([]float64, n),
		vwInv: make([]float64, n),
		phi:   make([]float64, n),
	}
}

// panelInverses returns the D matrix of every panel of det.
func panelInverses(det DetectorModel) ([]Mat3, error) {
	ds := make([]Mat3, det.NumPanels())
	for p := range ds {
		inv, err := det.PanelState(p).Inverse()
		if err != nil {
			return nil, fmt.Errorf("%w: panel %d: %v", ErrSingularPanel, p, err)
		}
		ds[p] = inv
	}
	return ds, nil
}

// geometry computes the ray quantities of every reflection in table from
// the current beam and detector states and the table's UB column.
// Returns *DegenerateGeometryError if any |(e×r)·s0| <= DegeneracyThreshold.
func (pp *PredictionParameterisation) geometry(table *ReflectionTable) (*rayGeometry, error) {
	g := newRayGeometry(table.Len())

	for iexp, exp := range pp.experiments {
		sel := table.Select(iexp)
		if len(sel) == 0 {
			continue
		}
		ps := pp.expMap[iexp]
		beam := pp.beams[ps.Beam]
		det := pp.detectors[ps.Detector]
		t := float64(exp.Scan.ImageStart)
		beam.Compose(t)
		det.Compose(t)

		s0 := beam.S0()
		axis := exp.Axis.Normalize()
		ds, err := panelInverses(det)
		if err != nil {
			return nil, fmt.Errorf("experiment %d: %w", iexp, err)
		}

		for _, i := range sel {
			panel := table.Panel[i]
			if panel < 0 || panel >= len(ds) {
				return nil, fmt.Errorf("%w: row %d names panel %d, detector has %d",
					ErrInvalidColumn, i, panel, len(ds))
			}
			phi := table.XYZCal[i].Z
			h := table.MillerIndex[i].Vec()
			r := RotateAround(table.UB[i].MulVec(h), axis, phi)
			eXr := axis.Cross(r)
			pv := ds[panel].MulVec(table.S1[i])

			g.h[i] = h
			g.r[i] = r
			g.eXr[i] = eXr
			g.s0[i] = s0
			g.axis[i] = axis
			g.s1[i] = table.S1[i]
			g.pv[i] = pv
			g.d[i] = ds[panel]
			g.phi[i] = phi
			g.denom[i] = eXr.Dot(s0)
			g.wInv[i] = 1 / pv.Z
			g.uwInv[i] = pv.X * g.wInv[i]
			g.vwInv[i] = pv.Y * g.wInv[i]
		}
	}

	if err := g.checkDegenerate(table); err != nil {
		pp.logger.Error("degenerate reflection geometry",
			"count", err.Count,
			"total", err.Total,
			"row", err.Index,
			"miller_index", err.Miller.String(),
			"denominator", err.Denominator)
		return nil, err
	}
	return g, nil
}

// checkDegenerate reports the reflections whose (e×r)·s0 magnitude is at or
// below DegeneracyThreshold, describing the smallest.
func (g *rayGeometry) checkDegenerate(table *ReflectionTable) *DegenerateGeometryError {
	if len(g.denom) == 0 {
		return nil
	}
	mag := make([]float64, len(g.denom))
	for i, d := range g.denom {
		mag[i] = math.Abs(d)
	}
	imin := floats.MinIdx(mag)
	if mag[imin] > DegeneracyThreshold {
		return nil
	}

	count := 0
	for _, m := range mag {
		if m <= DegeneracyThreshold {
			count++
		}
	}
	normal := g.s0[imin].Cross(g.axis[imin]).Normalize()
	angle := float64(g.s1[imin].Angle(normal))
	if angle > math.Pi/2 {
		angle = math.Pi - angle
	}
	return &DegenerateGeometryError{
		Count:        count,
		Total:        len(mag),
		Index:        imin,
		Miller:       table.MillerIndex[imin],
		S1:           g.s1[imin],
		R:            g.r[imin],
		Axis:         g.axis[imin],
		S0:           g.s0[imin],
		Denominator:  g.denom[imin],
		EquatorAngle: angle,
	}
}
