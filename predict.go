package refine

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// RotationAngles returns the two rotation angles (radians) at which the
// reciprocal lattice vector r0, given at angle zero, lies on the Ewald sphere
// of beam s0 when rotated about axis. ok is false when r0 never diffracts:
// it is longer than the sphere diameter, lies along the axis, or its circle
// of rotation misses the sphere.
func RotationAngles(s0, axis, r0 r3.Vector) (phi [2]float64, ok bool) {
	m2 := axis.Normalize()
	m1 := m2.Cross(s0).Normalize()
	m3 := m1.Cross(m2)

	s0m2 := s0.Dot(m2)
	s0m3 := s0.Dot(m3)
	if s0m3 == 0 {
		return phi, false
	}

	lenSq := r0.Norm2()
	if lenSq > 4*s0.Norm2() {
		return phi, false
	}

	a1, a2, a3 := r0.Dot(m1), r0.Dot(m2), r0.Dot(m3)
	rhoSq := lenSq - a2*a2
	if rhoSq <= 0 {
		return phi, false
	}

	// Components of the diffracting vector: along m2 unchanged, along m3 set
	// by |s0 + r| = |s0|, along m1 by the length of the rotation circle.
	b3 := (-lenSq/2 - a2*s0m2) / s0m3
	b1Sq := rhoSq - b3*b3
	if b1Sq < 0 {
		return phi, false
	}
	b1 := math.Sqrt(b1Sq)

	for k, b := range [2]float64{-b1, b1} {
		cosPhi := (a1*b + a3*b3) / rhoSq
		sinPhi := (a3*b - a1*b3) / rhoSq
		phi[k] = math.Atan2(sinPhi, cosPhi)
	}
	return phi, true
}

// projectRay intersects s1 with the panel whose inverse frame is d and
// returns the (X, Y) panel coordinates in mm.
func projectRay(d Mat3, s1 r3.Vector) (x, y float64, err error) {
	pv := d.MulVec(s1)
	if pv.Z <= 0 {
		return 0, 0, ErrNoIntersection
	}
	return pv.X / pv.Z, pv.Y / pv.Z, nil
}

// Predict recomputes the calculated position (XYZCal) and scattering vector
// (S1) of every reflection from the current beam and detector states and
// the table's UB column, which Compose must have filled. Of the two
// diffracting angles it keeps the one nearest the current XYZCal.Z.
//
// Returns ErrNoPrediction if a reflection cannot diffract and
// ErrNoIntersection if its ray misses the plane of its panel.
func (pp *PredictionParameterisation) Predict(table *ReflectionTable) error {
	if err := table.Validate(); err != nil {
		return err
	}
	if len(table.UB) != table.Len() {
		return fmt.Errorf("%w: %s not composed", ErrInvalidColumn, ColumnUBMatrix)
	}
	for _, id := range table.ExperimentIDs() {
		if _, err := pp.binding(id); err != nil {
			return err
		}
	}

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
			return fmt.Errorf("experiment %d: %w", iexp, err)
		}

		for _, i := range sel {
			panel := table.Panel[i]
			if panel < 0 || panel >= len(ds) {
				return fmt.Errorf("%w: row %d names panel %d, detector has %d",
					ErrInvalidColumn, i, panel, len(ds))
			}
			r0 := table.UB[i].MulVec(table.MillerIndex[i].Vec())
			angles, ok := RotationAngles(s0, axis, r0)
			if !ok {
				return fmt.Errorf("%w: row %d, %v", ErrNoPrediction, i, table.MillerIndex[i])
			}
			phi := nearestAngle(angles, table.XYZCal[i].Z)
			s1 := s0.Add(RotateAround(r0, axis, phi))
			x, y, err := projectRay(ds[panel], s1)
			if err != nil {
				return fmt.Errorf("%w: row %d, %v", err, i, table.MillerIndex[i])
			}
			table.S1[i] = s1
			table.XYZCal[i] = r3.Vector{X: x, Y: y, Z: phi}
		}
	}
	return nil
}

// nearestAngle returns the candidate closest to ref, shifted by whole turns
// so that it lies within π of ref.
func nearestAngle(candidates [2]float64, ref float64) float64 {
	best, bestDiff := 0.0, math.Inf(1)
	for _, c := range candidates {
		diff := wrapAngle(c - ref)
		if math.Abs(diff) < bestDiff {
			best, bestDiff = ref+diff, math.Abs(diff)
		}
	}
	return best
}

// PredictSpots generates the reflections of experiment expID for the given
// Miller indices: every diffracting angle inside the scan whose ray lands on
// a panel gives one row. Crystal models are composed at image number of each
// candidate angle, so scan-varying models are honoured to first order.
//
// The rows carry XYZObs = (X, Y, image) and XYZCal = (X, Y, phi), with
// X and Y in mm.
func (pp *PredictionParameterisation) PredictSpots(expID int, hkls []Miller) ([]Reflection, error) {
	ps, err := pp.binding(expID)
	if err != nil {
		return nil, err
	}
	exp := pp.experiments[expID]
	beam := pp.beams[ps.Beam]
	det := pp.detectors[ps.Detector]
	t := float64(exp.Scan.ImageStart)
	beam.Compose(t)
	det.Compose(t)
	s0 := beam.S0()
	axis := exp.Axis.Normalize()
	ds, err := panelInverses(det)
	if err != nil {
		return nil, fmt.Errorf("experiment %d: %w", expID, err)
	}

	mid := 0.5 * (exp.Scan.AngleAt(float64(exp.Scan.ImageStart)) + exp.Scan.AngleAt(float64(exp.Scan.ImageEnd+1)))
	ub0, err := pp.UB(exp.Scan.ImageAt(mid), expID)
	if err != nil {
		return nil, err
	}

	var out []Reflection
	for _, h := range hkls {
		if h == (Miller{}) {
			continue
		}
		angles, ok := RotationAngles(s0, axis, ub0.MulVec(h.Vec()))
		if !ok {
			continue
		}
		for _, a := range angles {
			// Bring the angle into the turn that contains the scan.
			phi := mid + wrapAngle(a-mid)
			if !exp.Scan.Contains(phi) {
				continue
			}
			z := exp.Scan.ImageAt(phi)
			ub, err := pp.UB(z, expID)
			if err != nil {
				return nil, err
			}
			// Re-solve with the state at this image.
			refined, ok := RotationAngles(s0, axis, ub.MulVec(h.Vec()))
			if !ok {
				continue
			}
			phi = nearestAngle(refined, phi)
			if !exp.Scan.Contains(phi) {
				continue
			}
			z = exp.Scan.ImageAt(phi)
			s1 := s0.Add(RotateAround(ub.MulVec(h.Vec()), axis, phi))

			for p, d := range ds {
				x, y, err := projectRay(d, s1)
				if err != nil {
					continue
				}
				fast, slow := det.PanelSize(p)
				if x < 0 || x > fast || y < 0 || y > slow {
					continue
				}
				out = append(out, Reflection{
					ExperimentID: expID,
					MillerIndex:  h,
					XYZObs:       r3.Vector{X: x, Y: y, Z: z},
					XYZCal:       r3.Vector{X: x, Y: y, Z: phi},
					S1:           s1,
					Panel:        p,
				})
				break
			}
		}
	}
	return out, nil
}
