package refine

import "fmt"

// DefaultDelta is the central-difference step used by NumericalJacobian when
// none is given.
const DefaultDelta = 1e-7

// NumericalJacobian estimates the Jacobian of table by central differences:
// every slot of the global parameter vector is shifted by ±delta, the crystal
// models are recomposed and the reflections predicted again on a copy of the
// table. table must hold predictions for the current parameters. The
// original parameters are restored before returning, also on error.
func NumericalJacobian(pp *PredictionParameterisation, table *ReflectionTable, delta float64) (jac *Jacobian, err error) {
	if delta == 0 {
		delta = DefaultDelta
	}
	p0 := pp.Parameters()
	defer func() {
		if rerr := pp.SetParameters(p0); rerr != nil && err == nil {
			jac, err = nil, fmt.Errorf("restore parameters: %w", rerr)
		}
	}()

	jac = newJacobian(len(p0), table.Len())
	p := append([]float64(nil), p0...)
	for k := range p0 {
		p[k] = p0[k] + delta
		plus, err := pp.predictAt(p, table)
		if err != nil {
			return nil, fmt.Errorf("parameter %d +δ: %w", k, err)
		}
		p[k] = p0[k] - delta
		minus, err := pp.predictAt(p, table)
		if err != nil {
			return nil, fmt.Errorf("parameter %d -δ: %w", k, err)
		}
		p[k] = p0[k]

		for i := range jac.DXDP[k] {
			jac.DXDP[k][i] = (plus.XYZCal[i].X - minus.XYZCal[i].X) / (2 * delta)
			jac.DYDP[k][i] = (plus.XYZCal[i].Y - minus.XYZCal[i].Y) / (2 * delta)
			jac.DPhiDP[k][i] = (plus.XYZCal[i].Z - minus.XYZCal[i].Z) / (2 * delta)
		}
	}
	return jac, nil
}

// predictAt sets the global vector to p and returns a predicted copy of table.
func (pp *PredictionParameterisation) predictAt(p []float64, table *ReflectionTable) (*ReflectionTable, error) {
	if err := pp.SetParameters(p); err != nil {
		return nil, err
	}
	t := table.Clone()
	if _, err := pp.Compose(t); err != nil {
		return nil, err
	}
	if err := pp.Predict(t); err != nil {
		return nil, err
	}
	return t, nil
}
