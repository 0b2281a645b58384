package refine

import (
	"fmt"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Jacobian holds the derivatives of the predicted detector coordinates and
// rotation angle of every reflection with respect to every free parameter.
// DXDP[p][i] is dX/dp of table row i for global parameter p; likewise DYDP
// and DPhiDP.
type Jacobian struct {
	DXDP   [][]float64
	DYDP   [][]float64
	DPhiDP [][]float64
}

func newJacobian(nparam, nref int) *Jacobian {
	j := &Jacobian{
		DXDP:   make([][]float64, nparam),
		DYDP:   make([][]float64, nparam),
		DPhiDP: make([][]float64, nparam),
	}
	for p := 0; p < nparam; p++ {
		j.DXDP[p] = make([]float64, nref)
		j.DYDP[p] = make([]float64, nref)
		j.DPhiDP[p] = make([]float64, nref)
	}
	return j
}

// NumParams returns the number of parameter columns.
func (j *Jacobian) NumParams() int {
	return len(j.DXDP)
}

// NumReflections returns the number of reflections per column.
func (j *Jacobian) NumReflections() int {
	if len(j.DXDP) == 0 {
		return 0
	}
	return len(j.DXDP[0])
}

// Dense returns the Jacobian as a (3·nref)×nparam matrix whose first nref
// rows are dX/dp, then dY/dp, then dphi/dp. It returns nil when the Jacobian
// has no parameters or no reflections.
func (j *Jacobian) Dense() *mat.Dense {
	nparam, nref := j.NumParams(), j.NumReflections()
	if nparam == 0 || nref == 0 {
		return nil
	}
	m := mat.NewDense(3*nref, nparam, nil)
	for p := 0; p < nparam; p++ {
		for i := 0; i < nref; i++ {
			m.Set(i, p, j.DXDP[p][i])
			m.Set(nref+i, p, j.DYDP[p][i])
			m.Set(2*nref+i, p, j.DPhiDP[p][i])
		}
	}
	return m
}

// Jacobian composes the crystal models for table and returns the gradients.
func (pp *PredictionParameterisation) Jacobian(table *ReflectionTable) (*Jacobian, error) {
	cache, err := pp.Compose(table)
	if err != nil {
		return nil, err
	}
	return pp.Gradients(table, cache)
}

// Gradients computes dX/dp, dY/dp and dphi/dp for every reflection of table
// and every free parameter. cache must come from Compose on the same table
// with the current parameter values; otherwise Gradients returns
// ErrStaleCache.
//
// For each experiment the parameterisations of every category are visited in
// global order; only those bound to the experiment write their columns, for
// that experiment's rows. Columns of other models stay zero for those rows.
func (pp *PredictionParameterisation) Gradients(table *ReflectionTable, cache *CrystalCache) (*Jacobian, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if len(table.UB) != table.Len() {
		return nil, fmt.Errorf("%w: %s not composed", ErrInvalidColumn, ColumnUBMatrix)
	}
	for _, id := range table.ExperimentIDs() {
		if _, err := pp.binding(id); err != nil {
			return nil, err
		}
	}
	if err := pp.checkCache(table, cache); err != nil {
		return nil, err
	}

	g, err := pp.geometry(table)
	if err != nil {
		return nil, err
	}

	jac := newJacobian(pp.NumFree(), table.Len())
	for iexp := range pp.experiments {
		sel := table.Select(iexp)
		if len(sel) == 0 {
			continue
		}
		a := expAssembly{
			pp:    pp,
			g:     g,
			cache: cache,
			jac:   jac,
			table: table,
			sel:   sel,
			ps:    pp.expMap[iexp],
		}
		cursor := a.detector(0)
		cursor = a.beam(cursor)
		cursor = a.orientation(cursor)
		a.unitCell(cursor)
	}
	return jac, nil
}

func (pp *PredictionParameterisation) checkCache(table *ReflectionTable, cache *CrystalCache) error {
	if cache == nil {
		return fmt.Errorf("%w: nil cache", ErrStaleCache)
	}
	if cache.nref != table.Len() {
		return fmt.Errorf("%w: composed for %d reflections, table has %d",
			ErrStaleCache, cache.nref, table.Len())
	}
	if len(cache.DUDP) != pp.NumFreeIn(CrystalOrientation) || len(cache.DBDP) != pp.NumFreeIn(CrystalUnitCell) {
		return fmt.Errorf("%w: cache has %d+%d crystal columns, models have %d+%d",
			ErrStaleCache, len(cache.DUDP), len(cache.DBDP),
			pp.NumFreeIn(CrystalOrientation), pp.NumFreeIn(CrystalUnitCell))
	}
	if !cache.current(pp) {
		return fmt.Errorf("%w: crystal parameters changed since Compose", ErrStaleCache)
	}
	return nil
}

// expAssembly writes the gradient contributions of one experiment. Each
// category pass takes the global parameter cursor and returns it advanced by
// the free parameters of every model in the category.
type expAssembly struct {
	pp    *PredictionParameterisation
	g     *rayGeometry
	cache *CrystalCache
	jac   *Jacobian
	table *ReflectionTable
	sel   []int
	ps    ParamSet
}

func (a expAssembly) detector(cursor int) int {
	for k, det := range a.pp.detectors {
		n := det.NumFree()
		if k == a.ps.Detector && n > 0 {
			derivs := make([][]Mat3, det.NumPanels())
			for p := range derivs {
				derivs[p] = det.PanelDerivatives(p)
			}
			for _, i := range a.sel {
				dd := derivs[a.table.Panel[i]]
				for j := 0; j < n; j++ {
					// dD/dp = -D·(dd/dp)·D, so d(pv)/dp = -D·(dd/dp)·pv.
					dpv := a.g.d[i].Mul(dd[j]).MulVec(a.g.pv[i]).Mul(-1)
					a.set(cursor+j, i, dpv, 0)
				}
			}
		}
		cursor += n
	}
	return cursor
}

func (a expAssembly) beam(cursor int) int {
	for k, bm := range a.pp.beams {
		n := bm.NumFree()
		if k == a.ps.Beam && n > 0 {
			ds0 := bm.DS0DP()
			for _, i := range a.sel {
				for j := 0; j < n; j++ {
					dphi := -a.g.r[i].Dot(ds0[j]) / a.g.denom[i]
					dpv := a.g.d[i].MulVec(ds0[j].Add(a.g.eXr[i].Mul(dphi)))
					a.set(cursor+j, i, dpv, dphi)
				}
			}
		}
		cursor += n
	}
	return cursor
}

func (a expAssembly) orientation(cursor int) int {
	local := 0
	for k, xlo := range a.pp.orientations {
		n := xlo.NumFree()
		if k == a.ps.Orientation {
			for j := 0; j < n; j++ {
				dU := a.cache.DUDP[local+j]
				a.crystal(cursor+j, func(i int) r3.Vector {
					return dU[i].Mul(a.table.B[i]).MulVec(a.g.h[i])
				})
			}
		}
		cursor += n
		local += n
	}
	return cursor
}

func (a expAssembly) unitCell(cursor int) int {
	local := 0
	for k, xluc := range a.pp.unitCells {
		n := xluc.NumFree()
		if k == a.ps.UnitCell {
			for j := 0; j < n; j++ {
				dB := a.cache.DBDP[local+j]
				a.crystal(cursor+j, func(i int) r3.Vector {
					return a.table.U[i].Mul(dB[i]).MulVec(a.g.h[i])
				})
			}
		}
		cursor += n
		local += n
	}
	return cursor
}

// crystal writes column slot from the unrotated derivative of r returned by
// dr0 for each row.
func (a expAssembly) crystal(slot int, dr0 func(i int) r3.Vector) {
	for _, i := range a.sel {
		dr := RotateAround(dr0(i), a.g.axis[i], a.g.phi[i])
		dphi := -dr.Dot(a.g.s1[i]) / a.g.denom[i]
		dpv := a.g.d[i].MulVec(dr.Add(a.g.eXr[i].Mul(dphi)))
		a.set(slot, i, dpv, dphi)
	}
}

// set converts d(pv)/dp into dX/dp and dY/dp for row i and stores them with
// dphi/dp in column slot.
func (a expAssembly) set(slot, i int, dpv r3.Vector, dphi float64) {
	a.jac.DXDP[slot][i] = a.g.wInv[i] * (dpv.X - a.g.uwInv[i]*dpv.Z)
	a.jac.DYDP[slot][i] = a.g.wInv[i] * (dpv.Y - a.g.vwInv[i]*dpv.Z)
	a.jac.DPhiDP[slot][i] = dphi
}
