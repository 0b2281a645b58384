package refine

import (
	"math"
	"slices"
	"sort"
)

// CrystalCache holds the derivatives of the U and B matrices of every
// reflection with respect to every free crystal parameter, as left by the
// Compose call that produced it.
//
// DUDP[j][i] is dU/dp_j for row i, where j runs over the free parameters of
// all orientation models in list order. DBDP likewise for unit-cell models.
// Entries for parameters of models that do not govern a row are zero.
type CrystalCache struct {
	DUDP [][]Mat3
	DBDP [][]Mat3
	nref int
	// crystal parameter values the cache was composed with
	params []float64
}

// NumReflections returns the table length the cache was composed for.
func (c *CrystalCache) NumReflections() int {
	return c.nref
}

func newCrystalCache(nref, numU, numB int) *CrystalCache {
	c := &CrystalCache{
		DUDP: make([][]Mat3, numU),
		DBDP: make([][]Mat3, numB),
		nref: nref,
	}
	for j := range c.DUDP {
		c.DUDP[j] = make([]Mat3, nref)
	}
	for j := range c.DBDP {
		c.DBDP[j] = make([]Mat3, nref)
	}
	return c
}

// Compose evaluates the crystal orientation and unit-cell models bound to
// each experiment at the observed image number of its reflections, writes
// the U, B and UB columns of table, and returns the state derivatives.
//
// With the PerFrame policy the models are evaluated once per integer image
// and the state is shared by every reflection on that image.
//
// Returns ErrInvalidColumn for a malformed table and ErrMissingBinding if
// the table holds an experiment id without a binding.
func (pp *PredictionParameterisation) Compose(table *ReflectionTable) (*CrystalCache, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	for _, id := range table.ExperimentIDs() {
		if _, err := pp.binding(id); err != nil {
			return nil, err
		}
	}
	table.ensureCrystalColumns()

	oriOffsets, numU := crystalOffsets(pp.orientations)
	ucOffsets, numB := crystalOffsets(pp.unitCells)
	cache := newCrystalCache(table.Len(), numU, numB)
	cache.params = pp.crystalParameters()

	for iexp := range pp.experiments {
		sel := table.Select(iexp)
		if len(sel) == 0 {
			continue
		}
		ps := pp.expMap[iexp]
		w := crystalWriter{
			table:    table,
			cache:    cache,
			xlo:      pp.orientations[ps.Orientation],
			xluc:     pp.unitCells[ps.UnitCell],
			oriStart: oriOffsets[ps.Orientation],
			ucStart:  ucOffsets[ps.UnitCell],
		}

		var calls int
		switch pp.policy {
		case PerFrame:
			calls = w.perFrame(sel)
		default:
			calls = w.perReflection(sel)
		}
		pp.logger.Debug("composed crystal models",
			"experiment", iexp,
			"policy", pp.policy.String(),
			"reflections", len(sel),
			"compose_calls", calls)
	}

	for i := range table.UB {
		table.UB[i] = table.U[i].Mul(table.B[i])
	}
	return cache, nil
}

// crystalParameters returns the free parameters of every orientation model
// followed by those of every unit-cell model.
func (pp *PredictionParameterisation) crystalParameters() []float64 {
	var p []float64
	for _, m := range pp.orientations {
		p = append(p, m.Parameters()...)
	}
	for _, m := range pp.unitCells {
		p = append(p, m.Parameters()...)
	}
	return p
}

// current reports whether the crystal parameters still hold the values c
// was composed with.
func (c *CrystalCache) current(pp *PredictionParameterisation) bool {
	return slices.Equal(c.params, pp.crystalParameters())
}

// UB composes the crystal models bound to experiment expID at image number
// image and returns the setting matrix U·B.
func (pp *PredictionParameterisation) UB(image float64, expID int) (Mat3, error) {
	ps, err := pp.binding(expID)
	if err != nil {
		return Mat3{}, err
	}
	xlo := pp.orientations[ps.Orientation]
	xluc := pp.unitCells[ps.UnitCell]
	xlo.Compose(image)
	xluc.Compose(image)
	return xlo.State().Mul(xluc.State()), nil
}

// crystalWriter writes the composed crystal state of one experiment into
// the table and cache.
type crystalWriter struct {
	table    *ReflectionTable
	cache    *CrystalCache
	xlo      CrystalModel
	xluc     CrystalModel
	oriStart int
	ucStart  int
}

// perReflection composes at each row's exact image number.
func (w crystalWriter) perReflection(sel []int) int {
	for _, i := range sel {
		w.compose(w.table.XYZObs[i].Z)
		w.write([]int{i})
	}
	return len(sel)
}

// perFrame composes once per distinct floored image number.
func (w crystalWriter) perFrame(sel []int) int {
	byFrame := make(map[int][]int)
	for _, i := range sel {
		frame := int(math.Floor(w.table.XYZObs[i].Z))
		byFrame[frame] = append(byFrame[frame], i)
	}
	frames := make([]int, 0, len(byFrame))
	for f := range byFrame {
		frames = append(frames, f)
	}
	sort.Ints(frames)

	for _, f := range frames {
		w.compose(float64(f))
		w.write(byFrame[f])
	}
	return len(frames)
}

func (w crystalWriter) compose(t float64) {
	w.xlo.Compose(t)
	w.xluc.Compose(t)
}

func (w crystalWriter) write(rows []int) {
	u, b := w.xlo.State(), w.xluc.State()
	dU, dB := w.xlo.Derivatives(), w.xluc.Derivatives()
	for _, i := range rows {
		w.table.U[i] = u
		w.table.B[i] = b
		for j, d := range dU {
			w.cache.DUDP[w.oriStart+j][i] = d
		}
		for j, d := range dB {
			w.cache.DBDP[w.ucStart+j][i] = d
		}
	}
}
