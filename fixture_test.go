package refine_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/require"

	"github.com/sky-flux/refine"
	"github.com/sky-flux/refine/model"
)

const deg = math.Pi / 180

// fixtureOpts selects the shape of a synthetic refinement problem.
type fixtureOpts struct {
	policy         refine.ComposePolicy
	scanVarying    bool
	twoExperiments bool // second sweep has its own beam and detector
	// distinctCrystals gives the second sweep its own orientation and its own
	// unit cell with Alpha and Beta fixed; otherwise the crystal is shared.
	distinctCrystals bool
	panels           int // panels per detector, 0 means 1
}

// fixture is a self-consistent set of models and predicted reflections.
type fixture struct {
	cfg          refine.Config
	pp           *refine.PredictionParameterisation
	table        *refine.ReflectionTable
	beams        []*model.Beam
	detectors    []*model.Detector
	orientations []refine.CrystalModel
	unitCells    []refine.CrystalModel
}

func testCell() model.Cell {
	return model.Cell{A: 42.3, B: 53.8, C: 61.1, Alpha: 88, Beta: 96.5, Gamma: 92}
}

func testU0() refine.Mat3 {
	return refine.AxisAngle(r3.Vector{X: 0.2, Y: 0.7, Z: -0.4}, 0.9)
}

func testDetector(t testing.TB, tilt float64) *model.Detector {
	t.Helper()
	return testPanelledDetector(t, tilt, 1)
}

// testPanelledDetector splits a 240 mm square detector along the slow axis
// into n coplanar panels separated by 10 mm gaps.
func testPanelledDetector(t testing.TB, tilt float64, n int) *model.Detector {
	t.Helper()
	fast := refine.RotateAround(r3.Vector{X: 1}, r3.Vector{Y: 1}, tilt)
	slow := r3.Vector{Y: -1}
	normal := fast.Cross(slow)
	origin := normal.Mul(190).Sub(fast.Mul(120)).Sub(slow.Mul(120))

	const gap = 10.0
	height := (240 - gap*float64(n-1)) / float64(n)
	panels := make([]model.Panel, n)
	for i := range panels {
		panels[i] = model.Panel{
			Origin: origin.Add(slow.Mul(float64(i) * (height + gap))),
			Fast:   fast,
			Slow:   slow,
			Size:   [2]float64{240, height},
		}
	}
	det, err := model.NewDetector(panels)
	require.NoError(t, err)
	return det
}

func testBeam(t testing.TB, wavelength float64) *model.Beam {
	t.Helper()
	b, err := model.NewBeam(r3.Vector{X: 0.002, Z: -1}.Normalize().Mul(1 / wavelength))
	require.NoError(t, err)
	return b
}

func testExperiments(two bool) []refine.Experiment {
	exps := []refine.Experiment{{
		Axis: r3.Vector{X: 1},
		Scan: refine.Scan{ImageStart: 1, ImageEnd: 60, OscillationStart: 0, OscillationWidth: 0.5 * deg},
	}}
	if two {
		exps = append(exps, refine.Experiment{
			Axis: r3.Vector{X: 0.9, Y: 0.1}.Normalize(),
			Scan: refine.Scan{ImageStart: 1, ImageEnd: 40, OscillationStart: 40 * deg, OscillationWidth: 0.75 * deg},
		})
	}
	return exps
}

func newFixture(t testing.TB, opts fixtureOpts) *fixture {
	t.Helper()
	exps := testExperiments(opts.twoExperiments)
	panels := max(opts.panels, 1)
	f := &fixture{
		beams:     []*model.Beam{testBeam(t, 0.98)},
		detectors: []*model.Detector{testPanelledDetector(t, 0, panels)},
	}
	expMap := refine.ExperimentMap{{}}
	if opts.twoExperiments {
		f.beams = append(f.beams, testBeam(t, 1.05))
		f.detectors = append(f.detectors, testPanelledDetector(t, 8*deg, panels))
		expMap = append(expMap, refine.ParamSet{Beam: 1, Detector: 1})
	}

	xlo, xluc := testCrystal(t, testU0(), testCell(), exps[0].Scan, opts.scanVarying)
	f.orientations = []refine.CrystalModel{xlo}
	f.unitCells = []refine.CrystalModel{xluc}
	if opts.twoExperiments && opts.distinctCrystals {
		cell := testCell()
		cell.A += 1.7
		cell.Gamma -= 1.5
		xlo2, _ := testCrystal(t, refine.AxisAngle(r3.Vector{X: -0.3, Y: 0.5, Z: 0.6}, 1.4), cell, exps[1].Scan, opts.scanVarying)
		xluc2, err := model.NewUnitCell(cell)
		require.NoError(t, err)
		require.NoError(t, xluc2.Fix(model.CellAlpha, model.CellBeta))
		f.orientations = append(f.orientations, xlo2)
		f.unitCells = append(f.unitCells, xluc2)
		expMap[1].Orientation = 1
		expMap[1].UnitCell = 1
	}

	cfg := refine.Config{
		Experiments:   exps,
		ExperimentMap: expMap,
		Orientations:  f.orientations,
		UnitCells:     f.unitCells,
		Policy:        opts.policy,
	}
	for _, b := range f.beams {
		cfg.Beams = append(cfg.Beams, b)
	}
	for _, d := range f.detectors {
		cfg.Detectors = append(cfg.Detectors, d)
	}
	pp, err := refine.NewPredictionParameterisation(cfg)
	require.NoError(t, err)
	f.cfg = cfg
	f.pp = pp

	f.table = predictTable(t, pp, f.beamVectors())
	return f
}

// testCrystal returns static orientation and unit-cell models, or
// scan-varying ones over scan with a drift applied to every sample.
func testCrystal(t testing.TB, u0 refine.Mat3, cell model.Cell, scan refine.Scan, scanVarying bool) (xlo, xluc refine.CrystalModel) {
	t.Helper()
	if !scanVarying {
		uc, err := model.NewUnitCell(cell)
		require.NoError(t, err)
		return model.NewOrientation(u0), uc
	}

	g, err := model.NewGaussianSmoother(scan.ImageRange(), 4)
	require.NoError(t, err)
	o := model.NewScanVaryingOrientation(u0, g)
	uc, err := model.NewScanVaryingUnitCell(cell, g)
	require.NoError(t, err)

	p := o.Parameters()
	for i := range p {
		p[i] = 0.8 * math.Sin(float64(i))
	}
	require.NoError(t, o.SetParameters(p))
	p = uc.Parameters()
	for i := range p {
		p[i] += 0.05 * math.Cos(float64(i))
	}
	require.NoError(t, uc.SetParameters(p))
	return o, uc
}

// slotExperiments returns, for each slot of the global vector, the
// experiments bound to the model that owns it.
func (f *fixture) slotExperiments() [][]int {
	var out [][]int
	for _, c := range refine.Categories {
		var ms []refine.Model
		switch c {
		case refine.Detector:
			for _, m := range f.cfg.Detectors {
				ms = append(ms, m)
			}
		case refine.Beam:
			for _, m := range f.cfg.Beams {
				ms = append(ms, m)
			}
		case refine.CrystalOrientation:
			for _, m := range f.cfg.Orientations {
				ms = append(ms, m)
			}
		case refine.CrystalUnitCell:
			for _, m := range f.cfg.UnitCells {
				ms = append(ms, m)
			}
		}
		for i, m := range ms {
			users := f.cfg.ExperimentMap.UsedBy(c, i)
			for j := 0; j < m.NumFree(); j++ {
				out = append(out, users)
			}
		}
	}
	return out
}

// beamVectors returns s0 for each experiment.
func (f *fixture) beamVectors() []r3.Vector {
	s0 := make([]r3.Vector, len(f.beams))
	for i, b := range f.beams {
		b.Compose(0)
		s0[i] = b.S0()
	}
	return s0
}

// predictTable generates the reflections of every experiment, drops those
// near an image boundary or the blind region around the rotation axis and
// predicts them under the parameterisation's compose policy. s0 holds the
// beam of each experiment.
func predictTable(t testing.TB, pp *refine.PredictionParameterisation, s0 []r3.Vector) *refine.ReflectionTable {
	t.Helper()
	var hkls []refine.Miller
	for h := -5; h <= 5; h++ {
		for k := -5; k <= 5; k++ {
			for l := -5; l <= 5; l++ {
				hkls = append(hkls, refine.Miller{h, k, l})
			}
		}
	}

	var rows []refine.Reflection
	for iexp, exp := range pp.Experiments() {
		spots, err := pp.PredictSpots(iexp, hkls)
		require.NoError(t, err)
		for _, s := range spots {
			frac := s.XYZObs.Z - math.Floor(s.XYZObs.Z)
			if frac < 0.05 || frac > 0.95 {
				continue
			}
			r := s.S1.Sub(s0[iexp])
			if math.Abs(exp.Axis.Normalize().Cross(r).Dot(s0[iexp])) < 0.01 {
				continue
			}
			rows = append(rows, s)
		}
	}
	require.NotEmpty(t, rows)

	table := refine.NewReflectionTable(rows)
	_, err := pp.Compose(table)
	require.NoError(t, err)
	require.NoError(t, pp.Predict(table))
	return table
}

// withPolicy returns a parameterisation over the fixture's models with a
// different compose policy.
func (f *fixture) withPolicy(t testing.TB, policy refine.ComposePolicy) *refine.PredictionParameterisation {
	t.Helper()
	cfg := f.cfg
	cfg.Policy = policy
	pp, err := refine.NewPredictionParameterisation(cfg)
	require.NoError(t, err)
	return pp
}

// debugLogger returns a JSON logger writing every level to buf.
func debugLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// logRecords decodes the JSON log lines in buf.
func logRecords(t testing.TB, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var recs []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal(line, &rec))
		recs = append(recs, rec)
	}
	return recs
}

// assertJacobiansClose compares analytic and numerical derivatives with a
// relative tolerance that falls back to absolute for small values.
func assertJacobiansClose(t *testing.T, names []string, analytic, numerical *refine.Jacobian, tol float64) {
	t.Helper()
	require.Equal(t, numerical.NumParams(), analytic.NumParams())
	require.Equal(t, numerical.NumReflections(), analytic.NumReflections())
	cols := []struct {
		name     string
		ana, num [][]float64
	}{
		{"dX", analytic.DXDP, numerical.DXDP},
		{"dY", analytic.DYDP, numerical.DYDP},
		{"dphi", analytic.DPhiDP, numerical.DPhiDP},
	}
	for _, c := range cols {
		for p := range c.ana {
			bad := 0
			for i := range c.ana[p] {
				want := c.num[p][i]
				if math.Abs(c.ana[p][i]-want) > tol*math.Max(1, math.Abs(want)) {
					if bad == 0 {
						t.Errorf("%s/d%s row %d: analytic %g, numerical %g", c.name, names[p], i, c.ana[p][i], want)
					}
					bad++
				}
			}
			if bad > 1 {
				t.Errorf("%s/d%s: %d rows differ", c.name, names[p], bad)
			}
		}
	}
}
