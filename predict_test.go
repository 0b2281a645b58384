package refine_test

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sky-flux/refine"
)

// --- RotationAngles ---

func TestRotationAnglesOnEwaldSphere(t *testing.T) {
	s0 := r3.Vector{X: 0.002, Z: -1.02}
	axis := r3.Vector{X: 1, Y: 0.05}
	tests := []r3.Vector{
		{X: 0.05, Y: 0.1, Z: 0.02},
		{X: -0.2, Y: 0.01, Z: -0.3},
		{Y: 0.4},
	}
	for _, r0 := range tests {
		phi, ok := refine.RotationAngles(s0, axis, r0)
		require.True(t, ok, "r0=%v", r0)
		assert.NotEqual(t, phi[0], phi[1])
		for _, p := range phi {
			s1 := s0.Add(refine.RotateAround(r0, axis, p))
			assert.InDelta(t, s0.Norm(), s1.Norm(), 1e-12, "r0=%v phi=%g", r0, p)
		}
	}
}

func TestRotationAnglesNoSolution(t *testing.T) {
	s0 := r3.Vector{Z: -1}
	axis := r3.Vector{X: 1}
	tests := []struct {
		name string
		r0   r3.Vector
	}{
		{"beyond sphere diameter", r3.Vector{Y: 2.5}},
		{"along axis", r3.Vector{X: 0.3}},
		{"circle misses sphere", r3.Vector{X: 1.3, Y: 0.05}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := refine.RotationAngles(s0, axis, tt.r0)
			assert.False(t, ok)
		})
	}
}

// --- PredictSpots ---

func TestPredictSpotsInsideScanAndPanel(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	exp := f.pp.Experiments()[0]
	fast, slow := f.detectors[0].PanelSize(0)

	for i := 0; i < f.table.Len(); i++ {
		row := f.table.Row(i)
		assert.True(t, exp.Scan.Contains(row.XYZCal.Z), "row %d phi %g", i, row.XYZCal.Z)
		assert.InDelta(t, exp.Scan.ImageAt(row.XYZCal.Z), row.XYZObs.Z, 1e-9, "row %d", i)
		assert.GreaterOrEqual(t, row.XYZCal.X, 0.0)
		assert.LessOrEqual(t, row.XYZCal.X, fast)
		assert.GreaterOrEqual(t, row.XYZCal.Y, 0.0)
		assert.LessOrEqual(t, row.XYZCal.Y, slow)
	}
}

func TestPredictSpotsMultiPanel(t *testing.T) {
	f := newFixture(t, fixtureOpts{panels: 2})
	det := f.detectors[0]
	require.Equal(t, 2, det.NumPanels())

	perPanel := make([]int, det.NumPanels())
	for i := 0; i < f.table.Len(); i++ {
		row := f.table.Row(i)
		perPanel[row.Panel]++
		fast, slow := det.PanelSize(row.Panel)
		assert.LessOrEqual(t, row.XYZCal.X, fast, "row %d", i)
		assert.LessOrEqual(t, row.XYZCal.Y, slow, "row %d", i)
		assert.InDelta(t, row.XYZObs.X, row.XYZCal.X, 1e-9, "row %d", i)
	}
	assert.Positive(t, perPanel[0])
	assert.Positive(t, perPanel[1])
}

func TestPredictSpotsSkipsOrigin(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	spots, err := f.pp.PredictSpots(0, []refine.Miller{{0, 0, 0}})
	require.NoError(t, err)
	assert.Empty(t, spots)
}

func TestPredictSpotsMissingBinding(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	_, err := f.pp.PredictSpots(4, []refine.Miller{{1, 2, 3}})
	assert.ErrorIs(t, err, refine.ErrMissingBinding)
}

// --- Predict ---

func TestPredictReproducesGeneratedSpots(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	for i := 0; i < f.table.Len(); i++ {
		assert.InDelta(t, f.table.XYZObs[i].X, f.table.XYZCal[i].X, 1e-9, "row %d", i)
		assert.InDelta(t, f.table.XYZObs[i].Y, f.table.XYZCal[i].Y, 1e-9, "row %d", i)
	}
}

func TestPredictFollowsModelChange(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	table := f.table.Clone()

	p := f.pp.Parameters()
	p[0] += 5 // Detector1Dist, mm
	require.NoError(t, f.pp.SetParameters(p))
	_, err := f.pp.Compose(table)
	require.NoError(t, err)
	require.NoError(t, f.pp.Predict(table))

	for i := 0; i < table.Len(); i++ {
		assert.InDelta(t, f.table.XYZCal[i].Z, table.XYZCal[i].Z, 1e-12, "phi moved for row %d", i)
		assert.InDelta(t, f.table.S1[i].X, table.S1[i].X, 1e-12)
	}
	moved := 0
	for i := 0; i < table.Len(); i++ {
		if math.Abs(table.XYZCal[i].X-f.table.XYZCal[i].X) > 1e-6 {
			moved++
		}
	}
	assert.Positive(t, moved)
}

func TestPredictNoPrediction(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	table := f.table.Clone()
	table.UB[0] = table.UB[0].Scale(1000)

	err := f.pp.Predict(table)
	assert.ErrorIs(t, err, refine.ErrNoPrediction)
}

func TestPredictNeedsComposedTable(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	table := f.table.Clone()
	table.UB = nil

	err := f.pp.Predict(table)
	assert.ErrorIs(t, err, refine.ErrInvalidColumn)
}
