package model

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/require"

	"github.com/sky-flux/refine"
)

// centralDiff returns the central-difference derivative of state with
// respect to free parameter k of m, restoring the parameters afterwards.
func centralDiff(t *testing.T, m refine.Model, k int, h float64, state func() []float64) []float64 {
	t.Helper()
	p0 := m.Parameters()
	p := append([]float64(nil), p0...)

	p[k] = p0[k] + h
	require.NoError(t, m.SetParameters(p))
	plus := state()
	p[k] = p0[k] - h
	require.NoError(t, m.SetParameters(p))
	minus := state()
	require.NoError(t, m.SetParameters(p0))

	out := make([]float64, len(plus))
	for i := range out {
		out[i] = (plus[i] - minus[i]) / (2 * h)
	}
	return out
}

func flat(m refine.Mat3) []float64 {
	return m[:]
}

func flatVec(v r3.Vector) []float64 {
	return []float64{v.X, v.Y, v.Z}
}

func testCell() Cell {
	return Cell{A: 52.1, B: 61.3, C: 70.7, Alpha: 84, Beta: 97, Gamma: 101}
}
