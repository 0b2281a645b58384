package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sky-flux/refine"
)

// --- Cell ---

func TestCellValidate(t *testing.T) {
	tests := []struct {
		name string
		cell Cell
		ok   bool
	}{
		{"triclinic", testCell(), true},
		{"cubic", Cell{A: 50, B: 50, C: 50, Alpha: 90, Beta: 90, Gamma: 90}, true},
		{"zero edge", Cell{A: 0, B: 50, C: 50, Alpha: 90, Beta: 90, Gamma: 90}, false},
		{"flat angle", Cell{A: 50, B: 50, C: 50, Alpha: 180, Beta: 90, Gamma: 90}, false},
		{"open angles", Cell{A: 50, B: 50, C: 50, Alpha: 170, Beta: 170, Gamma: 170}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cell.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidCell)
			}
		})
	}
}

func TestCellReciprocalCubic(t *testing.T) {
	b, err := Cell{A: 50, B: 40, C: 25, Alpha: 90, Beta: 90, Gamma: 90}.Reciprocal()
	require.NoError(t, err)
	want := refine.Mat3{1.0 / 50, 0, 0, 0, 1.0 / 40, 0, 0, 0, 1.0 / 25}
	assert.True(t, b.ApproxEqual(want, 1e-12), "got %v", b)
}

func TestCellReciprocalDuality(t *testing.T) {
	c := testCell()
	b, err := c.Reciprocal()
	require.NoError(t, err)

	// a*·a = 1 and a*·b = 0 etc.
	assert.True(t, b.Transpose().Mul(c.Orthogonalisation()).ApproxEqual(refine.Identity3, 1e-12))
}

// --- UnitCell ---

func TestNewUnitCellInvalid(t *testing.T) {
	_, err := NewUnitCell(Cell{A: -1, B: 1, C: 1, Alpha: 90, Beta: 90, Gamma: 90})
	assert.ErrorIs(t, err, ErrInvalidCell)
}

func TestUnitCellDerivatives(t *testing.T) {
	u, err := NewUnitCell(testCell())
	require.NoError(t, err)
	analytic := u.Derivatives()
	require.Len(t, analytic, 6)

	for k := range analytic {
		num := centralDiff(t, u, k, 1e-5, func() []float64 {
			u.Compose(0)
			return flat(u.State())
		})
		assert.InDeltaSlice(t, num, flat(analytic[k]), 1e-10, "parameter %s", u.ParameterNames()[k])
	}
}

func TestUnitCellRejectsInvalidParameters(t *testing.T) {
	u, err := NewUnitCell(testCell())
	require.NoError(t, err)
	before := u.Cell()

	err = u.SetParameters([]float64{52.1, 61.3, 70.7, 84, 97, 200})
	assert.ErrorIs(t, err, ErrInvalidCell)
	assert.Equal(t, before, u.Cell())

	state := u.State()
	assert.NotPanics(t, func() { u.Compose(0) })
	assert.Equal(t, state, u.State())
}

func TestUnitCellFixAngles(t *testing.T) {
	u, err := NewUnitCell(testCell())
	require.NoError(t, err)
	require.NoError(t, u.Fix(CellAlpha, CellBeta, CellGamma))
	require.NoError(t, u.SetParameters([]float64{60, 60, 60}))
	u.Compose(0)

	c := u.Cell()
	assert.Equal(t, 60.0, c.A)
	assert.Equal(t, 101.0, c.Gamma)
	assert.Len(t, u.Derivatives(), 3)
}
