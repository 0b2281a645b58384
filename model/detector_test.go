package model

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sky-flux/refine"
)

func testPanels() []Panel {
	return []Panel{
		{
			Origin: r3.Vector{X: -100, Y: 110, Z: -200},
			Fast:   r3.Vector{X: 1},
			Slow:   r3.Vector{Y: -1},
			Size:   [2]float64{100, 100},
		},
		{
			Origin: r3.Vector{X: 5, Y: 110, Z: -201},
			Fast:   r3.Vector{X: 1, Z: 0.02},
			Slow:   r3.Vector{Y: -2},
			Size:   [2]float64{90, 100},
		},
	}
}

// --- NewDetector ---

func TestNewDetectorInvalid(t *testing.T) {
	tests := []struct {
		name   string
		panels []Panel
	}{
		{"no panels", nil},
		{"zero axis", []Panel{{Fast: r3.Vector{X: 1}}}},
		{"parallel axes", []Panel{{Fast: r3.Vector{X: 1}, Slow: r3.Vector{X: 2}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDetector(tt.panels)
			assert.ErrorIs(t, err, ErrInvalidModel)
		})
	}
}

func TestDetectorInitialState(t *testing.T) {
	d, err := NewDetector(testPanels())
	require.NoError(t, err)
	require.Equal(t, 2, d.NumPanels())

	// Normal of panel 0 is -Z, so Dist is the origin's distance along it.
	assert.InDelta(t, 200, d.Parameters()[0], 1e-12)

	want := refine.NewMat3FromColumns(r3.Vector{X: 1}, r3.Vector{Y: -1}, r3.Vector{X: -100, Y: 110, Z: -200})
	assert.True(t, d.PanelState(0).ApproxEqual(want, 1e-12), "got %v", d.PanelState(0))

	// Axes are normalised.
	assert.InDelta(t, 1, d.PanelState(1).Col(1).Norm(), 1e-12)
	assert.InDelta(t, 1, d.PanelState(1).Col(0).Norm(), 1e-12)

	fast, slow := d.PanelSize(1)
	assert.Equal(t, 90.0, fast)
	assert.Equal(t, 100.0, slow)
}

func TestDetectorDistMovesAlongNormal(t *testing.T) {
	d, err := NewDetector(testPanels())
	require.NoError(t, err)
	require.NoError(t, d.SetParameters([]float64{210, 0, 0, 0, 0, 0}))
	d.Compose(0)

	for i := 0; i < d.NumPanels(); i++ {
		moved := d.PanelState(i).Col(2).Sub(testPanels()[i].Origin)
		assert.InDeltaSlice(t, []float64{0, 0, -10}, flatVec(moved), 1e-12, "panel %d", i)
	}
}

// --- derivatives ---

func TestDetectorDerivatives(t *testing.T) {
	d, err := NewDetector(testPanels())
	require.NoError(t, err)
	require.NoError(t, d.SetParameters([]float64{199, 0.4, -0.3, 1.2, -2.1, 0.7}))
	d.Compose(0)

	for panel := 0; panel < d.NumPanels(); panel++ {
		analytic := d.PanelDerivatives(panel)
		require.Len(t, analytic, 6)
		for k := range analytic {
			num := centralDiff(t, d, k, 1e-5, func() []float64 {
				d.Compose(0)
				return flat(d.PanelState(panel))
			})
			assert.InDeltaSlice(t, num, flat(analytic[k]), 1e-6, "panel %d parameter %d", panel, k)
		}
	}
}

func TestDetectorFix(t *testing.T) {
	d, err := NewDetector(testPanels())
	require.NoError(t, err)
	require.NoError(t, d.Fix(DetectorTau2, DetectorTau3, DetectorShift1))

	assert.Equal(t, 3, d.NumFree())
	assert.Equal(t, []string{DetectorDist, DetectorShift2, DetectorTau1}, d.ParameterNames())
	assert.Len(t, d.PanelDerivatives(0), 3)
}
