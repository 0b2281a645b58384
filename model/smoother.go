package model

import (
	"fmt"
	"math"
)

// GaussianSmoother interpolates a parameter over a scan from values sampled
// at evenly spaced positions. The value at t is the Gaussian-weighted mean
// of the samples within 3σ of t.
//
// With one or two intervals the samples sit on the interval boundaries.
// With more, they sit at the interval centres plus one beyond each end.
type GaussianSmoother struct {
	lo, hi    float64
	spacing   float64
	sigma     float64
	positions []float64
}

// sigmaPerSpacing sets the Gaussian width relative to the sample spacing.
const sigmaPerSpacing = 0.65

// NewGaussianSmoother returns a smoother over rng divided into nIntervals.
func NewGaussianSmoother(rng [2]float64, nIntervals int) (*GaussianSmoother, error) {
	if nIntervals < 1 {
		return nil, fmt.Errorf("%w: %d intervals", ErrInvalidSmoother, nIntervals)
	}
	if !(rng[1] > rng[0]) {
		return nil, fmt.Errorf("%w: empty range [%g, %g]", ErrInvalidSmoother, rng[0], rng[1])
	}
	spacing := (rng[1] - rng[0]) / float64(nIntervals)

	var positions []float64
	if nIntervals <= 2 {
		positions = make([]float64, nIntervals+1)
		for i := range positions {
			positions[i] = rng[0] + float64(i)*spacing
		}
	} else {
		positions = make([]float64, nIntervals+2)
		for i := range positions {
			positions[i] = rng[0] - spacing/2 + float64(i)*spacing
		}
	}
	return &GaussianSmoother{
		lo:        rng[0],
		hi:        rng[1],
		spacing:   spacing,
		sigma:     sigmaPerSpacing * spacing,
		positions: positions,
	}, nil
}

// NumValues returns the number of sample values.
func (g *GaussianSmoother) NumValues() int {
	return len(g.positions)
}

// Positions returns a copy of the sample positions.
func (g *GaussianSmoother) Positions() []float64 {
	return append([]float64(nil), g.positions...)
}

// Sigma returns the Gaussian width.
func (g *GaussianSmoother) Sigma() float64 {
	return g.sigma
}

// Range returns the smoothed interval.
func (g *GaussianSmoother) Range() [2]float64 {
	return [2]float64{g.lo, g.hi}
}

// Weights returns the samples contributing at t and their normalised
// weights, which sum to one. Far outside the range the nearest sample takes
// the whole weight.
func (g *GaussianSmoother) Weights(t float64) (idx []int, w []float64) {
	cutoff := 3 * g.sigma
	sum := 0.0
	for i, p := range g.positions {
		d := t - p
		if math.Abs(d) >= cutoff {
			continue
		}
		wi := math.Exp(-d * d / (2 * g.sigma * g.sigma))
		idx = append(idx, i)
		w = append(w, wi)
		sum += wi
	}
	if sum == 0 {
		nearest := 0
		if t > g.positions[len(g.positions)-1] {
			nearest = len(g.positions) - 1
		}
		return []int{nearest}, []float64{1}
	}
	for k := range w {
		w[k] /= sum
	}
	return idx, w
}

// Value returns the smoothed value at t of the samples values, which must
// have NumValues entries.
func (g *GaussianSmoother) Value(t float64, values []float64) float64 {
	idx, w := g.Weights(t)
	v := 0.0
	for k, i := range idx {
		v += w[k] * values[i]
	}
	return v
}
