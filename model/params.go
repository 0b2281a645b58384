package model

import (
	"fmt"
	"slices"
)

// params stores the named parameter values of a model and which of them are
// fixed. Only free parameters are visible through the exported methods.
type params struct {
	names  []string
	values []float64
	fixed  []bool
}

func newParams(names []string, values []float64) params {
	return params{
		names:  names,
		values: values,
		fixed:  make([]bool, len(names)),
	}
}

// NumFree returns the number of free parameters.
func (p *params) NumFree() int {
	n := 0
	for _, f := range p.fixed {
		if !f {
			n++
		}
	}
	return n
}

// Parameters returns the free parameter values.
func (p *params) Parameters() []float64 {
	out := make([]float64, 0, len(p.values))
	for i, v := range p.values {
		if !p.fixed[i] {
			out = append(out, v)
		}
	}
	return out
}

// SetParameters replaces the free parameter values. The state is updated by
// the next Compose.
func (p *params) SetParameters(v []float64) error {
	if len(v) != p.NumFree() {
		return fmt.Errorf("%w: got %d, want %d", ErrParameterCount, len(v), p.NumFree())
	}
	k := 0
	for i := range p.values {
		if !p.fixed[i] {
			p.values[i] = v[k]
			k++
		}
	}
	return nil
}

// ParameterNames returns the names of the free parameters.
func (p *params) ParameterNames() []string {
	out := make([]string, 0, len(p.names))
	for i, n := range p.names {
		if !p.fixed[i] {
			out = append(out, n)
		}
	}
	return out
}

// Fix removes the named parameters from the free set. Their values are kept.
func (p *params) Fix(names ...string) error {
	return p.setFixed(true, names)
}

// Free returns the named parameters to the free set.
func (p *params) Free(names ...string) error {
	return p.setFixed(false, names)
}

func (p *params) setFixed(fixed bool, names []string) error {
	idx := make([]int, 0, len(names))
	for _, n := range names {
		i := slices.Index(p.names, n)
		if i < 0 {
			return fmt.Errorf("%w: %q", ErrUnknownParameter, n)
		}
		idx = append(idx, i)
	}
	for _, i := range idx {
		p.fixed[i] = fixed
	}
	return nil
}

// value returns the current value of parameter i, free or fixed.
func (p *params) value(i int) float64 {
	return p.values[i]
}

// freeOnly filters a per-parameter slice down to the free entries.
func freeOnly[T any](p *params, all []T) []T {
	out := make([]T, 0, len(all))
	for i, v := range all {
		if !p.fixed[i] {
			out = append(out, v)
		}
	}
	return out
}
