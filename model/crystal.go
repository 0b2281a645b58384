package model

import (
	"fmt"

	"github.com/sky-flux/refine"
)

// kernel evaluates a crystal state matrix and its derivative with respect to
// every one of its parameters, free or fixed.
type kernel interface {
	names() []string
	initial() []float64
	eval(v []float64) (refine.Mat3, []refine.Mat3, error)
	// check rejects parameter values the kernel cannot evaluate.
	check(v []float64) error
}

// crystal is a static crystal model around a kernel.
type crystal struct {
	params
	kernel kernel
	state  refine.Mat3
	derivs []refine.Mat3
}

func newCrystal(k kernel) crystal {
	c := crystal{
		params: newParams(k.names(), k.initial()),
		kernel: k,
	}
	c.Compose(0)
	return c
}

// Compose evaluates the state. t is ignored.
func (c *crystal) Compose(float64) {
	s, d, err := c.kernel.eval(c.values)
	if err != nil {
		// Values only change through SetParameters, which runs kernel.check.
		panic(fmt.Sprintf("model: evaluate checked parameters: %v", err))
	}
	c.state = s
	c.derivs = freeOnly(&c.params, d)
}

// SetParameters replaces the free parameter values after checking that the
// kernel accepts them.
func (c *crystal) SetParameters(v []float64) error {
	old := append([]float64(nil), c.values...)
	if err := c.params.SetParameters(v); err != nil {
		return err
	}
	if err := c.kernel.check(c.values); err != nil {
		copy(c.values, old)
		return err
	}
	return nil
}

// State returns the matrix of the last Compose.
func (c *crystal) State() refine.Mat3 {
	return c.state
}

// Derivatives returns the state derivative for each free parameter.
func (c *crystal) Derivatives() []refine.Mat3 {
	return c.derivs
}

// scanVarying is a crystal model whose kernel parameters vary smoothly over
// the scan. Kernel parameter k at sample i is stored at k·n+i, with n the
// number of smoother values, and named "<kernel name>_sample<i>".
type scanVarying struct {
	params
	kernel   kernel
	smoother *GaussianSmoother
	state    refine.Mat3
	derivs   []refine.Mat3
}

func newScanVarying(k kernel, g *GaussianSmoother) scanVarying {
	n := g.NumValues()
	base := k.names()
	names := make([]string, 0, len(base)*n)
	values := make([]float64, 0, len(base)*n)
	for j, name := range base {
		for i := 0; i < n; i++ {
			names = append(names, fmt.Sprintf("%s_sample%d", name, i))
			values = append(values, k.initial()[j])
		}
	}
	sv := scanVarying{
		params:   newParams(names, values),
		kernel:   k,
		smoother: g,
	}
	sv.Compose(g.lo)
	return sv
}

// Smoother returns the smoother shared by every parameter.
func (sv *scanVarying) Smoother() *GaussianSmoother {
	return sv.smoother
}

// Compose evaluates the state at image number t.
func (sv *scanVarying) Compose(t float64) {
	n := sv.smoother.NumValues()
	idx, w := sv.smoother.Weights(t)
	v := make([]float64, len(sv.kernel.names()))
	for k := range v {
		for j, i := range idx {
			v[k] += w[j] * sv.values[k*n+i]
		}
	}
	s, d, err := sv.kernel.eval(v)
	if err != nil {
		// Every sample passed kernel.check and the accepted set is convex, so
		// a weighted mean of samples is accepted too.
		panic(fmt.Sprintf("model: evaluate smoothed parameters at %g: %v", t, err))
	}

	all := make([]refine.Mat3, len(sv.values))
	for k := range v {
		for j, i := range idx {
			all[k*n+i] = d[k].Scale(w[j])
		}
	}
	sv.state = s
	sv.derivs = freeOnly(&sv.params, all)
}

// Values returns the smoothed kernel parameter values at t.
func (sv *scanVarying) Values(t float64) []float64 {
	n := sv.smoother.NumValues()
	v := make([]float64, len(sv.kernel.names()))
	for k := range v {
		v[k] = sv.smoother.Value(t, sv.values[k*n:(k+1)*n])
	}
	return v
}

// SetParameters replaces the free sample values after checking that the
// kernel accepts every sample.
func (sv *scanVarying) SetParameters(v []float64) error {
	old := append([]float64(nil), sv.values...)
	if err := sv.params.SetParameters(v); err != nil {
		return err
	}
	n := sv.smoother.NumValues()
	sample := make([]float64, len(sv.kernel.names()))
	for i := 0; i < n; i++ {
		for k := range sample {
			sample[k] = sv.values[k*n+i]
		}
		if err := sv.kernel.check(sample); err != nil {
			copy(sv.values, old)
			return fmt.Errorf("sample %d: %w", i, err)
		}
	}
	return nil
}

// Fix removes parameters from the free set. A kernel parameter name fixes
// all of its samples; a sample name fixes that sample only.
func (sv *scanVarying) Fix(names ...string) error {
	return sv.setFixed(true, sv.expand(names))
}

// Free is the inverse of Fix.
func (sv *scanVarying) Free(names ...string) error {
	return sv.setFixed(false, sv.expand(names))
}

func (sv *scanVarying) expand(names []string) []string {
	n := sv.smoother.NumValues()
	var out []string
	for _, name := range names {
		matched := false
		for k, base := range sv.kernel.names() {
			if base == name {
				out = append(out, sv.names[k*n:(k+1)*n]...)
				matched = true
			}
		}
		if !matched {
			out = append(out, name)
		}
	}
	return out
}

// State returns the matrix of the last Compose.
func (sv *scanVarying) State() refine.Mat3 {
	return sv.state
}

// Derivatives returns the state derivative for each free sample value.
func (sv *scanVarying) Derivatives() []refine.Mat3 {
	return sv.derivs
}
