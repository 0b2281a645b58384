package refine

import (
	"fmt"
	"slices"
)

// EqualShiftConstraint ties slots of the global parameter vector so that
// they move by a common shift. Each slot keeps its offset from the reference
// values recorded when the constraint was made.
type EqualShiftConstraint struct {
	slots []int
	ref   []float64
}

// NewEqualShiftConstraint ties slots of p, recording their current values as
// the reference. At least two distinct slots within p are required.
func NewEqualShiftConstraint(slots []int, p []float64) (EqualShiftConstraint, error) {
	if len(slots) < 2 {
		return EqualShiftConstraint{}, fmt.Errorf("%w: %d slots, need at least 2", ErrInvalidConstraint, len(slots))
	}
	ref := make([]float64, len(slots))
	for i, s := range slots {
		if s < 0 || s >= len(p) {
			return EqualShiftConstraint{}, fmt.Errorf("%w: slot %d outside vector of %d", ErrInvalidConstraint, s, len(p))
		}
		if slices.Contains(slots[:i], s) {
			return EqualShiftConstraint{}, fmt.Errorf("%w: slot %d repeated", ErrInvalidConstraint, s)
		}
		ref[i] = p[s]
	}
	return EqualShiftConstraint{slots: slices.Clone(slots), ref: ref}, nil
}

// EqualShift ties the free parameters named by labels at their current
// values. Returns ErrUnknownParameter for a label that names no free slot.
func (pp *PredictionParameterisation) EqualShift(labels ...ParameterLabel) (EqualShiftConstraint, error) {
	slots := make([]int, len(labels))
	for i, l := range labels {
		s, err := pp.slot(l)
		if err != nil {
			return EqualShiftConstraint{}, err
		}
		slots[i] = s
	}
	return NewEqualShiftConstraint(slots, pp.Parameters())
}

// Slots returns the tied slots.
func (c EqualShiftConstraint) Slots() []int {
	return slices.Clone(c.slots)
}

func (c EqualShiftConstraint) refMean() float64 {
	var sum float64
	for _, v := range c.ref {
		sum += v
	}
	return sum / float64(len(c.ref))
}

// ConstraintManager maps between the full global parameter vector and a
// reduced vector holding every unconstrained slot in order, followed by one
// value per constraint.
type ConstraintManager struct {
	constraints []EqualShiftConstraint
	n           int
	free        []int
}

// NewConstraintManager creates a manager for a full vector of length n.
// A slot may belong to one constraint only.
func NewConstraintManager(constraints []EqualShiftConstraint, n int) (*ConstraintManager, error) {
	owner := make([]int, n)
	for k, c := range constraints {
		if len(c.slots) < 2 {
			return nil, fmt.Errorf("%w: constraint %d ties %d slots", ErrInvalidConstraint, k, len(c.slots))
		}
		for _, s := range c.slots {
			if s >= n {
				return nil, fmt.Errorf("%w: slot %d outside vector of %d", ErrInvalidConstraint, s, n)
			}
			if owner[s] != 0 {
				return nil, fmt.Errorf("%w: slot %d in constraints %d and %d",
					ErrInvalidConstraint, s, owner[s]-1, k)
			}
			owner[s] = k + 1
		}
	}
	cm := &ConstraintManager{
		constraints: slices.Clone(constraints),
		n:           n,
	}
	for s, o := range owner {
		if o == 0 {
			cm.free = append(cm.free, s)
		}
	}
	return cm, nil
}

// NumFull returns the length of the full vector.
func (cm *ConstraintManager) NumFull() int {
	return cm.n
}

// NumConstrained returns the length of the reduced vector.
func (cm *ConstraintManager) NumConstrained() int {
	return len(cm.free) + len(cm.constraints)
}

// ConstrainParameters reduces the full vector p. The value of a constraint is
// the mean of its tied slots.
func (cm *ConstraintManager) ConstrainParameters(p []float64) ([]float64, error) {
	if len(p) != cm.n {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrParameterCount, len(p), cm.n)
	}
	out := make([]float64, 0, cm.NumConstrained())
	for _, s := range cm.free {
		out = append(out, p[s])
	}
	for _, c := range cm.constraints {
		var sum float64
		for _, s := range c.slots {
			sum += p[s]
		}
		out = append(out, sum/float64(len(c.slots)))
	}
	return out, nil
}

// ExpandParameters is the inverse of ConstrainParameters: each tied slot
// takes its reference value plus the shift of the constraint value from the
// mean reference.
func (cm *ConstraintManager) ExpandParameters(reduced []float64) ([]float64, error) {
	if len(reduced) != cm.NumConstrained() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrParameterCount, len(reduced), cm.NumConstrained())
	}
	out := make([]float64, cm.n)
	for k, s := range cm.free {
		out[s] = reduced[k]
	}
	for k, c := range cm.constraints {
		shift := reduced[len(cm.free)+k] - c.refMean()
		for j, s := range c.slots {
			out[s] = c.ref[j] + shift
		}
	}
	return out, nil
}

// ConstrainGradient reduces a gradient with respect to the full vector, such
// as dL/dp, by summing the elements of each constraint.
func (cm *ConstraintManager) ConstrainGradient(g []float64) ([]float64, error) {
	if len(g) != cm.n {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrParameterCount, len(g), cm.n)
	}
	out := make([]float64, 0, cm.NumConstrained())
	for _, s := range cm.free {
		out = append(out, g[s])
	}
	for _, c := range cm.constraints {
		var sum float64
		for _, s := range c.slots {
			sum += g[s]
		}
		out = append(out, sum)
	}
	return out, nil
}

// ConstrainJacobian returns j with one column per reduced parameter. The
// column of a constraint is the sum of the columns of its tied slots.
func (cm *ConstraintManager) ConstrainJacobian(j *Jacobian) (*Jacobian, error) {
	if j.NumParams() != cm.n {
		return nil, fmt.Errorf("%w: Jacobian has %d columns, want %d", ErrParameterCount, j.NumParams(), cm.n)
	}
	return &Jacobian{
		DXDP:   cm.constrainColumns(j.DXDP),
		DYDP:   cm.constrainColumns(j.DYDP),
		DPhiDP: cm.constrainColumns(j.DPhiDP),
	}, nil
}

func (cm *ConstraintManager) constrainColumns(cols [][]float64) [][]float64 {
	out := make([][]float64, 0, cm.NumConstrained())
	for _, s := range cm.free {
		out = append(out, slices.Clone(cols[s]))
	}
	for _, c := range cm.constraints {
		sum := make([]float64, len(cols[c.slots[0]]))
		for _, s := range c.slots {
			for i, v := range cols[s] {
				sum[i] += v
			}
		}
		out = append(out, sum)
	}
	return out
}
