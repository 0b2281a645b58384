package refine

import "fmt"

// ParamSet names, for one experiment, the index of the parameterisation that
// governs it within each category's model list.
type ParamSet struct {
	Beam        int `json:"beam"`
	Detector    int `json:"detector"`
	Orientation int `json:"orientation"`
	UnitCell    int `json:"unit_cell"`
}

// Index returns the model index for category c.
func (p ParamSet) Index(c Category) int {
	switch c {
	case Detector:
		return p.Detector
	case Beam:
		return p.Beam
	case CrystalOrientation:
		return p.Orientation
	case CrystalUnitCell:
		return p.UnitCell
	default:
		return -1
	}
}

// ExperimentMap binds every experiment, by position, to its parameterisations.
// Several experiments may name the same model index to share it.
type ExperimentMap []ParamSet

// Binding returns the ParamSet of experiment expID.
func (m ExperimentMap) Binding(expID int) (ParamSet, error) {
	if expID < 0 || expID >= len(m) {
		return ParamSet{}, fmt.Errorf("%w: experiment %d (map has %d entries)",
			ErrMissingBinding, expID, len(m))
	}
	return m[expID], nil
}

// Validate checks that m has one entry per experiment and that every index
// lies within the matching model list. counts holds the list length of each
// category.
func (m ExperimentMap) Validate(numExperiments int, counts map[Category]int) error {
	if len(m) != numExperiments {
		return fmt.Errorf("%w: %d bindings for %d experiments",
			ErrInvalidBinding, len(m), numExperiments)
	}
	for iexp, ps := range m {
		for _, c := range Categories {
			idx := ps.Index(c)
			if idx < 0 || idx >= counts[c] {
				return fmt.Errorf("%w: experiment %d binds %v %d, have %d",
					ErrInvalidBinding, iexp, c, idx, counts[c])
			}
		}
	}
	return nil
}

// UsedBy returns the experiments whose binding names model idx of category c.
func (m ExperimentMap) UsedBy(c Category, idx int) []int {
	var exps []int
	for iexp, ps := range m {
		if ps.Index(c) == idx {
			exps = append(exps, iexp)
		}
	}
	return exps
}
