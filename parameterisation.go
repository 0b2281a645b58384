package refine

import (
	"fmt"
	"log/slog"
)

// Config configures a PredictionParameterisation.
// Zero values produce sensible defaults; see field comments.
type Config struct {
	Experiments   []Experiment    `json:"experiments"`
	Beams         []BeamModel     `json:"-"`
	Detectors     []DetectorModel `json:"-"`
	Orientations  []CrystalModel  `json:"-"`
	UnitCells     []CrystalModel  `json:"-"`
	ExperimentMap ExperimentMap   `json:"experiment_map"` // one entry per experiment
	Policy        ComposePolicy   `json:"policy"`         // zero → PerReflection
	Logger        *slog.Logger    `json:"-"`              // nil → discard
}

// PredictionParameterisation owns the parameterisations of a set of
// experiments and computes reflection predictions and their derivatives
// with respect to the global parameter vector.
//
// The global vector concatenates the free parameters of every detector, then
// every beam, every crystal orientation and every crystal unit cell model,
// each in list order.
type PredictionParameterisation struct {
	experiments  []Experiment
	beams        []BeamModel
	detectors    []DetectorModel
	orientations []CrystalModel
	unitCells    []CrystalModel
	expMap       ExperimentMap
	policy       ComposePolicy
	logger       *slog.Logger
}

// NewPredictionParameterisation creates a PredictionParameterisation from cfg.
// The model lists and experiment map are copied; the models themselves are
// held by reference and may be shared between experiments.
func NewPredictionParameterisation(cfg Config) (*PredictionParameterisation, error) {
	if len(cfg.Experiments) == 0 {
		return nil, fmt.Errorf("%w: no experiments", ErrInvalidConfig)
	}
	for i, e := range cfg.Experiments {
		if e.Axis.Norm() == 0 {
			return nil, fmt.Errorf("%w: experiment %d has a zero rotation axis", ErrInvalidConfig, i)
		}
		if e.Scan.OscillationWidth == 0 {
			return nil, fmt.Errorf("%w: experiment %d has zero oscillation width", ErrInvalidConfig, i)
		}
	}
	if !cfg.Policy.isValid() {
		return nil, fmt.Errorf("%w: compose policy %d", ErrInvalidConfig, int(cfg.Policy))
	}

	pp := &PredictionParameterisation{
		experiments:  append([]Experiment(nil), cfg.Experiments...),
		beams:        append([]BeamModel(nil), cfg.Beams...),
		detectors:    append([]DetectorModel(nil), cfg.Detectors...),
		orientations: append([]CrystalModel(nil), cfg.Orientations...),
		unitCells:    append([]CrystalModel(nil), cfg.UnitCells...),
		expMap:       append(ExperimentMap(nil), cfg.ExperimentMap...),
		policy:       cfg.Policy,
		logger:       cfg.Logger,
	}
	if pp.logger == nil {
		pp.logger = slog.New(slog.DiscardHandler)
	}

	counts := make(map[Category]int, len(Categories))
	for _, c := range Categories {
		ms := pp.models(c)
		for i, m := range ms {
			if m == nil {
				return nil, fmt.Errorf("%w: %v model %d is nil", ErrInvalidConfig, c, i)
			}
		}
		counts[c] = len(ms)
	}
	if err := pp.expMap.Validate(len(pp.experiments), counts); err != nil {
		return nil, err
	}
	return pp, nil
}

// Experiments returns a copy of the experiment list.
func (pp *PredictionParameterisation) Experiments() []Experiment {
	return append([]Experiment(nil), pp.experiments...)
}

// Policy returns the crystal composition policy.
func (pp *PredictionParameterisation) Policy() ComposePolicy {
	return pp.policy
}

// NumFree returns the length of the global parameter vector.
func (pp *PredictionParameterisation) NumFree() int {
	n := 0
	for _, c := range Categories {
		n += pp.NumFreeIn(c)
	}
	return n
}

// NumFreeIn returns the number of free parameters across every model of category c.
func (pp *PredictionParameterisation) NumFreeIn(c Category) int {
	n := 0
	for _, m := range pp.models(c) {
		n += m.NumFree()
	}
	return n
}

// Parameters returns the global parameter vector.
func (pp *PredictionParameterisation) Parameters() []float64 {
	p := make([]float64, 0, pp.NumFree())
	for _, c := range Categories {
		for _, m := range pp.models(c) {
			p = append(p, m.Parameters()...)
		}
	}
	return p
}

// SetParameters distributes the global parameter vector p over the models.
// Returns ErrParameterCount if len(p) != NumFree().
func (pp *PredictionParameterisation) SetParameters(p []float64) error {
	if len(p) != pp.NumFree() {
		return fmt.Errorf("%w: got %d, want %d", ErrParameterCount, len(p), pp.NumFree())
	}
	cursor := 0
	for _, c := range Categories {
		for i, m := range pp.models(c) {
			n := m.NumFree()
			if err := m.SetParameters(p[cursor : cursor+n]); err != nil {
				return fmt.Errorf("set %v model %d: %w", c, i, err)
			}
			cursor += n
		}
	}
	return nil
}

// ParameterLabel identifies one slot of the global parameter vector by the
// category and list index of its model and the model's parameter name.
type ParameterLabel struct {
	Category Category `json:"category"`
	Model    int      `json:"model"`
	Name     string   `json:"name"`
}

// String formats l as <Category><model number><parameter>, with models
// numbered from 1, e.g. "Detector1Dist".
func (l ParameterLabel) String() string {
	return fmt.Sprintf("%v%d%s", l.Category, l.Model+1, l.Name)
}

// ParameterLabels labels every slot of the global vector.
func (pp *PredictionParameterisation) ParameterLabels() []ParameterLabel {
	labels := make([]ParameterLabel, 0, pp.NumFree())
	for _, c := range Categories {
		for i, m := range pp.models(c) {
			for _, n := range m.ParameterNames() {
				labels = append(labels, ParameterLabel{Category: c, Model: i, Name: n})
			}
		}
	}
	return labels
}

// ParameterNames returns the String form of every label.
func (pp *PredictionParameterisation) ParameterNames() []string {
	labels := pp.ParameterLabels()
	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = l.String()
	}
	return names
}

// slot returns the position of l in the global vector, or
// ErrUnknownParameter if l names no free parameter.
func (pp *PredictionParameterisation) slot(l ParameterLabel) (int, error) {
	for i, got := range pp.ParameterLabels() {
		if got == l {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %v", ErrUnknownParameter, l)
}

// models returns the model list of category c as the shared interface.
func (pp *PredictionParameterisation) models(c Category) []Model {
	var ms []Model
	switch c {
	case Detector:
		for _, m := range pp.detectors {
			ms = append(ms, m)
		}
	case Beam:
		for _, m := range pp.beams {
			ms = append(ms, m)
		}
	case CrystalOrientation:
		for _, m := range pp.orientations {
			ms = append(ms, m)
		}
	case CrystalUnitCell:
		for _, m := range pp.unitCells {
			ms = append(ms, m)
		}
	}
	return ms
}

// binding returns the ParamSet of expID, or ErrMissingBinding for ids that
// are not experiments of this parameterisation.
func (pp *PredictionParameterisation) binding(expID int) (ParamSet, error) {
	if expID >= len(pp.experiments) {
		return ParamSet{}, fmt.Errorf("%w: experiment %d (have %d experiments)",
			ErrMissingBinding, expID, len(pp.experiments))
	}
	return pp.expMap.Binding(expID)
}

// crystalOffsets returns, for each model of a crystal category, the first
// slot it owns among that category's derivative columns.
func crystalOffsets(models []CrystalModel) (offsets []int, total int) {
	offsets = make([]int, len(models))
	for i, m := range models {
		offsets[i] = total
		total += m.NumFree()
	}
	return offsets, total
}
