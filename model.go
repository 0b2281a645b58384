package refine

import "github.com/golang/geo/r3"

// Model is the capability set shared by every parameterisation.
//
// Compose evaluates the model at continuous parameter t, the image number
// for scan-varying crystal models. Static models ignore t. The state and
// derivative getters of the category interfaces report the most recent
// Compose. Derivatives are listed for free parameters only, in the order of
// Parameters.
type Model interface {
	NumFree() int
	Compose(t float64)
	Parameters() []float64
	SetParameters(p []float64) error
	ParameterNames() []string
}

// BeamModel parameterises the incident beam vector s0 (|s0| = 1/λ).
type BeamModel interface {
	Model
	S0() r3.Vector
	DS0DP() []r3.Vector
}

// DetectorModel parameterises a detector of one or more panels. The state of
// panel i is its d matrix, whose columns are the fast axis, the slow axis and
// the origin, all in the laboratory frame (mm).
type DetectorModel interface {
	Model
	NumPanels() int
	PanelState(panel int) Mat3
	PanelDerivatives(panel int) []Mat3
	// PanelSize is the panel extent along fast and slow (mm).
	PanelSize(panel int) (fast, slow float64)
}

// CrystalModel parameterises a crystal orientation (U) or unit cell (B).
type CrystalModel interface {
	Model
	State() Mat3
	Derivatives() []Mat3
}
