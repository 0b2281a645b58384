// Package refine computes predicted reflection positions and their analytic
// derivatives for the refinement of rotation-method diffraction experiments.
//
// A [PredictionParameterisation] binds every experiment to one beam, one
// detector, one crystal orientation and one crystal unit cell model
// (see the refine/model subpackage). Models may be shared between
// experiments. Their free parameters form a single global vector, ordered
// detector, beam, orientation, unit cell.
//
// For a [ReflectionTable] the work proceeds in three steps: Compose evaluates
// the possibly scan-varying crystal models at each reflection's image number,
// the geometry of each diffracted ray is computed, and Gradients assembles
// dX/dp, dY/dp and dphi/dp for every free parameter. Jacobian runs all three.
//
// A [ConstraintManager] ties slots of the global vector with
// [EqualShiftConstraint] values and maps vectors, gradients and Jacobians
// between the full and the reduced parameter space.
//
// Basic usage:
//
//	pp, err := refine.NewPredictionParameterisation(refine.Config{
//	    Experiments:   exps,
//	    Beams:         []refine.BeamModel{beam},
//	    Detectors:     []refine.DetectorModel{det},
//	    Orientations:  []refine.CrystalModel{xlo},
//	    UnitCells:     []refine.CrystalModel{xluc},
//	    ExperimentMap: refine.ExperimentMap{{}},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if _, err := pp.Compose(table); err != nil {
//	    log.Fatal(err)
//	}
//	if err := pp.Predict(table); err != nil {
//	    log.Fatal(err)
//	}
//	jac, err := pp.Jacobian(table)
package refine
