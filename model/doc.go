// Package model provides the beam, detector and crystal parameterisations
// consumed by refine.PredictionParameterisation.
//
// Static models:
//
//   - [Beam] rotates the beam direction by Mu1 and Mu2 (mrad) and scales it
//     by the wavenumber Nu.
//   - [Detector] moves a rigid multi-panel detector by Dist, Shift1, Shift2
//     (mm) and Tau1, Tau2, Tau3 (mrad).
//   - [Orientation] rotates U0 by Phi1, Phi2, Phi3 (mrad) about the
//     laboratory X, Y and Z axes.
//   - [UnitCell] derives B from the six cell parameters.
//
// [ScanVaryingOrientation] and [ScanVaryingUnitCell] sample the crystal
// parameters along the scan and interpolate them with a [GaussianSmoother].
//
// Every model returns analytic derivatives for its free parameters only.
// Use Fix to hold parameters at their current values:
//
//	det, err := model.NewDetector(panels)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = det.Fix(model.DetectorTau2, model.DetectorTau3)
package model
