package dimer

import "log/slog"

// TranslationForce turns the center force f0 into the effective force that
// drives the dimer center towards a saddle point. tMin is the unit lowest
// curvature mode and cMin its curvature.
//
// With a negative curvature the force component along tMin is inverted, so
// a minimizer following the result climbs along the mode and relaxes in all
// other directions. With a non-negative curvature the dimer is still in a
// convex region and only the inverted component along tMin is kept, which
// pushes it out.
func TranslationForce(f0 []float64, cMin float64, tMin []float64) []float64 {
	parallel := project(f0, tMin)
	if cMin >= 0 {
		slog.Debug("Positive curvature, dragging dimer up along mode", "curvature", cMin)
		out := make([]float64, len(parallel))
		for i, v := range parallel {
			out[i] = -v
		}
		return out
	}
	return addScaled(f0, -2, parallel)
}
