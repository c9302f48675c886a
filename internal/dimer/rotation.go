package dimer

import (
	"log/slog"
	"math"
)

// RotationResult summarizes the rotation of a dimer at a fixed center.
type RotationResult struct {
	// Curvature is the lowest curvature found
	Curvature float64
	// Mode is the unit lowest curvature mode
	Mode []float64
	// Iterations is the number of rotation iterations run
	Iterations int
	// Converged reports whether the estimated rotation angle fell below
	// Options.MinRotAngle before MaxRotations was reached
	Converged bool
	// TotalAngle is the angle between the initial and the final orientation
	TotalAngle float64
}

// newRawDimer evaluates the center and the endpoint at the current
// orientation.
func (d *Dimer) newRawDimer() (*RawDimer, error) {
	r0 := clone(d.center)
	e0, f0, err := d.evaluate(r0)
	if err != nil {
		return nil, err
	}
	r1 := addScaled(r0, d.opts.Distance, d.orientation)
	_, f1, err := d.evaluate(r1)
	if err != nil {
		return nil, err
	}
	return &RawDimer{R0: r0, F0: f0, R1: r1, F1: f1, E0: e0}, nil
}

// optimalRotation rotates raw into the lowest curvature mode at its center.
// raw.R1, raw.F1 and the dimer orientation are updated in place; raw.F0 and
// raw.E0 are not touched.
func (d *Dimer) optimalRotation(raw *RawDimer) (*RotationResult, error) {
	// conjugate directions are only meaningful within one rotation search
	cg := NewConjugateGradient(d.opts.CGBeta, d.opts.CGRestart, d.opts.CGDamping)
	tauInit := clone(d.orientation)

	res := &RotationResult{}
	for niter := 1; niter <= d.opts.MaxRotations; niter++ {
		res.Iterations = niter
		state := raw.Extrapolate()
		res.Curvature = state.Curvature()

		// skip the trial rotation when the estimated angle is already
		// small (Eq. 32 in Heyden2005JCP)
		phiEst := state.EstimatedRotationalAngle()
		if math.Abs(phiEst) < d.opts.MinRotAngle {
			slog.Debug("Rotational angle is small enough",
				"phi_est_deg", degrees(phiEst),
				"phi_tol_deg", degrees(d.opts.MinRotAngle),
			)
			res.Converged = true
			break
		}

		phi1 := d.opts.TrialRotAngle
		if !d.opts.UseFixedRotAngle {
			phi1 = min(phi1, phiEst)
		}

		theta, err := d.rotationalDirection(state, cg)
		if err != nil {
			return nil, err
		}

		r1Trial := raw.RotateEndpoint(state.CurvatureMode(), theta, phi1)
		_, f1Trial, err := d.evaluate(r1Trial)
		if err != nil {
			return nil, err
		}

		fs, err := raw.FourierRotate(r1Trial, f1Trial, phi1, theta, d.opts.UseExtrapolatedForce)
		if err != nil {
			return nil, err
		}
		slog.Debug("Dimer rotation",
			"iteration", niter,
			"phi_est_deg", degrees(phiEst),
			"phi_trial_deg", degrees(phi1),
			"phi_min_deg", degrees(fs.PhiMin),
			"c_min", fs.CurvatureMin,
		)

		raw.R1 = fs.R1Min
		if d.opts.UseExtrapolatedForce {
			raw.F1 = fs.F1Min
		} else {
			_, f1, err := d.evaluate(fs.R1Min)
			if err != nil {
				return nil, err
			}
			slog.Debug("Similarity between extrapolated and real force at R1",
				"cosine", cosineSimilarity(f1, fs.F1Min))
			raw.F1 = f1
		}
		res.Curvature = fs.CurvatureMin
		d.orientation = raw.Axis()
	}

	if res.Converged {
		slog.Info("Optimal dimer rotation found", "iterations", res.Iterations, "curvature", res.Curvature)
	} else {
		slog.Info("Max allowed rotations reached", "iterations", res.Iterations, "curvature", res.Curvature)
	}

	res.Mode = clone(d.orientation)
	res.TotalAngle = math.Acos(max(-1, min(1, cosineSimilarity(res.Mode, tauInit))))
	slog.Debug("Total rotational angle", "deg", degrees(res.TotalAngle))

	return res, nil
}

// rotationalDirection picks the rotation plane, either by conjugate
// gradients or by steepest descent on the rotational force.
func (d *Dimer) rotationalDirection(state RotationState, cg *ConjugateGradient) ([]float64, error) {
	theta, err := state.RotationalDirection()
	if err != nil {
		return nil, err
	}
	if !d.opts.UseCGRotation {
		return theta, nil
	}
	dir := cg.Propagate(state.fr, state.n)
	if norm(dir) == 0 {
		return theta, nil
	}
	return dir, nil
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
