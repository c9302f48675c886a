package dimer

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
)

// trialAngleTol guards the denominator 1 - cos(2*phi1) of the Fourier fit.
const trialAngleTol = 1e-12

// FourierModel is the curvature along a rotation plane written as a
// truncated Fourier series (Heyden et al., J. Chem. Phys. 123, 224101):
//
//	C(phi) = a0/2 + a1*cos(2phi) + b1*sin(2phi)
//
// The three constants are fixed exactly by C(0), C'(0) and one trial
// sample C(phi1).
type FourierModel struct {
	A0, A1, B1 float64
}

// NewFourierModel fits the model from the curvature c0 and its derivative
// c0d at phi = 0, and the curvature c1 measured at the trial angle phi1.
func NewFourierModel(c0, c0d, phi1, c1 float64) (FourierModel, error) {
	denom := 1 - math.Cos(2*phi1)
	if math.Abs(denom) < trialAngleTol || math.IsNaN(denom) {
		return FourierModel{}, ErrInvalidTrialAngle
	}
	b1 := 0.5 * c0d
	a1 := (c0 - c1 + b1*math.Sin(2*phi1)) / denom
	a0 := 2 * (c0 - a1)
	return FourierModel{A0: a0, A1: a1, B1: b1}, nil
}

// Curvature returns the interpolated curvature at rotation angle phi.
func (m FourierModel) Curvature(phi float64) float64 {
	return m.A0/2 + m.A1*math.Cos(2*phi) + m.B1*math.Sin(2*phi)
}

// OptimalRotation returns the extremum angle of the model and the curvature
// there. The angle is only defined modulo pi/2, so it may be a maximum.
func (m FourierModel) OptimalRotation() (phiMin, curvatureMin float64) {
	if m.A1 == 0 && m.B1 == 0 {
		// flat: every angle is optimal
		return 0, m.Curvature(0)
	}
	phiMin = 0.5 * math.Atan(m.B1/m.A1)
	return phiMin, m.Curvature(phiMin)
}

// ExtrapolatedForce interpolates the endpoint force at angle phi on the
// rotation circle from the forces at phi = 0 (f1) and phi = phi1 (f1Trial).
// f0 is the center force. The result is exact for a quadratic surface.
func ExtrapolatedForce(phi1, phi float64, f0, f1, f1Trial []float64) []float64 {
	s1 := math.Sin(phi1)
	out := make([]float64, len(f1))
	c1 := math.Sin(phi1-phi) / s1
	c2 := math.Sin(phi) / s1
	c0 := 1 - math.Cos(phi) - math.Sin(phi)*math.Tan(0.5*phi1)
	for i := range out {
		out[i] = c1*f1[i] + c2*f1Trial[i] + c0*f0[i]
	}
	return out
}

// FourierState is the outcome of one trial rotation.
type FourierState struct {
	// CurvatureMin is the lowest curvature predicted by the Fourier model
	CurvatureMin float64
	// PhiMin is the rotation angle of the lowest curvature mode
	PhiMin float64
	// R1Min is the endpoint position after rotating by PhiMin
	R1Min []float64
	// F1Min is the extrapolated endpoint force at R1Min
	F1Min []float64
}

// FourierRotate estimates the optimal rotation in the plane (n, theta) from
// a trial rotation by phi1 whose endpoint is r1Trial with force f1Trial.
// theta must be a unit vector perpendicular to the dimer axis. The dimer
// itself is left untouched.
func (d *RawDimer) FourierRotate(r1Trial, f1Trial []float64, phi1 float64, theta []float64, extrapolated bool) (*FourierState, error) {
	if len(r1Trial) != len(d.R1) || len(f1Trial) != len(d.F1) || len(theta) != len(d.R1) {
		return nil, ErrDimensionMismatch
	}

	n0 := d.Axis()
	state := d.Extrapolate()
	c0 := state.Curvature()
	// derivative along the plane actually used, which differs from the
	// steepest descent plane when theta comes from conjugate gradients
	c0d := -2 * floats.Dot(state.fr, theta)

	trial := RawDimer{R0: d.R0, F0: d.F0, R1: r1Trial, F1: f1Trial, E0: d.E0}
	c1 := trial.Extrapolate().Curvature()

	model, err := NewFourierModel(c0, c0d, phi1, c1)
	if err != nil {
		return nil, err
	}
	phiMin, curvatureMin := model.OptimalRotation()

	// atan only resolves the extremum modulo pi/2; a curvature above c0
	// means we found the maximum and the minimum sits 90 degrees away.
	if curvatureMin > c0 {
		phiAlt := phiMin + math.Pi/2
		cAlt := model.Curvature(phiAlt)
		slog.Debug("Fourier fit found curvature maximum", "c0", c0, "c_max", curvatureMin, "c_alt", cAlt)
		if !extrapolated {
			phiMin, curvatureMin = phiAlt, cAlt
		} else if cAlt < c0 && cAlt < curvatureMin {
			phiMin, curvatureMin = phiAlt, cAlt
		} else {
			slog.Warn("Extrapolated forces do not support a lower curvature, keeping fitted angle",
				"c0", c0, "c_fit", curvatureMin, "c_alt", cAlt)
		}
	}

	return &FourierState{
		CurvatureMin: curvatureMin,
		PhiMin:       phiMin,
		R1Min:        d.RotateEndpoint(n0, theta, phiMin),
		F1Min:        ExtrapolatedForce(phi1, phiMin, d.F0, d.F1, f1Trial),
	}, nil
}
