package dimer

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// RawDimer holds the two images of a dimer: the center 0 and the endpoint 1.
// The distance |R1-R0| is fixed for the lifetime of a dimer; only R1 and F1
// change while the dimer rotates.
type RawDimer struct {
	// R0 and F0 are the position and force of the dimer center
	R0 []float64
	F0 []float64

	// R1 and F1 are the position and force of the dimer endpoint
	R1 []float64
	F1 []float64

	// E0 is the energy at the dimer center
	E0 float64
}

// Distance returns |R1-R0|.
func (d *RawDimer) Distance() float64 {
	return floats.Distance(d.R1, d.R0, 2)
}

// Axis returns the unit vector pointing from R0 to R1.
func (d *RawDimer) Axis() []float64 {
	v := make([]float64, len(d.R1))
	floats.SubTo(v, d.R1, d.R0)
	return normalize(v)
}

// Extrapolate estimates the second derivative information at the dimer
// center by finite differencing the endpoint and center forces.
func (d *RawDimer) Extrapolate() RotationState {
	dr := d.Distance()
	fr := make([]float64, len(d.F1))
	floats.SubTo(fr, d.F1, d.F0)
	floats.Scale(1/dr, fr)
	return RotationState{fr: fr, n: d.Axis()}
}

// RotateEndpoint returns the position of endpoint 1 after rotating the
// dimer by phi in the plane spanned by the unit vectors n and theta.
func (d *RawDimer) RotateEndpoint(n, theta []float64, phi float64) []float64 {
	dr := d.Distance()
	r1 := addScaled(d.R0, dr*math.Cos(phi), n)
	floats.AddScaled(r1, dr*math.Sin(phi), theta)
	return r1
}

// RotationState is the derived curvature information of a RawDimer. It is
// recomputed on demand and never stored back on the dimer.
type RotationState struct {
	fr []float64
	n  []float64
}

// RotationalForce returns (F1-F0)/dr.
func (s RotationState) RotationalForce() []float64 {
	return clone(s.fr)
}

// CurvatureMode returns the unit dimer axis.
func (s RotationState) CurvatureMode() []float64 {
	return clone(s.n)
}

// Curvature returns the curvature of the potential along the dimer axis.
func (s RotationState) Curvature() float64 {
	return -floats.Dot(s.fr, s.n)
}

// RotationalDirection returns the normalized component of the rotational
// force perpendicular to the dimer axis. It fails with
// ErrDegenerateRotationalForce when that component vanishes.
func (s RotationState) RotationalDirection() ([]float64, error) {
	v := s.perpendicularForce()
	if norm(v) == 0 {
		return nil, ErrDegenerateRotationalForce
	}
	return normalize(v), nil
}

// CurvatureDerivative returns dC/dphi at phi = 0 in the steepest descent
// rotation plane, -2|fr_perp|. It is never positive.
func (s RotationState) CurvatureDerivative() float64 {
	return -2 * norm(s.perpendicularForce())
}

// perpendicularForce rejects fr against the axis twice. Near the mode fr is
// almost parallel to n and a single pass leaves an axis component of the
// same size as the remainder.
func (s RotationState) perpendicularForce() []float64 {
	return reject(reject(s.fr, s.n), s.n)
}

// EstimatedRotationalAngle returns the first order estimate of the angle
// that rotates the dimer into the lowest curvature mode.
func (s RotationState) EstimatedRotationalAngle() float64 {
	return estimateRotationalAngle(s.Curvature(), s.CurvatureDerivative())
}

func estimateRotationalAngle(c0, c0d float64) float64 {
	return 0.5 * math.Atan(-0.5*c0d/math.Abs(c0))
}
