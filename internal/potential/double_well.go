package potential

import (
	"fmt"
	"math"
)

// DoubleWell is a bistable well along the first coordinate with harmonic
// confinement in all others:
//
//	E = A (x0^2 - B)^2 + K/2 sum_{i>0} xi^2
//
// Minima sit at x0 = ±sqrt(B); the origin is a saddle with curvature -4AB.
type DoubleWell struct {
	A, B, K float64
	dim     int
}

// NewDoubleWell returns a double well in dim dimensions (at least 1; 0
// selects 2).
func NewDoubleWell(a, b, k float64, dim int) (*DoubleWell, error) {
	if dim == 0 {
		dim = 2
	}
	if a <= 0 || b <= 0 || k <= 0 {
		return nil, fmt.Errorf("double well parameters must be positive: A=%g B=%g K=%g", a, b, k)
	}
	return &DoubleWell{A: a, B: b, K: k, dim: dim}, nil
}

// Evaluate returns the energy and force at x.
func (d *DoubleWell) Evaluate(x []float64) (float64, []float64, error) {
	if err := checkDim(x, d.dim); err != nil {
		return 0, nil, err
	}
	force := make([]float64, d.dim)
	u := x[0]*x[0] - d.B
	e := d.A * u * u
	force[0] = -4 * d.A * x[0] * u
	for i := 1; i < d.dim; i++ {
		e += 0.5 * d.K * x[i] * x[i]
		force[i] = -d.K * x[i]
	}
	return e, force, nil
}

// Dimension returns the number of coordinates.
func (d *DoubleWell) Dimension() int { return d.dim }

// SaddleCurvature returns the curvature of the unstable mode at the origin.
func (d *DoubleWell) SaddleCurvature() float64 { return -4 * d.A * d.B }

// Bounds returns a box enclosing both minima.
func (d *DoubleWell) Bounds() *Bounds {
	w := 1.5 * math.Sqrt(d.B)
	lower := make([]float64, d.dim)
	upper := make([]float64, d.dim)
	for i := range lower {
		lower[i], upper[i] = -w, w
	}
	return &Bounds{Lower: lower, Upper: upper}
}
