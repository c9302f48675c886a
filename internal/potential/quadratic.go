package potential

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Quadratic is E(x) = 1/2 (x-c)^T H (x-c). Finite differences of its forces
// are exact, which makes it the reference surface for the dimer estimators.
type Quadratic struct {
	hessian *mat.SymDense
	center  *mat.VecDense
	dim     int
}

// NewQuadratic builds a quadratic surface with Hessian h centered at center.
// A nil center places the stationary point at the origin.
func NewQuadratic(h *mat.SymDense, center []float64) (*Quadratic, error) {
	n, _ := h.Dims()
	if center == nil {
		center = make([]float64, n)
	}
	if len(center) != n {
		return nil, fmt.Errorf("%w: center has %d components, hessian is %dx%d", ErrDimension, len(center), n, n)
	}
	c := mat.NewVecDense(n, append([]float64(nil), center...))
	return &Quadratic{hessian: h, center: c, dim: n}, nil
}

// NewDiagonalQuadratic builds a quadratic at the origin with the given
// Hessian eigenvalues along the coordinate axes.
func NewDiagonalQuadratic(eigenvalues []float64) *Quadratic {
	n := len(eigenvalues)
	h := mat.NewSymDense(n, nil)
	for i, v := range eigenvalues {
		h.SetSym(i, i, v)
	}
	q, _ := NewQuadratic(h, nil)
	return q
}

// Hessian returns the Hessian matrix.
func (q *Quadratic) Hessian() *mat.SymDense {
	return q.hessian
}

// Evaluate returns the energy and force at x.
func (q *Quadratic) Evaluate(x []float64) (float64, []float64, error) {
	if err := checkDim(x, q.dim); err != nil {
		return 0, nil, err
	}
	d := mat.NewVecDense(q.dim, append([]float64(nil), x...))
	d.SubVec(d, q.center)

	var hd mat.VecDense
	hd.MulVec(q.hessian, d)

	force := make([]float64, q.dim)
	for i := range force {
		force[i] = -hd.AtVec(i)
	}
	return 0.5 * mat.Dot(d, &hd), force, nil
}

// Dimension returns the number of coordinates.
func (q *Quadratic) Dimension() int { return q.dim }

// Bounds returns a unit box around the stationary point.
func (q *Quadratic) Bounds() *Bounds {
	lower := make([]float64, q.dim)
	upper := make([]float64, q.dim)
	for i := range lower {
		c := q.center.AtVec(i)
		lower[i], upper[i] = c-1, c+1
	}
	return &Bounds{Lower: lower, Upper: upper}
}
