package dimer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/saddlefind/internal/potential"
)

// rotatedHessian returns Q diag(eigenvalues) Q^T where Q is a product of
// Givens rotations by angle in every coordinate plane (i, i+1).
func rotatedHessian(eigenvalues []float64, angle float64) *mat.SymDense {
	n := len(eigenvalues)
	q := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		q.Set(i, i, 1)
	}
	for i := 0; i+1 < n; i++ {
		g := mat.NewDense(n, n, nil)
		for k := 0; k < n; k++ {
			g.Set(k, k, 1)
		}
		c, s := math.Cos(angle*float64(i+1)), math.Sin(angle*float64(i+1))
		g.Set(i, i, c)
		g.Set(i, i+1, -s)
		g.Set(i+1, i, s)
		g.Set(i+1, i+1, c)
		q.Mul(q, g)
	}
	d := mat.NewDiagDense(n, eigenvalues)
	var h mat.Dense
	h.Product(q, d, q.T())

	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, 0.5*(h.At(i, j)+h.At(j, i)))
		}
	}
	return sym
}

// lowestMode returns the smallest eigenvalue of h and its eigenvector.
func lowestMode(t *testing.T, h *mat.SymDense) (float64, []float64) {
	t.Helper()
	var es mat.EigenSym
	require.True(t, es.Factorize(h, true))
	values := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)
	n, _ := h.Dims()
	v := make([]float64, n)
	mat.Col(v, 0, &vecs)
	return values[0], v
}

func newQuadratic(t *testing.T, h *mat.SymDense) *potential.Quadratic {
	t.Helper()
	q, err := potential.NewQuadratic(h, nil)
	require.NoError(t, err)
	return q
}

// rawDimerAt evaluates a dimer at center r0 along orientation n.
func rawDimerAt(t *testing.T, eval Evaluator, r0, n []float64, dr float64) *RawDimer {
	t.Helper()
	n = normalize(n)
	e0, f0, err := eval.Evaluate(r0)
	require.NoError(t, err)
	r1 := addScaled(r0, dr, n)
	_, f1, err := eval.Evaluate(r1)
	require.NoError(t, err)
	return &RawDimer{R0: clone(r0), F0: f0, R1: r1, F1: f1, E0: e0}
}

// quadForm returns a^T H b.
func quadForm(h *mat.SymDense, a, b []float64) float64 {
	n := len(a)
	return mat.Inner(mat.NewVecDense(n, clone(a)), h, mat.NewVecDense(n, clone(b)))
}

func absDot(a, b []float64) float64 {
	return math.Abs(floats.Dot(a, b))
}
