package potential

import "math"

// MullerBrown is the two dimensional Müller-Brown surface (Theor. Chim.
// Acta 53, 75 (1979)), the usual test case for saddle point searches.
//
// Stationary points:
//
//	minima   (-0.558, 1.442) (0.623, 0.028) (-0.050, 0.467)
//	saddles  (-0.822, 0.624) (0.212, 0.293)
type MullerBrown struct {
	A, a, b, c, x0, y0 [4]float64
}

// NewMullerBrown returns the surface with the standard parameters.
func NewMullerBrown() *MullerBrown {
	return &MullerBrown{
		A:  [4]float64{-200, -100, -170, 15},
		a:  [4]float64{-1, -1, -6.5, 0.7},
		b:  [4]float64{0, 0, 11, 0.6},
		c:  [4]float64{-10, -10, -6.5, 0.7},
		x0: [4]float64{1, 0, -0.5, -1},
		y0: [4]float64{0, 0.5, 1.5, 1},
	}
}

// Evaluate returns the energy and force at p = (x, y).
func (m *MullerBrown) Evaluate(p []float64) (float64, []float64, error) {
	if err := checkDim(p, 2); err != nil {
		return 0, nil, err
	}
	var e, gx, gy float64
	for k := 0; k < 4; k++ {
		dx, dy := p[0]-m.x0[k], p[1]-m.y0[k]
		t := m.A[k] * math.Exp(m.a[k]*dx*dx+m.b[k]*dx*dy+m.c[k]*dy*dy)
		e += t
		gx += t * (2*m.a[k]*dx + m.b[k]*dy)
		gy += t * (m.b[k]*dx + 2*m.c[k]*dy)
	}
	return e, []float64{-gx, -gy}, nil
}

// Dimension returns 2.
func (m *MullerBrown) Dimension() int { return 2 }

// Bounds returns the customary plotting window.
func (m *MullerBrown) Bounds() *Bounds {
	return &Bounds{Lower: []float64{-1.5, -0.5}, Upper: []float64{1.2, 2.0}}
}
