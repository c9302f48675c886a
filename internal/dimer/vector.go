package dimer

import "gonum.org/v1/gonum/floats"

// Small helpers over gonum/floats. All of them allocate their result and
// never modify their arguments.

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}

func norm(v []float64) float64 {
	return floats.Norm(v, 2)
}

// normalize returns v/|v|. A zero vector is returned unchanged.
func normalize(v []float64) []float64 {
	out := clone(v)
	if n := norm(v); n > 0 {
		floats.Scale(1/n, out)
	}
	return out
}

// addScaled returns a + alpha*b.
func addScaled(a []float64, alpha float64, b []float64) []float64 {
	out := make([]float64, len(a))
	floats.AddScaledTo(out, a, alpha, b)
	return out
}

// project returns the component of v along the unit vector t.
func project(v, t []float64) []float64 {
	out := clone(t)
	floats.Scale(floats.Dot(v, t), out)
	return out
}

// reject returns the component of v perpendicular to the unit vector t.
func reject(v, t []float64) []float64 {
	return addScaled(v, -floats.Dot(v, t), t)
}

// cosineSimilarity returns a·b/(|a||b|), or 0 if either vector is zero.
func cosineSimilarity(a, b []float64) float64 {
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// maxAbs returns the largest absolute component of v.
func maxAbs(v []float64) float64 {
	var m float64
	for _, x := range v {
		if x < 0 {
			x = -x
		}
		if x > m {
			m = x
		}
	}
	return m
}
