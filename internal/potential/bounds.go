package potential

import (
	"fmt"
	"math"
)

// Bounds defines a box in coordinate space.
type Bounds struct {
	Lower []float64
	Upper []float64
}

// Dimension returns the number of coordinates of the box.
func (b *Bounds) Dimension() int {
	return len(b.Lower)
}

// Validate checks that both corners have the same length and Lower <= Upper.
func (b *Bounds) Validate() error {
	if len(b.Lower) != len(b.Upper) {
		return fmt.Errorf("%w: lower has %d components, upper %d", ErrDimension, len(b.Lower), len(b.Upper))
	}
	for i := range b.Lower {
		if b.Lower[i] > b.Upper[i] {
			return fmt.Errorf("bounds[%d]: lower %g exceeds upper %g", i, b.Lower[i], b.Upper[i])
		}
	}
	return nil
}

// Contains reports whether p lies inside the box.
func (b *Bounds) Contains(p []float64) bool {
	if len(p) != len(b.Lower) {
		return false
	}
	for i, v := range p {
		if v < b.Lower[i] || v > b.Upper[i] {
			return false
		}
	}
	return true
}

// ClampVector clamps all coordinates of data into the box, in place.
func (b *Bounds) ClampVector(data []float64) {
	for i := range data {
		data[i] = clamp(data[i], b.Lower[i], b.Upper[i])
	}
}

// Midpoint returns the center of the box.
func (b *Bounds) Midpoint() []float64 {
	mid := make([]float64, len(b.Lower))
	for i := range mid {
		mid[i] = 0.5 * (b.Lower[i] + b.Upper[i])
	}
	return mid
}

func clamp(val, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, val))
}
