// Package potential provides analytic potential energy surfaces used to
// drive and test saddle point searches.
package potential

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrDimension is returned when a position has the wrong number of components.
var ErrDimension = errors.New("potential: wrong dimension")

// Evaluator computes energy and force at a position. It has the same shape
// as dimer.Evaluator.
type Evaluator interface {
	Evaluate(position []float64) (energy float64, force []float64, err error)
}

// Surface is an analytic potential with a known dimension and a box that
// contains its interesting features.
type Surface interface {
	Evaluator
	Dimension() int
	Bounds() *Bounds
}

func checkDim(position []float64, dim int) error {
	if len(position) != dim {
		return fmt.Errorf("%w: got %d components, want %d", ErrDimension, len(position), dim)
	}
	return nil
}

type factory func(dim int) (Surface, error)

var registry = map[string]factory{
	"quadratic": func(dim int) (Surface, error) {
		return NewDiagonalQuadratic(defaultEigenvalues(dim)), nil
	},
	"muller-brown": func(dim int) (Surface, error) {
		if dim != 0 && dim != 2 {
			return nil, fmt.Errorf("%w: muller-brown is two dimensional", ErrDimension)
		}
		return NewMullerBrown(), nil
	},
	"double-well": func(dim int) (Surface, error) {
		return NewDoubleWell(1, 1, 1, dim)
	},
}

// Lookup returns the named surface. dim is ignored by fixed-dimension
// surfaces unless it contradicts them; 0 selects the default dimension.
func Lookup(name string, dim int) (Surface, error) {
	f, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown potential %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	if dim < 0 {
		return nil, fmt.Errorf("%w: negative dimension %d", ErrDimension, dim)
	}
	return f(dim)
}

// Names returns the registered surface names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// defaultEigenvalues returns -1, 1, 2, ... so the origin is a first-order
// saddle with a single negative mode.
func defaultEigenvalues(dim int) []float64 {
	if dim < 2 {
		dim = 2
	}
	ev := make([]float64, dim)
	ev[0] = -1
	for i := 1; i < dim; i++ {
		ev[i] = float64(i)
	}
	return ev
}
