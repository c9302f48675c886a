package opt

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/saddlefind/internal/potential"
)

// Optimizer defines a derivative-free global minimizer
type Optimizer interface {
	// Run executes the optimization
	// eval: objective function to minimize
	// lower, upper: per-coordinate bounds
	// dim: dimensionality of the search space
	// Returns: best position and best cost
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64)
}

// Seed is a low energy starting point found by SeedMinimum
type Seed struct {
	Position    []float64
	Energy      float64
	Evaluations int
}

// SeedMinimum searches bounds for the lowest energy of eval. Saddle searches
// started from a basin minimum along a soft mode reach the neighbouring
// transition state more reliably than searches started from an arbitrary point.
// Evaluator failures are treated as infinitely high energy; if every call
// fails the first error is returned.
func SeedMinimum(eval potential.Evaluator, bounds *potential.Bounds, optimizer Optimizer) (*Seed, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	dim := bounds.Dimension()
	slog.Info("Starting basin search", "dimension", dim)

	var (
		calls, failures int
		firstErr        error
	)
	energy := func(x []float64) float64 {
		calls++
		p := append([]float64(nil), x...)
		bounds.ClampVector(p)
		e, _, err := eval.Evaluate(p)
		if err != nil {
			failures++
			if firstErr == nil {
				firstErr = err
			}
			return math.MaxFloat64
		}
		return e
	}

	best, _ := optimizer.Run(energy, bounds.Lower, bounds.Upper, dim)
	if failures == calls && firstErr != nil {
		return nil, fmt.Errorf("basin search: every evaluation failed: %w", firstErr)
	}

	bounds.ClampVector(best)
	e, _, err := eval.Evaluate(best)
	if err != nil {
		return nil, fmt.Errorf("basin search: evaluating best position: %w", err)
	}

	slog.Info("Basin search complete", "energy", e, "evaluations", calls+1, "failed_evaluations", failures)

	return &Seed{Position: best, Energy: e, Evaluations: calls + 1}, nil
}
