package dimer

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTrialAngle is returned when a Fourier fit is requested for a
	// trial angle that is a multiple of π. The curvature sample at such an
	// angle carries no information about the rotation.
	ErrInvalidTrialAngle = errors.New("dimer: trial rotation angle is a multiple of pi")

	// ErrDegenerateRotationalForce is returned when the rotational force has
	// no component perpendicular to the dimer axis, so no rotation plane exists.
	ErrDegenerateRotationalForce = errors.New("dimer: rotational force has zero norm")

	// ErrDimensionMismatch indicates vectors of different lengths were mixed.
	ErrDimensionMismatch = errors.New("dimer: dimension mismatch")

	// ErrInvalidOptions is wrapped by Options.Validate.
	ErrInvalidOptions = errors.New("dimer: invalid options")
)

// EvaluationError wraps a failure reported by the evaluator.
// The search is aborted and no partial state should be reused.
type EvaluationError struct {
	Position []float64
	Err      error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("dimer: evaluation failed at %d-dimensional position: %v", len(e.Position), e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}
