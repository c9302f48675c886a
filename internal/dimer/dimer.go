// Package dimer locates first-order saddle points with the dimer method.
//
// A dimer is a pair of closely spaced images. Finite differences of their
// forces give the curvature along the dimer axis without a Hessian. Each
// call to Dimer.Evaluate rotates the dimer into the lowest curvature mode at
// the current center and returns an effective force that points uphill along
// that mode and downhill in all other directions. Moving the center along
// the effective force is left to the caller.
package dimer

import (
	"fmt"
	"log/slog"
)

// Evaluator computes the energy and the force (negative gradient) of a
// potential at a position. Implementations may be arbitrarily expensive.
type Evaluator interface {
	Evaluate(position []float64) (energy float64, force []float64, err error)
}

// EvaluatorFunc adapts a plain function to the Evaluator interface.
type EvaluatorFunc func(position []float64) (float64, []float64, error)

// Evaluate calls f(position).
func (f EvaluatorFunc) Evaluate(position []float64) (float64, []float64, error) {
	return f(position)
}

// Output is the result of one dimer step at a fixed center.
type Output struct {
	// TotalEnergy is the energy at the dimer center
	TotalEnergy float64 `json:"totalEnergy"`
	// EffectiveForce is the force handed to the translation minimizer
	EffectiveForce []float64 `json:"effectiveForce"`
	// FMax is the largest absolute component of EffectiveForce
	FMax float64 `json:"fmax"`
	// FMaxReal is the largest absolute component of the real center force
	FMaxReal float64 `json:"fmaxReal"`
	// Curvature is the lowest curvature found
	Curvature float64 `json:"curvature"`
	// CurvatureMode is the unit lowest curvature mode
	CurvatureMode []float64 `json:"curvatureMode"`
	// Rotations is the number of rotation iterations used
	Rotations int `json:"rotations"`
	// Evaluations is the number of evaluator calls spent by this step
	Evaluations int `json:"evaluations"`
}

// Dimer owns the state of a saddle point search between translation steps:
// the center, the current orientation and the options. The evaluator is
// borrowed. A Dimer is not safe for concurrent use.
type Dimer struct {
	eval        Evaluator
	opts        Options
	center      []float64
	orientation []float64
	evaluations int
}

// New constructs a dimer at center with the given axis orientation. The
// orientation does not need to be normalized but must not be zero.
func New(center, orientation []float64, eval Evaluator, opts Options) (*Dimer, error) {
	if len(center) == 0 {
		return nil, fmt.Errorf("%w: empty center", ErrDimensionMismatch)
	}
	if len(center) != len(orientation) {
		return nil, fmt.Errorf("%w: center has %d components, orientation %d",
			ErrDimensionMismatch, len(center), len(orientation))
	}
	if norm(orientation) == 0 {
		return nil, fmt.Errorf("%w: orientation cannot be a zero vector", ErrInvalidOptions)
	}
	if eval == nil {
		return nil, fmt.Errorf("dimer: evaluator is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	// validated above, so both parse
	opts.CGBeta, _ = ParseBetaKind(string(opts.CGBeta))
	opts.CGRestart, _ = ParseRestartMethod(string(opts.CGRestart))
	return &Dimer{
		eval:        eval,
		opts:        opts,
		center:      clone(center),
		orientation: normalize(orientation),
	}, nil
}

// Center returns a copy of the dimer center.
func (d *Dimer) Center() []float64 { return clone(d.center) }

// Orientation returns a copy of the unit dimer axis.
func (d *Dimer) Orientation() []float64 { return clone(d.orientation) }

// Options returns the algorithm parameters.
func (d *Dimer) Options() Options { return d.opts }

// Evaluations returns the total number of evaluator calls made so far.
func (d *Dimer) Evaluations() int { return d.evaluations }

// SetCenter moves the dimer center. The orientation is kept as the starting
// guess for the next rotation.
func (d *Dimer) SetCenter(center []float64) error {
	if len(center) != len(d.center) {
		return fmt.Errorf("%w: center has %d components, want %d", ErrDimensionMismatch, len(center), len(d.center))
	}
	d.center = clone(center)
	return nil
}

// Evaluate rotates the dimer into the lowest curvature mode at the current
// center and returns the center energy and the effective translation force.
func (d *Dimer) Evaluate() (*Output, error) {
	start := d.evaluations

	raw, err := d.newRawDimer()
	if err != nil {
		return nil, err
	}

	rot, err := d.optimalRotation(raw)
	if err != nil {
		return nil, err
	}

	force := TranslationForce(raw.F0, rot.Curvature, rot.Mode)
	return &Output{
		TotalEnergy:    raw.E0,
		EffectiveForce: force,
		FMax:           maxAbs(force),
		FMaxReal:       maxAbs(raw.F0),
		Curvature:      rot.Curvature,
		CurvatureMode:  rot.Mode,
		Rotations:      rot.Iterations,
		Evaluations:    d.evaluations - start,
	}, nil
}

// evaluate calls the evaluator on a private copy of position and checks the
// returned force.
func (d *Dimer) evaluate(position []float64) (float64, []float64, error) {
	d.evaluations++
	energy, force, err := d.eval.Evaluate(clone(position))
	if err != nil {
		return 0, nil, &EvaluationError{Position: clone(position), Err: err}
	}
	if len(force) != len(position) {
		return 0, nil, &EvaluationError{
			Position: clone(position),
			Err:      fmt.Errorf("%w: force has %d components, want %d", ErrDimensionMismatch, len(force), len(position)),
		}
	}
	slog.Debug("Evaluated potential", "energy", energy, "evaluations", d.evaluations)
	return energy, clone(force), nil
}
