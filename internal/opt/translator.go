package opt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/saddlefind/internal/dimer"
)

// StopReason explains why a saddle search ended
type StopReason string

const (
	ReasonConverged StopReason = "converged"
	ReasonMaxSteps  StopReason = "max_steps"
	ReasonStalled   StopReason = "stalled"
	ReasonCancelled StopReason = "cancelled"
)

// DefaultStepSize scales the effective force into a translation step
const DefaultStepSize = 0.1

// StepReport describes one translation step. Center is the position the
// dimer was evaluated at; Next is the center the step moves to, nil when
// the search stops at this step.
type StepReport struct {
	Iteration   int
	Center      []float64
	Next        []float64
	Orientation []float64
	Output      *dimer.Output
	// Evaluations is the cumulative number of evaluator calls
	Evaluations int
	Elapsed     time.Duration
}

// Observer is called after every translation step
type Observer func(StepReport)

// SearchResult is the outcome of a saddle search
type SearchResult struct {
	Center      []float64  `json:"center" yaml:"center"`
	Energy      float64    `json:"energy" yaml:"energy"`
	Curvature   float64    `json:"curvature" yaml:"curvature"`
	Mode        []float64  `json:"mode" yaml:"mode"`
	FMax        float64    `json:"fmax" yaml:"fmax"`
	Steps       int        `json:"steps" yaml:"steps"`
	Evaluations int        `json:"evaluations" yaml:"evaluations"`
	Converged   bool       `json:"converged" yaml:"converged"`
	Reason      StopReason `json:"reason" yaml:"reason"`
}

// Translator moves a dimer center along the effective force until the
// maximum force component drops below Options.FMax.
type Translator struct {
	// StepSize scales the effective force into a displacement; the
	// displacement is then capped to Options.MaxStepSize
	StepSize float64
	Stall    ConvergenceConfig
	Observer Observer
	// StartIteration offsets the reported iteration numbers, for resumed searches
	StartIteration int
}

// NewTranslator returns a translator with the default step size and stall detection
func NewTranslator() *Translator {
	return &Translator{
		StepSize: DefaultStepSize,
		Stall:    DefaultConvergenceConfig(),
	}
}

// Run drives d until convergence, the step limit, a stall or cancellation
// of ctx. On cancellation the partial result is returned together with
// ctx.Err(). Evaluator failures abort the search.
func (t *Translator) Run(ctx context.Context, d *dimer.Dimer) (*SearchResult, error) {
	if !(t.StepSize > 0) {
		return nil, fmt.Errorf("step size must be positive, got %g", t.StepSize)
	}
	opts := d.Options()
	tracker := NewConvergenceTracker(t.Stall)
	start := time.Now()

	res := &SearchResult{Reason: ReasonMaxSteps}
	slog.Info("Starting saddle search",
		"dimension", len(d.Center()),
		"fmax", opts.FMax,
		"max_steps", opts.MaxTranslations,
		"step_size", t.StepSize,
	)

	for step := 1; step <= opts.MaxTranslations; step++ {
		if err := ctx.Err(); err != nil {
			res.Reason = ReasonCancelled
			slog.Info("Saddle search cancelled", "steps", res.Steps)
			return res, err
		}

		center := d.Center()
		out, err := d.Evaluate()
		if err != nil {
			return res, fmt.Errorf("translation step %d: %w", t.StartIteration+step, err)
		}

		res.Center = center
		res.Energy = out.TotalEnergy
		res.Curvature = out.Curvature
		res.Mode = out.CurvatureMode
		res.FMax = out.FMax
		res.Steps = step
		res.Evaluations = d.Evaluations()

		slog.Debug("Translation step",
			"iteration", t.StartIteration+step,
			"energy", out.TotalEnergy,
			"curvature", out.Curvature,
			"fmax", out.FMax,
			"rotations", out.Rotations,
		)

		converged := out.FMax <= opts.FMax
		stalled := !converged && tracker.Update(out.FMax)
		var next []float64
		if !converged && !stalled {
			next = floats.AddTo(make([]float64, len(center)), center, t.step(out.EffectiveForce, opts.MaxStepSize))
		}

		if t.Observer != nil {
			t.Observer(StepReport{
				Iteration:   t.StartIteration + step,
				Center:      center,
				Next:        next,
				Orientation: d.Orientation(),
				Output:      out,
				Evaluations: res.Evaluations,
				Elapsed:     time.Since(start),
			})
		}

		if converged {
			res.Converged = true
			res.Reason = ReasonConverged
			break
		}
		if stalled {
			res.Reason = ReasonStalled
			break
		}
		if err := d.SetCenter(next); err != nil {
			return res, err
		}
	}

	slog.Info("Saddle search finished",
		"reason", res.Reason,
		"steps", res.Steps,
		"energy", res.Energy,
		"curvature", res.Curvature,
		"fmax", res.FMax,
		"evaluations", res.Evaluations,
		"elapsed", time.Since(start),
	)
	return res, nil
}

// step returns StepSize*force scaled down to a length of at most maxStep.
func (t *Translator) step(force []float64, maxStep float64) []float64 {
	delta := append([]float64(nil), force...)
	floats.Scale(t.StepSize, delta)
	if n := floats.Norm(delta, 2); n > maxStep {
		floats.Scale(maxStep/n, delta)
	}
	return delta
}
