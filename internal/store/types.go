package store

import (
	"fmt"
	"math"
	"time"

	"github.com/cwbudde/saddlefind/internal/dimer"
)

// JobConfig holds the configuration of a saddle search job (checkpoint copy).
// This avoids import cycles with the server package.
type JobConfig struct {
	Potential   string        `json:"potential"`
	Dimension   int           `json:"dimension"`
	Center      []float64     `json:"center"`
	Orientation []float64     `json:"orientation,omitempty"`
	Options     dimer.Options `json:"options"`
	StepSize    float64       `json:"stepSize"`
	// StallPatience is the number of steps without force decrease before
	// the search stops (0 = disabled)
	StallPatience      int `json:"stallPatience,omitempty"`
	CheckpointInterval int `json:"checkpointInterval,omitempty"` // Checkpoint every N seconds (0 = disabled)
}

// Checkpoint is the state of a saddle search between translation steps.
//
// The dimer carries no hidden state across steps besides its center and
// orientation, so resuming from a checkpoint continues the search exactly.
// The conjugate gradient history is rebuilt inside every rotation anyway.
type Checkpoint struct {
	JobID string `json:"jobId"`

	// Center and Orientation are the dimer state to continue from
	Center      []float64 `json:"center"`
	Orientation []float64 `json:"orientation"`

	// Energy, Curvature and FMax describe the last evaluated step
	Energy    float64 `json:"energy"`
	Curvature float64 `json:"curvature"`
	FMax      float64 `json:"fmax"`

	// Iteration is the number of completed translation steps
	Iteration   int  `json:"iteration"`
	Evaluations int  `json:"evaluations"`
	Converged   bool `json:"converged"`

	Timestamp time.Time `json:"timestamp"`

	// Config is used to check that a resumed job matches the saved one
	Config JobConfig `json:"config"`
}

// CheckpointInfo is the checkpoint metadata shown in listings.
type CheckpointInfo struct {
	JobID     string    `json:"jobId"`
	Potential string    `json:"potential"`
	Dimension int       `json:"dimension"`
	Energy    float64   `json:"energy"`
	Curvature float64   `json:"curvature"`
	FMax      float64   `json:"fmax"`
	Iteration int       `json:"iteration"`
	Converged bool      `json:"converged"`
	Timestamp time.Time `json:"timestamp"`
}

// ToInfo converts a full Checkpoint to CheckpointInfo (metadata only).
func (c *Checkpoint) ToInfo() CheckpointInfo {
	return CheckpointInfo{
		JobID:     c.JobID,
		Potential: c.Config.Potential,
		Dimension: len(c.Center),
		Energy:    c.Energy,
		Curvature: c.Curvature,
		FMax:      c.FMax,
		Iteration: c.Iteration,
		Converged: c.Converged,
		Timestamp: c.Timestamp,
	}
}

// Validate checks if the checkpoint has valid data.
func (c *Checkpoint) Validate() error {
	if c.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if len(c.Center) == 0 {
		return &ValidationError{Field: "Center", Reason: "cannot be empty"}
	}
	if len(c.Orientation) != len(c.Center) {
		return &ValidationError{
			Field:  "Orientation",
			Reason: fmt.Sprintf("has %d components, center has %d", len(c.Orientation), len(c.Center)),
		}
	}
	var n float64
	for i := range c.Center {
		if !finite(c.Center[i]) || !finite(c.Orientation[i]) {
			return &ValidationError{Field: "Center", Reason: "must be finite"}
		}
		n += c.Orientation[i] * c.Orientation[i]
	}
	if n == 0 {
		return &ValidationError{Field: "Orientation", Reason: "cannot be a zero vector"}
	}
	if !finite(c.Energy) || !finite(c.Curvature) || !finite(c.FMax) {
		return &ValidationError{Field: "Energy", Reason: "energy, curvature and fmax must be finite"}
	}
	if c.Iteration < 0 {
		return &ValidationError{Field: "Iteration", Reason: "cannot be negative"}
	}
	if c.Evaluations < 0 {
		return &ValidationError{Field: "Evaluations", Reason: "cannot be negative"}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if c.Config.Potential == "" {
		return &ValidationError{Field: "Config.Potential", Reason: "cannot be empty"}
	}
	if c.Config.Dimension != 0 && c.Config.Dimension != len(c.Center) {
		return &ValidationError{
			Field:  "Center",
			Reason: fmt.Sprintf("has %d components, config dimension is %d", len(c.Center), c.Config.Dimension),
		}
	}
	if err := c.Config.Options.Validate(); err != nil {
		return &ValidationError{Field: "Config.Options", Reason: err.Error()}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidationError represents a checkpoint validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks if this checkpoint can be resumed with the given config.
// The potential and the dimension must match; options may differ.
func (c *Checkpoint) IsCompatible(config JobConfig) error {
	if c.Config.Potential != config.Potential {
		return &CompatibilityError{
			Field:    "Potential",
			Expected: c.Config.Potential,
			Actual:   config.Potential,
		}
	}
	if config.Dimension != 0 && len(c.Center) != config.Dimension {
		return &CompatibilityError{
			Field:    "Dimension",
			Expected: fmt.Sprintf("%d", len(c.Center)),
			Actual:   fmt.Sprintf("%d", config.Dimension),
		}
	}
	return nil
}

// CompatibilityError represents a checkpoint compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
