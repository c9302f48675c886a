package opt

import (
	"log/slog"
	"math"
)

// ConvergenceConfig defines when a saddle search counts as stalled
type ConvergenceConfig struct {
	// Enabled controls whether stall detection is active
	Enabled bool

	// Patience is the number of translation steps without a significant
	// drop of the maximum force component before stopping
	Patience int

	// Threshold is the minimum relative decrease of FMax that counts as progress.
	// Relative decrease = (lastSignificant - fmax) / lastSignificant
	Threshold float64
}

// DefaultConvergenceConfig returns the stall detection defaults
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled:   true,
		Patience:  20,
		Threshold: 0.001,
	}
}

// DisabledConvergenceConfig returns a config with stall detection disabled
func DisabledConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled: false,
	}
}

// ConvergenceTracker follows the maximum force component across translation
// steps and reports when it stops decreasing
type ConvergenceTracker struct {
	config          ConvergenceConfig
	history         []float64
	best            float64
	lastSignificant float64
	staleCount      int
}

// NewConvergenceTracker creates a tracker with the given config
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	return &ConvergenceTracker{
		config:          config,
		best:            math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records the FMax of a step and returns true once the search has stalled
func (c *ConvergenceTracker) Update(fmax float64) bool {
	if !c.config.Enabled {
		return false
	}

	c.history = append(c.history, fmax)
	c.best = math.Min(c.best, fmax)

	if len(c.history) == 1 {
		c.lastSignificant = fmax
		return false
	}

	decrease := (c.lastSignificant - fmax) / c.lastSignificant
	if decrease >= c.config.Threshold {
		c.lastSignificant = fmax
		c.staleCount = 0
		return false
	}

	c.staleCount++
	slog.Debug("No significant force decrease",
		"fmax", fmax,
		"last_significant", c.lastSignificant,
		"relative_decrease", decrease,
		"stale_count", c.staleCount,
		"patience", c.config.Patience,
	)

	if c.staleCount >= c.config.Patience {
		slog.Info("Saddle search stalled",
			"stale_count", c.staleCount,
			"patience", c.config.Patience,
			"best_fmax", c.best,
		)
		return true
	}
	return false
}

// Best returns the lowest FMax seen so far
func (c *ConvergenceTracker) Best() float64 {
	return c.best
}

// History returns a copy of the recorded FMax values
func (c *ConvergenceTracker) History() []float64 {
	return append([]float64{}, c.history...)
}

// StaleCount returns the current number of steps without progress
func (c *ConvergenceTracker) StaleCount() int {
	return c.staleCount
}

// Reset clears the tracker's state
func (c *ConvergenceTracker) Reset() {
	c.history = nil
	c.best = math.Inf(1)
	c.lastSignificant = math.Inf(1)
	c.staleCount = 0
}
