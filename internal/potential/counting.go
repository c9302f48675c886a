package potential

import "sync/atomic"

// Counting wraps an evaluator and counts its calls. Hook, if set, runs
// after every call, successful or not.
type Counting struct {
	Inner Evaluator
	Hook  func()

	calls atomic.Int64
}

// NewCounting wraps inner.
func NewCounting(inner Evaluator) *Counting {
	return &Counting{Inner: inner}
}

// Evaluate delegates to the wrapped evaluator.
func (c *Counting) Evaluate(position []float64) (float64, []float64, error) {
	c.calls.Add(1)
	if c.Hook != nil {
		defer c.Hook()
	}
	return c.Inner.Evaluate(position)
}

// Calls returns the number of evaluations so far.
func (c *Counting) Calls() int64 {
	return c.calls.Load()
}
