package dimer

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// BetaKind selects the formula for the conjugate gradient beta constant.
// See https://en.wikipedia.org/wiki/Nonlinear_conjugate_gradient_method
type BetaKind string

const (
	// BetaPolakRibiere is the Polak-Ribiere formula
	BetaPolakRibiere BetaKind = "pr"
	// BetaFletcherReeves is the Fletcher-Reeves formula
	BetaFletcherReeves BetaKind = "fr"
	// BetaHestenesStiefel is the Hestenes-Stiefel formula
	BetaHestenesStiefel BetaKind = "hs"
	// BetaDaiYuan is the Dai-Yuan formula
	BetaDaiYuan BetaKind = "dy"
)

// ParseBetaKind parses a beta kind name, case insensitively.
func ParseBetaKind(s string) (BetaKind, error) {
	switch k := BetaKind(strings.ToLower(strings.TrimSpace(s))); k {
	case BetaPolakRibiere, BetaFletcherReeves, BetaHestenesStiefel, BetaDaiYuan:
		return k, nil
	}
	return "", fmt.Errorf("unknown cg beta kind %q (want pr, fr, hs or dy)", s)
}

// UnmarshalText parses the kind from YAML and JSON config values.
func (k *BetaKind) UnmarshalText(text []byte) error {
	parsed, err := ParseBetaKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// RestartMethod selects when the conjugate gradient falls back to steepest descent.
type RestartMethod string

const (
	// RestartPowell restarts when |f|^2 / (f . f_prev) >= 0.2
	RestartPowell RestartMethod = "powell"
	// RestartNegative restarts when beta < 0
	RestartNegative RestartMethod = "negative"
)

// powellThreshold is the loss-of-conjugacy ratio of the Powell restart.
const powellThreshold = 0.2

// ParseRestartMethod parses a restart method name, case insensitively.
func ParseRestartMethod(s string) (RestartMethod, error) {
	switch m := RestartMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case RestartPowell, RestartNegative:
		return m, nil
	}
	return "", fmt.Errorf("unknown cg restart method %q (want powell or negative)", s)
}

// UnmarshalText parses the method from YAML and JSON config values.
func (m *RestartMethod) UnmarshalText(text []byte) error {
	parsed, err := ParseRestartMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

type cgHistory struct {
	forces    []float64
	direction []float64
}

// ConjugateGradient generates search directions from a sequence of forces.
// It remembers one previous force/direction pair; a zero value with Beta,
// Restart and Damping filled in is ready to use.
type ConjugateGradient struct {
	Beta    BetaKind
	Restart RestartMethod
	// Damping scales beta to smooth out restarts
	Damping float64

	prev *cgHistory
}

// NewConjugateGradient returns a propagator with an empty history. Names
// are matched case insensitively.
func NewConjugateGradient(beta BetaKind, restart RestartMethod, damping float64) *ConjugateGradient {
	if k, err := ParseBetaKind(string(beta)); err == nil {
		beta = k
	}
	if m, err := ParseRestartMethod(string(restart)); err == nil {
		restart = m
	}
	return &ConjugateGradient{Beta: beta, Restart: restart, Damping: damping}
}

// Reset drops the stored history so the next call is a steepest descent step.
func (cg *ConjugateGradient) Reset() {
	cg.prev = nil
}

// Propagate returns the next unit search direction for forces, restricted to
// the hyperplane perpendicular to the unit vector axis. The history keeps the
// unnormalized direction so the result does not depend on the force scale.
func (cg *ConjugateGradient) Propagate(forces, axis []float64) []float64 {
	f := reject(forces, axis)

	if cg.prev == nil {
		cg.prev = &cgHistory{forces: f, direction: clone(f)}
		return normalize(f)
	}

	beta := cg.Damping * cg.restart(f, cg.beta(f))
	d := reject(addScaled(f, beta, cg.prev.direction), axis)

	cg.prev = &cgHistory{forces: f, direction: d}
	return normalize(d)
}

func (cg *ConjugateGradient) beta(f []float64) float64 {
	fPrev, dPrev := cg.prev.forces, cg.prev.direction
	y := make([]float64, len(f))
	floats.SubTo(y, f, fPrev)

	var num, den float64
	switch cg.Beta {
	case BetaFletcherReeves:
		num, den = floats.Dot(f, f), floats.Dot(fPrev, fPrev)
	case BetaHestenesStiefel:
		num, den = -floats.Dot(f, y), floats.Dot(dPrev, y)
	case BetaDaiYuan:
		num, den = floats.Dot(f, f), floats.Dot(dPrev, y)
	case BetaPolakRibiere:
		num, den = floats.Dot(f, y), floats.Dot(fPrev, fPrev)
	default:
		return 0
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func (cg *ConjugateGradient) restart(f []float64, beta float64) float64 {
	switch cg.Restart {
	case RestartNegative:
		return max(beta, 0)
	case RestartPowell:
		// the current force has lost orthogonality to the previous one
		if floats.Dot(f, f)/floats.Dot(f, cg.prev.forces) >= powellThreshold {
			return 0
		}
		return beta
	default:
		return beta
	}
}
