package dimer

import (
	"fmt"
	"math"
)

// Options tunes the dimer algorithm.
type Options struct {
	// FMax is the force component criterion for convergence of the
	// translation loop
	FMax float64 `yaml:"fmax" json:"fmax"`

	// Distance between image 0 and image 1
	Distance float64 `yaml:"distance" json:"distance"`

	// TrialRotAngle is the trial angle, in radians, for the finite
	// difference estimate of the rotational angle
	TrialRotAngle float64 `yaml:"trial_rot_angle" json:"trialRotAngle"`

	// UseFixedRotAngle uses TrialRotAngle as is instead of
	// min(TrialRotAngle, phi_est)
	UseFixedRotAngle bool `yaml:"use_fixed_rot_angle" json:"useFixedRotAngle"`

	// MinRotAngle is the estimated rotation angle below which the rotation
	// is considered converged
	MinRotAngle float64 `yaml:"min_rot_angle" json:"minRotAngle"`

	// MaxRotations bounds the rotation iterations per translation step
	MaxRotations int `yaml:"max_num_rot" json:"maxNumRot"`

	// MaxTranslations bounds the translation steps of a search
	MaxTranslations int `yaml:"max_num_trans" json:"maxNumTrans"`

	// UseExtrapolatedForce saves one evaluation per rotation by
	// interpolating the endpoint force at the optimal angle
	// (Kästner and Sherwood, J. Chem. Phys. 128, 014106)
	UseExtrapolatedForce bool `yaml:"use_extrapolated_force" json:"useExtrapolatedForce"`

	// UseCGRotation picks the rotation plane with conjugate gradients
	// instead of steepest descent
	UseCGRotation bool `yaml:"use_cg_rot" json:"useCgRot"`

	// MaxStepSize caps the translation step length
	MaxStepSize float64 `yaml:"max_step_size" json:"maxStepSize"`

	CGBeta    BetaKind      `yaml:"cg_beta" json:"cgBeta"`
	CGRestart RestartMethod `yaml:"cg_restart" json:"cgRestart"`
	CGDamping float64       `yaml:"cg_damping" json:"cgDamping"`
}

// DefaultOptions returns the default algorithm parameters.
func DefaultOptions() Options {
	return Options{
		FMax:                 0.1,
		Distance:             1e-3,
		TrialRotAngle:        math.Pi / 4,
		UseFixedRotAngle:     true,
		MinRotAngle:          5 * math.Pi / 180,
		MaxRotations:         5,
		MaxTranslations:      100,
		UseExtrapolatedForce: false,
		UseCGRotation:        true,
		// dimer needs a small step size
		MaxStepSize: 0.1,
		CGBeta:      BetaPolakRibiere,
		CGRestart:   RestartPowell,
		CGDamping:   0.8,
	}
}

// Validate checks the options for values the algorithm cannot work with.
func (o Options) Validate() error {
	invalid := func(field, reason string) error {
		return fmt.Errorf("%w: %s %s", ErrInvalidOptions, field, reason)
	}
	switch {
	case !(o.FMax > 0):
		return invalid("fmax", "must be positive")
	case !(o.Distance > 0):
		return invalid("distance", "must be positive")
	case !(o.MaxStepSize > 0):
		return invalid("max_step_size", "must be positive")
	case o.MaxRotations <= 0:
		return invalid("max_num_rot", "must be positive")
	case o.MaxTranslations <= 0:
		return invalid("max_num_trans", "must be positive")
	case o.MinRotAngle < 0:
		return invalid("min_rot_angle", "cannot be negative")
	case o.CGDamping < 0 || o.CGDamping > 1:
		return invalid("cg_damping", "must be within [0, 1]")
	}
	if math.Abs(math.Sin(o.TrialRotAngle)) < trialAngleTol {
		return invalid("trial_rot_angle", "cannot be a multiple of pi")
	}
	if _, err := ParseBetaKind(string(o.CGBeta)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	if _, err := ParseRestartMethod(string(o.CGRestart)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return nil
}
