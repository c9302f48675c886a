// Package config loads saddle search configurations from YAML files.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/saddlefind/internal/dimer"
	"github.com/cwbudde/saddlefind/internal/opt"
	"github.com/cwbudde/saddlefind/internal/potential"
)

// SeedConfig enables a mayfly basin search before the saddle search. The
// search starts at the basin minimum displaced along the orientation.
type SeedConfig struct {
	Iterations   int     `yaml:"iterations"`
	Population   int     `yaml:"population"`
	RandomSeed   int64   `yaml:"random_seed"`
	Displacement float64 `yaml:"displacement"`
}

// SearchConfig describes one saddle search
type SearchConfig struct {
	Potential string `yaml:"potential"`
	// Dimension selects the size of variable-dimension surfaces; 0 uses the default
	Dimension   int       `yaml:"dimension,omitempty"`
	Center      []float64 `yaml:"center,omitempty"`
	Orientation []float64 `yaml:"orientation,omitempty"`

	StepSize      float64 `yaml:"step_size"`
	StallPatience int     `yaml:"stall_patience"`

	Options dimer.Options `yaml:"options"`
	Seed    *SeedConfig   `yaml:"seed,omitempty"`
}

// Default returns a configuration with the default dimer options and no
// potential selected.
func Default() *SearchConfig {
	return &SearchConfig{
		StepSize:      opt.DefaultStepSize,
		StallPatience: opt.DefaultConvergenceConfig().Patience,
		Options:       dimer.DefaultOptions(),
	}
}

// DefaultSeed returns the basin search defaults
func DefaultSeed() *SeedConfig {
	return &SeedConfig{Iterations: 200, Population: 20, RandomSeed: 1, Displacement: 0.1}
}

// Load reads a configuration from a YAML file. Fields missing from the file
// keep their defaults.
func Load(path string) (*SearchConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	if cfg.Seed != nil {
		seed := DefaultSeed()
		if err := yaml.Unmarshal(data, &struct {
			Seed *SeedConfig `yaml:"seed"`
		}{seed}); err != nil {
			return nil, fmt.Errorf("parsing seed block: %w", err)
		}
		cfg.Seed = seed
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file
func Save(path string, cfg *SearchConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Surface resolves the configured potential
func (c *SearchConfig) Surface() (potential.Surface, error) {
	if c.Potential == "" {
		return nil, fmt.Errorf("potential is required")
	}
	return potential.Lookup(c.Potential, c.Dimension)
}

// Validate checks the configuration against the selected surface
func (c *SearchConfig) Validate() error {
	surface, err := c.Surface()
	if err != nil {
		return err
	}
	dim := surface.Dimension()

	if c.Seed == nil && len(c.Center) == 0 {
		return fmt.Errorf("center is required unless a seed block is given")
	}
	if len(c.Center) > 0 && len(c.Center) != dim {
		return fmt.Errorf("center has %d components, %s is %d dimensional", len(c.Center), c.Potential, dim)
	}
	if len(c.Orientation) > 0 {
		if len(c.Orientation) != dim {
			return fmt.Errorf("orientation has %d components, %s is %d dimensional", len(c.Orientation), c.Potential, dim)
		}
		var n float64
		for _, v := range c.Orientation {
			n += v * v
		}
		if n == 0 {
			return fmt.Errorf("orientation cannot be a zero vector")
		}
	}
	if !(c.StepSize > 0) {
		return fmt.Errorf("step_size must be positive")
	}
	if c.StallPatience < 0 {
		return fmt.Errorf("stall_patience cannot be negative")
	}
	if c.Seed != nil {
		if c.Seed.Iterations <= 0 {
			return fmt.Errorf("seed.iterations must be positive")
		}
		if c.Seed.Displacement <= 0 {
			return fmt.Errorf("seed.displacement must be positive")
		}
	}
	return c.Options.Validate()
}

// InitialOrientation returns the configured orientation, or the normalized
// diagonal (1, 1, ..., 1) when none is set.
func (c *SearchConfig) InitialOrientation(dim int) []float64 {
	if len(c.Orientation) > 0 {
		return append([]float64(nil), c.Orientation...)
	}
	out := make([]float64, dim)
	for i := range out {
		out[i] = 1 / math.Sqrt(float64(dim))
	}
	return out
}

// StallConfig returns the stall detection for the translator. A patience
// of 0 disables it.
func (c *SearchConfig) StallConfig() opt.ConvergenceConfig {
	if c.StallPatience == 0 {
		return opt.DisabledConvergenceConfig()
	}
	stall := opt.DefaultConvergenceConfig()
	stall.Patience = c.StallPatience
	return stall
}
