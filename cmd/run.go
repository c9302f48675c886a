package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/saddlefind/internal/config"
	"github.com/cwbudde/saddlefind/internal/opt"
	"github.com/cwbudde/saddlefind/internal/potential"
)

var (
	configPath   string
	potentialArg string
	dimension    int
	centerArg    []float64
	orientArg    []float64
	stepSize     float64
	fmaxArg      float64
	maxSteps     int
	stallArg     int
	useSeed      bool
	seedIters    int
	seedPop      int
	seedRandom   int64
	outPath      string
	runDataDir   string
	runJobID     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single saddle search",
	Long: `Runs a dimer saddle search on a model potential and writes the result.

The search is configured from a YAML file (--config), flags, or both; flags
override the file. With --seed the start point is found by a mayfly search
for the basin minimum. With --data-dir a checkpoint and a step trace are
written so the search can be resumed.`,
	Args: cobra.NoArgs,
	RunE: runSearch,
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Search configuration YAML file")
	runCmd.Flags().StringVar(&potentialArg, "potential", "", fmt.Sprintf("Potential energy surface (%v)", potential.Names()))
	runCmd.Flags().IntVar(&dimension, "dim", 0, "Dimension of variable-size surfaces (0 = default)")
	runCmd.Flags().Float64SliceVar(&centerArg, "center", nil, "Start position, comma separated")
	runCmd.Flags().Float64SliceVar(&orientArg, "orientation", nil, "Initial dimer orientation, comma separated")
	runCmd.Flags().Float64Var(&stepSize, "step", opt.DefaultStepSize, "Translation step size")
	runCmd.Flags().Float64Var(&fmaxArg, "fmax", 0, "Force convergence criterion (0 = configured default)")
	runCmd.Flags().IntVar(&maxSteps, "max-steps", 0, "Maximum translation steps (0 = configured default)")
	runCmd.Flags().IntVar(&stallArg, "stall", 0, "Stop after N steps without force decrease (0 = disabled)")
	runCmd.Flags().BoolVar(&useSeed, "seed", false, "Start from the basin minimum found by a mayfly search")
	runCmd.Flags().IntVar(&seedIters, "seed-iters", 200, "Mayfly iterations for --seed")
	runCmd.Flags().IntVar(&seedPop, "seed-pop", 20, "Mayfly population for --seed")
	runCmd.Flags().Int64Var(&seedRandom, "seed-random", 1, "Random seed for --seed")
	runCmd.Flags().StringVarP(&outPath, "out", "o", "-", "Result file (.yaml, .yml or .json; - for stdout)")
	runCmd.Flags().StringVar(&runDataDir, "data-dir", "", "Directory for checkpoint and trace (empty = none)")
	runCmd.Flags().StringVar(&runJobID, "job-id", "", "Job ID for checkpoint and trace (default: random)")

	rootCmd.AddCommand(runCmd)
}

// buildSearchConfig merges the config file and the flags that were set
func buildSearchConfig(cmd *cobra.Command) (*config.SearchConfig, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("potential") {
		cfg.Potential = potentialArg
	}
	if flags.Changed("dim") {
		cfg.Dimension = dimension
	}
	if flags.Changed("center") {
		cfg.Center = centerArg
	}
	if flags.Changed("orientation") {
		cfg.Orientation = orientArg
	}
	if flags.Changed("step") {
		cfg.StepSize = stepSize
	}
	if flags.Changed("fmax") {
		cfg.Options.FMax = fmaxArg
	}
	if flags.Changed("max-steps") {
		cfg.Options.MaxTranslations = maxSteps
	}
	if flags.Changed("stall") {
		cfg.StallPatience = stallArg
	}
	if useSeed {
		if cfg.Seed == nil {
			cfg.Seed = config.DefaultSeed()
		}
		if flags.Changed("seed-iters") {
			cfg.Seed.Iterations = seedIters
		}
		if flags.Changed("seed-pop") {
			cfg.Seed.Population = seedPop
		}
		if flags.Changed("seed-random") {
			cfg.Seed.RandomSeed = seedRandom
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// startPoint returns the dimer center and orientation. With a seed block
// the center is the basin minimum displaced along the orientation, since
// the force vanishes at the minimum itself.
func startPoint(cfg *config.SearchConfig) ([]float64, []float64, error) {
	surface, err := cfg.Surface()
	if err != nil {
		return nil, nil, err
	}
	dim := surface.Dimension()
	orientation := cfg.InitialOrientation(dim)
	if cfg.Seed == nil {
		return append([]float64(nil), cfg.Center...), orientation, nil
	}

	optimizer := opt.NewMayfly(cfg.Seed.Iterations, cfg.Seed.Population, cfg.Seed.RandomSeed)
	seed, err := opt.SeedMinimum(surface, surface.Bounds(), optimizer)
	if err != nil {
		return nil, nil, fmt.Errorf("basin search failed: %w", err)
	}

	scale := cfg.Seed.Displacement / floats.Norm(orientation, 2)
	center := make([]float64, dim)
	for i := range center {
		center[i] = seed.Position[i] + scale*orientation[i]
	}
	slog.Info("Seeded start point", "minimum_energy", seed.Energy, "evaluations", seed.Evaluations, "center", center)
	return center, orientation, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := buildSearchConfig(cmd)
	if err != nil {
		return err
	}

	center, orientation, err := startPoint(cfg)
	if err != nil {
		return err
	}

	jobID := runJobID
	if jobID == "" {
		jobID = uuid.New().String()
	}

	sr := &searchRun{
		jobID:  jobID,
		cfg:    cfg,
		center: center,
		orient: orientation,
	}
	if runDataDir != "" {
		st, release, err := storageFlags{dataDir: runDataDir}.open()
		if err != nil {
			return err
		}
		defer release()
		sr.store = st
		sr.traceDir = runDataDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting search", "job_id", jobID, "potential", cfg.Potential, "center", center)
	start := time.Now()
	res, err := sr.execute(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if res == nil {
		return err
	}

	if werr := writeResult(cmd.OutOrStdout(), outPath, res); werr != nil {
		return werr
	}
	if outPath != "-" && outPath != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (%s after %d steps, curvature %.4g, %s)\n",
			outPath, res.Reason, res.Steps, res.Curvature, time.Since(start).Round(time.Millisecond))
	}
	if runDataDir != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Job ID: %s\n", jobID)
	}
	return err
}
