package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cwbudde/saddlefind/internal/config"
	"github.com/cwbudde/saddlefind/internal/store"
)

var (
	resumeStorage storageFlags
	resumeConfig  string
	resumeOut     string
	extraSteps    int
)

var resumeCmd = &cobra.Command{
	Use:   "resume [job-id]",
	Short: "Resume a saddle search from its checkpoint",
	Long: `Continues a saddle search from the center and orientation stored in its
checkpoint. The trace is appended to and the checkpoint is replaced when
the search ends.

With --config the options of the file replace the saved ones; the
potential and dimension must match the checkpoint.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeStorage.dataDir, "data-dir", "./data", "Directory for checkpoints and traces")
	resumeCmd.Flags().StringVar(&resumeStorage.redisAddr, "redis", "", "Redis address for checkpoints (empty = filesystem)")
	resumeCmd.Flags().IntVar(&resumeStorage.redisDB, "redis-db", 0, "Redis database number")
	resumeCmd.Flags().StringVar(&resumeConfig, "config", "", "Search configuration YAML replacing the saved options")
	resumeCmd.Flags().StringVarP(&resumeOut, "out", "o", "-", "Result file (.yaml, .yml or .json; - for stdout)")
	resumeCmd.Flags().IntVar(&extraSteps, "steps", 0, "Translation steps to run (0 = until the saved step limit)")
	rootCmd.AddCommand(resumeCmd)
}

// resumeSearchConfig rebuilds the search configuration of a checkpoint,
// optionally replaced by a config file with the same potential
func resumeSearchConfig(cp *store.Checkpoint, path string) (*config.SearchConfig, error) {
	if path == "" {
		return &config.SearchConfig{
			Potential:     cp.Config.Potential,
			Dimension:     cp.Config.Dimension,
			Center:        cp.Config.Center,
			Orientation:   cp.Config.Orientation,
			StepSize:      cp.Config.StepSize,
			StallPatience: cp.Config.StallPatience,
			Options:       cp.Config.Options,
		}, nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cp.IsCompatible(store.JobConfig{Potential: cfg.Potential, Dimension: cfg.Dimension}); err != nil {
		return nil, err
	}
	cfg.Seed = nil
	return cfg, nil
}

func runResume(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	st, release, err := resumeStorage.open()
	if err != nil {
		return err
	}
	defer release()

	cp, err := st.LoadCheckpoint(jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no checkpoint for job %s", jobID)
		}
		return err
	}

	cfg, err := resumeSearchConfig(cp, resumeConfig)
	if err != nil {
		return err
	}
	if cp.Converged {
		slog.Warn("Checkpoint is already converged", "job_id", jobID, "fmax", cp.FMax)
	}

	remaining := cfg.Options.MaxTranslations - cp.Iteration
	if extraSteps > 0 {
		remaining = extraSteps
	}
	if remaining <= 0 {
		return fmt.Errorf("job %s already used its %d translation steps; pass --steps to continue", jobID, cfg.Options.MaxTranslations)
	}

	slog.Info("Resuming search",
		"job_id", jobID,
		"iteration", cp.Iteration,
		"energy", cp.Energy,
		"curvature", cp.Curvature,
		"steps", remaining,
	)

	sr := &searchRun{
		jobID:            jobID,
		cfg:              cfg,
		center:           cp.Center,
		orient:           cp.Orientation,
		store:            st,
		traceDir:         resumeStorage.dataDir,
		steps:            remaining,
		startIteration:   cp.Iteration,
		startEvaluations: cp.Evaluations,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := sr.execute(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if res == nil {
		return err
	}
	if werr := writeResult(cmd.OutOrStdout(), resumeOut, res); werr != nil {
		return werr
	}
	return err
}
