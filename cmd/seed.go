package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/saddlefind/internal/opt"
	"github.com/cwbudde/saddlefind/internal/potential"
)

var (
	seedPotential string
	seedDim       int
	seedItersArg  int
	seedPopArg    int
	seedRandomArg int64
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Find a basin minimum with the mayfly optimizer",
	Long: `Searches the bounding box of a potential for its lowest energy with the
mayfly optimizer. The minimum is a good start point for a saddle search
(see run --seed).`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedPotential, "potential", "", fmt.Sprintf("Potential energy surface (%v)", potential.Names()))
	seedCmd.Flags().IntVar(&seedDim, "dim", 0, "Dimension of variable-size surfaces (0 = default)")
	seedCmd.Flags().IntVar(&seedItersArg, "iters", 200, "Mayfly iterations")
	seedCmd.Flags().IntVar(&seedPopArg, "pop", 20, "Mayfly population size")
	seedCmd.Flags().Int64Var(&seedRandomArg, "seed", 1, "Random seed")

	seedCmd.MarkFlagRequired("potential")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	surface, err := potential.Lookup(seedPotential, seedDim)
	if err != nil {
		return err
	}

	evaluator := potential.NewCounting(surface)
	optimizer := opt.NewMayfly(seedItersArg, seedPopArg, seedRandomArg)

	start := time.Now()
	seed, err := opt.SeedMinimum(evaluator, surface.Bounds(), optimizer)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	slog.Info("Basin search complete",
		"elapsed", elapsed,
		"energy", seed.Energy,
		"evaluations", evaluator.Calls(),
	)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Potential: %s (%d dimensions)\n", seedPotential, surface.Dimension())
	fmt.Fprintf(out, "Minimum:   %v\n", seed.Position)
	fmt.Fprintf(out, "Energy:    %.6g\n", seed.Energy)
	fmt.Fprintf(out, "Evaluated: %d times in %s\n", evaluator.Calls(), elapsed.Round(time.Millisecond))
	return nil
}
