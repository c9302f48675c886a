package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/saddlefind/internal/config"
	"github.com/cwbudde/saddlefind/internal/dimer"
	"github.com/cwbudde/saddlefind/internal/opt"
	"github.com/cwbudde/saddlefind/internal/potential"
	"github.com/cwbudde/saddlefind/internal/store"
)

// searchRun is one saddle search started from the command line. A nil
// store disables checkpoints; an empty traceDir disables the trace.
type searchRun struct {
	jobID    string
	cfg      *config.SearchConfig
	center   []float64
	orient   []float64
	store    store.Store
	traceDir string

	// steps overrides Options.MaxTranslations for this run only, so the
	// saved step limit stays the one of the whole search
	steps int

	// previous progress of a resumed search
	startIteration   int
	startEvaluations int
}

// execute runs the dimer translation loop and saves the final checkpoint
func (r *searchRun) execute(ctx context.Context) (*opt.SearchResult, error) {
	surface, err := r.cfg.Surface()
	if err != nil {
		return nil, err
	}
	evaluator := potential.NewCounting(surface)

	opts := r.cfg.Options
	if r.steps > 0 {
		opts.MaxTranslations = r.steps
	}
	d, err := dimer.New(r.center, r.orient, evaluator, opts)
	if err != nil {
		return nil, err
	}

	translator := opt.NewTranslator()
	translator.StepSize = r.cfg.StepSize
	translator.Stall = r.cfg.StallConfig()
	translator.StartIteration = r.startIteration

	var last opt.StepReport
	var trace *store.TraceWriter
	if r.traceDir != "" {
		trace, err = store.NewTraceWriter(r.traceDir, r.jobID, r.startIteration > 0)
		if err != nil {
			return nil, err
		}
		defer trace.Close()
	}
	translator.Observer = func(rep opt.StepReport) {
		last = rep
		if trace != nil {
			if err := trace.Write(store.NewTraceEntry(rep)); err != nil {
				slog.Warn("Failed to write trace entry", "error", err)
			}
		}
	}

	res, runErr := translator.Run(ctx, d)
	if res != nil {
		res.Steps += r.startIteration
		res.Evaluations += r.startEvaluations
	}

	if r.store != nil && last.Output != nil {
		center := last.Center
		if last.Next != nil {
			center = last.Next
		}
		cp := &store.Checkpoint{
			JobID:       r.jobID,
			Center:      center,
			Orientation: last.Orientation,
			Energy:      last.Output.TotalEnergy,
			Curvature:   last.Output.Curvature,
			FMax:        last.Output.FMax,
			Iteration:   last.Iteration,
			Evaluations: r.startEvaluations + last.Evaluations,
			Converged:   res != nil && res.Converged,
			Timestamp:   time.Now(),
			Config:      r.jobConfig(surface.Dimension()),
		}
		if err := r.store.SaveCheckpoint(r.jobID, cp); err != nil {
			slog.Error("Failed to save checkpoint", "job_id", r.jobID, "error", err)
		} else {
			slog.Info("Checkpoint saved", "job_id", r.jobID, "iteration", cp.Iteration)
		}
	}
	return res, runErr
}

// jobConfig converts the search configuration into its checkpoint form.
// The configured start point is kept; seeded searches record the seeded one.
func (r *searchRun) jobConfig(dim int) store.JobConfig {
	center, orientation := r.cfg.Center, r.cfg.Orientation
	if len(center) == 0 {
		center = r.center
	}
	if len(orientation) == 0 {
		orientation = r.orient
	}
	return store.JobConfig{
		Potential:     r.cfg.Potential,
		Dimension:     dim,
		Center:        center,
		Orientation:   orientation,
		Options:       r.cfg.Options,
		StepSize:      r.cfg.StepSize,
		StallPatience: r.cfg.StallPatience,
	}
}

// writeResult encodes the result as JSON or YAML depending on the file
// extension of path. An empty path or "-" writes YAML to w.
func writeResult(w io.Writer, path string, res *opt.SearchResult) error {
	toStdout := path == "" || path == "-"

	var data []byte
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case toStdout, ext == ".yaml", ext == ".yml":
		data, err = yaml.Marshal(res)
	case ext == ".json":
		data, err = json.MarshalIndent(res, "", "  ")
	default:
		return fmt.Errorf("unsupported result format %q (use .json, .yaml or .yml)", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	if toStdout {
		_, err = w.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
