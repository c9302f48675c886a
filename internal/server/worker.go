package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/cwbudde/saddlefind/internal/dimer"
	"github.com/cwbudde/saddlefind/internal/opt"
	"github.com/cwbudde/saddlefind/internal/potential"
	"github.com/cwbudde/saddlefind/internal/store"
)

// worker carries what a job needs besides the job manager. A nil store
// disables checkpoints; an empty traceDir disables traces.
type worker struct {
	jm       *JobManager
	store    store.Store
	traceDir string
	metrics  *Metrics
	// tick is the unit of JobConfig.CheckpointInterval, a second when zero
	tick time.Duration
}

// validateConfig resolves the potential and checks the job configuration
// against it.
func validateConfig(config JobConfig) (potential.Surface, error) {
	surface, err := potential.Lookup(config.Potential, config.Dimension)
	if err != nil {
		return nil, err
	}
	dim := surface.Dimension()
	if len(config.Center) != dim {
		return nil, fmt.Errorf("center has %d components, %s is %d dimensional", len(config.Center), config.Potential, dim)
	}
	if len(config.Orientation) != 0 && len(config.Orientation) != dim {
		return nil, fmt.Errorf("orientation has %d components, %s is %d dimensional", len(config.Orientation), config.Potential, dim)
	}
	if !(config.StepSize > 0) {
		return nil, fmt.Errorf("stepSize must be positive")
	}
	if config.CheckpointInterval < 0 {
		return nil, fmt.Errorf("checkpointInterval cannot be negative")
	}
	if err := config.Options.Validate(); err != nil {
		return nil, err
	}
	return surface, nil
}

func defaultOrientation(dim int) []float64 {
	out := make([]float64, dim)
	for i := range out {
		out[i] = 1 / math.Sqrt(float64(dim))
	}
	return out
}

// runJob executes a saddle search job. Progress is broadcast after every
// translation step; checkpoints are saved every CheckpointInterval seconds
// and once more when the job ends.
func (w *worker) runJob(ctx context.Context, jobID string) error {
	job, exists := w.jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}
	cfg := job.Config

	if err := ctx.Err(); err != nil {
		w.finish(jobID, StateCancelled, nil)
		return err
	}

	surface, err := validateConfig(cfg)
	if err != nil {
		w.finish(jobID, StateFailed, err)
		return err
	}

	evaluator := potential.NewCounting(surface)
	if w.metrics != nil {
		evaluator.Hook = w.metrics.evaluations.Inc
	}

	orientation := cfg.Orientation
	if len(orientation) == 0 {
		orientation = defaultOrientation(surface.Dimension())
	}
	d, err := dimer.New(cfg.Center, orientation, evaluator, cfg.Options)
	if err != nil {
		w.finish(jobID, StateFailed, err)
		return err
	}

	var trace *store.TraceWriter
	if w.traceDir != "" {
		trace, err = store.NewTraceWriter(w.traceDir, jobID, false)
		if err != nil {
			w.finish(jobID, StateFailed, err)
			return err
		}
		defer trace.Close()
	}

	w.jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
		j.Center = append([]float64(nil), cfg.Center...)
		j.Orientation = d.Orientation()
	})
	slog.Info("Starting job", "job_id", jobID, "potential", cfg.Potential, "dimension", surface.Dimension())

	translator := opt.NewTranslator()
	translator.StepSize = cfg.StepSize
	if cfg.StallPatience > 0 {
		translator.Stall.Patience = cfg.StallPatience
	} else {
		translator.Stall = opt.DisabledConvergenceConfig()
	}
	translator.Observer = func(r opt.StepReport) {
		w.jm.UpdateJob(jobID, func(j *Job) {
			j.Center = r.Center
			j.next = r.Next
			j.Orientation = r.Orientation
			j.Energy = r.Output.TotalEnergy
			j.Curvature = r.Output.Curvature
			j.FMax = r.Output.FMax
			j.Iterations = r.Iteration
			j.Evaluations = r.Evaluations
		})
		if trace != nil {
			if err := trace.Write(store.NewTraceEntry(r)); err != nil {
				slog.Warn("Failed to write trace entry", "job_id", jobID, "error", err)
			}
		}
		if snapshot, ok := w.jm.GetJob(jobID); ok {
			w.jm.broadcaster.Broadcast(progressFromJob(snapshot))
		}
	}

	checkpointDone := make(chan struct{})
	var monitor sync.WaitGroup
	if w.store != nil && cfg.CheckpointInterval > 0 {
		tick := w.tick
		if tick <= 0 {
			tick = time.Second
		}
		monitor.Add(1)
		go func() {
			defer monitor.Done()
			w.monitorCheckpoints(ctx, jobID, trace, time.Duration(cfg.CheckpointInterval)*tick, checkpointDone)
		}()
	}

	start := time.Now()
	result, err := translator.Run(ctx, d)
	// the final checkpoint and trace.Close must not race a pending tick
	close(checkpointDone)
	monitor.Wait()

	if result != nil {
		w.jm.UpdateJob(jobID, func(j *Job) {
			j.Converged = result.Converged
			j.Reason = string(result.Reason)
		})
	}

	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		w.finish(jobID, StateCancelled, nil)
		return err
	case err != nil:
		w.finish(jobID, StateFailed, err)
		return err
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", time.Since(start),
		"reason", result.Reason,
		"energy", result.Energy,
		"curvature", result.Curvature,
		"evaluations", result.Evaluations,
	)
	w.finish(jobID, StateCompleted, nil)
	return nil
}

// finish moves a job into a terminal state, saves a final checkpoint when
// the job has made progress, records metrics and notifies SSE clients.
func (w *worker) finish(jobID string, state JobState, cause error) {
	endTime := time.Now()
	w.jm.UpdateJob(jobID, func(j *Job) {
		j.State = state
		j.EndTime = &endTime
		if cause != nil {
			j.Error = cause.Error()
		}
	})

	switch state {
	case StateFailed:
		slog.Error("Job failed", "job_id", jobID, "error", cause)
	case StateCancelled:
		slog.Info("Job cancelled", "job_id", jobID)
	}

	job, ok := w.jm.GetJob(jobID)
	if !ok {
		return
	}
	if w.store != nil && job.Iterations > 0 {
		if err := saveCheckpoint(w.jm, w.store, jobID); err != nil {
			slog.Error("Failed to save final checkpoint", "job_id", jobID, "error", err)
		}
	}
	if w.metrics != nil {
		w.metrics.jobFinished(state, job.Iterations, job.Curvature)
	}
	w.jm.broadcaster.Broadcast(progressFromJob(job))
}

// monitorCheckpoints periodically saves checkpoints during the search
func (w *worker) monitorCheckpoints(ctx context.Context, jobID string, trace *store.TraceWriter, interval time.Duration, done chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := saveCheckpoint(w.jm, w.store, jobID); err != nil {
				slog.Error("Failed to save checkpoint", "job_id", jobID, "error", err)
			}
			if trace != nil {
				if err := trace.Flush(); err != nil {
					slog.Warn("Failed to flush trace", "job_id", jobID, "error", err)
				}
			}
		}
	}
}

// saveCheckpoint saves the current dimer state of a job
func saveCheckpoint(jm *JobManager, checkpointStore store.Store, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if job.Iterations == 0 {
		slog.Debug("Skipping checkpoint, no translation step yet", "job_id", jobID)
		return nil
	}

	// resume from where the last step moved the dimer
	center := job.Center
	if job.next != nil {
		center = job.next
	}

	checkpoint := &store.Checkpoint{
		JobID:       jobID,
		Center:      center,
		Orientation: job.Orientation,
		Energy:      job.Energy,
		Curvature:   job.Curvature,
		FMax:        job.FMax,
		Iteration:   job.Iterations,
		Evaluations: job.Evaluations,
		Converged:   job.Converged,
		Timestamp:   time.Now(),
		Config:      job.Config,
	}
	if err := checkpointStore.SaveCheckpoint(jobID, checkpoint); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	slog.Info("Checkpoint saved", "job_id", jobID, "iteration", job.Iterations, "fmax", job.FMax)
	return nil
}
