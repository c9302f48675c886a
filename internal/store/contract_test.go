package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cwbudde/saddlefind/internal/dimer"
)

// createTestCheckpoint creates a valid checkpoint for a 2D Müller-Brown search.
func createTestCheckpoint(jobID string) *Checkpoint {
	return &Checkpoint{
		JobID:       jobID,
		Center:      []float64{-0.82, 0.62},
		Orientation: []float64{0.6, -0.8},
		Energy:      -40.66,
		Curvature:   -8.5,
		FMax:        0.05,
		Iteration:   42,
		Evaluations: 310,
		Timestamp:   time.Now(),
		Config: JobConfig{
			Potential:          "muller-brown",
			Dimension:          2,
			Center:             []float64{-0.5, 1.0},
			Options:            dimer.DefaultOptions(),
			StepSize:           0.01,
			CheckpointInterval: 5,
		},
	}
}

// runStoreContract checks the behaviour every Store implementation shares.
func runStoreContract(t *testing.T, s Store) {
	t.Run("empty list", func(t *testing.T) {
		infos, err := s.ListCheckpoints()
		if err != nil {
			t.Fatalf("ListCheckpoints failed: %v", err)
		}
		if infos == nil || len(infos) != 0 {
			t.Fatalf("Expected empty non-nil list, got %v", infos)
		}
	})

	t.Run("save and load", func(t *testing.T) {
		cp := createTestCheckpoint("job-a")
		if err := s.SaveCheckpoint("job-a", cp); err != nil {
			t.Fatalf("SaveCheckpoint failed: %v", err)
		}
		got, err := s.LoadCheckpoint("job-a")
		if err != nil {
			t.Fatalf("LoadCheckpoint failed: %v", err)
		}
		if got.JobID != cp.JobID || got.Iteration != cp.Iteration || got.Energy != cp.Energy {
			t.Errorf("Loaded %+v, want %+v", got, cp)
		}
		if len(got.Center) != 2 || got.Center[0] != cp.Center[0] || got.Orientation[1] != cp.Orientation[1] {
			t.Errorf("Center/Orientation mismatch: %v %v", got.Center, got.Orientation)
		}
		if got.Config.Options != cp.Config.Options {
			t.Errorf("Options mismatch: %+v", got.Config.Options)
		}
		if !got.Timestamp.Equal(cp.Timestamp) {
			t.Errorf("Timestamp = %v, want %v", got.Timestamp, cp.Timestamp)
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		cp := createTestCheckpoint("job-a")
		cp.Iteration = 99
		if err := s.SaveCheckpoint("job-a", cp); err != nil {
			t.Fatalf("SaveCheckpoint failed: %v", err)
		}
		got, err := s.LoadCheckpoint("job-a")
		if err != nil {
			t.Fatalf("LoadCheckpoint failed: %v", err)
		}
		if got.Iteration != 99 {
			t.Errorf("Iteration = %d, want 99", got.Iteration)
		}
	})

	t.Run("invalid input", func(t *testing.T) {
		if err := s.SaveCheckpoint("", createTestCheckpoint("x")); err == nil {
			t.Error("Expected error for empty jobID")
		}
		if err := s.SaveCheckpoint("x", nil); err == nil {
			t.Error("Expected error for nil checkpoint")
		}
		bad := createTestCheckpoint("x")
		bad.Orientation = []float64{0, 0}
		var verr *ValidationError
		if err := s.SaveCheckpoint("x", bad); !errors.As(err, &verr) {
			t.Errorf("Expected ValidationError, got %v", err)
		}
		if _, err := s.LoadCheckpoint(""); err == nil {
			t.Error("Expected error for empty jobID")
		}
	})

	t.Run("not found", func(t *testing.T) {
		if _, err := s.LoadCheckpoint("missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		if err := s.DeleteCheckpoint("missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("list newest first", func(t *testing.T) {
		base := time.Now()
		for i, id := range []string{"job-b", "job-c"} {
			cp := createTestCheckpoint(id)
			cp.Timestamp = base.Add(time.Duration(i+1) * time.Minute)
			if err := s.SaveCheckpoint(id, cp); err != nil {
				t.Fatalf("SaveCheckpoint failed: %v", err)
			}
		}
		infos, err := s.ListCheckpoints()
		if err != nil {
			t.Fatalf("ListCheckpoints failed: %v", err)
		}
		if len(infos) != 3 {
			t.Fatalf("Expected 3 checkpoints, got %d", len(infos))
		}
		if infos[0].JobID != "job-c" || infos[1].JobID != "job-b" || infos[2].JobID != "job-a" {
			t.Errorf("Unexpected order: %s, %s, %s", infos[0].JobID, infos[1].JobID, infos[2].JobID)
		}
		if infos[0].Potential != "muller-brown" || infos[0].Dimension != 2 {
			t.Errorf("Unexpected info %+v", infos[0])
		}
	})

	t.Run("delete", func(t *testing.T) {
		for _, id := range []string{"job-a", "job-b", "job-c"} {
			if err := s.DeleteCheckpoint(id); err != nil {
				t.Fatalf("DeleteCheckpoint(%s) failed: %v", id, err)
			}
		}
		if _, err := s.LoadCheckpoint("job-a"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound after delete, got %v", err)
		}
		infos, err := s.ListCheckpoints()
		if err != nil {
			t.Fatalf("ListCheckpoints failed: %v", err)
		}
		if len(infos) != 0 {
			t.Errorf("Expected empty list after delete, got %d", len(infos))
		}
	})

	t.Run("concurrent saves", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make(chan error, 10)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("concurrent-%d", i)
				errs <- s.SaveCheckpoint(id, createTestCheckpoint(id))
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Errorf("concurrent save failed: %v", err)
			}
		}
		infos, err := s.ListCheckpoints()
		if err != nil {
			t.Fatalf("ListCheckpoints failed: %v", err)
		}
		if len(infos) != 10 {
			t.Errorf("Expected 10 checkpoints, got %d", len(infos))
		}
	})
}
