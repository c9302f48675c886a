package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestFSStore_Contract(t *testing.T) {
	s, err := NewFSStore(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	runStoreContract(t, s)
}

func TestFSStore_Layout(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	if s.BaseDir() != dir {
		t.Errorf("BaseDir = %s, want %s", s.BaseDir(), dir)
	}

	if err := s.SaveCheckpoint("job-1", createTestCheckpoint("job-1")); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}
	path := filepath.Join(dir, "jobs", "job-1", "checkpoint.json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Checkpoint file missing at %s: %v", path, err)
	}
	leftovers, err := filepath.Glob(filepath.Join(dir, "jobs", "job-1", "*.tmp"))
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	if len(leftovers) != 0 {
		t.Errorf("Temp files left behind: %v", leftovers)
	}
}

func TestFSStore_ListSkipsUnreadable(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	if err := s.SaveCheckpoint("good", createTestCheckpoint("good")); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	// a trace without checkpoint, a corrupted checkpoint and a stray file
	if err := os.MkdirAll(filepath.Join(dir, "jobs", "trace-only"), 0755); err != nil {
		t.Fatal(err)
	}
	corrupt := filepath.Join(dir, "jobs", "corrupt")
	if err := os.MkdirAll(corrupt, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(corrupt, "checkpoint.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "jobs", "stray.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	infos, err := s.ListCheckpoints()
	if err != nil {
		t.Fatalf("ListCheckpoints failed: %v", err)
	}
	if len(infos) != 1 || infos[0].JobID != "good" {
		t.Errorf("Expected only the good checkpoint, got %+v", infos)
	}
}

func TestFSStore_DeleteRemovesTrace(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	if err := s.SaveCheckpoint("job-1", createTestCheckpoint("job-1")); err != nil {
		t.Fatal(err)
	}
	tw, err := NewTraceWriter(dir, "job-1", false)
	if err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteCheckpoint("job-1"); err != nil {
		t.Fatalf("DeleteCheckpoint failed: %v", err)
	}
	if _, err := os.Stat(TracePath(dir, "job-1")); !os.IsNotExist(err) {
		t.Error("Trace survived checkpoint deletion")
	}
}

func TestFSStore_ConcurrentSavesOfOneJob(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.SaveCheckpoint("job-1", createTestCheckpoint("job-1"))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("SaveCheckpoint failed: %v", err)
		}
	}

	if _, err := s.LoadCheckpoint("job-1"); err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, "jobs", "job-1", "*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("Temp files left behind: %v", leftovers)
	}
}
