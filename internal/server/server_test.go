package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/saddlefind/internal/store"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer("localhost:0", opts...)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Shutdown(ctx)
		srv.Close()
	})
	return s, srv
}

func postJob(t *testing.T, srv *httptest.Server, payload string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/v1/jobs", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}
	return resp
}

// waitForState polls the status endpoint until the job is finished
func waitForState(t *testing.T, srv *httptest.Server, jobID string) map[string]interface{} {
	t.Helper()
	maxAttempts := 100
	for i := 0; i < maxAttempts; i++ {
		resp, err := http.Get(srv.URL + "/api/v1/jobs/" + jobID + "/status")
		if err != nil {
			t.Fatalf("Failed to get status: %v", err)
		}

		var status map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()

		if JobState(fmt.Sprint(status["state"])).Finished() {
			return status
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("Job did not finish in time")
	return nil
}

const quadraticJob = `{"potential": "quadratic", "dimension": 2, "center": [0.3, 0.2], "stepSize": 0.5}`

func TestServer_CreateJob(t *testing.T) {
	_, srv := newTestServer(t)

	resp := postJob(t, srv, quadraticJob)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", resp.StatusCode)
	}

	var job Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}
	if job.State != StatePending {
		t.Errorf("Expected pending state, got %s", job.State)
	}
	// omitted options fall back to the defaults
	if job.Config.Options.MaxRotations != 5 || job.Config.Options.FMax != 0.1 {
		t.Errorf("Default options not applied: %+v", job.Config.Options)
	}
}

func TestServer_CreateJob_Invalid(t *testing.T) {
	_, srv := newTestServer(t)

	tests := []struct {
		name    string
		payload string
	}{
		{"bad json", `{"potential": `},
		{"unknown potential", `{"potential": "lennard-jones", "center": [0, 0]}`},
		{"wrong center length", `{"potential": "quadratic", "dimension": 2, "center": [0, 0, 0]}`},
		{"wrong orientation length", `{"potential": "quadratic", "dimension": 2, "center": [0, 0], "orientation": [1]}`},
		{"zero step", `{"potential": "quadratic", "dimension": 2, "center": [0, 0], "stepSize": 0}`},
		{"bad options", `{"potential": "quadratic", "dimension": 2, "center": [0, 0], "options": {"fmax": -1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJob(t, srv, tt.payload)
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestServer_ListJobs(t *testing.T) {
	s, srv := newTestServer(t)

	s.jobManager.CreateJob(testJobConfig())
	s.jobManager.CreateJob(testJobConfig())

	resp, err := http.Get(srv.URL + "/api/v1/jobs")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	defer resp.Body.Close()

	var jobs []Job
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("Expected 2 jobs, got %d", len(jobs))
	}
}

func TestServer_NotFound(t *testing.T) {
	_, srv := newTestServer(t)

	for _, path := range []string{
		"/api/v1/jobs/nonexistent",
		"/api/v1/jobs/nonexistent/status",
		"/api/v1/jobs/nonexistent/stream",
		"/api/v1/jobs/nonexistent/trace",
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s: expected 404, got %d", path, resp.StatusCode)
		}
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/jobs/nonexistent", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("DELETE: expected 404, got %d", resp.StatusCode)
	}
}

func TestServer_Integration(t *testing.T) {
	// Skip in short mode
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dir := t.TempDir()
	st, err := store.NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	_, srv := newTestServer(t, WithStore(st), WithTraceDir(dir))

	resp := postJob(t, srv, quadraticJob)
	var job Job
	json.NewDecoder(resp.Body).Decode(&job)
	resp.Body.Close()

	status := waitForState(t, srv, job.ID)
	if status["state"] != string(StateCompleted) {
		t.Fatalf("Job ended in state %v: %v", status["state"], status["error"])
	}
	if status["converged"] != true {
		t.Errorf("Job should converge, reason %v", status["reason"])
	}

	// Full job
	resp, err = http.Get(srv.URL + "/api/v1/jobs/" + job.ID)
	if err != nil {
		t.Fatalf("Get job failed: %v", err)
	}
	var finished Job
	json.NewDecoder(resp.Body).Decode(&finished)
	resp.Body.Close()
	if len(finished.Center) != 2 || len(finished.Orientation) != 2 {
		t.Errorf("Expected 2D center and orientation, got %v %v", finished.Center, finished.Orientation)
	}

	// Trace
	resp, err = http.Get(srv.URL + "/api/v1/jobs/" + job.ID + "/trace")
	if err != nil {
		t.Fatalf("Get trace failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	lines := 0
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var entry store.TraceEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("Invalid trace line %q: %v", scanner.Text(), err)
		}
		lines++
	}
	if lines != finished.Iterations {
		t.Errorf("Expected %d trace lines, got %d", finished.Iterations, lines)
	}

	// Checkpoint
	if _, err := st.LoadCheckpoint(job.ID); err != nil {
		t.Errorf("Checkpoint missing: %v", err)
	}

	// Cancelling a finished job conflicts
	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/jobs/"+job.ID, nil)
	del, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	del.Body.Close()
	if del.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409, got %d", del.StatusCode)
	}
}

func TestServer_CancelJob(t *testing.T) {
	_, srv := newTestServer(t)

	// omitted option fields keep their defaults
	payload := `{"potential": "quadratic", "dimension": 2, "center": [0.3, 0.2], "stepSize": 0.0001,
		"options": {"fmax": 1e-12, "maxNumTrans": 100000000}}`
	resp := postJob(t, srv, payload)
	var job Job
	json.NewDecoder(resp.Body).Decode(&job)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/jobs/"+job.ID, nil)
	del, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	del.Body.Close()
	if del.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", del.StatusCode)
	}

	status := waitForState(t, srv, job.ID)
	if status["state"] != string(StateCancelled) {
		t.Errorf("Expected cancelled, got %v", status["state"])
	}
}

func TestServer_Metrics(t *testing.T) {
	s, srv := newTestServer(t)

	job := s.jobManager.CreateJob(testJobConfig())
	w := &worker{jm: s.jobManager, metrics: s.metrics}
	if err := w.runJob(t.Context(), job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, name := range []string{
		`saddlefind_jobs_total{state="completed"} 1`,
		"saddlefind_evaluations_total",
		"saddlefind_translation_steps_count 1",
		"saddlefind_final_curvature",
	} {
		if !bytes.Contains(body, []byte(name)) {
			t.Errorf("Metrics output missing %q", name)
		}
	}
}

func TestServer_Health(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	defer resp.Body.Close()

	var health map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&health)
	if resp.StatusCode != http.StatusOK || health["status"] != "ok" {
		t.Errorf("Unexpected health response %d %v", resp.StatusCode, health)
	}
}

func TestServer_TraceDisabled(t *testing.T) {
	s, srv := newTestServer(t)
	job := s.jobManager.CreateJob(testJobConfig())

	resp, err := http.Get(srv.URL + "/api/v1/jobs/" + job.ID + "/trace")
	if err != nil {
		t.Fatalf("GET trace failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestServer_CORS(t *testing.T) {
	_, srv := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/jobs", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Missing CORS header")
	}
}

func TestServer_JobStream_SSE(t *testing.T) {
	s, srv := newTestServer(t)

	job := s.jobManager.CreateJob(testJobConfig())
	w := &worker{jm: s.jobManager, metrics: s.metrics}
	if err := w.runJob(t.Context(), job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	// The stream of a finished job sends the final state and ends
	resp, err := http.Get(srv.URL + "/api/v1/jobs/" + job.ID + "/stream")
	if err != nil {
		t.Fatalf("GET stream failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Error("Expected text/event-stream content type")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Reading stream failed: %v", err)
	}
	data, ok := strings.CutPrefix(strings.TrimSpace(string(body)), "data: ")
	if !ok {
		t.Fatalf("Expected SSE data, got %q", body)
	}
	var event ProgressEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		t.Fatalf("Invalid event %q: %v", data, err)
	}
	if event.State != StateCompleted || event.Iteration == 0 {
		t.Errorf("Unexpected final event %+v", event)
	}
}

func TestEventBroadcaster(t *testing.T) {
	eb := NewEventBroadcaster()

	// Subscribe to events
	ch := eb.Subscribe("job1")
	defer eb.Unsubscribe("job1", ch)

	// Broadcast an event
	event := ProgressEvent{
		JobID:     "job1",
		State:     StateRunning,
		Iteration: 10,
		Curvature: -0.5,
		Timestamp: time.Now(),
	}
	eb.Broadcast(event)

	// Receive event
	select {
	case received := <-ch:
		if received.JobID != "job1" {
			t.Errorf("Expected jobID job1, got %s", received.JobID)
		}
		if received.Iteration != 10 {
			t.Errorf("Expected 10 iterations, got %d", received.Iteration)
		}
	case <-time.After(1 * time.Second):
		t.Error("Timeout waiting for event")
	}

	// Late subscribers get the last event replayed
	late := eb.Subscribe("job1")
	select {
	case received := <-late:
		if received.Iteration != 10 {
			t.Errorf("Expected replayed iteration 10, got %d", received.Iteration)
		}
	case <-time.After(1 * time.Second):
		t.Error("Timeout waiting for replayed event")
	}
	eb.Unsubscribe("job1", late)

	// Cleanup
	eb.CleanupJob("job1")
}
