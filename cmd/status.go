package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		return listJobs(out, fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}
	jobID := args[0]
	return getJobStatus(out, fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

// jobSummary is the part of a server job shown in listings
type jobSummary struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Config struct {
		Potential string    `json:"potential"`
		Center    []float64 `json:"center"`
	} `json:"config"`
	Energy     float64 `json:"energy"`
	Curvature  float64 `json:"curvature"`
	FMax       float64 `json:"fmax"`
	Iterations int     `json:"iterations"`
}

// jobStatus mirrors the /status response
type jobStatus struct {
	ID          string     `json:"id"`
	State       string     `json:"state"`
	Potential   string     `json:"potential"`
	Energy      float64    `json:"energy"`
	Curvature   float64    `json:"curvature"`
	FMax        float64    `json:"fmax"`
	Iterations  int        `json:"iterations"`
	Evaluations int        `json:"evaluations"`
	Converged   bool       `json:"converged"`
	Reason      string     `json:"reason"`
	Elapsed     float64    `json:"elapsed"`
	EPS         float64    `json:"eps"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime"`
	Error       string     `json:"error"`
}

func listJobs(out io.Writer, url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var jobs []jobSummary
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return nil
	}

	fmt.Fprintf(out, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(out, "Job ID: %s\n", job.ID)
		fmt.Fprintf(out, "  State: %s\n", job.State)
		fmt.Fprintf(out, "  Potential: %s (%d dimensions)\n", job.Config.Potential, len(job.Config.Center))
		if job.Iterations > 0 {
			fmt.Fprintf(out, "  Step %d: energy %.6g, curvature %.4g, fmax %.3g\n", job.Iterations, job.Energy, job.Curvature, job.FMax)
		}
		fmt.Fprintln(out)
	}

	return nil
}

func getJobStatus(out io.Writer, url, jobID string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var status jobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Fprintf(out, "Job: %s\n", status.ID)
	fmt.Fprintf(out, "State: %s\n", status.State)
	fmt.Fprintf(out, "Potential: %s\n", status.Potential)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Progress:")
	fmt.Fprintf(out, "  Steps: %d\n", status.Iterations)
	if status.Iterations > 0 {
		fmt.Fprintf(out, "  Energy: %.6g\n", status.Energy)
		fmt.Fprintf(out, "  Curvature: %.4g\n", status.Curvature)
		fmt.Fprintf(out, "  Max force: %.3g\n", status.FMax)
	}
	if status.Reason != "" {
		fmt.Fprintf(out, "  Stopped: %s (converged: %v)\n", status.Reason, status.Converged)
	}

	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(out, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	if status.EPS > 0 {
		fmt.Fprintf(out, "  Throughput: %d evaluations, %.0f/sec\n", status.Evaluations, status.EPS)
	}

	if status.Error != "" {
		fmt.Fprintf(out, "\nError: %s\n", status.Error)
	}

	return nil
}
