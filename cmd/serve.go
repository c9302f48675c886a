package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/saddlefind/internal/server"
)

var (
	serveAddr    string
	serveStorage storageFlags
	noTraces     bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP job server",
	Long: `Starts an HTTP server that runs saddle searches as background jobs.

Jobs are created with POST /api/v1/jobs and report progress through
/status and a server-sent event stream. Checkpoints go to --data-dir, or to
redis when --redis is set. Prometheus metrics are served on /metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveStorage.dataDir, "data-dir", "./data", "Directory for checkpoints and traces")
	serveCmd.Flags().StringVar(&serveStorage.redisAddr, "redis", "", "Redis address for checkpoints (empty = filesystem)")
	serveCmd.Flags().IntVar(&serveStorage.redisDB, "redis-db", 0, "Redis database number")
	serveCmd.Flags().BoolVar(&noTraces, "no-traces", false, "Do not write step traces")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	st, release, err := serveStorage.open()
	if err != nil {
		return err
	}
	defer release()

	opts := []server.Option{server.WithStore(st)}
	if !noTraces {
		opts = append(opts, server.WithTraceDir(serveStorage.dataDir))
	}
	srv := server.NewServer(serveAddr, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("Received shutdown signal")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
