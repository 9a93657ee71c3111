package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/flowline/internal/httpapi"
	"github.com/jmylchreest/flowline/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the run-history and progress HTTP API",
	Long: `serve starts the chi-based HTTP API exposing run history persisted by
"flowline schedule" (or any other process writing to the same database):
GET /runs, GET /runs/{id}, and GET /runs/{id}/progress. This process
registers no live tracker, so /progress returns the persisted run as JSON
rather than an SSE stream.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	st, err := store.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	server := httpapi.NewServer(cfg.Server, st, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", "address", cfg.Server.Address())
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}
