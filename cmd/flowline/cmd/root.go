// Package cmd implements the flowline CLI commands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/flowline/internal/config"
	"github.com/jmylchreest/flowline/internal/observability"
	"github.com/jmylchreest/flowline/internal/version"
	"github.com/jmylchreest/flowline/pkg/pipeline/telemetry"
)

var (
	cfgFile       string
	logLevelFlag  string
	logFormatFlag string

	// cfg and logger are populated by PersistentPreRunE before any
	// subcommand's RunE runs.
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:     "flowline",
	Short:   "Composable batch and streaming data pipelines",
	Version: version.Short(),
	Long: `flowline runs composable data pipelines: finite batch chains and
unbounded streaming chains built from the same stage vocabulary, with
bounded-concurrency parallel execution, retry with backoff, and
subscribable progress tracking.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Logging.Level = logLevelFlag
		}
		if cmd.Flags().Changed("log-format") {
			loaded.Logging.Format = logFormatFlag
		}
		cfg = loaded
		logger = observability.NewLogger(cfg.Logging)
		slog.SetDefault(logger)
		return nil
	},
}

// pipelineContext wraps ctx with the sanitizer and minimum log level the
// batch/stream engines' telemetry.Logger read via telemetry.LoggerFromContext,
// so the sanitizer.max_* settings actually reach stage_start/
// stage_complete/stage_failed/stage_retry event logging.
func pipelineContext(ctx context.Context) context.Context {
	sanitizer := telemetry.NewSanitizer(telemetry.SanitizerConfig{
		MaxArrayLength:  cfg.Sanitizer.MaxArrayLength,
		MaxStringLength: cfg.Sanitizer.MaxStringLength,
		MaxDepth:        cfg.Sanitizer.MaxDepth,
	})
	return telemetry.ContextWithSettings(ctx, telemetry.ParseLevel(cfg.Logging.Level), sanitizer)
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "json", "log format (json, text)")
}
