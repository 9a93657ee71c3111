package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/flowline/internal/samplepipeline"
	"github.com/jmylchreest/flowline/internal/scheduler"
	"github.com/jmylchreest/flowline/internal/store"
	"github.com/jmylchreest/flowline/pkg/pipeline/batch"
)

var scheduleCron string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the sample pipeline on a recurring cron schedule",
	Long: `schedule registers a cron-driven recurring execution of the sample
order-events pipeline against --input (or stdin, read once at startup),
persisting each run's outcome to the configured database so "flowline
serve" can expose it.`,
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().StringVar(&runInputPath, "input", "", "path to a newline-delimited JSON order-event file (default: stdin)")
	scheduleCmd.Flags().StringVar(&scheduleCron, "cron", "", "cron expression (default: config's scheduler.cron)")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	lines, err := readLines(runInputPath)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	st, err := store.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	retry := &batch.RetryPolicy{
		MaxAttempts: cfg.Pipeline.RetryAttempts,
		BackoffMs:   int64(cfg.Pipeline.RetryBackoffMs),
	}

	sched := scheduler.New(logger)
	cronExpr := cfg.Scheduler.Cron
	if scheduleCron != "" {
		cronExpr = scheduleCron
	}

	runFn := func(ctx context.Context) error {
		return executeAndPersist(pipelineContext(ctx), st, lines, retry)
	}

	if err := sched.Schedule(cronExpr, runFn); err != nil {
		return fmt.Errorf("scheduling pipeline: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	if next, ok := sched.NextRun(); ok {
		logger.Info("scheduler started", "cron", cronExpr, "next_run", next.Next)
	}

	<-ctx.Done()
	fmt.Fprintln(os.Stderr, "shutting down scheduler")
	return nil
}

func executeAndPersist(ctx context.Context, st *store.Store, lines []string, retry *batch.RetryPolicy) error {
	// Prune ahead of each run rather than on a second cron entry: the
	// scheduler only keeps one recurring job (internal/scheduler.Schedule
	// replaces whatever was registered before), so riding the existing
	// tick is simpler than standing up a second Scheduler just for this.
	if n, err := st.PruneRuns(ctx, cfg.Database.RunRetention.Duration()); err != nil {
		logger.Warn("pruning old run records", "error", err)
	} else if n > 0 {
		logger.Info("pruned old run records", "count", n)
	}

	run, err := st.CreateRun(ctx, "order-events", store.RunKindBatch)
	if err != nil {
		return fmt.Errorf("creating run record: %w", err)
	}

	r := samplepipeline.Run(ctx, lines, retry)
	if r.IsErr() {
		run.Status = store.RunStatusError
		run.LastError = r.Error().Error()
		return st.UpdateRun(ctx, run)
	}

	run.Status = store.RunStatusCompleted
	return st.UpdateRun(ctx, run)
}
