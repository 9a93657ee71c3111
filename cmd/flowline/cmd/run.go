package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/flowline/internal/samplepipeline"
	"github.com/jmylchreest/flowline/internal/sysmetrics"
	"github.com/jmylchreest/flowline/pkg/pipeline/batch"
	"github.com/jmylchreest/flowline/pkg/pipeline/progress"
)

var runInputPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sample order-events pipeline once",
	Long: `run executes the parse -> validate -> enrich -> aggregate order-events
pipeline once against --input (or stdin if unset), printing a progress
summary and the resulting report as JSON.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runInputPath, "input", "", "path to a newline-delimited JSON order-event file (default: stdin)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	lines, err := readLines(runInputPath)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	retry := &batch.RetryPolicy{
		MaxAttempts: cfg.Pipeline.RetryAttempts,
		BackoffMs:   int64(cfg.Pipeline.RetryBackoffMs),
	}

	ctx := pipelineContext(cmd.Context())

	tracker := progress.NewTracker(4, logger)
	collector := sysmetrics.NewCollector()
	tracker.SetHostSnapshotFunc(func() any { return collector.Collect(ctx) })

	report, err := runTrackedPipeline(ctx, tracker, lines, retry)
	if err != nil {
		return err
	}

	fmt.Fprint(os.Stderr, tracker.GenerateSummary().String())

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// runTrackedPipeline runs the sample pipeline one stage at a time so
// tracker observes real per-stage start/complete events instead of a
// single opaque call, then returns the final aggregate.
func runTrackedPipeline(ctx context.Context, tracker *progress.Tracker, lines []string, retry *batch.RetryPolicy) (samplepipeline.Report, error) {
	tracker.Emit(progress.Event{Kind: progress.PipelineStart})

	parsed, err := runStage[[]string, []samplepipeline.OrderEvent](ctx, tracker, "parse", batch.Start[[]string](nil).Add("parse", samplepipeline.ParseStage(retry)), lines)
	if err != nil {
		return samplepipeline.Report{}, err
	}

	validated, err := runStage[[]samplepipeline.OrderEvent, []samplepipeline.OrderEvent](ctx, tracker, "validate", batch.Start[[]samplepipeline.OrderEvent](nil).Add("validate", samplepipeline.ValidateStage()), parsed)
	if err != nil {
		return samplepipeline.Report{}, err
	}

	enriched, err := runStage[[]samplepipeline.OrderEvent, []samplepipeline.EnrichedOrder](ctx, tracker, "enrich", batch.Start[[]samplepipeline.OrderEvent](nil).Add("enrich", samplepipeline.EnrichStage()), validated)
	if err != nil {
		return samplepipeline.Report{}, err
	}

	report, err := runStage[[]samplepipeline.EnrichedOrder, samplepipeline.Report](ctx, tracker, "aggregate", batch.Start[[]samplepipeline.EnrichedOrder](nil).Add("aggregate", samplepipeline.AggregateStage()), enriched)
	if err != nil {
		return samplepipeline.Report{}, err
	}

	tracker.Emit(progress.Event{Kind: progress.PipelineComplete})
	return report, nil
}

func runStage[In, Out any](ctx context.Context, tracker *progress.Tracker, key string, p batch.Pipeline[In], input In) (Out, error) {
	tracker.Emit(progress.Event{Kind: progress.StepStart, StageKey: key, StageName: key})

	r := batch.Execute[In, Out](p, ctx, input)
	if r.IsErr() {
		se := r.Error()
		tracker.Emit(progress.Event{Kind: progress.StepError, StageKey: key, StageName: key, Err: se})
		tracker.Emit(progress.Event{Kind: progress.PipelineError, Err: se})
		var zero Out
		return zero, se
	}

	data, _ := r.Data()
	if n, ok := itemCount(data); ok {
		for i := 0; i < n; i++ {
			tracker.Emit(progress.Event{Kind: progress.ItemProcessed, StageKey: key, StageName: key})
		}
	}
	tracker.Emit(progress.Event{Kind: progress.StepComplete, StageKey: key, StageName: key})
	return data, nil
}

// itemCount reports len(v) when v is a slice, so runStage can emit one
// ItemProcessed event per element; non-slice stage outputs (the final
// Report) just get their StepComplete without per-item events.
func itemCount(v any) (int, bool) {
	switch s := v.(type) {
	case []samplepipeline.OrderEvent:
		return len(s), true
	case []samplepipeline.EnrichedOrder:
		return len(s), true
	default:
		return 0, false
	}
}

func readLines(path string) ([]string, error) {
	var r io.Reader = os.Stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
