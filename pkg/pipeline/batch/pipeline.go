package batch

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jmylchreest/flowline/internal/ids"
	"github.com/jmylchreest/flowline/pkg/pipeline/result"
	"github.com/jmylchreest/flowline/pkg/pipeline/telemetry"
)

type entry struct {
	key   string
	stage Stage
}

// Pipeline is an immutable ordered chain of (key, stage) pairs sharing an
// input type. Adding a stage yields a new pipeline; keys are unique across
// the chain.
type Pipeline[In any] struct {
	entries        []entry
	contextBuilder func() any
}

// Start creates an empty pipeline whose input type is In. contextBuilder,
// if non-nil, is invoked once per stage to build that stage's run-scoped
// context value.
func Start[In any](contextBuilder func() any) Pipeline[In] {
	return Pipeline[In]{contextBuilder: contextBuilder}
}

// Add appends stage under key, returning a new pipeline. Panics if key is
// already in use, per spec.md §4.6's "duplicate keys are a construction
// error" — Go has no never-instantiable-type trick for this, so the check
// happens at construction time instead of at the type level.
func (p Pipeline[In]) Add(key string, stage Stage) Pipeline[In] {
	for _, e := range p.entries {
		if e.key == key {
			panic(fmt.Sprintf("batch: duplicate stage key %q", key))
		}
	}
	next := make([]entry, len(p.entries)+1)
	copy(next, p.entries)
	next[len(p.entries)] = entry{key: key, stage: stage}
	return Pipeline[In]{entries: next, contextBuilder: p.contextBuilder}
}

// Execute runs every stage in order against input, returning the final
// stage's output asserted to Out, or the failure of whichever stage broke
// the chain. Out is typically the declared output type of the last added
// stage; a mismatch surfaces as a BATCH_CONVERSION_ERROR.
func Execute[In, Out any](p Pipeline[In], ctx context.Context, input In) result.Result[Out] {
	pipelineStart := time.Now()
	traceID := ids.NewTraceID()
	logger := telemetry.LoggerFromContext(ctx, "pipeline")

	state := AccumulatedState{}
	var current any = input

	for _, e := range p.entries {
		spanID := ids.NewSpanID()
		stageStart := time.Now()

		logger.StageEvent(ctx, telemetry.LevelInfo, "stage_start", traceID.String(), spanID.String(), e.stage.Name, e.key, map[string]any{
			"inputType":       fmt.Sprintf("%T", current),
			"isListOperation": e.stage.IsListOperation,
		})

		var runCtx any
		if p.contextBuilder != nil {
			runCtx = p.contextBuilder()
		}

		sc := StageContext{Input: current, State: state, RunContext: runCtx}
		r := executeWithRetry(ctx, logger, traceID, spanID, e.key, e.stage, sc)

		if r.IsErr() {
			se := r.Error()
			logger.StageEvent(ctx, telemetry.LevelError, "stage_failed", traceID.String(), spanID.String(), e.stage.Name, e.key, map[string]any{
				"code":       se.Code,
				"message":    se.Message,
				"durationMs": time.Since(stageStart).Milliseconds(),
			})
			return result.Err[Out](se, r.Meta)
		}

		data, _ := r.Data()

		extra := map[string]any{"durationMs": time.Since(stageStart).Milliseconds()}
		if r.Meta.ListMetadata != nil {
			lm := r.Meta.ListMetadata
			extra["totalItems"] = lm.TotalItems
			extra["successCount"] = lm.SuccessCount
			extra["failureCount"] = lm.FailureCount
			extra["skippedCount"] = lm.SkippedCount
		}
		logger.StageEvent(ctx, telemetry.LevelInfo, "stage_complete", traceID.String(), spanID.String(), e.stage.Name, e.key, extra)

		state[e.key] = data
		current = data
	}

	out, ok := current.(Out)
	if !ok {
		se := result.NewStageError(result.CodeBatchConversionError, fmt.Sprintf("pipeline output type mismatch: expected %T, got %T", out, current), nil)
		return result.Err[Out](se, result.NewStageMetadata("pipeline", pipelineStart, time.Now(), traceID, ""))
	}

	return result.Ok[Out](out, result.NewStageMetadata("pipeline", pipelineStart, time.Now(), traceID, ""))
}

// executeWithRetry reads stage.Retry (defaulting to {maxAttempts: 1,
// backoffMs: 1000}) and retries on failure while the error is retryable,
// attempts remain, and (if a retryable-codes whitelist exists) the error's
// code is in it. Backoff between attempts is linear: backoffMs * attempt.
func executeWithRetry(ctx context.Context, logger *telemetry.Logger, traceID ids.TraceID, spanID ids.SpanID, stageKey string, stage Stage, sc StageContext) stageResult {
	maxAttempts := 1
	var backoffMs int64 = 1000
	var whitelist []string
	if stage.Retry != nil {
		if stage.Retry.MaxAttempts > 0 {
			maxAttempts = stage.Retry.MaxAttempts
		}
		backoffMs = stage.Retry.BackoffMs
		whitelist = stage.Retry.RetryableErrorCodes
	}

	var last stageResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		last = invokeStage(ctx, stage, sc)
		if last.IsOk() {
			return last
		}

		se := last.Error()
		retryable := se.Retryable
		if retryable && len(whitelist) > 0 {
			retryable = slices.Contains(whitelist, se.Code)
		}
		if !retryable || attempt == maxAttempts {
			return last
		}

		logger.StageEvent(ctx, telemetry.LevelWarn, "stage_retry", traceID.String(), spanID.String(), stage.Name, stageKey, map[string]any{
			"attempt":     attempt,
			"maxAttempts": maxAttempts,
			"code":        se.Code,
		})
		time.Sleep(time.Duration(backoffMs*int64(attempt)) * time.Millisecond)
	}
	return last
}

// invokeStage runs a stage, converting a panic that escapes it into a
// non-retryable UNHANDLED_ERROR, per spec.md §4.6.
func invokeStage(ctx context.Context, stage Stage, sc StageContext) (r stageResult) {
	defer func() {
		if rec := recover(); rec != nil {
			now := time.Now()
			r = result.Err[any](result.WrapUnhandled(fmt.Errorf("%v", rec)), result.NewStageMetadata(stage.Name, now, now, "", ""))
		}
	}()
	return stage.execute(ctx, sc)
}
