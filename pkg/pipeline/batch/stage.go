// Package batch implements spec.md §4.6's batch pipeline engine: a named,
// sequentially composed chain of stages over a finite input value, with
// accumulated cross-stage state, retry with linear backoff, and
// stage_start/stage_complete/stage_failed/stage_retry lifecycle logging
// mirroring the teacher's internal/pipeline/core.Orchestrator.
package batch

import (
	"context"

	"github.com/jmylchreest/flowline/pkg/pipeline/result"
)

// stageResult is the type-erased Result a Stage produces.
type stageResult = result.Result[any]

// RetryPolicy controls executeWithRetry's attempt budget and backoff.
// The zero value is not valid on its own; Stage.Retry == nil means the
// pipeline default of {MaxAttempts: 1, BackoffMs: 1000} applies.
type RetryPolicy struct {
	MaxAttempts         int
	BackoffMs           int64
	RetryableErrorCodes []string // empty means "any retryable error qualifies"
}

// AccumulatedState is the keyed map of prior stage outputs, growing
// monotonically as stages complete and never mutated after insertion.
type AccumulatedState map[string]any

// StageContext is the execute-time environment handed to a Stage: the
// direct output of the previous stage (or the pipeline's initial input for
// the first stage), the accumulated state so far, and the run-scoped
// context value built by the pipeline's contextBuilder.
type StageContext struct {
	Input      any
	State      AccumulatedState
	RunContext any
}

// stageFunc is the type-erased execute operation. Generic shortcuts (Map,
// FlatMap, Batch, Flatten, Filter) close over concrete types and box their
// result into Result[any]; Execute asserts the final stage's output back
// to the pipeline's declared Out type.
type stageFunc func(ctx context.Context, sc StageContext) stageResult

// Stage is an immutable named pipeline step.
type Stage struct {
	Name            string
	Retry           *RetryPolicy
	IsListOperation bool
	execute         stageFunc
}

// Invoke runs the stage's execute function directly against sc, bypassing
// Pipeline.Execute's retry and logging wrapper. Used by pkg/pipeline/bridge
// to drive a batch stage from outside its own pipeline.
func (s Stage) Invoke(ctx context.Context, sc StageContext) result.Result[any] {
	return s.execute(ctx, sc)
}

// NewStage builds a custom Stage from a type-erased execute function. Most
// callers should prefer Map/FlatMap/Batch/Flatten/Filter, which handle the
// any-boxing at the type boundary; NewStage is the escape hatch for stages
// that don't fit those shapes (e.g. pure state-reshaping steps).
func NewStage(name string, retry *RetryPolicy, isListOperation bool, fn func(ctx context.Context, sc StageContext) result.Result[any]) Stage {
	return Stage{Name: name, Retry: retry, IsListOperation: isListOperation, execute: fn}
}

// Branch evaluates condition(input, state, runContext) and delegates to
// trueStage or falseStage. Both branches must agree on their output type;
// this is enforced by construction since both are built against the same
// Out type parameter by the caller. Its name is "branch(<true>|<false>)".
func Branch(trueStage, falseStage Stage, condition func(input any, state AccumulatedState, runContext any) bool) Stage {
	return Stage{
		Name: "branch(" + trueStage.Name + "|" + falseStage.Name + ")",
		execute: func(ctx context.Context, sc StageContext) stageResult {
			if condition(sc.Input, sc.State, sc.RunContext) {
				return trueStage.execute(ctx, sc)
			}
			return falseStage.execute(ctx, sc)
		},
	}
}
