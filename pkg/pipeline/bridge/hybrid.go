package bridge

import (
	"context"
	"iter"

	"github.com/jmylchreest/flowline/pkg/pipeline/batch"
	"github.com/jmylchreest/flowline/pkg/pipeline/result"
	"github.com/jmylchreest/flowline/pkg/pipeline/stream"
)

// Hybrid carries both a batch and a streaming execution body for the same
// named step, per spec.md §4.8: a caller picks a pipeline kind at
// composition time via ToBatchStage/ToStreamStage rather than committing a
// stage's author to one kind up front.
type Hybrid struct {
	Name            string
	BatchFn         func(ctx context.Context, sc batch.StageContext) result.Result[any]
	StreamFn        func(ctx context.Context, sc stream.StreamStageContext) iter.Seq2[any, error]
	Retry           *batch.RetryPolicy
	IsListOperation bool
}

// NewHybrid builds a Hybrid from its two execution bodies.
func NewHybrid(name string, batchFn func(ctx context.Context, sc batch.StageContext) result.Result[any], streamFn func(ctx context.Context, sc stream.StreamStageContext) iter.Seq2[any, error], retry *batch.RetryPolicy) Hybrid {
	return Hybrid{Name: name, BatchFn: batchFn, StreamFn: streamFn, Retry: retry}
}

// ToBatchStage projects h onto C6's batch pipeline. A failure out of
// BatchFn is re-coded as HYBRID_STEP_ERROR (spec.md §4.8/§7), distinguishing
// a hybrid stage's batch-side failure from a stage that only ever runs
// batch.
func (h Hybrid) ToBatchStage() batch.Stage {
	wrapped := func(ctx context.Context, sc batch.StageContext) result.Result[any] {
		r := h.BatchFn(ctx, sc)
		if !r.IsErr() {
			return r
		}
		se := r.Error()
		return result.Err[any](&result.StageError{
			Code:      result.CodeHybridStepError,
			Message:   se.Message,
			Cause:     se,
			Retryable: se.Retryable,
		}, r.Meta)
	}
	return batch.NewStage(h.Name, h.Retry, h.IsListOperation, wrapped)
}

// ToStreamStage projects h onto C7's streaming pipeline.
func (h Hybrid) ToStreamStage() stream.Stage {
	return stream.NewStage(h.Name, h.IsListOperation, h.StreamFn)
}
