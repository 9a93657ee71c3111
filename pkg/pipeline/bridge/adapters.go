package bridge

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/jmylchreest/flowline/pkg/pipeline/batch"
	"github.com/jmylchreest/flowline/pkg/pipeline/result"
	"github.com/jmylchreest/flowline/pkg/pipeline/stream"
)

// ToStreaming wraps a batch Stage so it can run inside a streaming
// pipeline: for each input item it invokes the batch stage once, handing it
// a snapshot of the accumulated state taken at that point (per spec.md
// §4.8 — a batch stage expects AccumulatedState, not a live stream view,
// so the snapshot is frozen for the whole item rather than re-read per
// stage). A failure is re-raised as "<stageName> failed: <message>" and
// stops the stream, matching C7's existing error-propagates-through-the-
// sequence contract.
func ToStreaming(batchStage batch.Stage) stream.Stage {
	return stream.NewStage(batchStage.Name, batchStage.IsListOperation, func(ctx context.Context, sc stream.StreamStageContext) iter.Seq2[any, error] {
		return func(yield func(any, error) bool) {
			snapshot := toAccumulatedState(sc.State.Accumulated())
			for v, err := range sc.Input {
				if err != nil {
					yield(nil, err)
					return
				}
				r := batchStage.Invoke(ctx, batch.StageContext{Input: v, State: snapshot, RunContext: sc.RunContext})
				if r.IsErr() {
					se := r.Error()
					yield(nil, fmt.Errorf("%s failed: %s", batchStage.Name, se.Message))
					return
				}
				data, _ := r.Data()
				if !yield(data, nil) {
					return
				}
			}
		}
	})
}

func toAccumulatedState(snap map[string][]any) batch.AccumulatedState {
	out := make(batch.AccumulatedState, len(snap))
	for k, v := range snap {
		out[k] = v
	}
	return out
}

// batchModeState is the State a ToBatch-wrapped streaming stage sees: it
// has no live stream to hand back, since the whole input was already
// materialized into a plain slice before the streaming stage ran. Stream
// and Materialize panic per spec.md §4.8 ("stream access not supported in
// batch mode") rather than returning an empty result, so a streaming stage
// that assumes it can still read a sibling's stream fails loudly instead of
// silently seeing nothing.
type batchModeState struct{}

func (batchModeState) Accumulated() map[string][]any { return nil }

func (batchModeState) Stream(string) iter.Seq2[any, error] {
	panic("Stream access not supported in batch mode")
}

func (batchModeState) Materialize(string) []any {
	panic("Stream access not supported in batch mode")
}

func seqFromSlice[T any](items []T) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		for _, v := range items {
			if !yield(any(v), nil) {
				return
			}
		}
	}
}

// ToBatch wraps a streaming Stage so it can run inside a batch pipeline:
// the input slice is fed through the streaming stage as a finite sequence
// and the output is materialized back into a slice, per spec.md §4.8.
// T is the streaming stage's expected per-item input type; U is its
// per-item output type.
func ToBatch[T, U any](streamingStage stream.Stage) batch.Stage {
	return batch.NewStage(streamingStage.Name, nil, streamingStage.IsListOperation, func(ctx context.Context, sc batch.StageContext) result.Result[any] {
		start := time.Now()
		items, ok := sc.Input.([]T)
		if !ok {
			now := time.Now()
			se := result.NewStageError(result.CodeBatchConversionError, fmt.Sprintf("%s: unexpected input type %T", streamingStage.Name, sc.Input), nil)
			return result.Err[any](se, result.NewStageMetadata(streamingStage.Name, now, now, "", ""))
		}

		out := streamingStage.Invoke(ctx, stream.StreamStageContext{
			Input:      seqFromSlice(items),
			State:      batchModeState{},
			RunContext: sc.RunContext,
		})

		results := make([]U, 0, len(items))
		for v, err := range out {
			if err != nil {
				se := result.NewStageError("", err.Error(), err)
				return result.Err[any](se, result.NewStageMetadata(streamingStage.Name, start, time.Now(), "", ""))
			}
			tv, ok := v.(U)
			if !ok {
				se := result.NewStageError(result.CodeBatchConversionError, fmt.Sprintf("%s: unexpected output type %T", streamingStage.Name, v), nil)
				return result.Err[any](se, result.NewStageMetadata(streamingStage.Name, start, time.Now(), "", ""))
			}
			results = append(results, tv)
		}
		return result.Ok[any](results, result.NewStageMetadata(streamingStage.Name, start, time.Now(), "", ""))
	})
}
