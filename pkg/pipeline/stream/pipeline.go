package stream

import (
	"context"
	"fmt"
	"iter"

	"github.com/jmylchreest/flowline/internal/ids"
	"github.com/jmylchreest/flowline/pkg/pipeline/telemetry"
)

// Input is a streaming pipeline's coerced entry point, per spec.md §4.7's
// "a single value is treated as a singleton sequence; a lazy sequence is
// used directly" — modeled as an explicit sum type rather than a runtime
// type switch, since Go generics don't let a single In type parameter
// range over both T and iter.Seq[T].
type Input[T any] struct {
	value    T
	isValue  bool
	sequence iter.Seq[T]
}

// Value wraps a single item as a singleton-sequence input.
func Value[T any](v T) Input[T] {
	return Input[T]{value: v, isValue: true}
}

// Seq wraps a lazy sequence as a streaming pipeline input.
func Seq[T any](s iter.Seq[T]) Input[T] {
	return Input[T]{sequence: s}
}

func (in Input[T]) toSeq2() iter.Seq2[any, error] {
	if in.isValue {
		v := in.value
		return untyped(func(yield func(T, error) bool) { yield(v, nil) })
	}
	return untyped(func(yield func(T, error) bool) {
		for v := range in.sequence {
			if !yield(v, nil) {
				return
			}
		}
	})
}

type entry struct {
	key   string
	stage Stage
}

// Pipeline is an immutable ordered chain of (key, stage) pairs over lazy
// sequences, mirroring C6's Pipeline but with each stage a sequence
// transformer rather than a single-shot function.
type Pipeline[In any] struct {
	entries        []entry
	contextBuilder func() any
}

// Start creates an empty streaming pipeline whose input type is In.
func Start[In any](contextBuilder func() any) Pipeline[In] {
	return Pipeline[In]{contextBuilder: contextBuilder}
}

// Add appends stage under key, returning a new pipeline. Panics on a
// duplicate key, matching C6's Add.
func (p Pipeline[In]) Add(key string, stage Stage) Pipeline[In] {
	for _, e := range p.entries {
		if e.key == key {
			panic(fmt.Sprintf("stream: duplicate stage key %q", key))
		}
	}
	next := make([]entry, len(p.entries)+1)
	copy(next, p.entries)
	next[len(p.entries)] = entry{key: key, stage: stage}
	return Pipeline[In]{entries: next, contextBuilder: p.contextBuilder}
}

// run threads in through every stage, recording each stage's output
// sequence into a fresh StreamingState, and returns the final stage's
// type-erased output. No work happens until the returned sequence is
// ranged over: every stage here is a lazy composition, not an eager loop.
//
// A key's recorded stream is meant to be consumed once downstream (by the
// next stage, or by a later Stream/Materialize call against the same
// StreamingState) — re-ranging it re-runs the whole upstream chain from
// scratch, since these are stateless closures rather than buffered
// channels. Call Materialize if a key's output is needed more than once.
func run[In any](p Pipeline[In], ctx context.Context, in Input[In]) (iter.Seq2[any, error], *StreamingState) {
	logger := telemetry.LoggerFromContext(ctx, "streaming-pipeline")
	traceID := ids.NewTraceID()

	state := newStreamingState()
	current := in.toSeq2()

	for _, e := range p.entries {
		spanID := ids.NewSpanID()
		logger.StageEvent(ctx, telemetry.LevelDebug, "stage_start", traceID.String(), spanID.String(), e.stage.Name, e.key, map[string]any{
			"isListOperation": e.stage.IsListOperation,
		})

		var runCtx any
		if p.contextBuilder != nil {
			runCtx = p.contextBuilder()
		}

		out := e.stage.execute(ctx, StreamStageContext{Input: current, State: state, RunContext: runCtx})
		state.record(e.key, out)
		current = out
	}

	return current, state
}

// Build returns a function from input to output sequence; no work is
// performed until the returned sequence is consumed.
func Build[In, Out any](p Pipeline[In], ctx context.Context) func(Input[In]) iter.Seq2[Out, error] {
	return func(in Input[In]) iter.Seq2[Out, error] {
		out, _ := run(p, ctx, in)
		return typed[Out](out)
	}
}

// Execute runs the pipeline and returns its output sequence.
func Execute[In, Out any](p Pipeline[In], ctx context.Context, in Input[In]) iter.Seq2[Out, error] {
	out, _ := run(p, ctx, in)
	return typed[Out](out)
}

// ExecuteToArray runs the pipeline to completion, returning the full
// output slice or the first error encountered.
func ExecuteToArray[In, Out any](p Pipeline[In], ctx context.Context, in Input[In]) ([]Out, error) {
	var out []Out
	for v, err := range Execute[In, Out](p, ctx, in) {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ForEach runs the pipeline to completion, invoking fn for each output
// item; stops and returns the first error encountered.
func ForEach[In, Out any](p Pipeline[In], ctx context.Context, in Input[In], fn func(Out)) error {
	for v, err := range Execute[In, Out](p, ctx, in) {
		if err != nil {
			return err
		}
		fn(v)
	}
	return nil
}

// Reduce folds the pipeline's output sequence into a single accumulator,
// starting from initial; stops and returns the first error encountered.
func Reduce[In, Out, Acc any](p Pipeline[In], ctx context.Context, in Input[In], initial Acc, fn func(Acc, Out) Acc) (Acc, error) {
	acc := initial
	for v, err := range Execute[In, Out](p, ctx, in) {
		if err != nil {
			return acc, err
		}
		acc = fn(acc, v)
	}
	return acc, nil
}
