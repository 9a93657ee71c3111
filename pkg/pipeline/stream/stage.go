package stream

import (
	"context"
	"fmt"
	"iter"
)

// StreamStageContext is the execute-time environment for a streaming
// Stage: the predecessor's output sequence, the accumulated
// StreamingState, and the run-scoped context value built by the
// pipeline's contextBuilder.
type StreamStageContext struct {
	Input      iter.Seq2[any, error]
	State      State
	RunContext any
}

type streamExec func(ctx context.Context, sc StreamStageContext) iter.Seq2[any, error]

// Invoke runs the stage's execute function directly against sc, bypassing
// Pipeline.run's stage_start logging. Used by pkg/pipeline/bridge to drive
// a streaming stage from outside its own pipeline.
func (s Stage) Invoke(ctx context.Context, sc StreamStageContext) iter.Seq2[any, error] {
	return s.execute(ctx, sc)
}

// Stage is an immutable named streaming pipeline step: a lazy-sequence
// transformer from its predecessor's output to its own output.
type Stage struct {
	Name            string
	IsListOperation bool
	execute         streamExec
}

// NewStage builds a custom Stage from a type-erased execute function, for
// transformers that don't fit Map/Filter/FlatMap/Tap/Batch/Window/etc.
func NewStage(name string, isListOperation bool, fn func(ctx context.Context, sc StreamStageContext) iter.Seq2[any, error]) Stage {
	return Stage{Name: name, IsListOperation: isListOperation, execute: fn}
}

func typed[T any](s iter.Seq2[any, error]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for v, err := range s {
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			tv, ok := v.(T)
			if !ok {
				var zero T
				yield(zero, fmt.Errorf("stream: expected %T, got %T", zero, v))
				return
			}
			if !yield(tv, nil) {
				return
			}
		}
	}
}

func untyped[T any](s iter.Seq2[T, error]) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		for v, err := range s {
			if !yield(any(v), err) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}

// MapOptions configures the Map operator. Parallel mode defaults to
// ordered output per spec.md §4.7; set Unordered to opt out.
type MapOptions struct {
	Parallel    bool
	Concurrency int // default 10 when Parallel and unset
	Unordered   bool
}

// Map transforms each item with f, sequentially or (with opts.Parallel) via
// C4's bounded-concurrency ParallelMap, ordered by default.
func Map[T, U any](f func(context.Context, T) (U, error), opts MapOptions) Stage {
	return Stage{
		Name: "map",
		execute: func(ctx context.Context, sc StreamStageContext) iter.Seq2[any, error] {
			in := typed[T](sc.Input)
			if opts.Parallel {
				concurrency := opts.Concurrency
				if concurrency <= 0 {
					concurrency = 10
				}
				return untyped(mapParallelE(ctx, in, f, concurrency, !opts.Unordered))
			}
			return untyped(mapE(ctx, in, f))
		},
	}
}

// Filter keeps items for which predicate returns true.
func Filter[T any](predicate func(context.Context, T) (bool, error)) Stage {
	return Stage{
		Name: "filter",
		execute: func(ctx context.Context, sc StreamStageContext) iter.Seq2[any, error] {
			return untyped(filterE(ctx, typed[T](sc.Input), predicate))
		},
	}
}

// FlatMap transforms each item into zero or more outputs, flattening them
// into the output sequence in source order.
func FlatMap[T, U any](f func(context.Context, T) ([]U, error)) Stage {
	return Stage{
		Name: "flatMap",
		execute: func(ctx context.Context, sc StreamStageContext) iter.Seq2[any, error] {
			return untyped(flatMapE(ctx, typed[T](sc.Input), f))
		},
	}
}

// Tap runs fn for side effects, passing items through unchanged.
func Tap[T any](fn func(context.Context, T)) Stage {
	return Stage{
		Name: "tap",
		execute: func(ctx context.Context, sc StreamStageContext) iter.Seq2[any, error] {
			return untyped(tapE(ctx, typed[T](sc.Input), fn))
		},
	}
}

// Batch groups items into fixed-size slices; the final group may be short.
func Batch[T any](size int) Stage {
	return Stage{
		Name:            "batch",
		IsListOperation: true,
		execute: func(_ context.Context, sc StreamStageContext) iter.Seq2[any, error] {
			return untyped(batchE(typed[T](sc.Input), size))
		},
	}
}

// Window emits tumbling (slide == size), sliding (slide < size), or
// hopping (slide > size) windows over the input, per C3.
func Window[T any](size, slide int) Stage {
	return Stage{
		Name:            "window",
		IsListOperation: true,
		execute: func(_ context.Context, sc StreamStageContext) iter.Seq2[any, error] {
			return untyped(windowE(typed[T](sc.Input), size, slide))
		},
	}
}

// BufferTime buffers items for windowMs between emissions, or until
// maxSize items accumulate if maxSize > 0, per C3.
func BufferTime[T any](windowMs, maxSize int) Stage {
	return Stage{
		Name:            "bufferTime",
		IsListOperation: true,
		execute: func(_ context.Context, sc StreamStageContext) iter.Seq2[any, error] {
			return untyped(bufferTimeE(typed[T](sc.Input), windowMs, maxSize))
		},
	}
}

// BufferUntil accumulates items into buf, flushing (and resetting buf)
// once predicate(buf, item) returns true for the newly-appended item.
func BufferUntil[T any](predicate func(buf []T, item T) (bool, error)) Stage {
	return Stage{
		Name:            "bufferUntil",
		IsListOperation: true,
		execute: func(_ context.Context, sc StreamStageContext) iter.Seq2[any, error] {
			return untyped(bufferUntilE(typed[T](sc.Input), predicate))
		},
	}
}

// Take yields at most the first n items, cancelling the source once n have
// been pulled.
func Take[T any](n int) Stage {
	return Stage{
		Name: "take",
		execute: func(_ context.Context, sc StreamStageContext) iter.Seq2[any, error] {
			return untyped(takeE(typed[T](sc.Input), n))
		},
	}
}

// Skip discards the first n items, then yields the rest.
func Skip[T any](n int) Stage {
	return Stage{
		Name: "skip",
		execute: func(_ context.Context, sc StreamStageContext) iter.Seq2[any, error] {
			return untyped(skipE(typed[T](sc.Input), n))
		},
	}
}

// TakeWhile yields items until pred first returns false, cancelling the
// source at that point.
func TakeWhile[T any](pred func(T) bool) Stage {
	return Stage{
		Name: "takeWhile",
		execute: func(_ context.Context, sc StreamStageContext) iter.Seq2[any, error] {
			return untyped(takeWhileE(typed[T](sc.Input), pred))
		},
	}
}

// SkipWhile discards items while pred returns true, then yields the rest.
func SkipWhile[T any](pred func(T) bool) Stage {
	return Stage{
		Name: "skipWhile",
		execute: func(_ context.Context, sc StreamStageContext) iter.Seq2[any, error] {
			return untyped(skipWhileE(typed[T](sc.Input), pred))
		},
	}
}
