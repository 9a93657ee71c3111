package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/jmylchreest/flowline/pkg/pipeline/listadapter"
	"github.com/jmylchreest/flowline/pkg/pipeline/result"
)

func liftResult[T any](r result.Result[T]) stageResult {
	if r.IsErr() {
		return result.Err[any](r.Error(), r.Meta)
	}
	data, _ := r.Data()
	return result.Ok[any](data, r.Meta)
}

func typeMismatch(name string, got any) stageResult {
	now := time.Now()
	se := result.NewStageError(result.CodeBatchConversionError, fmt.Sprintf("%s: unexpected input type %T", name, got), nil)
	return result.Err[any](se, result.NewStageMetadata(name, now, now, "", ""))
}

// Map lifts a single-item transform T -> U into a list stage, via C5.
func Map[T, U any](f func(context.Context, T) (U, error), opts listadapter.Options, retry *RetryPolicy) Stage {
	return Stage{
		Name:            "map",
		Retry:           retry,
		IsListOperation: true,
		execute: func(ctx context.Context, sc StageContext) stageResult {
			items, ok := sc.Input.([]T)
			if !ok {
				return typeMismatch("map", sc.Input)
			}
			return liftResult(listadapter.Apply(ctx, items, f, opts))
		},
	}
}

// FlatMap lifts a single-item transform T -> []U into a list stage, then
// shallow-flattens the per-item results.
func FlatMap[T, U any](f func(context.Context, T) ([]U, error), opts listadapter.Options, retry *RetryPolicy) Stage {
	return Stage{
		Name:            "flatMap",
		Retry:           retry,
		IsListOperation: true,
		execute: func(ctx context.Context, sc StageContext) stageResult {
			items, ok := sc.Input.([]T)
			if !ok {
				return typeMismatch("flatMap", sc.Input)
			}
			r := listadapter.Apply(ctx, items, f, opts)
			if r.IsErr() {
				return liftResult(r)
			}
			groups, _ := r.Data()
			var flat []U
			for _, g := range groups {
				flat = append(flat, g...)
			}
			return result.Ok[any](flat, r.Meta)
		},
	}
}

// Batch groups the input slice into chunks of size, per C5's BatchStage.
func Batch[T any](size int, retry *RetryPolicy) Stage {
	chunker := listadapter.BatchStage[T](size)
	return Stage{
		Name:  "batch",
		Retry: retry,
		execute: func(ctx context.Context, sc StageContext) stageResult {
			items, ok := sc.Input.([]T)
			if !ok {
				return typeMismatch("batch", sc.Input)
			}
			start := time.Now()
			out, err := chunker(ctx, items)
			if err != nil {
				return result.Err[any](result.NewStageError("", err.Error(), err), result.NewStageMetadata("batch", start, time.Now(), "", ""))
			}
			return result.Ok[any](out, result.NewStageMetadata("batch", start, time.Now(), "", ""))
		},
	}
}

// Flatten shallow-flattens a slice of slices, per C5's FlattenStage.
func Flatten[T any](retry *RetryPolicy) Stage {
	flattener := listadapter.FlattenStage[T]()
	return Stage{
		Name:  "flatten",
		Retry: retry,
		execute: func(ctx context.Context, sc StageContext) stageResult {
			groups, ok := sc.Input.([][]T)
			if !ok {
				return typeMismatch("flatten", sc.Input)
			}
			start := time.Now()
			out, err := flattener(ctx, groups)
			if err != nil {
				return result.Err[any](result.NewStageError("", err.Error(), err), result.NewStageMetadata("flatten", start, time.Now(), "", ""))
			}
			return result.Ok[any](out, result.NewStageMetadata("flatten", start, time.Now(), "", ""))
		},
	}
}

// Filter keeps items for which predicate returns true, order-preserving,
// per C5's FilterStage.
func Filter[T any](predicate func(context.Context, T) (bool, error), retry *RetryPolicy) Stage {
	filterer := listadapter.FilterStage(predicate)
	return Stage{
		Name:            "filter",
		Retry:           retry,
		IsListOperation: true,
		execute: func(ctx context.Context, sc StageContext) stageResult {
			items, ok := sc.Input.([]T)
			if !ok {
				return typeMismatch("filter", sc.Input)
			}
			start := time.Now()
			out, err := filterer(ctx, items)
			if err != nil {
				return result.Err[any](result.NewStageError("", err.Error(), err), result.NewStageMetadata("filter", start, time.Now(), "", ""))
			}
			return result.Ok[any](out, result.NewStageMetadata("filter", start, time.Now(), "", ""))
		},
	}
}
