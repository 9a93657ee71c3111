// Package listadapter lifts a single-item stage into a collection stage,
// per spec.md §4.5: FAIL_FAST (default), COLLECT_ERRORS, and SKIP_FAILED
// error strategies, sequential or bounded-parallel execution, with
// per-item timing aggregated into result.ListOperationMetadata.
package listadapter

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmylchreest/flowline/pkg/pipeline/parallel"
	"github.com/jmylchreest/flowline/pkg/pipeline/result"
)

// ErrorStrategy selects how Apply handles per-item failures.
type ErrorStrategy int

const (
	FailFast ErrorStrategy = iota
	CollectErrors
	SkipFailed
)

// Options configures Apply.
type Options struct {
	ErrorStrategy    ErrorStrategy
	Parallel         bool
	ConcurrencyLimit int // default 10 when Parallel and unset
}

func (o Options) withDefaults() Options {
	if o.ConcurrencyLimit <= 0 {
		o.ConcurrencyLimit = 10
	}
	return o
}

// ItemError pairs a failing input's index with its error. A COLLECT_ERRORS
// result's StageError.Cause is a *CollectedErrors wrapping these, per
// spec.md §4.5/§8's "{index, error}" contract — a caller unwrapping the
// cause needs to recover which items failed, not just that some did.
type ItemError struct {
	Index int
	Err   error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// CollectedErrors is the ordered (by Index) list of item failures a
// COLLECT_ERRORS Apply call surfaces as StageError.Cause. Its Unwrap()
// []error makes errors.Is/errors.As walk every item's error, same as
// errors.Join, while Items keeps the index association errors.Join drops.
type CollectedErrors struct {
	Items []ItemError
}

func (c *CollectedErrors) Error() string {
	msgs := make([]string, len(c.Items))
	for i, it := range c.Items {
		msgs[i] = it.Error()
	}
	return strings.Join(msgs, "; ")
}

func (c *CollectedErrors) Unwrap() []error {
	errs := make([]error, len(c.Items))
	for i, it := range c.Items {
		errs[i] = it.Err
	}
	return errs
}

// Apply lifts f: T -> U into a collection stage over items, per opts.
func Apply[T, U any](ctx context.Context, items []T, f func(context.Context, T) (U, error), opts Options) result.Result[[]U] {
	opts = opts.withDefaults()
	start := time.Now()

	var (
		out        []U
		timings    []time.Duration
		successN   int
		failureN   int
		skippedN   int
		errs       []ItemError
		firstErr   error
		firstIdx   = -1
		strategy   = result.StrategySequential
		concurrent *int
	)

	type itemResult struct {
		index int
		value U
		err   error
		dur   time.Duration
	}

	record := func(r itemResult) {
		timings = append(timings, r.dur)
		if r.err == nil {
			successN++
		} else {
			failureN++
			errs = append(errs, ItemError{Index: r.index, Err: r.err})
			if firstIdx == -1 || r.index < firstIdx {
				firstIdx = r.index
				firstErr = r.err
			}
		}
	}

	if opts.Parallel {
		strategy = result.StrategyParallel
		limit := opts.ConcurrencyLimit
		concurrent = &limit

		type idxVal struct {
			index int
			value T
		}
		indexedItems := make([]idxVal, len(items))
		for i, it := range items {
			indexedItems[i] = idxVal{i, it}
		}

		seqFn := func(yield func(idxVal) bool) {
			for _, iv := range indexedItems {
				if !yield(iv) {
					return
				}
			}
		}

		mapped := parallel.ParallelMap(ctx, seqFn, func(c context.Context, iv idxVal) (itemResult, error) {
			itemStart := time.Now()
			v, err := f(c, iv.value)
			return itemResult{index: iv.index, value: v, err: err, dur: time.Since(itemStart)}, nil
		}, opts.ConcurrencyLimit, false)

		results := make([]U, len(items))
		for r, _ := range mapped {
			record(r)
			if r.err == nil {
				results[r.index] = r.value
			}
		}

		switch opts.ErrorStrategy {
		case FailFast:
			if firstIdx != -1 {
				return failResult[[]U](result.CodeListProcessingError, firstErr.Error(), firstErr, start, successN, failureN, 0, len(items), strategy, concurrent, timings)
			}
			out = results
		case CollectErrors:
			if len(errs) > 0 {
				// ParallelMap(ordered=false) fans errs in completion order;
				// re-sort by index so the parallel and sequential paths agree
				// on the §4.5 "ordered list of {index, error}" contract.
				sort.Slice(errs, func(i, j int) bool { return errs[i].Index < errs[j].Index })
				return collectErrorsResult[[]U](errs, len(items), start, successN, failureN, strategy, concurrent, timings)
			}
			out = results
		case SkipFailed:
			skippedN = failureN
			out = make([]U, 0, successN)
			for i := 0; i < len(items); i++ {
				if !containsFailure(errs, i) {
					out = append(out, results[i])
				}
			}
		}

		return result.Ok(out, withListMeta(start, len(items), successN, failureN, skippedN, strategy, concurrent, timings))
	}

	// Sequential execution.
	for i, item := range items {
		select {
		case <-ctx.Done():
			return result.Err[[]U](result.NewStageError("", "context cancelled", ctx.Err()), withListMeta(start, len(items), successN, failureN, len(items)-i, strategy, concurrent, timings))
		default:
		}

		itemStart := time.Now()
		v, err := f(ctx, item)
		dur := time.Since(itemStart)

		if err != nil {
			switch opts.ErrorStrategy {
			case FailFast:
				failureN = 1
				skippedN = len(items) - i - 1
				timings = append(timings, dur)
				return failResult[[]U](result.CodeListStepError, err.Error(), err, start, successN, failureN, skippedN, len(items), strategy, concurrent, timings)
			case CollectErrors:
				record(itemResult{index: i, err: err, dur: dur})
				continue
			case SkipFailed:
				record(itemResult{index: i, err: err, dur: dur})
				skippedN++
				continue
			}
		}

		record(itemResult{index: i, value: v, dur: dur})
		out = append(out, v)
	}

	if opts.ErrorStrategy == CollectErrors && len(errs) > 0 {
		return collectErrorsResult[[]U](errs, len(items), start, successN, failureN, strategy, concurrent, timings)
	}

	return result.Ok(out, withListMeta(start, len(items), successN, failureN, skippedN, strategy, concurrent, timings))
}

func containsFailure(errs []ItemError, index int) bool {
	for _, e := range errs {
		if e.Index == index {
			return true
		}
	}
	return false
}

func withListMeta(start time.Time, total, success, failure, skipped int, strategy result.ExecutionStrategy, concurrency *int, timings []time.Duration) result.StageMetadata {
	agg := result.ComputeItemTimings(timings)
	meta := result.NewStageMetadata("listadapter", start, time.Now(), "", "")
	meta.ListMetadata = &result.ListOperationMetadata{
		TotalItems:        total,
		SuccessCount:      success,
		FailureCount:      failure,
		SkippedCount:      skipped,
		ExecutionStrategy: strategy,
		ConcurrencyLimit:  concurrency,
		ItemTimings:       &agg,
	}
	return meta
}

func failResult[R any](code, message string, cause error, start time.Time, success, failure, skipped, total int, strategy result.ExecutionStrategy, concurrency *int, timings []time.Duration) result.Result[R] {
	se := result.NewStageError(code, message, cause)
	return result.Err[R](se, withListMeta(start, total, success, failure, skipped, strategy, concurrency, timings))
}

func collectErrorsResult[R any](errs []ItemError, total int, start time.Time, success, failure int, strategy result.ExecutionStrategy, concurrency *int, timings []time.Duration) result.Result[R] {
	retryable := false
	for _, e := range errs {
		var se *result.StageError
		if asStageError(e.Err, &se) && se.Retryable {
			retryable = true
		}
	}
	msg := fmt.Sprintf("%d of %d items failed", failure, total)
	se := &result.StageError{
		Code:      result.CodeListProcessingErrors,
		Message:   msg,
		Cause:     &CollectedErrors{Items: errs},
		Retryable: retryable,
	}
	return result.Err[R](se, withListMeta(start, total, success, failure, 0, strategy, concurrency, timings))
}

func asStageError(err error, out **result.StageError) bool {
	se, ok := err.(*result.StageError)
	if ok {
		*out = se
	}
	return ok
}

// BatchStage groups items into chunks of size, per spec.md §4.5's derived
// stages; the final group may be short. Panics at construction if size <= 0.
func BatchStage[T any](size int) func(context.Context, []T) ([][]T, error) {
	if size <= 0 {
		panic("listadapter: BatchStage size must be > 0")
	}
	return func(_ context.Context, items []T) ([][]T, error) {
		if len(items) == 0 {
			return nil, nil
		}
		out := make([][]T, 0, (len(items)+size-1)/size)
		for i := 0; i < len(items); i += size {
			end := i + size
			if end > len(items) {
				end = len(items)
			}
			out = append(out, items[i:end])
		}
		return out, nil
	}
}

// FlattenStage shallow-flattens a slice of slices.
func FlattenStage[T any]() func(context.Context, [][]T) ([]T, error) {
	return func(_ context.Context, groups [][]T) ([]T, error) {
		var out []T
		for _, g := range groups {
			out = append(out, g...)
		}
		return out, nil
	}
}

// FilterStage keeps items for which predicate returns true, preserving
// input order. The predicate may itself fail, aborting the whole stage.
func FilterStage[T any](predicate func(context.Context, T) (bool, error)) func(context.Context, []T) ([]T, error) {
	return func(ctx context.Context, items []T) ([]T, error) {
		out := make([]T, 0, len(items))
		for _, it := range items {
			keep, err := predicate(ctx, it)
			if err != nil {
				return nil, err
			}
			if keep {
				out = append(out, it)
			}
		}
		return out, nil
	}
}
