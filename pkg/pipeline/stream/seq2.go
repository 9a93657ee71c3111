package stream

import (
	"context"
	"fmt"
	"iter"

	"github.com/jmylchreest/flowline/pkg/pipeline/parallel"
	"github.com/jmylchreest/flowline/pkg/pipeline/seq"
	"github.com/jmylchreest/flowline/pkg/pipeline/window"
)

// stripErr adapts an error-carrying sequence into a plain iter.Seq that
// stops at the first error, capturing it into the returned pointer. Used
// to drive the error-free pkg/pipeline/seq and pkg/pipeline/window
// operators, re-attaching the captured error afterward via attachErr.
func stripErr[T any](s iter.Seq2[T, error]) (iter.Seq[T], *error) {
	var captured error
	plain := func(yield func(T) bool) {
		for v, err := range s {
			if err != nil {
				captured = err
				return
			}
			if !yield(v) {
				return
			}
		}
	}
	return plain, &captured
}

// attachErr re-wraps a plain sequence as Seq2, appending the captured
// upstream error (if any) as a final (zero, err) pair once the plain
// sequence is exhausted.
func attachErr[T any](s iter.Seq[T], captured *error) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for v := range s {
			if !yield(v, nil) {
				return
			}
		}
		if captured != nil && *captured != nil {
			var zero T
			yield(zero, *captured)
		}
	}
}

func mapE[T, U any](ctx context.Context, s iter.Seq2[T, error], f func(context.Context, T) (U, error)) iter.Seq2[U, error] {
	return func(yield func(U, error) bool) {
		for v, err := range s {
			if err != nil {
				var zero U
				yield(zero, err)
				return
			}
			out, ferr := f(ctx, v)
			if !yield(out, ferr) {
				return
			}
			if ferr != nil {
				return
			}
		}
	}
}

func filterE[T any](ctx context.Context, s iter.Seq2[T, error], predicate func(context.Context, T) (bool, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for v, err := range s {
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			keep, ferr := predicate(ctx, v)
			if ferr != nil {
				var zero T
				yield(zero, ferr)
				return
			}
			if keep {
				if !yield(v, nil) {
					return
				}
			}
		}
	}
}

func flatMapE[T, U any](ctx context.Context, s iter.Seq2[T, error], f func(context.Context, T) ([]U, error)) iter.Seq2[U, error] {
	return func(yield func(U, error) bool) {
		for v, err := range s {
			if err != nil {
				var zero U
				yield(zero, err)
				return
			}
			outs, ferr := f(ctx, v)
			if ferr != nil {
				var zero U
				yield(zero, ferr)
				return
			}
			for _, o := range outs {
				if !yield(o, nil) {
					return
				}
			}
		}
	}
}

func tapE[T any](ctx context.Context, s iter.Seq2[T, error], fn func(context.Context, T)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for v, err := range s {
			if err == nil {
				fn(ctx, v)
			}
			if !yield(v, err) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}

func takeE[T any](s iter.Seq2[T, error], n int) iter.Seq2[T, error] {
	plain, captured := stripErr(s)
	return attachErr(seq.Take(plain, n), captured)
}

func skipE[T any](s iter.Seq2[T, error], n int) iter.Seq2[T, error] {
	plain, captured := stripErr(s)
	return attachErr(seq.Skip(plain, n), captured)
}

func takeWhileE[T any](s iter.Seq2[T, error], pred func(T) bool) iter.Seq2[T, error] {
	plain, captured := stripErr(s)
	return attachErr(seq.TakeWhile(plain, pred), captured)
}

func skipWhileE[T any](s iter.Seq2[T, error], pred func(T) bool) iter.Seq2[T, error] {
	plain, captured := stripErr(s)
	return attachErr(seq.SkipWhile(plain, pred), captured)
}

func batchE[T any](s iter.Seq2[T, error], size int) iter.Seq2[[]T, error] {
	if size <= 0 {
		return func(yield func([]T, error) bool) {
			yield(nil, fmt.Errorf("stream: batch size must be > 0"))
		}
	}
	plain, captured := stripErr(s)
	return attachErr(seq.Batch(plain, size), captured)
}

func windowE[T any](s iter.Seq2[T, error], size, slide int) iter.Seq2[[]T, error] {
	plain, captured := stripErr(s)
	win, err := window.Window(plain, size, slide)
	if err != nil {
		return func(yield func([]T, error) bool) { yield(nil, err) }
	}
	return attachErr(win, captured)
}

func bufferTimeE[T any](s iter.Seq2[T, error], windowMs, maxSize int) iter.Seq2[[]T, error] {
	plain, captured := stripErr(s)
	buf, err := window.BufferTime(plain, windowMs, maxSize)
	if err != nil {
		return func(yield func([]T, error) bool) { yield(nil, err) }
	}
	return attachErr(buf, captured)
}

func bufferUntilE[T any](s iter.Seq2[T, error], predicate func([]T, T) (bool, error)) iter.Seq2[[]T, error] {
	plain, captured := stripErr(s)
	buffered := window.BufferUntil(plain, predicate)
	return func(yield func([]T, error) bool) {
		for b, err := range buffered {
			if err != nil {
				yield(b, err)
				return
			}
			if !yield(b, nil) {
				return
			}
		}
		if captured != nil && *captured != nil {
			yield(nil, *captured)
		}
	}
}

// mapParallelE delegates to C4's ParallelMap, draining the source through
// a plain-sequence adaptor so an upstream error still terminates the
// parallel fan-out (captured and re-propagated once in-flight work drains).
func mapParallelE[T, U any](ctx context.Context, s iter.Seq2[T, error], f func(context.Context, T) (U, error), concurrency int, ordered bool) iter.Seq2[U, error] {
	plain, captured := stripErr(s)
	mapped := parallel.ParallelMap(ctx, plain, f, concurrency, ordered)
	return func(yield func(U, error) bool) {
		for v, err := range mapped {
			if !yield(v, err) {
				return
			}
			if err != nil {
				return
			}
		}
		if captured != nil && *captured != nil {
			var zero U
			yield(zero, *captured)
		}
	}
}
