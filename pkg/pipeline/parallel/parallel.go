// Package parallel implements spec.md §4.4's bounded-concurrency executor:
// ordered/unordered ParallelMap, ParallelFilter built atop it, and a
// single-pull-per-source fan-in Merge.
//
// Bounded in-flight work is enforced with golang.org/x/sync/semaphore — the
// idiomatic replacement for the teacher's hand-rolled job/result-channel
// worker pool (internal/pipeline/stages/logocaching/stage.go), per
// DESIGN.md's C4 entry.
package parallel

import (
	"context"
	"iter"
	"sync"

	"golang.org/x/sync/semaphore"
)

type outcome[U any] struct {
	val U
	err error
}

// ParallelMap runs up to concurrency concurrent invocations of f over s.
//
// In unordered mode, results are yielded in completion order: the producer
// goroutine acquires a semaphore slot per in-flight call (never pre-reading
// the source beyond one item per free slot) and fans results into a shared
// channel.
//
// In ordered mode, results are yielded in source index order: each pulled
// item gets its own single-buffered result channel, pushed onto a FIFO
// queue in source order; the consumer drains the queue in order, so a
// fast-completing later item simply waits in its buffered channel until
// its turn. The in-flight bound is still concurrency; buffered-but-not-
// yet-emitted results are retained only as far as the consumer lags.
//
// On the first error (by consumption order — lowest source index in
// ordered mode, first-completed in unordered mode), remaining in-flight
// work is left to finish into its buffered channel (never blocking) while
// the context is cancelled so the producer stops pulling further source
// items.
func ParallelMap[T, U any](ctx context.Context, s iter.Seq[T], f func(context.Context, T) (U, error), concurrency int, ordered bool) iter.Seq2[U, error] {
	if concurrency < 1 {
		concurrency = 1
	}

	if ordered {
		return parallelMapOrdered(ctx, s, f, concurrency)
	}
	return parallelMapUnordered(ctx, s, f, concurrency)
}

func parallelMapUnordered[T, U any](ctx context.Context, s iter.Seq[T], f func(context.Context, T) (U, error), concurrency int) iter.Seq2[U, error] {
	return func(yield func(U, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		sem := semaphore.NewWeighted(int64(concurrency))
		results := make(chan outcome[U])
		var wg sync.WaitGroup

		go func() {
			for v := range s {
				if ctx.Err() != nil {
					break
				}
				if err := sem.Acquire(ctx, 1); err != nil {
					break
				}
				v := v
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer sem.Release(1)
					out, err := f(ctx, v)
					select {
					case results <- outcome[U]{out, err}:
					case <-ctx.Done():
					}
				}()
			}
			wg.Wait()
			close(results)
		}()

		for r := range results {
			if !yield(r.val, r.err) {
				return
			}
			if r.err != nil {
				return
			}
		}
	}
}

func parallelMapOrdered[T, U any](ctx context.Context, s iter.Seq[T], f func(context.Context, T) (U, error), concurrency int) iter.Seq2[U, error] {
	return func(yield func(U, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		sem := semaphore.NewWeighted(int64(concurrency))
		queue := make(chan chan outcome[U])

		go func() {
			defer close(queue)
			for v := range s {
				if ctx.Err() != nil {
					return
				}
				if err := sem.Acquire(ctx, 1); err != nil {
					return
				}
				ch := make(chan outcome[U], 1)
				select {
				case queue <- ch:
				case <-ctx.Done():
					sem.Release(1)
					return
				}
				v := v
				go func() {
					defer sem.Release(1)
					out, err := f(ctx, v)
					ch <- outcome[U]{out, err}
				}()
			}
		}()

		for ch := range queue {
			o := <-ch
			if !yield(o.val, o.err) {
				return
			}
			if o.err != nil {
				return
			}
		}
	}
}

// ParallelFilter runs predicate over s with the given concurrency, keeping
// items in input order for which predicate returned true. Implemented atop
// ordered ParallelMap per spec.md §4.4.
func ParallelFilter[T any](ctx context.Context, s iter.Seq[T], predicate func(context.Context, T) (bool, error), concurrency int) iter.Seq2[T, error] {
	type pair struct {
		item T
		keep bool
	}

	mapped := ParallelMap(ctx, s, func(c context.Context, v T) (pair, error) {
		keep, err := predicate(c, v)
		return pair{item: v, keep: keep}, err
	}, concurrency, true)

	return func(yield func(T, error) bool) {
		for p, err := range mapped {
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			if p.keep {
				if !yield(p.item, nil) {
					return
				}
			}
		}
	}
}

// Merge fans in N source sequences with one outstanding pull per source,
// emitting items as they arrive from any source in arrival order.
// Completes when all sources are exhausted; per-source order is preserved.
//
// Merge is an error-free fan-in: iter.Seq[T] carries no error channel, so a
// panic aside, a source that wants to report failure must encode it in T
// (e.g. merge iter.Seq[result.Result[T]] instead) rather than relying on
// Merge itself to propagate one.
func Merge[T any](sources ...iter.Seq[T]) iter.Seq[T] {
	return func(yield func(T) bool) {
		if len(sources) == 0 {
			return
		}
		var wg sync.WaitGroup
		out := make(chan T)
		stop := make(chan struct{})
		var stopOnce sync.Once
		closeStop := func() { stopOnce.Do(func() { close(stop) }) }

		for _, src := range sources {
			src := src
			wg.Add(1)
			go func() {
				defer wg.Done()
				for v := range src {
					select {
					case out <- v:
					case <-stop:
						return
					}
				}
			}()
		}

		go func() {
			wg.Wait()
			close(out)
		}()

		defer closeStop()
		for v := range out {
			if !yield(v) {
				return
			}
		}
	}
}
