// Package seq provides lazy, pull-based sequence operators over iter.Seq,
// mirroring spec.md §4.2's generator primitives: map, filter, flatMap, tap,
// take, skip, takeWhile, skipWhile, toSlice, fromSlice, batch.
//
// Every operator preserves the source's item order, propagates errors from
// the source or the transform immediately, and — where it stops pulling
// before the source is exhausted (Take, TakeWhile) — runs cleanup on the
// source by simply not resuming it, relying on iter.Seq's own range-over-func
// cleanup semantics (a false return from the consumer body stops the
// source's for loop, running any deferred cleanup in the source producer).
package seq

import "iter"

// FromSlice turns a slice into a sequence.
func FromSlice[T any](items []T) iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, item := range items {
			if !yield(item) {
				return
			}
		}
	}
}

// ToSlice materializes a sequence into a slice, pulling it to completion.
func ToSlice[T any](s iter.Seq[T]) []T {
	out := []T{}
	for v := range s {
		out = append(out, v)
	}
	return out
}

// Map applies f to every item, preserving order.
func Map[T, U any](s iter.Seq[T], f func(T) U) iter.Seq[U] {
	return func(yield func(U) bool) {
		for v := range s {
			if !yield(f(v)) {
				return
			}
		}
	}
}

// Filter keeps only items for which pred returns true.
func Filter[T any](s iter.Seq[T], pred func(T) bool) iter.Seq[T] {
	return func(yield func(T) bool) {
		for v := range s {
			if pred(v) {
				if !yield(v) {
					return
				}
			}
		}
	}
}

// FlatMap applies f to every item and concatenates the resulting slices in
// source order.
func FlatMap[T, U any](s iter.Seq[T], f func(T) []U) iter.Seq[U] {
	return func(yield func(U) bool) {
		for v := range s {
			for _, out := range f(v) {
				if !yield(out) {
					return
				}
			}
		}
	}
}

// Tap runs fn for its side effects, passing items through unchanged.
func Tap[T any](s iter.Seq[T], fn func(T)) iter.Seq[T] {
	return func(yield func(T) bool) {
		for v := range s {
			fn(v)
			if !yield(v) {
				return
			}
		}
	}
}

// Take yields at most the first n items, then stops pulling the source.
func Take[T any](s iter.Seq[T], n int) iter.Seq[T] {
	return func(yield func(T) bool) {
		if n <= 0 {
			return
		}
		count := 0
		for v := range s {
			if !yield(v) {
				return
			}
			count++
			if count >= n {
				return
			}
		}
	}
}

// Skip discards the first n items, then yields the rest.
func Skip[T any](s iter.Seq[T], n int) iter.Seq[T] {
	return func(yield func(T) bool) {
		count := 0
		for v := range s {
			if count < n {
				count++
				continue
			}
			if !yield(v) {
				return
			}
		}
	}
}

// TakeWhile yields items until pred first returns false, then stops pulling
// the source.
func TakeWhile[T any](s iter.Seq[T], pred func(T) bool) iter.Seq[T] {
	return func(yield func(T) bool) {
		for v := range s {
			if !pred(v) {
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

// SkipWhile discards items while pred returns true, then yields the
// remainder (including the first item for which pred returned false).
func SkipWhile[T any](s iter.Seq[T], pred func(T) bool) iter.Seq[T] {
	return func(yield func(T) bool) {
		skipping := true
		for v := range s {
			if skipping {
				if pred(v) {
					continue
				}
				skipping = false
			}
			if !yield(v) {
				return
			}
		}
	}
}

// Batch groups items into fixed-size slices; the final group may be short.
// An empty source yields nothing. size must be > 0.
func Batch[T any](s iter.Seq[T], size int) iter.Seq[[]T] {
	return func(yield func([]T) bool) {
		if size <= 0 {
			return
		}
		buf := make([]T, 0, size)
		for v := range s {
			buf = append(buf, v)
			if len(buf) == size {
				if !yield(buf) {
					return
				}
				buf = make([]T, 0, size)
			}
		}
		if len(buf) > 0 {
			yield(buf)
		}
	}
}
