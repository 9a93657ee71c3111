// Package window implements spec.md §4.3: fixed/sliding/hopping windows
// over a sequence, time-bounded buffering, and predicate-bounded buffering.
package window

import (
	"fmt"
	"iter"
	"time"
)

// Window groups items into slices of exactly windowSize, sliding forward by
// slideSize between emissions. slideSize defaults to windowSize (tumbling)
// when zero is passed as a convenience; both must otherwise be positive.
//
//   - slideSize == windowSize: tumbling, non-overlapping, no trailing
//     partial window.
//   - slideSize < windowSize: sliding, overlapping, no trailing partial
//     window.
//   - slideSize > windowSize: hopping, items between windows are dropped.
func Window[T any](s iter.Seq[T], windowSize, slideSize int) (iter.Seq[[]T], error) {
	if slideSize == 0 {
		slideSize = windowSize
	}
	if windowSize <= 0 || slideSize <= 0 {
		return nil, fmt.Errorf("window: windowSize and slideSize must be positive, got %d/%d", windowSize, slideSize)
	}

	return func(yield func([]T) bool) {
		buf := make([]T, 0, windowSize)
		dropPending := 0

		for v := range s {
			if dropPending > 0 {
				dropPending--
				continue
			}
			buf = append(buf, v)
			if len(buf) == windowSize {
				out := make([]T, windowSize)
				copy(out, buf)
				if !yield(out) {
					return
				}
				if slideSize >= windowSize {
					buf = buf[:0]
					dropPending = slideSize - windowSize
				} else {
					buf = append(buf[:0], buf[slideSize:]...)
				}
			}
		}
		// Trailing partial window is never emitted (tumbling/sliding) and
		// hopping has no partial-window concept either — spec.md §4.3.
	}, nil
}

// BufferTime collects items into batches, emitting when windowMs elapses
// since the last emission or the batch reaches maxSize (if maxSize > 0).
// A non-empty trailing batch is emitted on source completion. The timer is
// released on every exit path: normal completion, consumer abort, and the
// deferred cleanup below.
func BufferTime[T any](s iter.Seq[T], windowMs int, maxSize int) (iter.Seq[[]T], error) {
	if windowMs <= 0 {
		return nil, fmt.Errorf("window: bufferTime windowMs must be positive, got %d", windowMs)
	}
	if maxSize < 0 {
		return nil, fmt.Errorf("window: bufferTime maxSize must be non-negative, got %d", maxSize)
	}

	return func(yield func([]T) bool) {
		// The source is synchronous (iter.Seq has no concurrent producer
		// hook), so "windowMs elapses" is evaluated against wall-clock time
		// observed between successive source pulls rather than a ticking
		// goroutine; this preserves the emission contract without requiring
		// a separate timer goroutine racing the consumer. A real timer is
		// still held so its release-on-every-exit-path discipline (the
		// deferred Stop below) matches the orchestrator's cleanup pattern.
		buf := make([]T, 0)
		windowStart := time.Now()
		timer := time.NewTimer(time.Duration(windowMs) * time.Millisecond)
		defer timer.Stop()

		flush := func() bool {
			if len(buf) == 0 {
				return true
			}
			out := buf
			buf = make([]T, 0)
			windowStart = time.Now()
			return yield(out)
		}

		for v := range s {
			if time.Since(windowStart) >= time.Duration(windowMs)*time.Millisecond && len(buf) > 0 {
				if !flush() {
					return
				}
			}
			buf = append(buf, v)
			if maxSize > 0 && len(buf) >= maxSize {
				if !flush() {
					return
				}
			}
		}
		if len(buf) > 0 {
			yield(buf)
		}
	}, nil
}

// BufferUntil appends each arriving item to the buffer unconditionally,
// then emits and resets the buffer if predicate(buffer, item) is true.
// Predicate errors propagate immediately: the predicate's error is yielded
// unwrapped as a (nil, err) pair and the sequence stops.
// A trailing non-empty buffer is emitted on source completion.
func BufferUntil[T any](s iter.Seq[T], predicate func(buf []T, item T) (bool, error)) iter.Seq2[[]T, error] {
	return func(yield func([]T, error) bool) {
		buf := make([]T, 0)
		for v := range s {
			buf = append(buf, v)
			emit, err := predicate(buf[:len(buf)-1], v)
			if err != nil {
				yield(nil, err)
				return
			}
			if emit {
				out := buf
				buf = make([]T, 0)
				if !yield(out, nil) {
					return
				}
			}
		}
		if len(buf) > 0 {
			yield(buf, nil)
		}
	}
}
