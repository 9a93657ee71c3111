package stream

import "iter"

// State is the accumulated-state view a streaming Stage sees: the
// snapshots taken so far, plus (when available) the lazy stream behind a
// given key. *StreamingState is the normal implementation; bridge.ToBatch
// substitutes one whose Stream/Materialize refuse, since a batch-mode run
// has no concurrent stream to hand back.
type State interface {
	Accumulated() map[string][]any
	Stream(key string) iter.Seq2[any, error]
	Materialize(key string) []any
}

// StreamingState is the hybrid view onto prior-stage outputs described in
// spec.md §3: a snapshot view for stages that have been explicitly
// materialized, and a stream view — a restartable-once lazy sequence —
// for everything else. Once materialized, a stream becomes a snapshot and
// the two views never diverge again.
type StreamingState struct {
	snapshots map[string][]any
	streams   map[string]iter.Seq2[any, error]
}

func newStreamingState() *StreamingState {
	return &StreamingState{
		snapshots: make(map[string][]any),
		streams:   make(map[string]iter.Seq2[any, error]),
	}
}

func (s *StreamingState) record(key string, data iter.Seq2[any, error]) {
	s.streams[key] = data
}

// Accumulated returns the fully materialized snapshots taken so far,
// keyed by stage key. Non-checkpointed stages are absent.
func (s *StreamingState) Accumulated() map[string][]any {
	out := make(map[string][]any, len(s.snapshots))
	for k, v := range s.snapshots {
		out[k] = v
	}
	return out
}

// Stream yields key's data: from the snapshot if already materialized,
// otherwise from the stored lazy sequence. Consuming a non-materialized
// stream exhausts it; call Materialize first to consume it more than once.
func (s *StreamingState) Stream(key string) iter.Seq2[any, error] {
	if snap, ok := s.snapshots[key]; ok {
		return func(yield func(any, error) bool) {
			for _, v := range snap {
				if !yield(v, nil) {
					return
				}
			}
		}
	}
	if str, ok := s.streams[key]; ok {
		return str
	}
	return func(yield func(any, error) bool) {}
}

// Materialize converts key's lazy sequence into a cached snapshot, pulling
// it to completion (stopping at the first error). Idempotent: materializing
// an already-snapshotted key just returns the cached slice.
func (s *StreamingState) Materialize(key string) []any {
	if snap, ok := s.snapshots[key]; ok {
		return snap
	}
	str, ok := s.streams[key]
	if !ok {
		return nil
	}
	var out []any
	for v, err := range str {
		if err != nil {
			break
		}
		out = append(out, v)
	}
	s.snapshots[key] = out
	delete(s.streams, key)
	return out
}
