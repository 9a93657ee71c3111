// Package ids generates the correlation tokens attached to pipeline
// lifecycle events: trace IDs scoped to one pipeline execution and span IDs
// scoped to one stage invocation within it.
package ids

import (
	"github.com/oklog/ulid/v2"
)

// TraceID identifies one pipeline execution across every stage it runs.
type TraceID string

// SpanID identifies one stage invocation within a pipeline execution.
type SpanID string

// NewTraceID returns a fresh trace ID. ulid.Make is safe for concurrent use.
func NewTraceID() TraceID {
	return TraceID(ulid.Make().String())
}

// NewSpanID returns a fresh span ID.
func NewSpanID() SpanID {
	return SpanID(ulid.Make().String())
}

func (t TraceID) String() string { return string(t) }
func (s SpanID) String() string  { return string(s) }
