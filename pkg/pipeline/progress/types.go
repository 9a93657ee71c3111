// Package progress implements spec.md §4.9's subscribable pipeline progress
// tracker, generalized from the teacher's internal/service/progress.Service
// (IPTV-operation tracking) to per-stage pipeline event tracking.
package progress

import (
	"encoding/json"
	"time"
)

// EventKind identifies the kind of lifecycle event a Tracker emits.
type EventKind string

const (
	PipelineStart    EventKind = "pipeline:start"
	PipelineComplete EventKind = "pipeline:complete"
	PipelineError    EventKind = "pipeline:error"
	StepStart        EventKind = "step:start"
	StepComplete     EventKind = "step:complete"
	StepError        EventKind = "step:error"
	ItemProcessed    EventKind = "item:processed"
	ItemYielded      EventKind = "item:yielded"
	ItemError        EventKind = "item:error"
)

// isTerminal reports whether kind marks the end of a pipeline run, which
// the broadcaster delivers with a blocking send-with-timeout rather than
// a best-effort drop, mirroring the teacher's terminal-event guarantee.
func (k EventKind) isTerminal() bool {
	return k == PipelineComplete || k == PipelineError
}

// Event is a single lifecycle notification. StageKey/StageName are empty
// for pipeline-level kinds (pipeline:start/complete/error).
type Event struct {
	Kind      EventKind
	StageKey  string
	StageName string
	Message   string
	Err       error
	Timestamp time.Time
}

// MarshalJSON renders Err as its message string, since json.Marshal has no
// useful default for an error interface value.
func (e Event) MarshalJSON() ([]byte, error) {
	type alias struct {
		Kind      EventKind `json:"kind"`
		StageKey  string    `json:"stageKey,omitempty"`
		StageName string    `json:"stageName,omitempty"`
		Message   string    `json:"message,omitempty"`
		Err       string    `json:"error,omitempty"`
		Timestamp time.Time `json:"timestamp"`
	}
	a := alias{
		Kind: e.Kind, StageKey: e.StageKey, StageName: e.StageName,
		Message: e.Message, Timestamp: e.Timestamp,
	}
	if e.Err != nil {
		a.Err = e.Err.Error()
	}
	return json.Marshal(a)
}

// StageCounters accumulates per-stage statistics from the events observed
// for one stage key.
type StageCounters struct {
	Key            string
	Name           string
	Status         string // "idle", "running", "completed", "error"
	StartedAt      time.Time
	CompletedAt    time.Time
	InputCount     int
	OutputCount    int
	ItemsProcessed int
	ItemsYielded   int
	ItemErrors     int
}

// ExpansionRatio is outputCount/inputCount, or 1 when inputCount is zero
// (spec.md §4.9: a stage that hasn't seen any input yet hasn't changed the
// volume of data flowing through it).
func (c StageCounters) ExpansionRatio() float64 {
	if c.InputCount == 0 {
		return 1
	}
	return float64(c.OutputCount) / float64(c.InputCount)
}

// Duration returns the stage's elapsed wall-clock time: to CompletedAt if
// set, otherwise to now for a still-running stage.
func (c StageCounters) Duration() time.Duration {
	if c.StartedAt.IsZero() {
		return 0
	}
	end := c.CompletedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(c.StartedAt)
}

// Summary is GenerateSummary's structured form, rendered to text by
// String.
type Summary struct {
	Status               string
	ProgressRatio        float64
	AverageThroughput    float64 // items/sec
	EstimatedRemainingMs *int64  // nil means "calculating"
	ElapsedMs            int64
	Stages               []StageCounters
	// HostSnapshot carries whatever the tracker's host-snapshot hook
	// (typically internal/sysmetrics.Collector.Collect) returned at
	// summary time, reported alongside EstimatedRemainingMs (which does not
	// use it). Nil when no hook is registered.
	HostSnapshot any
}
