package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmylchreest/flowline/pkg/pipeline/progress"
)

// RunStatus mirrors the subset of progress.Tracker statuses worth
// persisting across process restarts.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusError     RunStatus = "error"
)

// RunKind records whether a run executed through the batch or streaming
// pipeline engine.
type RunKind string

const (
	RunKindBatch  RunKind = "batch"
	RunKindStream RunKind = "stream"
)

// StageSnapshots is a JSON-column wrapper around the per-stage counters a
// run finished with, so GenerateSummary's shape survives a round trip
// through sqlite without a dedicated child table.
type StageSnapshots []progress.StageCounters

func (s StageSnapshots) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling stage snapshots: %w", err)
	}
	return string(b), nil
}

func (s *StageSnapshots) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported type for StageSnapshots: %T", value)
	}
	if len(raw) == 0 {
		*s = nil
		return nil
	}
	return json.Unmarshal(raw, s)
}

func (StageSnapshots) GormDataType() string {
	return "text"
}

// RunRecord is the persisted summary of one pipeline run, written when the
// run starts and updated through Store.UpdateRun when it ends.
type RunRecord struct {
	BaseModel

	Name   string    `gorm:"size:255;index" json:"name"`
	Kind   RunKind   `gorm:"size:20;index" json:"kind"`
	Status RunStatus `gorm:"size:20;index;default:'running'" json:"status"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	ProgressRatio        float64        `json:"progress_ratio"`
	AverageThroughput    float64        `json:"average_throughput"`
	EstimatedRemainingMs *int64         `json:"estimated_remaining_ms,omitempty"`
	ElapsedMs            int64          `json:"elapsed_ms"`
	Stages               StageSnapshots `gorm:"type:text" json:"stages"`

	LastError string `gorm:"size:4096" json:"last_error,omitempty"`
}

// ApplySummary copies a progress.Summary's fields onto r, translating its
// status string into the RunStatus enum.
func (r *RunRecord) ApplySummary(summary progress.Summary) {
	r.Status = RunStatus(summary.Status)
	r.ProgressRatio = summary.ProgressRatio
	r.AverageThroughput = summary.AverageThroughput
	r.EstimatedRemainingMs = summary.EstimatedRemainingMs
	r.ElapsedMs = summary.ElapsedMs
	r.Stages = StageSnapshots(summary.Stages)
}

func (RunRecord) TableName() string {
	return "run_records"
}
