package progress

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// throughputWindow caps how many of the most recent item-completion
// timestamps feed averageThroughput/estimatedRemainingMs, so a long-idle
// stretch early in a run doesn't drag down a tracker's read of the
// pipeline's current pace.
const throughputWindow = 50

// Subscription is a live event feed returned by Subscribe. Read from
// Events until it's closed by Unsubscribe.
type Subscription struct {
	ID     string
	filter func(Event) bool
	Events chan Event
}

// Tracker is a subscribable event source over one pipeline run's lifecycle,
// per spec.md §4.9: per-stage counters, overall progress/throughput/ETA,
// and a textual GenerateSummary. Mirrors the teacher's progress.Service
// subscribe/broadcast discipline, generalized from IPTV-operation states to
// the pipeline event vocabulary.
type Tracker struct {
	mu            sync.RWMutex
	logger        *slog.Logger
	subscribers   map[string]*Subscription
	stages        map[string]*StageCounters
	stageOrder    []string
	totalSteps    int
	completedSteps int
	startedAt     time.Time
	completedAt   time.Time
	status        string
	recentItemAt  []time.Time
	itemsTotal    int
	hostSnapshot  func() any
}

// SetHostSnapshotFunc registers a hook GenerateSummary calls to populate
// Summary.HostSnapshot, e.g. internal/sysmetrics.Collector.Collect wrapped
// to discard its context argument. Pass nil to stop attaching a snapshot.
func (t *Tracker) SetHostSnapshotFunc(f func() any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hostSnapshot = f
}

// NewTracker creates a Tracker expecting totalSteps stages over the run's
// lifetime; totalSteps drives progressRatio and is otherwise advisory.
func NewTracker(totalSteps int, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		logger:      logger.With("component", "pipeline.progress"),
		subscribers: make(map[string]*Subscription),
		stages:      make(map[string]*StageCounters),
		totalSteps:  totalSteps,
		status:      "idle",
	}
}

// Subscribe registers a new event feed. filter, if non-nil, is evaluated
// per event and may suppress delivery; a panicking filter is recovered and
// treated as a non-match, per spec.md §4.9's "subscribers must not throw."
func (t *Tracker) Subscribe(filter func(Event) bool) *Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub := &Subscription{
		ID:     ulid.Make().String(),
		filter: filter,
		Events: make(chan Event, 100),
	}
	t.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes sub and closes its Events channel. Returns an
// unsubscribe handle's worth of idempotency: calling it twice is a no-op.
func (t *Tracker) Unsubscribe(sub *Subscription) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.subscribers[sub.ID]; ok {
		delete(t.subscribers, sub.ID)
		close(sub.Events)
	}
}

func (t *Tracker) stageFor(key, name string) *StageCounters {
	c, ok := t.stages[key]
	if !ok {
		c = &StageCounters{Key: key, Name: name, Status: "idle"}
		t.stages[key] = c
		t.stageOrder = append(t.stageOrder, key)
	}
	return c
}

// Emit records event against the tracker's counters and broadcasts it to
// subscribers. Must be called once per lifecycle transition; Emit itself
// decides how counters move, so callers just report what happened.
func (t *Tracker) Emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	t.mu.Lock()

	switch e.Kind {
	case PipelineStart:
		t.startedAt = e.Timestamp
		t.status = "running"
	case PipelineComplete:
		t.completedAt = e.Timestamp
		t.status = "completed"
	case PipelineError:
		t.completedAt = e.Timestamp
		t.status = "error"
	case StepStart:
		c := t.stageFor(e.StageKey, e.StageName)
		c.Status = "running"
		c.StartedAt = e.Timestamp
	case StepComplete:
		c := t.stageFor(e.StageKey, e.StageName)
		c.Status = "completed"
		c.CompletedAt = e.Timestamp
		t.completedSteps++
	case StepError:
		c := t.stageFor(e.StageKey, e.StageName)
		c.Status = "error"
		c.CompletedAt = e.Timestamp
	case ItemProcessed:
		c := t.stageFor(e.StageKey, e.StageName)
		c.InputCount++
		c.OutputCount++
		c.ItemsProcessed++
		t.recordItemLocked(e.Timestamp)
	case ItemYielded:
		c := t.stageFor(e.StageKey, e.StageName)
		c.OutputCount++
		c.ItemsYielded++
		t.recordItemLocked(e.Timestamp)
	case ItemError:
		c := t.stageFor(e.StageKey, e.StageName)
		c.InputCount++
		c.ItemErrors++
	}

	t.broadcastLocked(e)
	t.mu.Unlock()
}

func (t *Tracker) recordItemLocked(at time.Time) {
	t.itemsTotal++
	t.recentItemAt = append(t.recentItemAt, at)
	if len(t.recentItemAt) > throughputWindow {
		t.recentItemAt = t.recentItemAt[len(t.recentItemAt)-throughputWindow:]
	}
}

// broadcastLocked sends e to every subscriber whose filter matches (or has
// none). Terminal pipeline events must be delivered, so they block the
// broadcaster for up to 500ms per subscriber; everything else is dropped
// if that subscriber's channel is full.
func (t *Tracker) broadcastLocked(e Event) {
	for _, sub := range t.subscribers {
		if !t.matchesLocked(sub, e) {
			continue
		}
		if e.Kind.isTerminal() {
			select {
			case sub.Events <- e:
			case <-time.After(500 * time.Millisecond):
				t.logger.Error("failed to deliver terminal event, subscriber channel full",
					slog.String("event", string(e.Kind)),
					slog.String("subscriberId", sub.ID),
				)
			}
		} else {
			select {
			case sub.Events <- e:
			default:
				t.logger.Warn("subscriber channel full, dropping event",
					slog.String("event", string(e.Kind)),
					slog.String("subscriberId", sub.ID),
				)
			}
		}
	}
}

func (t *Tracker) matchesLocked(sub *Subscription, e Event) (matched bool) {
	if sub.filter == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("subscriber filter panicked, treating as non-match",
				slog.Any("panic", r),
				slog.String("subscriberId", sub.ID),
			)
			matched = false
		}
	}()
	return sub.filter(e)
}

// ProgressRatio is completedSteps/totalSteps, or 0 if totalSteps is unset.
func (t *Tracker) ProgressRatio() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.totalSteps == 0 {
		return 0
	}
	return float64(t.completedSteps) / float64(t.totalSteps)
}

// AverageThroughput is totalItemsProcessed / (elapsedMs/1000), in
// items/sec, over the run's full elapsed time so far.
func (t *Tracker) AverageThroughput() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.averageThroughputLocked()
}

func (t *Tracker) averageThroughputLocked() float64 {
	elapsed := t.elapsedLocked()
	if elapsed <= 0 {
		return 0
	}
	return float64(t.itemsTotal) / (float64(elapsed.Milliseconds()) / 1000)
}

func (t *Tracker) elapsedLocked() time.Duration {
	if t.startedAt.IsZero() {
		return 0
	}
	end := t.completedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(t.startedAt)
}

// EstimatedRemainingMs projects the recent per-item throughput (the last
// throughputWindow items) over the pipeline's remaining steps. Returns nil
// ("calculating") until at least two recent item timestamps establish a
// rate, per spec.md §4.9.
func (t *Tracker) EstimatedRemainingMs() *int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.estimatedRemainingMsLocked()
}

// estimatedRemainingMsLocked does the actual projection; callers must
// already hold t.mu for reading. Without a known remaining-item count, it
// approximates by assuming the remaining steps process items at the same
// average rate observed so far in the run.
func (t *Tracker) estimatedRemainingMsLocked() *int64 {
	if len(t.recentItemAt) < 2 || t.totalSteps == 0 {
		return nil
	}
	span := t.recentItemAt[len(t.recentItemAt)-1].Sub(t.recentItemAt[0])
	if span <= 0 {
		return nil
	}
	perItemMs := float64(span.Milliseconds()) / float64(len(t.recentItemAt)-1)

	remainingSteps := t.totalSteps - t.completedSteps
	if remainingSteps <= 0 {
		zero := int64(0)
		return &zero
	}

	avgItemsPerStep := float64(t.itemsTotal) / float64(max(t.completedSteps, 1))
	estimate := int64(perItemMs * avgItemsPerStep * float64(remainingSteps))
	return &estimate
}

// GenerateSummary produces the structured report backing GenerateSummary's
// textual form: overall status, per-stage name/status/counts/duration.
func (t *Tracker) GenerateSummary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stages := make([]StageCounters, 0, len(t.stageOrder))
	for _, key := range t.stageOrder {
		stages = append(stages, *t.stages[key])
	}

	var hostSnapshot any
	if t.hostSnapshot != nil {
		hostSnapshot = t.hostSnapshot()
	}

	return Summary{
		Status:               t.status,
		ProgressRatio:        ratioLocked(t.completedSteps, t.totalSteps),
		AverageThroughput:    t.averageThroughputLocked(),
		EstimatedRemainingMs: t.estimatedRemainingMsLocked(),
		ElapsedMs:            t.elapsedLocked().Milliseconds(),
		Stages:               stages,
		HostSnapshot:         hostSnapshot,
	}
}

func ratioLocked(completed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(completed) / float64(total)
}

// String renders s as the textual report spec.md §4.9 requires:
// overall status, each stage's name/status/counts/duration.
func (s Summary) String() string {
	var b strings.Builder
	eta := "calculating"
	if s.EstimatedRemainingMs != nil {
		eta = fmt.Sprintf("%dms", *s.EstimatedRemainingMs)
	}
	fmt.Fprintf(&b, "pipeline %s: %.1f%% complete, %.2f items/s, eta %s, elapsed %dms\n",
		s.Status, s.ProgressRatio*100, s.AverageThroughput, eta, s.ElapsedMs)
	for _, st := range s.Stages {
		fmt.Fprintf(&b, "  %s [%s] %s: in=%d out=%d processed=%d yielded=%d errors=%d ratio=%.2f duration=%s\n",
			st.Name, st.Key, st.Status, st.InputCount, st.OutputCount, st.ItemsProcessed, st.ItemsYielded, st.ItemErrors, st.ExpansionRatio(), st.Duration())
	}
	return b.String()
}
