package progress

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_StepLifecycleUpdatesCounters(t *testing.T) {
	tr := NewTracker(2, nil)
	tr.Emit(Event{Kind: PipelineStart})
	tr.Emit(Event{Kind: StepStart, StageKey: "parse", StageName: "parse"})
	tr.Emit(Event{Kind: ItemProcessed, StageKey: "parse", StageName: "parse"})
	tr.Emit(Event{Kind: ItemProcessed, StageKey: "parse", StageName: "parse"})
	tr.Emit(Event{Kind: StepComplete, StageKey: "parse", StageName: "parse"})

	summary := tr.GenerateSummary()
	require.Len(t, summary.Stages, 1)
	assert.Equal(t, "completed", summary.Stages[0].Status)
	assert.Equal(t, 2, summary.Stages[0].InputCount)
	assert.Equal(t, 2, summary.Stages[0].OutputCount)
	assert.Equal(t, float64(1), summary.Stages[0].ExpansionRatio())
	assert.InDelta(t, 0.5, tr.ProgressRatio(), 0.001)
}

func TestTracker_ExpansionRatioDefaultsToOneWithNoInput(t *testing.T) {
	tr := NewTracker(1, nil)
	tr.Emit(Event{Kind: ItemYielded, StageKey: "expand", StageName: "expand"})
	summary := tr.GenerateSummary()
	assert.Equal(t, float64(1), summary.Stages[0].ExpansionRatio())
}

func TestTracker_EstimatedRemainingMsCalculatingUntilEstablished(t *testing.T) {
	tr := NewTracker(4, nil)
	assert.Nil(t, tr.EstimatedRemainingMs())

	tr.Emit(Event{Kind: ItemProcessed, StageKey: "a", StageName: "a"})
	assert.Nil(t, tr.EstimatedRemainingMs(), "a single item can't establish a rate")

	tr.Emit(Event{Kind: ItemProcessed, StageKey: "a", StageName: "a"})
	assert.NotNil(t, tr.EstimatedRemainingMs())
}

func TestTracker_SubscribeReceivesEvents(t *testing.T) {
	tr := NewTracker(1, nil)
	sub := tr.Subscribe(nil)

	tr.Emit(Event{Kind: PipelineStart})

	select {
	case e := <-sub.Events:
		assert.Equal(t, PipelineStart, e.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected event delivery")
	}

	tr.Unsubscribe(sub)
	_, ok := <-sub.Events
	assert.False(t, ok, "channel should be closed after unsubscribe")
}

func TestTracker_FilterSuppressesNonMatchingEvents(t *testing.T) {
	tr := NewTracker(1, nil)
	sub := tr.Subscribe(func(e Event) bool { return e.Kind == PipelineError })

	tr.Emit(Event{Kind: PipelineStart})
	tr.Emit(Event{Kind: PipelineError, Err: errors.New("boom")})

	e := <-sub.Events
	assert.Equal(t, PipelineError, e.Kind)

	select {
	case <-sub.Events:
		t.Fatal("unexpected second event")
	default:
	}
}

func TestTracker_PanickingFilterTreatedAsNonMatch(t *testing.T) {
	tr := NewTracker(1, nil)
	sub := tr.Subscribe(func(e Event) bool { panic("subscriber bug") })

	assert.NotPanics(t, func() {
		tr.Emit(Event{Kind: PipelineStart})
	})

	select {
	case <-sub.Events:
		t.Fatal("panicking filter should suppress delivery, not crash")
	default:
	}
}

func TestTracker_TerminalEventBlocksUntilDelivered(t *testing.T) {
	tr := NewTracker(1, nil)
	sub := tr.Subscribe(nil)

	// Fill the subscriber's buffer completely with non-terminal events;
	// none of these block the emitter since they're drop-if-full.
	for i := 0; i < 100; i++ {
		tr.Emit(Event{Kind: ItemProcessed, StageKey: "x", StageName: "x"})
	}

	done := make(chan struct{})
	go func() {
		tr.Emit(Event{Kind: PipelineComplete})
		close(done)
	}()

	// Drain one slot so the blocking terminal send has room to land.
	<-sub.Events

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("terminal emit should have unblocked once a slot freed up")
	}

	var sawTerminal bool
	for {
		select {
		case e := <-sub.Events:
			if e.Kind == PipelineComplete {
				sawTerminal = true
			}
		default:
			assert.True(t, sawTerminal, "terminal event must be delivered, not dropped")
			return
		}
	}
}

func TestSummary_StringIncludesStatusAndStages(t *testing.T) {
	tr := NewTracker(1, nil)
	tr.Emit(Event{Kind: PipelineStart})
	tr.Emit(Event{Kind: StepStart, StageKey: "s1", StageName: "enrich"})
	tr.Emit(Event{Kind: ItemProcessed, StageKey: "s1", StageName: "enrich"})
	tr.Emit(Event{Kind: StepComplete, StageKey: "s1", StageName: "enrich"})
	tr.Emit(Event{Kind: PipelineComplete})

	text := tr.GenerateSummary().String()
	assert.Contains(t, text, "completed")
	assert.Contains(t, text, "enrich")
}

func TestTracker_HostSnapshotFuncPopulatesSummary(t *testing.T) {
	tr := NewTracker(1, nil)
	tr.SetHostSnapshotFunc(func() any { return "snapshot-value" })

	summary := tr.GenerateSummary()
	assert.Equal(t, "snapshot-value", summary.HostSnapshot)
}

func TestTracker_NoHostSnapshotFuncLeavesSummaryNil(t *testing.T) {
	tr := NewTracker(1, nil)
	summary := tr.GenerateSummary()
	assert.Nil(t, summary.HostSnapshot)
}
