package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/flowline/internal/config"
	"github.com/jmylchreest/flowline/pkg/pipeline/progress"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(config.DatabaseConfig{DSN: ":memory:", MaxOpenConns: 1, MaxIdleConns: 1, LogLevel: "silent"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_CreateAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateRun(ctx, "nightly-import", RunKindBatch)
	require.NoError(t, err)
	require.False(t, created.ID.IsZero())
	require.Equal(t, RunStatusRunning, created.Status)

	loaded, err := s.GetRun(ctx, created.ID.String())
	require.NoError(t, err)
	require.Equal(t, created.Name, loaded.Name)
	require.Equal(t, RunKindBatch, loaded.Kind)
}

func TestStore_UpdateRunAppliesSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "enrich-catalog", RunKindStream)
	require.NoError(t, err)

	run.ApplySummary(progress.Summary{
		Status:            "completed",
		ProgressRatio:     1,
		AverageThroughput: 42.5,
		ElapsedMs:         1000,
		Stages: []progress.StageCounters{
			{Key: "s1", Name: "parse", Status: "completed", InputCount: 10, OutputCount: 10},
		},
	})
	require.NoError(t, s.UpdateRun(ctx, run))

	loaded, err := s.GetRun(ctx, run.ID.String())
	require.NoError(t, err)
	require.Equal(t, RunStatusCompleted, loaded.Status)
	require.InDelta(t, 42.5, loaded.AverageThroughput, 0.001)
	require.Len(t, loaded.Stages, 1)
	require.Equal(t, "parse", loaded.Stages[0].Name)
}

func TestStore_ListRunsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateRun(ctx, "run-a", RunKindBatch)
	require.NoError(t, err)
	second, err := s.CreateRun(ctx, "run-b", RunKindBatch)
	require.NoError(t, err)
	second.StartedAt = first.StartedAt.Add(1)
	require.NoError(t, s.UpdateRun(ctx, second))

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, second.ID, runs[0].ID)
}

func TestStore_PruneRunsDeletesOlderThanRetention(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old, err := s.CreateRun(ctx, "stale-run", RunKindBatch)
	require.NoError(t, err)
	old.StartedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, s.UpdateRun(ctx, old))

	recent, err := s.CreateRun(ctx, "fresh-run", RunKindBatch)
	require.NoError(t, err)

	n, err := s.PruneRuns(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = s.GetRun(ctx, old.ID.String())
	require.Error(t, err)

	loaded, err := s.GetRun(ctx, recent.ID.String())
	require.NoError(t, err)
	require.Equal(t, recent.Name, loaded.Name)
}

func TestStore_PruneRunsNoopOnNonPositiveRetention(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "any-run", RunKindBatch)
	require.NoError(t, err)
	run.StartedAt = time.Now().Add(-365 * 24 * time.Hour)
	require.NoError(t, s.UpdateRun(ctx, run))

	n, err := s.PruneRuns(ctx, 0)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	_, err = s.GetRun(ctx, run.ID.String())
	require.NoError(t, err)
}
