package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCronExpression(t *testing.T) {
	cases := []struct {
		name    string
		expr    string
		want    string
		wantErr bool
	}{
		{name: "six field passthrough", expr: "0 * * * * *", want: "0 * * * * *"},
		{name: "seven field strips year", expr: "0 * * * * * *", want: "0 * * * * *"},
		{name: "descriptor passthrough", expr: "@hourly", want: "@hourly"},
		{name: "empty is invalid", expr: "", wantErr: true},
		{name: "five field is invalid", expr: "* * * * *", wantErr: true},
		{name: "bad year field is invalid", expr: "0 * * * * * abc", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeCronExpression(tc.expr)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestScheduler_FiresRegisteredRun(t *testing.T) {
	s := New(nil)
	var fired atomic.Int32
	require.NoError(t, s.Schedule("* * * * * *", func(ctx context.Context) error {
		fired.Add(1)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	defer cancel()

	require.Eventually(t, func() bool { return fired.Load() > 0 }, 2*time.Second, 20*time.Millisecond)
	s.Stop()
}

func TestScheduler_ScheduleReplacesPreviousJob(t *testing.T) {
	s := New(nil)
	var firstFired, secondFired atomic.Bool

	require.NoError(t, s.Schedule("* * * * * *", func(ctx context.Context) error {
		firstFired.Store(true)
		return nil
	}))
	require.NoError(t, s.Schedule("* * * * * *", func(ctx context.Context) error {
		secondFired.Store(true)
		return nil
	}))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool { return secondFired.Load() }, 2*time.Second, 20*time.Millisecond)
	assert.False(t, firstFired.Load(), "replaced job should never fire")
}

func TestScheduler_StartTwiceFails(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.Error(t, s.Start(context.Background()))
}

func TestScheduler_NextRunReflectsRegisteredJob(t *testing.T) {
	s := New(nil)
	_, ok := s.NextRun()
	assert.False(t, ok)

	require.NoError(t, s.Schedule("0 0 * * * *", func(ctx context.Context) error { return nil }))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	entry, ok := s.NextRun()
	assert.True(t, ok)
	assert.False(t, entry.Next.IsZero())
}
