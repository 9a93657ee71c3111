package result

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResult_OkErr(t *testing.T) {
	meta := StageMetadata{StageName: "test"}

	ok := Ok(42, meta)
	require.True(t, ok.IsOk())
	require.False(t, ok.IsErr())
	data, present := ok.Data()
	assert.True(t, present)
	assert.Equal(t, 42, data)
	assert.Nil(t, ok.Error())

	stageErr := NewStageError("", "boom", errors.New("fetch failed: timeout"))
	errResult := Err[int](stageErr, meta)
	require.True(t, errResult.IsErr())
	_, present = errResult.Data()
	assert.False(t, present)
	assert.Equal(t, stageErr, errResult.Error())
}

func TestNewStageError_DerivesCodeAndRetryable(t *testing.T) {
	tests := []struct {
		name      string
		message   string
		cause     error
		wantCode  string
		retryable bool
	}{
		{"timeout token", "request failed", errors.New("ETIMEDOUT while dialing"), CodeETimedout, true},
		{"conn reset token", "request failed", errors.New("read: ECONNRESET"), CodeEConnReset, true},
		{"rate limit phrase", "upstream returned 429: rate limit exceeded", nil, CodeStageError, true},
		{"fetch failed phrase", "fetch failed due to network", nil, CodeStageError, true},
		{"plain failure", "invalid input", nil, CodeStageError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := NewStageError("", tt.message, tt.cause)
			assert.Equal(t, tt.wantCode, se.Code)
			assert.Equal(t, tt.retryable, se.Retryable)
		})
	}
}

func TestStageError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	se := NewStageError(CodeEConnRefused, "dial failed", cause)
	assert.Contains(t, se.Error(), "ECONNREFUSED")
	assert.Contains(t, se.Error(), "dial failed")
	assert.ErrorIs(t, se, cause)
}

func TestWrapUnhandled(t *testing.T) {
	cause := errors.New("panic recovered")
	se := WrapUnhandled(cause)
	assert.Equal(t, CodeUnhandledError, se.Code)
	assert.False(t, se.Retryable)
	assert.ErrorIs(t, se, cause)
}

func TestComputeItemTimings(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		agg := ComputeItemTimings(nil)
		assert.Equal(t, ItemTimings{}, agg)
	})

	t.Run("nearest rank percentiles", func(t *testing.T) {
		durations := make([]time.Duration, 0, 100)
		for i := 1; i <= 100; i++ {
			durations = append(durations, time.Duration(i)*time.Millisecond)
		}
		agg := ComputeItemTimings(durations)
		assert.InDelta(t, 1, agg.Min, 0.001)
		assert.InDelta(t, 100, agg.Max, 0.001)
		assert.InDelta(t, 50.5, agg.Avg, 0.001)
		assert.InDelta(t, 50, agg.P50, 0.001)
		assert.InDelta(t, 95, agg.P95, 0.001)
		assert.InDelta(t, 99, agg.P99, 0.001)
	})
}

func TestNewStageMetadata_DurationNeverNegative(t *testing.T) {
	start := time.Now()
	end := start.Add(-time.Second) // clock skew scenario
	meta := NewStageMetadata("s1", start, end, "trace", "span")
	assert.GreaterOrEqual(t, meta.DurationMs, int64(0))
}

func TestMapResult(t *testing.T) {
	meta := StageMetadata{StageName: "s1"}
	ok := Ok(2, meta)
	mapped := MapResult(ok, func(i int) string { return "n" })
	assert.True(t, mapped.IsOk())
	data, _ := mapped.Data()
	assert.Equal(t, "n", data)

	se := NewStageError(CodeStageError, "boom", nil)
	errRes := Err[int](se, meta)
	mappedErr := MapResult(errRes, func(i int) string { return "n" })
	assert.True(t, mappedErr.IsErr())
	assert.Equal(t, se, mappedErr.Error())
}
