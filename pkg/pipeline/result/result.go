// Package result defines the sum-typed stage outcome (Result[T]), the
// StageError envelope, and the per-stage/list-operation metadata that every
// pipeline stage invocation in flowline produces.
package result

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jmylchreest/flowline/internal/ids"
)

// Known error codes. Codes are an opaque contract observed by the retry
// loop in pkg/pipeline/batch and by callers inspecting failures.
const (
	CodeStageError           = "STAGE_ERROR"
	CodeUnhandledError       = "UNHANDLED_ERROR"
	CodeListStepError        = "LIST_STEP_ERROR"
	CodeListProcessingError  = "LIST_PROCESSING_ERROR"
	CodeListProcessingErrors = "LIST_PROCESSING_ERRORS"
	CodeBatchConversionError = "BATCH_CONVERSION_ERROR"
	CodeHybridStepError      = "HYBRID_STEP_ERROR"
	CodeETimedout            = "ETIMEDOUT"
	CodeEConnReset           = "ECONNRESET"
	CodeEConnRefused         = "ECONNREFUSED"
	CodeRateLimit            = "RATE_LIMIT"
)

// retryableTokens are scanned for, case-insensitively, in an error's message
// when no structured code is available. This is spec.md §4.1's contract;
// the retry loop in batch.executeWithRetry depends on it being observable
// here rather than buried in the pipeline engine.
var retryableTokens = []string{
	CodeETimedout, CodeEConnReset, CodeEConnRefused, CodeRateLimit,
	"fetch failed", "rate limit",
}

// StageError is the pipeline-domain error envelope. It embeds an optional
// underlying error as Cause and satisfies the standard error interface so
// callers can use errors.As/errors.Is against it.
type StageError struct {
	Code      string
	Message   string
	Cause     error
	Retryable bool
}

func (e *StageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// NewStageError builds a StageError, deriving Code and Retryable from cause
// when code is empty: first by message-token scan, otherwise CodeStageError.
func NewStageError(code, message string, cause error) *StageError {
	if code == "" {
		code = deriveCode(cause, message)
	}
	return &StageError{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(code, message, cause),
	}
}

// WrapUnhandled wraps an error that escaped a stage body as a non-retryable
// UNHANDLED_ERROR, per spec.md §4.6.
func WrapUnhandled(err error) *StageError {
	return &StageError{
		Code:      CodeUnhandledError,
		Message:   "unhandled error escaped stage",
		Cause:     err,
		Retryable: false,
	}
}

func deriveCode(cause error, message string) string {
	haystack := message
	if cause != nil {
		haystack += " " + cause.Error()
	}
	upper := strings.ToUpper(haystack)
	for _, code := range []string{CodeETimedout, CodeEConnReset, CodeEConnRefused, CodeRateLimit} {
		if strings.Contains(upper, code) {
			return code
		}
	}
	return CodeStageError
}

func isRetryable(code, message string, cause error) bool {
	haystack := strings.ToLower(message)
	if cause != nil {
		haystack += " " + strings.ToLower(cause.Error())
	}
	for _, tok := range retryableTokens {
		if strings.Contains(haystack, strings.ToLower(tok)) {
			return true
		}
	}
	switch code {
	case CodeETimedout, CodeEConnReset, CodeEConnRefused, CodeRateLimit:
		return true
	}
	return false
}

// ExecutionStrategy records whether a list operation ran sequentially or
// in parallel.
type ExecutionStrategy string

const (
	StrategySequential ExecutionStrategy = "sequential"
	StrategyParallel   ExecutionStrategy = "parallel"
)

// ItemTimings is the nearest-rank percentile aggregate over per-item
// durations in milliseconds.
type ItemTimings struct {
	Min float64
	Max float64
	Avg float64
	P50 float64
	P95 float64
	P99 float64
}

// ComputeItemTimings computes min/max/avg/p50/p95/p99 (ms) over durations
// using ceil(p*N) nearest-rank percentiles. Returns the zero value for an
// empty input.
func ComputeItemTimings(durations []time.Duration) ItemTimings {
	if len(durations) == 0 {
		return ItemTimings{}
	}
	ms := make([]float64, len(durations))
	for i, d := range durations {
		ms[i] = float64(d.Microseconds()) / 1000.0
	}
	sort.Float64s(ms)

	var sum float64
	for _, v := range ms {
		sum += v
	}

	return ItemTimings{
		Min: ms[0],
		Max: ms[len(ms)-1],
		Avg: sum / float64(len(ms)),
		P50: percentile(ms, 0.50),
		P95: percentile(ms, 0.95),
		P99: percentile(ms, 0.99),
	}
}

// percentile returns the nearest-rank percentile of sorted values using
// ceil(p*N), 1-indexed per spec.md §4.5.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	rank := int(math.Ceil(p * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}

// ListOperationMetadata is present on stage metadata iff the stage
// processed a collection (via pkg/pipeline/listadapter).
type ListOperationMetadata struct {
	TotalItems        int
	SuccessCount      int
	FailureCount      int
	SkippedCount      int
	ExecutionStrategy ExecutionStrategy
	ConcurrencyLimit  *int // only set when ExecutionStrategy == StrategyParallel
	ItemTimings       *ItemTimings
}

// StageMetadata is attached to every Result, success or failure.
type StageMetadata struct {
	StageName    string
	StartTime    time.Time
	EndTime      time.Time
	DurationMs   int64
	TraceID      ids.TraceID
	SpanID       ids.SpanID
	ListMetadata *ListOperationMetadata
}

// NewStageMetadata builds metadata with DurationMs derived from the given
// start/end times, enforcing the durationMs >= 0 invariant.
func NewStageMetadata(stageName string, start, end time.Time, trace ids.TraceID, span ids.SpanID) StageMetadata {
	d := end.Sub(start).Milliseconds()
	if d < 0 {
		d = 0
	}
	return StageMetadata{
		StageName:  stageName,
		StartTime:  start,
		EndTime:    end,
		DurationMs: d,
		TraceID:    trace,
		SpanID:     span,
	}
}

// Result is the sum-typed stage outcome: exactly one of the data/error
// variants is populated; Meta is always present.
type Result[T any] struct {
	ok   bool
	data T
	err  *StageError
	Meta StageMetadata
}

// Ok constructs a success Result.
func Ok[T any](data T, meta StageMetadata) Result[T] {
	return Result[T]{ok: true, data: data, Meta: meta}
}

// Err constructs a failure Result.
func Err[T any](err *StageError, meta StageMetadata) Result[T] {
	return Result[T]{ok: false, err: err, Meta: meta}
}

// IsOk reports whether this Result holds a success value.
func (r Result[T]) IsOk() bool { return r.ok }

// IsErr reports whether this Result holds a failure.
func (r Result[T]) IsErr() bool { return !r.ok }

// Data returns the success value and true, or the zero value and false.
func (r Result[T]) Data() (T, bool) {
	return r.data, r.ok
}

// Error returns the failure, or nil if this Result is a success.
func (r Result[T]) Error() *StageError {
	return r.err
}

// MapResult transforms a successful Result's data, leaving metadata and
// failures untouched.
func MapResult[T, U any](r Result[T], f func(T) U) Result[U] {
	if r.IsErr() {
		return Err[U](r.err, r.Meta)
	}
	return Ok(f(r.data), r.Meta)
}
