package telemetry

import (
	"context"
	"log/slog"
	"math"

	"github.com/jmylchreest/flowline/internal/observability"
)

// Level is the pipeline event severity scale from spec.md §4.10, numbered
// independently of slog's own levels so a caller can compare against the
// documented thresholds (e.g. 30 for info) without reaching into slog.
type Level int

const (
	LevelTrace  Level = 10
	LevelDebug  Level = 20
	LevelInfo   Level = 30
	LevelWarn   Level = 40
	LevelError  Level = 50
	LevelFatal  Level = 60
	LevelSilent Level = math.MaxInt32
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	case LevelSilent:
		return "silent"
	default:
		return "unknown"
	}
}

// ParseLevel maps a level name to its Level, defaulting to LevelInfo for an
// unrecognized value.
func ParseLevel(name string) Level {
	switch name {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	case "silent":
		return LevelSilent
	default:
		return LevelInfo
	}
}

// toSlog maps a pipeline Level onto the nearest slog.Level: trace becomes
// slog.LevelDebug - 4 (below slog's own debug), and fatal becomes
// slog.LevelError.
func (l Level) toSlog() slog.Level {
	switch {
	case l <= LevelTrace:
		return slog.LevelDebug - 4
	case l <= LevelDebug:
		return slog.LevelDebug
	case l <= LevelInfo:
		return slog.LevelInfo
	case l <= LevelWarn:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Logger emits spec.md §4.10's pipeline event schema
// ({event, traceId, spanId?, stageName, stageKey, ...}) through
// internal/observability's slog.Logger, sanitizing any field values first.
// It carries its own minimum-level threshold independent of the underlying
// slog handler's level, so a pipeline run can be told to log only
// warn-and-above events for its own event stream while the rest of the
// process logs at info.
type Logger struct {
	slog      *slog.Logger
	min       Level
	sanitizer *Sanitizer
}

// NewLogger wraps slogLogger (typically built by observability.NewLogger)
// as a pipeline Logger tagged with the "pipeline" component. A nil
// sanitizer disables payload sanitization.
func NewLogger(slogLogger *slog.Logger, min Level, sanitizer *Sanitizer) *Logger {
	return NewLoggerWithComponent(slogLogger, "pipeline", min, sanitizer)
}

// NewLoggerWithComponent is NewLogger with an explicit component tag,
// for subsystems that need something other than "pipeline" — C7's
// streaming engine tags itself "streaming-pipeline" so its events are
// distinguishable from C6's batch events in a shared log stream.
func NewLoggerWithComponent(slogLogger *slog.Logger, component string, min Level, sanitizer *Sanitizer) *Logger {
	if slogLogger == nil {
		slogLogger = slog.Default()
	}
	return &Logger{
		slog:      observability.WithComponent(slogLogger, component),
		min:       min,
		sanitizer: sanitizer,
	}
}

// Enabled reports whether level passes this logger's minimum threshold.
func (l *Logger) Enabled(level Level) bool {
	return level >= l.min
}

// Log emits event at level with fields, after sanitizing each field value.
// An event below the logger's minimum level is dropped without touching the
// underlying slog.Logger at all.
func (l *Logger) Log(ctx context.Context, level Level, event string, fields map[string]any) {
	if !l.Enabled(level) {
		return
	}

	attrs := make([]slog.Attr, 0, len(fields)+1)
	attrs = append(attrs, slog.String("event", event))
	for k, v := range fields {
		if v == nil {
			continue
		}
		if l.sanitizer != nil {
			v = l.sanitizer.Sanitize(v, k)
		}
		attrs = append(attrs, slog.Any(k, v))
	}

	l.slog.LogAttrs(ctx, level.toSlog(), event, attrs...)
}

func (l *Logger) Trace(ctx context.Context, event string, fields map[string]any) {
	l.Log(ctx, LevelTrace, event, fields)
}

func (l *Logger) Debug(ctx context.Context, event string, fields map[string]any) {
	l.Log(ctx, LevelDebug, event, fields)
}

func (l *Logger) Info(ctx context.Context, event string, fields map[string]any) {
	l.Log(ctx, LevelInfo, event, fields)
}

func (l *Logger) Warn(ctx context.Context, event string, fields map[string]any) {
	l.Log(ctx, LevelWarn, event, fields)
}

func (l *Logger) Error(ctx context.Context, event string, fields map[string]any) {
	l.Log(ctx, LevelError, event, fields)
}

func (l *Logger) Fatal(ctx context.Context, event string, fields map[string]any) {
	l.Log(ctx, LevelFatal, event, fields)
}

// StageEvent logs event at level using the canonical pipeline event schema:
// traceId, the optional spanId, stageName/stageKey, plus any caller-supplied
// extra fields layered on top.
func (l *Logger) StageEvent(ctx context.Context, level Level, event, traceID, spanID, stageName, stageKey string, extra map[string]any) {
	fields := make(map[string]any, len(extra)+4)
	fields["traceId"] = traceID
	if spanID != "" {
		fields["spanId"] = spanID
	}
	fields["stageName"] = stageName
	fields["stageKey"] = stageKey
	for k, v := range extra {
		fields[k] = v
	}
	l.Log(ctx, level, event, fields)
}
