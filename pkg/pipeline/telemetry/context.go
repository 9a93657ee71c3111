package telemetry

import (
	"context"

	"github.com/jmylchreest/flowline/internal/observability"
)

type settingsKey struct{}

// settings is the minimum level and sanitizer pkg/pipeline/batch (C6) and
// pkg/pipeline/stream (C7) build their component-tagged Logger from, so one
// cmd/flowline-level config controls sanitization across both engines
// without either package importing internal/config directly.
type settings struct {
	min       Level
	sanitizer *Sanitizer
}

// ContextWithSettings attaches min and sanitizer for LoggerFromContext to
// pick up. A nil sanitizer disables payload sanitization.
func ContextWithSettings(ctx context.Context, min Level, sanitizer *Sanitizer) context.Context {
	return context.WithValue(ctx, settingsKey{}, settings{min: min, sanitizer: sanitizer})
}

// LoggerFromContext builds a Logger tagged with component, wrapping
// internal/observability's context-scoped slog.Logger and applying whatever
// settings ContextWithSettings attached (LevelTrace, no sanitizer, if none
// were attached — i.e. log everything, sanitize nothing).
func LoggerFromContext(ctx context.Context, component string) *Logger {
	s, _ := ctx.Value(settingsKey{}).(settings)
	min := s.min
	if min == 0 {
		min = LevelTrace
	}
	return NewLoggerWithComponent(observability.LoggerFromContext(ctx), component, min, s.sanitizer)
}
