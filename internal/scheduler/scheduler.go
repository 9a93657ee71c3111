// Package scheduler drives recurring pipeline runs on a cron schedule,
// adapted from the teacher's internal/scheduler job-scheduling package
// (trimmed from its database-backed job-sync loop down to the single
// cron entry this module needs: "re-run the configured pipeline").
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
)

// RunFunc executes one pipeline run. Scheduler logs and swallows any
// error it returns so a single bad run doesn't stop future firings.
type RunFunc func(ctx context.Context) error

// NormalizeCronExpression accepts 6-field (sec min hour dom month dow) or
// 7-field (with a trailing year) cron expressions and returns the 6-field
// form robfig/cron understands, validating but discarding the year field.
func NormalizeCronExpression(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", fmt.Errorf("empty cron expression")
	}
	if strings.HasPrefix(expr, "@") {
		return expr, nil
	}
	fields := strings.Fields(expr)
	switch len(fields) {
	case 6:
		return expr, nil
	case 7:
		if !isValidYearField(fields[6]) {
			return "", fmt.Errorf("invalid year field %q: must be * or a valid year/range", fields[6])
		}
		return strings.Join(fields[:6], " "), nil
	default:
		return "", fmt.Errorf("invalid cron expression: expected 6 or 7 fields, got %d", len(fields))
	}
}

func isValidYearField(field string) bool {
	if field == "" {
		return false
	}
	for _, r := range field {
		if !((r >= '0' && r <= '9') || r == ',' || r == '-' || r == '/' || r == '*') {
			return false
		}
	}
	return true
}

// Scheduler fires a RunFunc on a cron schedule using robfig/cron as the
// timing engine, with panic recovery around every firing.
type Scheduler struct {
	mu sync.Mutex

	logger  *slog.Logger
	parser  cron.Parser
	engine  *cron.Cron
	entryID cron.EntryID
	hasJob  bool
	started bool
}

// New creates an idle Scheduler. Call Schedule to register the recurring
// run, then Start to begin firing it.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	engine := cron.New(cron.WithParser(parser), cron.WithChain(
		cron.Recover(cron.DefaultLogger),
	))
	return &Scheduler{
		logger: logger.With("component", "scheduler"),
		parser: parser,
		engine: engine,
	}
}

// Schedule registers run to fire on expr (6- or 7-field cron). Calling it
// again replaces the previous schedule; only one recurring run is kept
// since this module executes one pipeline per scheduler instance.
func (s *Scheduler) Schedule(expr string, run RunFunc) error {
	normalized, err := NormalizeCronExpression(expr)
	if err != nil {
		return fmt.Errorf("normalizing cron expression: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasJob {
		s.engine.Remove(s.entryID)
	}

	id, err := s.engine.AddFunc(normalized, func() {
		s.logger.Info("scheduled pipeline run starting")
		if err := run(context.Background()); err != nil {
			s.logger.Error("scheduled pipeline run failed", slog.Any("error", err))
			return
		}
		s.logger.Info("scheduled pipeline run completed")
	})
	if err != nil {
		return fmt.Errorf("registering cron entry %q: %w", normalized, err)
	}
	s.entryID = id
	s.hasJob = true
	return nil
}

// Start begins firing the scheduled run. A Scheduler with no job
// registered starts successfully but never fires anything.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	s.started = true
	s.mu.Unlock()

	s.engine.Start()
	s.logger.Info("scheduler started")

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the cron engine, waiting for any in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	stopCtx := s.engine.Stop()
	<-stopCtx.Done()
	s.logger.Info("scheduler stopped")
}

// NextRun reports when the scheduled job will next fire, or the zero
// value if nothing is scheduled.
func (s *Scheduler) NextRun() (cron.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasJob {
		return cron.Entry{}, false
	}
	return s.engine.Entry(s.entryID), true
}
