package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jmylchreest/flowline/internal/config"
)

// Store wraps a GORM connection scoped to run-history persistence,
// trimmed from the teacher's multi-driver database.DB down to the single
// sqlite driver this module ships a dependency for.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New opens a sqlite-backed Store at cfg.DSN and runs AutoMigrate for
// RunRecord.
func New(cfg config.DatabaseConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{
		Logger:                 newGormLogger(cfg.LogLevel, logger),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening run-history database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.AutoMigrate(&RunRecord{}); err != nil {
		return nil, fmt.Errorf("migrating run_records: %w", err)
	}

	return &Store{db: db, logger: logger.With("component", "store")}, nil
}

func newGormLogger(level string, logger *slog.Logger) gormlogger.Interface {
	lvl := gormlogger.Warn
	switch level {
	case "silent":
		lvl = gormlogger.Silent
	case "error":
		lvl = gormlogger.Error
	case "info":
		lvl = gormlogger.Info
	}
	return gormlogger.New(slogWriter{logger}, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  lvl,
		IgnoreRecordNotFoundError: true,
	})
}

// slogWriter adapts *slog.Logger to gorm's logger.Writer (a printf-style
// Println) interface.
type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Printf(format string, args ...any) {
	w.logger.Info(fmt.Sprintf(format, args...))
}

// Close releases the underlying sql.DB's connections.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateRun inserts a new RunRecord in the running state.
func (s *Store) CreateRun(ctx context.Context, name string, kind RunKind) (*RunRecord, error) {
	r := &RunRecord{
		Name:      name,
		Kind:      kind,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, fmt.Errorf("creating run record: %w", err)
	}
	return r, nil
}

// UpdateRun persists r's current field values (used once a run has
// completed or failed, to record its final status).
func (s *Store) UpdateRun(ctx context.Context, r *RunRecord) error {
	if err := s.db.WithContext(ctx).Save(r).Error; err != nil {
		return fmt.Errorf("updating run record %s: %w", r.ID, err)
	}
	return nil
}

// GetRun loads a single run by its ULID string.
func (s *Store) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	var r RunRecord
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, fmt.Errorf("loading run record %s: %w", id, err)
	}
	return &r, nil
}

// ListRuns returns the most recently started runs, newest first, capped at
// limit (0 means "no cap").
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	q := s.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var runs []RunRecord
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing run records: %w", err)
	}
	return runs, nil
}

// PruneRuns deletes run records older than retention, keyed off
// started_at. retention <= 0 is a no-op, since config.DatabaseConfig's
// zero value shouldn't silently delete every run. Returns the number of
// rows removed.
func (s *Store) PruneRuns(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-retention)
	tx := s.db.WithContext(ctx).Where("started_at < ?", cutoff).Delete(&RunRecord{})
	if tx.Error != nil {
		return 0, fmt.Errorf("pruning run records older than %s: %w", cutoff, tx.Error)
	}
	return tx.RowsAffected, nil
}
