package migration

import (
	"context"
	"log"

	"hypoforge/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in order. Every statement is
// idempotent, so Run is safe on every startup.
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createTestRunsTable(ctx, db); err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to create test_runs table"))
	}

	if err := r.createLLMUsageTable(ctx, db); err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to create llm_usage table"))
	}

	r.createIndexes(ctx, db)

	log.Printf("[Migration] Schema at version %s", r.version)
	return nil
}

func (r *MigrationRunner) createTestRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS test_runs (
			id UUID PRIMARY KEY,
			session_id UUID NOT NULL,
			demo TEXT NOT NULL DEFAULT '',
			hypothesis TEXT NOT NULL,
			benefit TEXT NOT NULL DEFAULT '',
			state VARCHAR(32) NOT NULL,
			analysis TEXT NOT NULL DEFAULT '',
			code TEXT NOT NULL DEFAULT '',
			statistic DOUBLE PRECISION,
			p_value DOUBLE PRECISION,
			interpretation TEXT NOT NULL DEFAULT '',
			error_code VARCHAR(64) NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMP WITH TIME ZONE NOT NULL,
			completed_at TIMESTAMP WITH TIME ZONE NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createLLMUsageTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS llm_usage (
			id UUID PRIMARY KEY,
			session_id UUID NOT NULL,
			provider VARCHAR(64) NOT NULL,
			model VARCHAR(128) NOT NULL,
			operation_type VARCHAR(64) NOT NULL,
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_test_runs_session ON test_runs(session_id, started_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_test_runs_state ON test_runs(state)",
		"CREATE INDEX IF NOT EXISTS idx_llm_usage_session ON llm_usage(session_id, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_llm_usage_operation ON llm_usage(operation_type)",
	}

	for _, idxSQL := range indexes {
		if _, err := db.ExecContext(ctx, idxSQL); err != nil {
			// Log but don't fail on index creation errors
			log.Printf("[Migration] Warning: failed to create index: %v", err)
		}
	}
}
