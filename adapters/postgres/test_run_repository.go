package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"

	"hypoforge/internal/errors"
	"hypoforge/models"
	"hypoforge/ports"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const testRunColumns = `id, session_id, demo, hypothesis, benefit, state, analysis, code,
	statistic, p_value, interpretation, error_code, error_message, started_at, completed_at`

// TestRunRepositoryImpl implements TestRunRepository for PostgreSQL
type TestRunRepositoryImpl struct {
	db *sqlx.DB
}

// NewTestRunRepository creates a new PostgreSQL test run repository
func NewTestRunRepository(db *sqlx.DB) ports.TestRunRepository {
	return &TestRunRepositoryImpl{db: db}
}

// SaveTestRun upserts a run by id
func (r *TestRunRepositoryImpl) SaveTestRun(ctx context.Context, run *models.TestRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO test_runs (`+testRunColumns+`) VALUES (
			:id, :session_id, :demo, :hypothesis, :benefit, :state, :analysis, :code,
			:statistic, :p_value, :interpretation, :error_code, :error_message, :started_at, :completed_at
		)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			analysis = EXCLUDED.analysis,
			code = EXCLUDED.code,
			statistic = EXCLUDED.statistic,
			p_value = EXCLUDED.p_value,
			interpretation = EXCLUDED.interpretation,
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			completed_at = EXCLUDED.completed_at
	`, run)
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, err)
	}
	return nil
}

// GetTestRun retrieves a run by id
func (r *TestRunRepositoryImpl) GetTestRun(ctx context.Context, id uuid.UUID) (*models.TestRun, error) {
	var run models.TestRun
	err := r.db.GetContext(ctx, &run, `SELECT `+testRunColumns+` FROM test_runs WHERE id = $1`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("test run " + id.String())
	}
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, err)
	}
	return &run, nil
}

// ListSessionRuns returns a session's most recent runs first
func (r *TestRunRepositoryImpl) ListSessionRuns(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.TestRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []*models.TestRun
	err := r.db.SelectContext(ctx, &runs, `
		SELECT `+testRunColumns+`
		FROM test_runs
		WHERE session_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, err)
	}
	return runs, nil
}
