package postgres

import (
	"context"
	"time"

	"hypoforge/models"
	"hypoforge/ports"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// LLMUsageRepositoryImpl implements LLMUsageRepository for PostgreSQL
type LLMUsageRepositoryImpl struct {
	db *sqlx.DB
}

// NewLLMUsageRepository creates a new PostgreSQL LLM usage repository
func NewLLMUsageRepository(db *sqlx.DB) ports.LLMUsageRepository {
	return &LLMUsageRepositoryImpl{db: db}
}

// RecordUsage records the token usage of one stream
func (r *LLMUsageRepositoryImpl) RecordUsage(ctx context.Context, usage *models.LLMUsage) error {
	if usage.ID == uuid.Nil {
		usage.ID = uuid.New()
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO llm_usage (
			id, session_id, provider, model, operation_type,
			prompt_tokens, completion_tokens, total_tokens, created_at
		) VALUES (
			:id, :session_id, :provider, :model, :operation_type,
			:prompt_tokens, :completion_tokens, :total_tokens, :created_at
		)
	`, usage)
	return err
}

// GetSessionUsage retrieves usage records for a session within a date range
func (r *LLMUsageRepositoryImpl) GetSessionUsage(ctx context.Context, sessionID uuid.UUID, start, end time.Time) ([]*models.LLMUsage, error) {
	var usages []*models.LLMUsage
	err := r.db.SelectContext(ctx, &usages, `
		SELECT id, session_id, provider, model, operation_type,
		       prompt_tokens, completion_tokens, total_tokens, created_at
		FROM llm_usage
		WHERE session_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at DESC
	`, sessionID, start, end)
	return usages, err
}

// GetTotalTokens returns the total token count for a session in a time period
func (r *LLMUsageRepositoryImpl) GetTotalTokens(ctx context.Context, sessionID uuid.UUID, start, end time.Time) (int, error) {
	var total int
	err := r.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(total_tokens), 0)
		FROM llm_usage
		WHERE session_id = $1 AND created_at >= $2 AND created_at <= $3
	`, sessionID, start, end)
	return total, err
}
