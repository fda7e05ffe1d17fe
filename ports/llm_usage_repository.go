package ports

import (
	"context"
	"time"

	"hypoforge/models"

	"github.com/google/uuid"
)

// LLMUsageRepository defines the interface for LLM usage data operations
type LLMUsageRepository interface {
	// Record usage for an LLM call
	RecordUsage(ctx context.Context, usage *models.LLMUsage) error

	// Get usage for a session within date range
	GetSessionUsage(ctx context.Context, sessionID uuid.UUID, start, end time.Time) ([]*models.LLMUsage, error)

	// Get total token counts for a session in a period
	GetTotalTokens(ctx context.Context, sessionID uuid.UUID, start, end time.Time) (int, error)
}
