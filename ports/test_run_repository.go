package ports

import (
	"context"

	"hypoforge/models"

	"github.com/google/uuid"
)

// TestRunRepository persists the terminal state of each hypothesis test
type TestRunRepository interface {
	SaveTestRun(ctx context.Context, run *models.TestRun) error
	GetTestRun(ctx context.Context, id uuid.UUID) (*models.TestRun, error)
	ListSessionRuns(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.TestRun, error)
}
