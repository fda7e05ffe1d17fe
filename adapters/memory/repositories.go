// Package memory holds in-process repositories, used when no database is
// configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"hypoforge/internal/errors"
	"hypoforge/models"
	"hypoforge/ports"

	"github.com/google/uuid"
)

// TestRunRepository keeps runs in a map
type TestRunRepository struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]models.TestRun
}

func NewTestRunRepository() *TestRunRepository {
	return &TestRunRepository{runs: make(map[uuid.UUID]models.TestRun)}
}

var _ ports.TestRunRepository = (*TestRunRepository)(nil)

func (r *TestRunRepository) SaveTestRun(ctx context.Context, run *models.TestRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	r.mu.Lock()
	r.runs[run.ID] = *run
	r.mu.Unlock()
	return nil
}

func (r *TestRunRepository) GetTestRun(ctx context.Context, id uuid.UUID) (*models.TestRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, errors.NotFound("test run " + id.String())
	}
	return &run, nil
}

func (r *TestRunRepository) ListSessionRuns(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.TestRun, error) {
	r.mu.RLock()
	var runs []*models.TestRun
	for _, run := range r.runs {
		if run.SessionID == sessionID {
			run := run
			runs = append(runs, &run)
		}
	}
	r.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// LLMUsageRepository appends usage records to a slice
type LLMUsageRepository struct {
	mu     sync.RWMutex
	usages []models.LLMUsage
}

func NewLLMUsageRepository() *LLMUsageRepository {
	return &LLMUsageRepository{}
}

var _ ports.LLMUsageRepository = (*LLMUsageRepository)(nil)

func (r *LLMUsageRepository) RecordUsage(ctx context.Context, usage *models.LLMUsage) error {
	if usage.ID == uuid.Nil {
		usage.ID = uuid.New()
	}
	r.mu.Lock()
	r.usages = append(r.usages, *usage)
	r.mu.Unlock()
	return nil
}

func (r *LLMUsageRepository) GetSessionUsage(ctx context.Context, sessionID uuid.UUID, start, end time.Time) ([]*models.LLMUsage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.LLMUsage
	for i := len(r.usages) - 1; i >= 0; i-- {
		u := r.usages[i]
		if u.SessionID == sessionID && !u.CreatedAt.Before(start) && !u.CreatedAt.After(end) {
			out = append(out, &u)
		}
	}
	return out, nil
}

func (r *LLMUsageRepository) GetTotalTokens(ctx context.Context, sessionID uuid.UUID, start, end time.Time) (int, error) {
	usages, _ := r.GetSessionUsage(ctx, sessionID, start, end)
	total := 0
	for _, u := range usages {
		total += u.TotalTokens
	}
	return total, nil
}
