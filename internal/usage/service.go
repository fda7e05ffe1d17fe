package usage

import (
	"context"
	"log"
	"time"

	"hypoforge/ai/stream"
	"hypoforge/models"
	"hypoforge/ports"

	"github.com/google/uuid"
)

const providerName = "openai"

// Service handles LLM usage tracking and persistence
type Service struct {
	repo      ports.LLMUsageRepository
	baseDelay time.Duration
}

// NewService creates a new usage service
func NewService(repo ports.LLMUsageRepository) *Service {
	return &Service{repo: repo, baseDelay: 100 * time.Millisecond}
}

// RecordUsage asynchronously records the usage event that ends a stream.
// Tracking failures are logged and never reach the caller.
func (s *Service) RecordUsage(ctx context.Context, sessionID uuid.UUID, operationType string, usage *stream.Usage) {
	if usage == nil {
		log.Printf("[UsageService] ERROR: nil usage data provided")
		return
	}

	if usage.PromptTokens < 0 || usage.CompletionTokens < 0 || usage.TotalTokens < 0 {
		log.Printf("[UsageService] ERROR: invalid token counts: %+v", usage)
		return
	}

	llmUsage := &models.LLMUsage{
		ID:               uuid.New(),
		SessionID:        sessionID,
		Provider:         providerName,
		Model:            usage.Model,
		OperationType:    operationType,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		CreatedAt:        time.Now(),
	}

	// Async persistence to avoid blocking the stream consumer
	go func() {
		if err := s.persistWithRetry(context.WithoutCancel(ctx), llmUsage); err != nil {
			log.Printf("[UsageService] ERROR: failed to persist usage after retries: %v", err)
		}
	}()
}

// persistWithRetry attempts to persist usage with linear backoff
func (s *Service) persistWithRetry(ctx context.Context, usage *models.LLMUsage) error {
	const maxRetries = 3

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err = s.repo.RecordUsage(ctx, usage); err == nil {
			return nil
		}
		if attempt < maxRetries-1 {
			time.Sleep(time.Duration(attempt+1) * s.baseDelay)
		}
	}
	return err
}

// GetSessionUsage returns detailed usage records for a session
func (s *Service) GetSessionUsage(ctx context.Context, sessionID uuid.UUID, start, end time.Time) ([]*models.LLMUsage, error) {
	return s.repo.GetSessionUsage(ctx, sessionID, start, end)
}

// GetTotalTokens returns total token usage for a session in a time period
func (s *Service) GetTotalTokens(ctx context.Context, sessionID uuid.UUID, start, end time.Time) (int, error) {
	return s.repo.GetTotalTokens(ctx, sessionID, start, end)
}
