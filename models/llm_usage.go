package models

import (
	"time"

	"github.com/google/uuid"
)

// LLMUsage represents a single streamed model call's token usage
type LLMUsage struct {
	ID               uuid.UUID `json:"id" db:"id"`
	SessionID        uuid.UUID `json:"session_id" db:"session_id"`
	Provider         string    `json:"provider" db:"provider"`
	Model            string    `json:"model" db:"model"`
	OperationType    string    `json:"operation_type" db:"operation_type"` // one of the Op* constants
	PromptTokens     int       `json:"prompt_tokens" db:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens" db:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens" db:"total_tokens"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// Operation types for categorization, one per stream stage
const (
	OpHypothesisGeneration = "hypothesis_generation"
	OpHypothesisAnalysis   = "hypothesis_analysis"
	OpResultInterpretation = "result_interpretation"
)
