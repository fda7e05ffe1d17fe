package models

import (
	"time"

	"github.com/google/uuid"
)

// TestRun records one pass of the test state machine for a single hypothesis
type TestRun struct {
	ID             uuid.UUID `json:"id" db:"id"`
	SessionID      uuid.UUID `json:"session_id" db:"session_id"`
	Demo           string    `json:"demo" db:"demo"`
	Hypothesis     string    `json:"hypothesis" db:"hypothesis"`
	Benefit        string    `json:"benefit" db:"benefit"`
	State          string    `json:"state" db:"state"`
	Analysis       string    `json:"analysis" db:"analysis"`
	Code           string    `json:"code" db:"code"`
	Statistic      *float64  `json:"statistic,omitempty" db:"statistic"`
	PValue         *float64  `json:"p_value,omitempty" db:"p_value"`
	Interpretation string    `json:"interpretation" db:"interpretation"`
	ErrorCode      string    `json:"error_code,omitempty" db:"error_code"`
	ErrorMessage   string    `json:"error_message,omitempty" db:"error_message"`
	StartedAt      time.Time `json:"started_at" db:"started_at"`
	CompletedAt    time.Time `json:"completed_at" db:"completed_at"`
}

// Duration is how long the run took
func (r *TestRun) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}
