package models

import "time"

// Job statuses
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
	JobCancelled  = "cancelled"
)

// TrainingJob represents an async incremental training run
type TrainingJob struct {
	ID           string     `json:"id" db:"id"`
	ScenarioID   int64      `json:"scenario_id" db:"scenario_id"`
	Status       string     `json:"status" db:"status"`
	Stage        string     `json:"stage" db:"stage"`
	Outcome      string     `json:"outcome,omitempty" db:"outcome"`
	Message      string     `json:"message,omitempty" db:"message"`
	SessionID    *int64     `json:"session_id,omitempty" db:"session_id"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	ErrorMessage string     `json:"error_message,omitempty" db:"error_message"`
}
