package models

import "time"

// UncertainEntry is a text queued for human review because the model was unsure about it
type UncertainEntry struct {
	ID                   int64      `json:"id" db:"id"`
	ScenarioID           int64      `json:"scenario_id" db:"scenario_id"`
	RawText              string     `json:"raw_text" db:"raw_text"`
	TextKey              string     `json:"-" db:"text_key"`
	PredictedAnnotations EntityList `json:"predicted_annotations" db:"predicted_annotations"`
	MinConfidence        float64    `json:"min_confidence" db:"min_confidence"`
	IsReviewed           bool       `json:"is_reviewed" db:"is_reviewed"`
	IsSkipped            bool       `json:"is_skipped" db:"is_skipped"`
	SkipReason           string     `json:"skip_reason,omitempty" db:"skip_reason"`
	ReviewedAt           *time.Time `json:"reviewed_at,omitempty" db:"reviewed_at"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
}
