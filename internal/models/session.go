package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// QualityMetrics is a snapshot of extraction quality on a test set
type QualityMetrics struct {
	Precision   float64            `json:"precision"`
	Recall      float64            `json:"recall"`
	F1          float64            `json:"f1"`
	MacroF1     float64            `json:"macro_f1"`
	SampleCount int                `json:"sample_count"`
	PerTypeF1   map[string]float64 `json:"per_type_f1"`
	Support     map[string]int     `json:"support"`
	FoldF1      []float64          `json:"fold_f1,omitempty"`
}

// MicroF1 is F1 over pooled counts
func (m QualityMetrics) MicroF1() float64 { return m.F1 }

// Value implements driver.Valuer
func (m QualityMetrics) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (m *QualityMetrics) Scan(src interface{}) error {
	return scanJSON(src, m)
}

// LearningSession records one training attempt that reached evaluation
type LearningSession struct {
	ID            int64          `json:"id" db:"id"`
	ScenarioID    int64          `json:"scenario_id" db:"scenario_id"`
	SamplesBefore int            `json:"samples_before" db:"samples_before"`
	SamplesAfter  int            `json:"samples_after" db:"samples_after"`
	MetricsBefore QualityMetrics `json:"metrics_before" db:"metrics_before"`
	MetricsAfter  QualityMetrics `json:"metrics_after" db:"metrics_after"`
	DurationMs    int64          `json:"duration_ms" db:"duration_ms"`
	Improved      bool           `json:"improved" db:"improved"`
	ModelApplied  bool           `json:"model_applied" db:"model_applied"`
	ModelTag      string         `json:"model_tag,omitempty" db:"model_tag"`
	TrainedAt     time.Time      `json:"trained_at" db:"trained_at"`
}
