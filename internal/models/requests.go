package models

// ScenarioRequest creates a scenario
type ScenarioRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	EntityTypes []string `json:"entity_types"`
}

// PredictRequest asks the live model for entities
type PredictRequest struct {
	Text string `json:"text" binding:"required"`
}

// CorrectionRequest submits human-verified entities for a text
type CorrectionRequest struct {
	RawText            string             `json:"raw_text" binding:"required"`
	Entities           []EntityAnnotation `json:"entities"`
	OriginalConfidence float64            `json:"original_confidence"`
	UncertainEntryID   *int64             `json:"uncertain_entry_id,omitempty"`
}

// EnqueueRequest scores texts (or a chunked document) and queues the most uncertain
type EnqueueRequest struct {
	Texts    []string `json:"texts"`
	Document string   `json:"document"`
	TopN     int      `json:"top_n"`
}

// SkipRequest closes a queue entry without a correction
type SkipRequest struct {
	Reason string `json:"reason"`
}

// TrainRequest starts an incremental training job
type TrainRequest struct {
	Seed         *int64  `json:"seed,omitempty"`
	Epochs       int     `json:"epochs"`
	TestFraction float64 `json:"test_fraction"`
	MinFrequency int     `json:"min_frequency"`
}

// EvaluateRequest runs k-fold evaluation of the live model
type EvaluateRequest struct {
	Folds int    `json:"folds"`
	Seed  *int64 `json:"seed,omitempty"`
}

// PublishRequest publishes an artifact into the model registry
type PublishRequest struct {
	SourcePath          string                 `json:"source_path"`
	Accuracy            float64                `json:"accuracy"`
	SampleCount         int                    `json:"sample_count"`
	Parameters          map[string]interface{} `json:"parameters"`
	BlockOnRegression   *bool                  `json:"block_on_regression,omitempty"`
	RegressionThreshold *float64               `json:"regression_threshold,omitempty"`
}

// RollbackRequest restores an archived model version
type RollbackRequest struct {
	Version string `json:"version" binding:"required"`
}
