// Package model defines the opaque model and trainer capabilities the learning loop
// drives, plus the live model holder used for hot swaps.
package model

import (
	"context"
)

// Prediction is an entity span proposed by a model. Offsets are rune offsets, end exclusive.
type Prediction struct {
	StartIndex int     `json:"start_index"`
	EndIndex   int     `json:"end_index"`
	Label      string  `json:"label"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Model is a loaded entity extraction model
type Model interface {
	Predict(text string) []Prediction
	// TextConfidence is a score in [0,1] of how sure the model is about the whole text
	TextConfidence(text string) float64
	IsLoaded() bool
	Load(path string) error
}

// Factory builds an empty model instance
type Factory func() Model

// Span is a gold entity span used for training
type Span struct {
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
	Label      string `json:"label"`
	Text       string `json:"text"`
}

// Sample is one labelled training text
type Sample struct {
	Text     string `json:"text"`
	Entities []Span `json:"entities"`
}

// Params are the training parameters of one run
type Params struct {
	Seed         int64   `json:"seed"`
	Epochs       int     `json:"epochs,omitempty"`
	TestFraction float64 `json:"test_fraction"`
	MinFrequency int     `json:"min_frequency,omitempty"`
}

// AsMap flattens params for the model registry
func (p Params) AsMap() map[string]interface{} {
	return map[string]interface{}{
		"seed":          p.Seed,
		"epochs":        p.Epochs,
		"test_fraction": p.TestFraction,
		"min_frequency": p.MinFrequency,
	}
}

// Progress is reported while a pipeline runs
type Progress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// ProgressFunc receives progress updates. It may be nil.
type ProgressFunc func(Progress)

// Report calls f when it is set
func (f ProgressFunc) Report(stage string, percent float64, message string) {
	if f != nil {
		f(Progress{Stage: stage, Percent: percent, Message: message})
	}
}

// Trainer writes a model artifact trained on samples to outputPath.
// It owns cancellation inside its own loop and returns ctx.Err() when cancelled.
type Trainer interface {
	Train(ctx context.Context, samples []Sample, outputPath string, progress ProgressFunc, params Params) error
}
