package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Provenance tags for annotated texts
const (
	SourceManualCorrection = "manual_correction"
	SourceManual           = "manual"
	SourceImport           = "import"
	SourceModel            = "model"
)

// EntityAnnotation is a labelled span. Offsets are character (rune) offsets, end exclusive.
type EntityAnnotation struct {
	StartIndex int     `json:"start_index"`
	EndIndex   int     `json:"end_index"`
	EntityType string  `json:"entity_type"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	IsManual   bool    `json:"is_manual"`
}

// EntityList is stored as a JSON array column
type EntityList []EntityAnnotation

// Value implements driver.Valuer
func (l EntityList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]EntityAnnotation(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (l *EntityList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// AnnotatedText is one labelled raw text. There is at most one row per (scenario, raw text).
type AnnotatedText struct {
	ID              int64      `json:"id" db:"id"`
	ScenarioID      int64      `json:"scenario_id" db:"scenario_id"`
	RawText         string     `json:"raw_text" db:"raw_text"`
	TextKey         string     `json:"-" db:"text_key"`
	Annotations     EntityList `json:"annotations" db:"annotations"`
	Source          string     `json:"source" db:"source"`
	ConfidenceScore float64    `json:"confidence_score" db:"confidence_score"`
	IsVerified      bool       `json:"is_verified" db:"is_verified"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}
