// Package sampler ranks unlabelled texts by how unsure the current model is about them.
package sampler

import (
	"sort"
	"strings"
	"unicode/utf8"

	"entity-learning-service/internal/model"
	"entity-learning-service/internal/models"

	"go.uber.org/zap"
)

// Defaults for document chunking
const (
	DefaultMinParagraphLength = 10
	DefaultMaxParagraphs      = 200
)

// Config controls document chunking
type Config struct {
	MinParagraphLength int
	MaxParagraphs      int
}

// Sampler scores texts with a model
type Sampler struct {
	model  model.Model
	cfg    Config
	logger *zap.Logger
}

// New creates a sampler over m. m may be unloaded, in which case every text is maximally uncertain.
func New(m model.Model, cfg Config, logger *zap.Logger) *Sampler {
	if cfg.MinParagraphLength <= 0 {
		cfg.MinParagraphLength = DefaultMinParagraphLength
	}
	if cfg.MaxParagraphs <= 0 {
		cfg.MaxParagraphs = DefaultMaxParagraphs
	}
	return &Sampler{
		model:  m,
		cfg:    cfg,
		logger: logger,
	}
}

// Select scores every non-blank text and returns the topN least confident as unsaved queue entries.
// topN <= 0 returns all of them.
func (s *Sampler) Select(scenarioID int64, texts []string, topN int) []*models.UncertainEntry {
	loaded := s.model != nil && s.model.IsLoaded()

	candidates := make([]*models.UncertainEntry, 0, len(texts))
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}

		entry := &models.UncertainEntry{
			ScenarioID:           scenarioID,
			RawText:              text,
			PredictedAnnotations: models.EntityList{},
		}
		if loaded {
			entry.MinConfidence = s.model.TextConfidence(text)
			entry.PredictedAnnotations = ToAnnotations(s.model.Predict(text))
		}
		candidates = append(candidates, entry)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].MinConfidence < candidates[j].MinConfidence
	})
	if topN > 0 && len(candidates) > topN {
		candidates = candidates[:topN]
	}

	s.logger.Debug("Uncertainty sampling done",
		zap.Int64("scenario_id", scenarioID),
		zap.Int("texts", len(texts)),
		zap.Int("selected", len(candidates)),
		zap.Bool("model_loaded", loaded))

	return candidates
}

// SelectFromDocument chunks a long document into paragraphs and selects from those
func (s *Sampler) SelectFromDocument(scenarioID int64, document string, topN int) []*models.UncertainEntry {
	return s.Select(scenarioID, s.Chunk(document), topN)
}

// Chunk splits a document on line breaks, drops short lines and caps the paragraph count
func (s *Sampler) Chunk(document string) []string {
	lines := strings.FieldsFunc(document, func(r rune) bool { return r == '\n' || r == '\r' })

	paragraphs := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) < s.cfg.MinParagraphLength {
			continue
		}
		paragraphs = append(paragraphs, line)
		if len(paragraphs) >= s.cfg.MaxParagraphs {
			break
		}
	}
	return paragraphs
}

// ToAnnotations converts model predictions into stored entity annotations
func ToAnnotations(preds []model.Prediction) models.EntityList {
	out := make(models.EntityList, 0, len(preds))
	for _, p := range preds {
		out = append(out, models.EntityAnnotation{
			StartIndex: p.StartIndex,
			EndIndex:   p.EndIndex,
			EntityType: p.Label,
			Text:       p.Text,
			Confidence: p.Confidence,
		})
	}
	return out
}
