package lexicon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"entity-learning-service/internal/model"

	"go.uber.org/zap"
)

// Trainer implements model.Trainer for the lexicon model
type Trainer struct {
	logger *zap.Logger
}

// NewTrainer creates a lexicon trainer
func NewTrainer(logger *zap.Logger) *Trainer {
	return &Trainer{logger: logger}
}

// Train counts (surface, label) pairs over samples and writes the artifact to outputPath
func (t *Trainer) Train(ctx context.Context, samples []model.Sample, outputPath string, progress model.ProgressFunc, params model.Params) error {
	if len(samples) == 0 {
		return fmt.Errorf("no training samples")
	}

	minFreq := params.MinFrequency
	if minFreq <= 0 {
		minFreq = 1
	}

	counts := make(map[string]map[string]int)
	for i, s := range samples {
		if err := ctx.Err(); err != nil {
			return err
		}

		runes := []rune(s.Text)
		for _, e := range s.Entities {
			surface := e.Text
			if surface == "" && e.StartIndex >= 0 && e.EndIndex <= len(runes) && e.StartIndex < e.EndIndex {
				surface = string(runes[e.StartIndex:e.EndIndex])
			}
			if strings.TrimSpace(surface) == "" || e.Label == "" {
				continue
			}
			if counts[surface] == nil {
				counts[surface] = make(map[string]int)
			}
			counts[surface][e.Label]++
		}

		progress.Report("training", float64(i+1)/float64(len(samples))*100,
			fmt.Sprintf("processed %d/%d samples", i+1, len(samples)))
	}

	entries := make([]Entry, 0, len(counts))
	for surface, labels := range counts {
		total, best, bestCount := 0, "", 0
		for label, n := range labels {
			total += n
			if n > bestCount || (n == bestCount && label < best) {
				best, bestCount = label, n
			}
		}
		if total < minFreq {
			continue
		}
		entries = append(entries, Entry{
			Surface:    surface,
			Label:      best,
			Confidence: float64(bestCount) / float64(total),
			Support:    total,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Surface < entries[j].Surface })

	if err := ctx.Err(); err != nil {
		return err
	}

	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}
	if err := writeArtifact(outputPath, entries); err != nil {
		return err
	}

	t.logger.Info("Lexicon model trained",
		zap.Int("samples", len(samples)),
		zap.Int("entries", len(entries)),
		zap.String("output", outputPath))
	return nil
}
