// Package lexicon is a gazetteer-style entity model: it learns surface forms and their
// most frequent label from verified annotations and tags exact occurrences.
package lexicon

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"unicode"

	"entity-learning-service/internal/model"
)

const (
	artifactEntry = "lexicon.json"
	formatVersion = 1
)

// Entry is one learned surface form
type Entry struct {
	Surface    string  `json:"surface"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Support    int     `json:"support"`
}

type artifact struct {
	Format  int     `json:"format"`
	Entries []Entry `json:"entries"`
}

type compiled struct {
	Entry
	runes []rune
}

// Model implements model.Model
type Model struct {
	entries []compiled
	loaded  bool
}

// New returns an unloaded model
func New() model.Model {
	return &Model{}
}

// NewFromEntries builds a loaded model directly, mainly for tests and tooling
func NewFromEntries(entries []Entry) *Model {
	m := &Model{}
	m.install(entries)
	return m
}

// Load reads a zip artifact written by Trainer
func (m *Model) Load(path string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("failed to open model artifact: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != artifactEntry {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", artifactEntry, err)
		}
		defer rc.Close()

		var a artifact
		if err := json.NewDecoder(rc).Decode(&a); err != nil {
			return fmt.Errorf("failed to decode %s: %w", artifactEntry, err)
		}
		if a.Format != formatVersion {
			return fmt.Errorf("unsupported lexicon format %d", a.Format)
		}
		m.install(a.Entries)
		return nil
	}
	return fmt.Errorf("model artifact %s has no %s", path, artifactEntry)
}

func (m *Model) install(entries []Entry) {
	m.entries = make([]compiled, 0, len(entries))
	for _, e := range entries {
		if e.Surface == "" {
			continue
		}
		m.entries = append(m.entries, compiled{Entry: e, runes: []rune(e.Surface)})
	}
	// Longest surface wins on overlap
	sort.SliceStable(m.entries, func(i, j int) bool {
		if len(m.entries[i].runes) != len(m.entries[j].runes) {
			return len(m.entries[i].runes) > len(m.entries[j].runes)
		}
		return m.entries[i].Surface < m.entries[j].Surface
	})
	m.loaded = true
}

// IsLoaded reports whether an artifact has been loaded
func (m *Model) IsLoaded() bool {
	return m.loaded
}

// Entries returns the learned surface forms
func (m *Model) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Entry
	}
	return out
}

// Predict tags every non-overlapping whole-token occurrence of a known surface form
func (m *Model) Predict(text string) []model.Prediction {
	if !m.loaded || text == "" {
		return nil
	}

	runes := []rune(text)
	covered := make([]bool, len(runes))
	var preds []model.Prediction

	for _, e := range m.entries {
		n := len(e.runes)
		for start := 0; start+n <= len(runes); start++ {
			if !matchAt(runes, e.runes, start) || !isBoundary(runes, start, start+n) || anyCovered(covered, start, start+n) {
				continue
			}
			for i := start; i < start+n; i++ {
				covered[i] = true
			}
			preds = append(preds, model.Prediction{
				StartIndex: start,
				EndIndex:   start + n,
				Label:      e.Label,
				Text:       e.Surface,
				Confidence: e.Confidence,
			})
			start += n - 1
		}
	}

	sort.Slice(preds, func(i, j int) bool { return preds[i].StartIndex < preds[j].StartIndex })
	return preds
}

// TextConfidence is the mean confidence of the predicted spans, 0 when nothing is found
func (m *Model) TextConfidence(text string) float64 {
	preds := m.Predict(text)
	if len(preds) == 0 {
		return 0
	}
	var sum float64
	for _, p := range preds {
		sum += p.Confidence
	}
	return sum / float64(len(preds))
}

func matchAt(text, surface []rune, start int) bool {
	for i, r := range surface {
		if text[start+i] != r {
			return false
		}
	}
	return true
}

func isBoundary(text []rune, start, end int) bool {
	if start > 0 && isWordRune(text[start-1]) && isWordRune(text[start]) {
		return false
	}
	if end < len(text) && isWordRune(text[end]) && isWordRune(text[end-1]) {
		return false
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func anyCovered(covered []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if covered[i] {
			return true
		}
	}
	return false
}

// writeArtifact writes entries as a zip artifact at path
func writeArtifact(path string, entries []Entry) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create artifact: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	zw := zip.NewWriter(f)
	w, err := zw.Create(artifactEntry)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", artifactEntry, err)
	}
	if err := writeJSON(w, artifact{Format: formatVersion, Entries: entries}); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish artifact: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode lexicon: %w", err)
	}
	return nil
}
