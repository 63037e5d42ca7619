package lexicon

import (
	"context"
	"path/filepath"
	"testing"

	"entity-learning-service/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func trainingSamples() []model.Sample {
	return []model.Sample{
		{Text: "Acme hired Bob", Entities: []model.Span{
			{StartIndex: 0, EndIndex: 4, Label: "ORG", Text: "Acme"},
			{StartIndex: 11, EndIndex: 14, Label: "PER", Text: "Bob"},
		}},
		{Text: "Acme Corp sued Globex", Entities: []model.Span{
			{StartIndex: 0, EndIndex: 9, Label: "ORG"},
			{StartIndex: 15, EndIndex: 21, Label: "ORG", Text: "Globex"},
		}},
		{Text: "Bob met Bob", Entities: []model.Span{
			{StartIndex: 0, EndIndex: 3, Label: "PER", Text: "Bob"},
			{StartIndex: 8, EndIndex: 11, Label: "ORG", Text: "Bob"},
		}},
	}
}

func TestTrainAndLoad(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "model.zip")

	var stages []string
	progress := func(p model.Progress) { stages = append(stages, p.Stage) }

	err := NewTrainer(zaptest.NewLogger(t)).Train(context.Background(), trainingSamples(), out, progress, model.Params{})
	require.NoError(t, err)
	assert.Len(t, stages, 3)

	m := New()
	assert.False(t, m.IsLoaded())
	require.NoError(t, m.Load(out))
	assert.True(t, m.IsLoaded())

	entries := m.(*Model).Entries()
	bySurface := map[string]Entry{}
	for _, e := range entries {
		bySurface[e.Surface] = e
	}
	require.Contains(t, bySurface, "Acme Corp")
	assert.Equal(t, "ORG", bySurface["Acme Corp"].Label)

	bob := bySurface["Bob"]
	assert.Equal(t, "PER", bob.Label)
	assert.Equal(t, 3, bob.Support)
	assert.InDelta(t, 2.0/3.0, bob.Confidence, 1e-9)
}

func TestTrainHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := filepath.Join(t.TempDir(), "model.zip")
	err := NewTrainer(zaptest.NewLogger(t)).Train(ctx, trainingSamples(), out, nil, model.Params{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, out)
}

func TestTrainMinFrequency(t *testing.T) {
	out := filepath.Join(t.TempDir(), "model.zip")
	err := NewTrainer(zaptest.NewLogger(t)).Train(context.Background(), trainingSamples(), out, nil, model.Params{MinFrequency: 2})
	require.NoError(t, err)

	m := &Model{}
	require.NoError(t, m.Load(out))
	for _, e := range m.Entries() {
		assert.GreaterOrEqual(t, e.Support, 2)
	}
}

func TestPredictLongestMatchAndBoundaries(t *testing.T) {
	m := NewFromEntries([]Entry{
		{Surface: "Acme", Label: "ORG", Confidence: 0.5},
		{Surface: "Acme Corp", Label: "ORG", Confidence: 1},
		{Surface: "Bob", Label: "PER", Confidence: 0.8},
	})

	preds := m.Predict("Acme Corp and Bobby met Bob")
	require.Len(t, preds, 2)
	assert.Equal(t, model.Prediction{StartIndex: 0, EndIndex: 9, Label: "ORG", Text: "Acme Corp", Confidence: 1}, preds[0])
	assert.Equal(t, 24, preds[1].StartIndex)
	assert.Equal(t, 27, preds[1].EndIndex)

	assert.InDelta(t, 0.9, m.TextConfidence("Acme Corp and Bobby met Bob"), 1e-9)
	assert.Zero(t, m.TextConfidence("nothing here"))
}

func TestPredictUsesRuneOffsets(t *testing.T) {
	m := NewFromEntries([]Entry{{Surface: "Москва", Label: "LOC", Confidence: 1}})

	preds := m.Predict("Город Москва")
	require.Len(t, preds, 1)
	assert.Equal(t, 6, preds[0].StartIndex)
	assert.Equal(t, 12, preds[0].EndIndex)
}

func TestLoadMissingArtifact(t *testing.T) {
	m := New()
	assert.Error(t, m.Load(filepath.Join(t.TempDir(), "missing.zip")))
	assert.False(t, m.IsLoaded())
}
