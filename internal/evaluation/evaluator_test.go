package evaluation

import (
	"testing"

	"entity-learning-service/internal/model"
	"entity-learning-service/internal/models"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func predictFixed(preds []model.Prediction) PredictFunc {
	return func(string) []model.Prediction { return preds }
}

func TestEvaluatePerfectMatch(t *testing.T) {
	samples := []Sample{{Text: "abc", Gold: []model.Span{{StartIndex: 0, EndIndex: 3, Label: "X"}}}}

	m := Evaluate(samples, predictFixed([]model.Prediction{{StartIndex: 0, EndIndex: 3, Label: "X"}}))

	assert.Equal(t, 1.0, m.Precision)
	assert.Equal(t, 1.0, m.Recall)
	assert.Equal(t, 1.0, m.F1)
	assert.Equal(t, 1.0, m.MicroF1())
	assert.Equal(t, 1.0, m.MacroF1)
	assert.Equal(t, 1, m.SampleCount)
	assert.Equal(t, map[string]int{"X": 1}, m.Support)
}

func TestEvaluateEmptyPrediction(t *testing.T) {
	samples := []Sample{{Text: "abc", Gold: []model.Span{{StartIndex: 0, EndIndex: 3, Label: "X"}}}}

	m := Evaluate(samples, predictFixed(nil))

	assert.Zero(t, m.Precision)
	assert.Zero(t, m.Recall)
	assert.Zero(t, m.F1)
	assert.Zero(t, m.MacroF1)
}

func TestEvaluateNilPredictor(t *testing.T) {
	samples := []Sample{{Text: "abc", Gold: []model.Span{{StartIndex: 0, EndIndex: 3, Label: "X"}}}}
	m := Evaluate(samples, nil)
	assert.Zero(t, m.F1)
	assert.Equal(t, 1, m.Support["X"])
}

func TestEvaluateExactSpanOnlyAndMicroMacro(t *testing.T) {
	samples := []Sample{
		{Text: "one", Gold: []model.Span{
			{StartIndex: 0, EndIndex: 4, Label: "PER"},
			{StartIndex: 10, EndIndex: 14, Label: "ORG"},
		}},
		{Text: "two", Gold: []model.Span{
			{StartIndex: 0, EndIndex: 4, Label: "PER"},
		}},
	}
	preds := map[string][]model.Prediction{
		"one": {
			{StartIndex: 0, EndIndex: 4, Label: "PER"},
			{StartIndex: 10, EndIndex: 13, Label: "ORG"}, // partial overlap earns nothing
		},
		"two": {
			{StartIndex: 0, EndIndex: 4, Label: "PER"},
			{StartIndex: 0, EndIndex: 4, Label: "PER"}, // duplicate is a false positive
			{StartIndex: 5, EndIndex: 8, Label: "LOC"},
		},
	}

	m := Evaluate(samples, func(text string) []model.Prediction { return preds[text] })

	// TP=2 (PER x2), FP=3 (ORG partial, PER dup, LOC), FN=1 (ORG)
	assert.Equal(t, 0.4, m.Precision)
	assert.Equal(t, 0.6667, m.Recall)
	assert.Equal(t, 0.5, m.F1)

	want := map[string]float64{"PER": 0.8, "ORG": 0, "LOC": 0}
	if diff := cmp.Diff(want, m.PerTypeF1); diff != "" {
		t.Errorf("per-type F1 mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, map[string]int{"PER": 2, "ORG": 1, "LOC": 0}, m.Support)
	assert.Equal(t, 0.2667, m.MacroF1)
}

func TestEvaluateKFoldFallsBackOnSmallSets(t *testing.T) {
	samples := make([]Sample, 5)
	for i := range samples {
		samples[i] = Sample{Text: "t", Gold: []model.Span{{StartIndex: 0, EndIndex: 1, Label: "X"}}}
	}
	m := EvaluateKFold(samples, 3, 1, predictFixed([]model.Prediction{{StartIndex: 0, EndIndex: 1, Label: "X"}}))
	assert.Equal(t, 1.0, m.F1)
	assert.Empty(t, m.FoldF1)
	assert.Equal(t, 5, m.SampleCount)
}

func TestEvaluateKFoldPoolsCounts(t *testing.T) {
	samples := make([]Sample, 10)
	for i := range samples {
		label := "X"
		if i%2 == 1 {
			label = "Y"
		}
		samples[i] = Sample{Text: label, Gold: []model.Span{{StartIndex: 0, EndIndex: 1, Label: label}}}
	}
	// Always predicts X, so every Y sample is missed
	predict := func(string) []model.Prediction {
		return []model.Prediction{{StartIndex: 0, EndIndex: 1, Label: "X"}}
	}

	m := EvaluateKFold(samples, 5, 7, predict)
	full := Evaluate(samples, predict)

	require.Len(t, m.FoldF1, 5)
	assert.Equal(t, 10, m.SampleCount)
	assert.Equal(t, full.F1, m.F1)
	assert.Equal(t, full.Precision, m.Precision)
	assert.Equal(t, full.Support, m.Support)
}

func TestSamplesFromAnnotations(t *testing.T) {
	texts := []*models.AnnotatedText{{
		RawText:     "Acme",
		Annotations: models.EntityList{{StartIndex: 0, EndIndex: 4, EntityType: "ORG", Text: "Acme"}},
	}}
	samples := SamplesFromAnnotations(texts)
	require.Len(t, samples, 1)
	assert.Equal(t, []model.Span{{StartIndex: 0, EndIndex: 4, Label: "ORG", Text: "Acme"}}, samples[0].Gold)
}
