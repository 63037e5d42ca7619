// Package evaluation scores predicted entity spans against gold spans with exact-span matching.
package evaluation

import (
	"math"
	"math/rand/v2"

	"entity-learning-service/internal/model"
	"entity-learning-service/internal/models"
)

// Sample pairs a text with its gold spans
type Sample struct {
	Text string
	Gold []model.Span
}

// PredictFunc produces spans for a text; it decouples evaluation from any model implementation
type PredictFunc func(text string) []model.Prediction

// Counts is a confusion tally
type Counts struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	FN int `json:"fn"`
}

func (c *Counts) add(o Counts) {
	c.TP += o.TP
	c.FP += o.FP
	c.FN += o.FN
}

// Precision is TP/(TP+FP), 0 when undefined
func (c Counts) Precision() float64 { return ratio(c.TP, c.TP+c.FP) }

// Recall is TP/(TP+FN), 0 when undefined
func (c Counts) Recall() float64 { return ratio(c.TP, c.TP+c.FN) }

// F1 is the harmonic mean of precision and recall, 0 when undefined
func (c Counts) F1() float64 {
	p, r := c.Precision(), c.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Tally holds overall and per-type counts for a set of samples
type Tally struct {
	Overall Counts
	PerType map[string]*Counts
	Samples int
}

func newTally() *Tally {
	return &Tally{PerType: make(map[string]*Counts)}
}

func (t *Tally) typeCounts(label string) *Counts {
	c, ok := t.PerType[label]
	if !ok {
		c = &Counts{}
		t.PerType[label] = c
	}
	return c
}

func (t *Tally) merge(o *Tally) {
	t.Overall.add(o.Overall)
	t.Samples += o.Samples
	for label, c := range o.PerType {
		t.typeCounts(label).add(*c)
	}
}

type spanKey struct {
	start, end int
}

// Score matches gold against predicted spans of one text. Each gold span takes the first unmatched
// predicted span of the same type with identical offsets; there is no partial-overlap credit.
func (t *Tally) Score(gold []model.Span, predicted []model.Prediction) {
	t.Samples++

	goldByType := make(map[string][]spanKey)
	for _, g := range gold {
		goldByType[g.Label] = append(goldByType[g.Label], spanKey{g.StartIndex, g.EndIndex})
	}
	predByType := make(map[string][]spanKey)
	for _, p := range predicted {
		predByType[p.Label] = append(predByType[p.Label], spanKey{p.StartIndex, p.EndIndex})
	}

	for label, golds := range goldByType {
		preds := predByType[label]
		used := make([]bool, len(preds))
		c := t.typeCounts(label)
		for _, g := range golds {
			matched := false
			for i, p := range preds {
				if !used[i] && p == g {
					used[i] = true
					matched = true
					break
				}
			}
			if matched {
				c.TP++
				t.Overall.TP++
			} else {
				c.FN++
				t.Overall.FN++
			}
		}
		for i := range preds {
			if !used[i] {
				c.FP++
				t.Overall.FP++
			}
		}
	}

	for label, preds := range predByType {
		if _, ok := goldByType[label]; ok {
			continue
		}
		c := t.typeCounts(label)
		c.FP += len(preds)
		t.Overall.FP += len(preds)
	}
}

// Metrics turns the tally into a rounded metrics snapshot
func (t *Tally) Metrics() models.QualityMetrics {
	m := models.QualityMetrics{
		Precision:   round4(t.Overall.Precision()),
		Recall:      round4(t.Overall.Recall()),
		F1:          round4(t.Overall.F1()),
		SampleCount: t.Samples,
		PerTypeF1:   make(map[string]float64, len(t.PerType)),
		Support:     make(map[string]int, len(t.PerType)),
	}

	var macro float64
	for label, c := range t.PerType {
		f1 := c.F1()
		macro += f1
		m.PerTypeF1[label] = round4(f1)
		m.Support[label] = c.TP + c.FN
	}
	if len(t.PerType) > 0 {
		m.MacroF1 = round4(macro / float64(len(t.PerType)))
	}
	return m
}

// Evaluate scores predict over every sample
func Evaluate(samples []Sample, predict PredictFunc) models.QualityMetrics {
	return tally(samples, predict).Metrics()
}

func tally(samples []Sample, predict PredictFunc) *Tally {
	t := newTally()
	for _, s := range samples {
		var preds []model.Prediction
		if predict != nil {
			preds = predict(s.Text)
		}
		t.Score(s.Gold, preds)
	}
	return t
}

// EvaluateKFold shuffles samples into k folds, evaluates each fold as an isolated test set and
// pools the confusion counts. With fewer than 2*k samples it evaluates the full set instead.
func EvaluateKFold(samples []Sample, k int, seed int64, predict PredictFunc) models.QualityMetrics {
	if k < 2 || len(samples) < 2*k {
		return Evaluate(samples, predict)
	}

	order := make([]int, len(samples))
	for i := range order {
		order[i] = i
	}
	rng := rand.New(rand.NewPCG(uint64(seed), 0))
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	folds := make([][]Sample, k)
	for pos, idx := range order {
		folds[pos%k] = append(folds[pos%k], samples[idx])
	}

	pooled := newTally()
	foldF1 := make([]float64, 0, k)
	for _, fold := range folds {
		ft := tally(fold, predict)
		foldF1 = append(foldF1, round4(ft.Overall.F1()))
		pooled.merge(ft)
	}

	m := pooled.Metrics()
	m.FoldF1 = foldF1
	return m
}

// SamplesFromAnnotations converts stored annotated texts into evaluation samples
func SamplesFromAnnotations(texts []*models.AnnotatedText) []Sample {
	samples := make([]Sample, 0, len(texts))
	for _, t := range texts {
		samples = append(samples, Sample{Text: t.RawText, Gold: SpansFromAnnotations(t.Annotations)})
	}
	return samples
}

// SpansFromAnnotations converts stored entity annotations into spans
func SpansFromAnnotations(list models.EntityList) []model.Span {
	spans := make([]model.Span, 0, len(list))
	for _, a := range list {
		spans = append(spans, model.Span{
			StartIndex: a.StartIndex,
			EndIndex:   a.EndIndex,
			Label:      a.EntityType,
			Text:       a.Text,
		})
	}
	return spans
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
