package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"entity-learning-service/internal/evaluation"
	"entity-learning-service/internal/model"
	"entity-learning-service/internal/models"
	"entity-learning-service/internal/registry"
	"entity-learning-service/internal/repository"

	"go.uber.org/zap"
)

// ErrTrainingInProgress is returned when a scenario already has a running training
var ErrTrainingInProgress = errors.New("training already in progress for scenario")

// Pipeline stages reported through the progress callback
const (
	StageIdle           = "idle"
	StageTrainRequested = "train_requested"
	StageSplitting      = "splitting"
	StageTraining       = "training"
	StageEvaluating     = "evaluating"
	StageGating         = "gating"
	StagePromoted       = "promoted"
	StageRejected       = "rejected"
	StageFailed         = "failed"
	StageCancelled      = "cancelled"
)

// Training outcomes
const (
	OutcomePromoted            = "promoted"
	OutcomeRejected            = "rejected"
	OutcomeInsufficientSamples = "insufficient_samples"
	OutcomeSplitFailed         = "split_failed"
	OutcomeFailed              = "failed"
	OutcomeCancelled           = "cancelled"
)

// TrainResult describes how a training run ended. It is returned for every outcome.
type TrainResult struct {
	Success       bool                    `json:"success"`
	Outcome       string                  `json:"outcome"`
	Message       string                  `json:"message"`
	ScenarioID    int64                   `json:"scenario_id"`
	SampleCount   int                     `json:"sample_count"`
	TrainCount    int                     `json:"train_count"`
	ValidCount    int                     `json:"validation_count"`
	TestCount     int                     `json:"test_count"`
	MetricsBefore models.QualityMetrics   `json:"metrics_before"`
	MetricsAfter  models.QualityMetrics   `json:"metrics_after"`
	Improved      bool                    `json:"improved"`
	ReachedTarget bool                    `json:"reached_target"`
	ModelApplied  bool                    `json:"model_applied"`
	AppliedAt     *time.Time              `json:"applied_at,omitempty"`
	ModelTag      string                  `json:"model_tag,omitempty"`
	Published     *registry.VersionInfo   `json:"published,omitempty"`
	PublishError  string                  `json:"publish_error,omitempty"`
	Session       *models.LearningSession `json:"session,omitempty"`
	DurationMs    int64                   `json:"duration_ms"`
}

func (r *TrainResult) finish(outcome, message string, start time.Time) *TrainResult {
	r.Outcome = outcome
	r.Message = message
	r.Success = outcome == OutcomePromoted || outcome == OutcomeRejected
	r.DurationMs = time.Since(start).Milliseconds()
	return r
}

// TrainIncremental retrains on every verified text of the scenario and promotes the candidate
// only when it beats the current model on the same held-out test set. It never returns an
// error: every failure is described by the result.
func (l *Learner) TrainIncremental(ctx context.Context, scenarioID int64, params model.Params, progress model.ProgressFunc) *TrainResult {
	start := time.Now()
	res := &TrainResult{ScenarioID: scenarioID}

	if !l.beginTraining(scenarioID) {
		return res.finish(OutcomeFailed, ErrTrainingInProgress.Error(), start)
	}
	defer l.endTraining(scenarioID)

	if params.Seed == 0 {
		params.Seed = l.cfg.DefaultSeed
	}
	if params.TestFraction <= 0 {
		params.TestFraction = l.cfg.TestFraction
	}

	log := l.logger.With(zap.Int64("scenario_id", scenarioID), zap.Int64("seed", params.Seed))
	progress.Report(StageTrainRequested, 0, "loading verified annotations")

	if _, err := l.store.GetScenario(scenarioID); err != nil {
		return res.finish(OutcomeFailed, fmt.Sprintf("scenario %d: %v", scenarioID, err), start)
	}

	texts, err := l.store.ListAnnotatedTexts(scenarioID, true)
	if err != nil {
		log.Error("Failed to load annotations", zap.Error(err))
		return res.finish(OutcomeFailed, fmt.Sprintf("failed to load annotations: %v", err), start)
	}
	res.SampleCount = len(texts)

	if len(texts) < l.cfg.MinSamplesForTraining {
		log.Info("Not enough verified samples", zap.Int("count", len(texts)))
		return res.finish(OutcomeInsufficientSamples,
			fmt.Sprintf("insufficient samples: %d verified, need at least %d", len(texts), l.cfg.MinSamplesForTraining), start)
	}
	if ctx.Err() != nil {
		return res.finish(OutcomeCancelled, "training cancelled", start)
	}

	progress.Report(StageSplitting, 5, "splitting train/validation/test")
	split, err := SplitHoldout(len(texts), params.Seed, params.TestFraction)
	if err != nil {
		return res.finish(OutcomeSplitFailed, fmt.Sprintf("split failed: %v", err), start)
	}
	res.TrainCount, res.ValidCount, res.TestCount = len(split.Train), len(split.Validation), len(split.Test)

	trainSet := make([]model.Sample, 0, len(split.Train)+len(split.Validation))
	for _, idx := range append(append([]int{}, split.Train...), split.Validation...) {
		trainSet = append(trainSet, trainingSample(texts[idx]))
	}
	testSet := make([]evaluation.Sample, 0, len(split.Test))
	for _, idx := range split.Test {
		testSet = append(testSet, evaluation.Sample{
			Text: texts[idx].RawText,
			Gold: evaluation.SpansFromAnnotations(texts[idx].Annotations),
		})
	}
	if ctx.Err() != nil {
		return res.finish(OutcomeCancelled, "training cancelled", start)
	}

	progress.Report(StageEvaluating, 10, "evaluating current model")
	res.MetricsBefore = evaluation.Evaluate(testSet, l.live.Predict)

	if err := os.MkdirAll(l.cfg.TempDir, 0o755); err != nil {
		return res.finish(OutcomeFailed, fmt.Sprintf("failed to create temp dir: %v", err), start)
	}
	tmpPath := filepath.Join(l.cfg.TempDir, fmt.Sprintf("candidate_%d_%d.zip", scenarioID, time.Now().UnixNano()))
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("Failed to remove candidate artifact", zap.String("path", tmpPath), zap.Error(err))
		}
	}()

	progress.Report(StageTraining, 15, fmt.Sprintf("training on %d samples", len(trainSet)))
	if err := l.runTrainer(ctx, trainSet, tmpPath, progress, params); err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			log.Info("Training cancelled")
			return res.finish(OutcomeCancelled, "training cancelled", start)
		}
		log.Error("Trainer failed", zap.Error(err))
		return res.finish(OutcomeFailed, fmt.Sprintf("trainer failed: %v", err), start)
	}
	if ctx.Err() != nil {
		return res.finish(OutcomeCancelled, "training cancelled", start)
	}

	progress.Report(StageEvaluating, 80, "evaluating candidate model")
	candidate := l.live.New()
	if err := candidate.Load(tmpPath); err != nil {
		log.Error("Failed to load candidate", zap.Error(err))
		return res.finish(OutcomeFailed, fmt.Sprintf("failed to load candidate model: %v", err), start)
	}
	res.MetricsAfter = evaluation.Evaluate(testSet, candidate.Predict)
	if ctx.Err() != nil {
		return res.finish(OutcomeCancelled, "training cancelled", start)
	}

	progress.Report(StageGating, 90, "applying quality gate")
	res.Improved = res.MetricsAfter.F1 > res.MetricsBefore.F1+l.cfg.QualityGateMinDelta
	res.ReachedTarget = res.MetricsAfter.F1 >= l.cfg.QualityGateTargetF1

	outcome := OutcomeRejected
	message := fmt.Sprintf("candidate F1 %.4f did not improve on %.4f", res.MetricsAfter.F1, res.MetricsBefore.F1)
	if res.Improved {
		if err := l.promote(tmpPath, candidate, res); err != nil {
			log.Error("Promotion failed", zap.Error(err))
			outcome = OutcomeFailed
			message = fmt.Sprintf("promotion failed: %v", err)
		} else {
			outcome = OutcomePromoted
			message = fmt.Sprintf("model promoted: F1 %.4f -> %.4f", res.MetricsBefore.F1, res.MetricsAfter.F1)
			if !res.ReachedTarget {
				message += fmt.Sprintf(" (target %.2f not reached)", l.cfg.QualityGateTargetF1)
			}
			l.autoPublish(res, len(trainSet), params, log)
			if res.PublishError != "" {
				message += "; publish skipped: " + res.PublishError
			}
		}
	}

	session := &models.LearningSession{
		ScenarioID:    scenarioID,
		SamplesBefore: l.previousSampleCount(scenarioID),
		SamplesAfter:  len(texts),
		MetricsBefore: res.MetricsBefore,
		MetricsAfter:  res.MetricsAfter,
		DurationMs:    time.Since(start).Milliseconds(),
		Improved:      res.Improved,
		ModelApplied:  res.ModelApplied,
		ModelTag:      res.ModelTag,
	}
	if err := l.store.SaveLearningSession(session); err != nil {
		log.Error("Failed to save learning session", zap.Error(err))
		message += fmt.Sprintf("; session not saved: %v", err)
	} else {
		res.Session = session
	}

	if outcome == OutcomePromoted {
		progress.Report(StagePromoted, 100, message)
	} else if outcome == OutcomeRejected {
		progress.Report(StageRejected, 100, message)
	}

	log.Info("Training finished",
		zap.String("outcome", outcome),
		zap.Float64("f1_before", res.MetricsBefore.F1),
		zap.Float64("f1_after", res.MetricsAfter.F1),
		zap.Bool("applied", res.ModelApplied))
	return res.finish(outcome, message, start)
}

func (l *Learner) beginTraining(scenarioID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.training[scenarioID]; busy {
		return false
	}
	l.training[scenarioID] = struct{}{}
	return true
}

func (l *Learner) endTraining(scenarioID int64) {
	l.mu.Lock()
	delete(l.training, scenarioID)
	l.mu.Unlock()
}

// IsTraining reports whether a training run holds the scenario
func (l *Learner) IsTraining(scenarioID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, busy := l.training[scenarioID]
	return busy
}

func (l *Learner) runTrainer(ctx context.Context, samples []model.Sample, outputPath string, progress model.ProgressFunc, params model.Params) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("trainer panic: %v", r)
		}
	}()
	return l.trainer.Train(ctx, samples, outputPath, progress, params)
}

// promote moves the candidate artifact over the active model and swaps it into the live holder
func (l *Learner) promote(tmpPath string, candidate model.Model, res *TrainResult) error {
	active := l.cfg.ActiveModelPath
	if active == "" {
		return errors.New("active model path is not configured")
	}
	if err := os.MkdirAll(filepath.Dir(active), 0o755); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, active); err != nil {
		return fmt.Errorf("failed to replace active model: %w", err)
	}
	l.live.Swap(candidate)

	now := time.Now().UTC()
	res.ModelApplied = true
	res.AppliedAt = &now
	res.ModelTag = filepath.Base(active)
	if info, err := os.Stat(active); err == nil {
		res.ModelTag = fmt.Sprintf("%s@%s", filepath.Base(active), info.ModTime().UTC().Format(time.RFC3339))
	}
	return nil
}

// autoPublish archives the promoted model in the registry. A regression block is reported, not fatal.
func (l *Learner) autoPublish(res *TrainResult, samples int, params model.Params, log *zap.Logger) {
	if l.registry == nil || !l.cfg.AutoPublish {
		return
	}
	info, err := l.registry.Publish(l.cfg.ModelName, l.cfg.ActiveModelPath, registry.PublishOptions{
		Accuracy:            res.MetricsAfter.F1,
		SampleCount:         samples,
		Parameters:          params.AsMap(),
		BlockOnRegression:   l.cfg.BlockOnRegression,
		RegressionThreshold: l.cfg.RegressionThreshold,
	})
	if err != nil {
		log.Warn("Auto publish failed", zap.Error(err))
		res.PublishError = err.Error()
		return
	}
	res.Published = info
}

func (l *Learner) previousSampleCount(scenarioID int64) int {
	prev, err := l.store.LatestLearningSession(scenarioID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			l.logger.Warn("Failed to read previous session", zap.Error(err))
		}
		return 0
	}
	return prev.SamplesAfter
}

func trainingSample(t *models.AnnotatedText) model.Sample {
	return model.Sample{Text: t.RawText, Entities: evaluation.SpansFromAnnotations(t.Annotations)}
}

// Split holds sample indexes of a holdout partition
type Split struct {
	Train      []int
	Validation []int
	Test       []int
}

// Test fraction bounds
const (
	MinTestFraction = 0.1
	MaxTestFraction = 0.4
)

// SplitHoldout shuffles n indexes with a seeded RNG and partitions them. The test share is
// clamped to [0.1, 0.4] with at least one sample and never the whole set; validation takes
// about 10% of the remainder once the remainder reaches 10 samples.
func SplitHoldout(n int, seed int64, testFraction float64) (*Split, error) {
	if testFraction <= 0 {
		testFraction = DefaultTestFraction
	}
	testFraction = math.Min(math.Max(testFraction, MinTestFraction), MaxTestFraction)

	testCount := int(math.Round(float64(n) * testFraction))
	if testCount < 1 {
		testCount = 1
	}
	if testCount > n-1 {
		testCount = n - 1
	}
	remainder := n - testCount
	if testCount < 1 || remainder < 1 {
		return nil, fmt.Errorf("cannot split %d samples into train and test", n)
	}

	validCount := 0
	if remainder >= 10 {
		validCount = int(math.Round(float64(remainder) * 0.1))
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	rng := rand.New(rand.NewPCG(uint64(seed), 0))
	rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })

	return &Split{
		Test:       order[:testCount],
		Validation: order[testCount : testCount+validCount],
		Train:      order[testCount+validCount:],
	}, nil
}
