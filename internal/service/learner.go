// Package service is the active-learning orchestrator: prediction, review queue, corrections,
// incremental training with a quality gate, and model lifecycle operations.
package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"entity-learning-service/internal/model"
	"entity-learning-service/internal/models"
	"entity-learning-service/internal/registry"
	"entity-learning-service/internal/repository"
	"entity-learning-service/internal/sampler"

	"go.uber.org/zap"
)

// ErrInvalidInput marks caller mistakes such as blank texts or bad offsets
var ErrInvalidInput = errors.New("invalid input")

// Store is the persistence capability the learner needs
type Store interface {
	AddScenario(s *models.Scenario) error
	EnsureScenario(s *models.Scenario) (*models.Scenario, error)
	ListScenarios() ([]*models.Scenario, error)
	GetScenario(id int64) (*models.Scenario, error)
	DeleteScenario(id int64) error

	AddAnnotatedText(a *models.AnnotatedText) (bool, error)
	ListAnnotatedTexts(scenarioID int64, verifiedOnly bool) ([]*models.AnnotatedText, error)
	CountAnnotatedTexts(scenarioID int64, verifiedOnly bool) (int, error)
	DeleteAnnotatedText(id int64) error

	SaveLearningSession(s *models.LearningSession) error
	ListLearningSessions(scenarioID int64) ([]*models.LearningSession, error)
	LatestLearningSession(scenarioID int64) (*models.LearningSession, error)

	InsertUncertainIfAbsent(e *models.UncertainEntry) (bool, error)
	GetUncertainEntry(id int64) (*models.UncertainEntry, error)
	ListPendingUncertain(scenarioID int64, limit int) ([]*models.UncertainEntry, error)
	CountPendingUncertain(scenarioID int64) (int, error)
	MarkUncertainReviewed(id int64, skipped bool, reason string) error

	CreateJob(job *models.TrainingJob) error
	UpdateJob(job *models.TrainingJob) error
	GetJob(jobID string) (*models.TrainingJob, error)
	ListJobs(scenarioID int64) ([]*models.TrainingJob, error)
}

// ModelRegistry is the versioning capability the learner publishes to
type ModelRegistry interface {
	Publish(name, sourcePath string, opts registry.PublishOptions) (*registry.VersionInfo, error)
	Rollback(name, version string) (*registry.VersionInfo, error)
	Versions(name string) ([]registry.VersionInfo, error)
	CurrentVersion(name string) (*registry.VersionInfo, error)
	CurrentPath(name string) string
}

// Config holds the learning loop settings
type Config struct {
	MinSamplesForTraining int
	QualityGateMinDelta   float64
	QualityGateTargetF1   float64
	TestFraction          float64
	DefaultSeed           int64
	EvalFolds             int

	ModelName       string
	ActiveModelPath string
	TempDir         string

	AutoPublish         bool
	BlockOnRegression   bool
	RegressionThreshold float64
}

// Defaults
const (
	DefaultMinSamplesForTraining = 3
	DefaultQualityGateTargetF1   = 0.95
	DefaultTestFraction          = 0.2
	DefaultEvalFolds             = 5
)

// Learner coordinates a single live model across scenarios
type Learner struct {
	store    Store
	live     *model.Live
	trainer  model.Trainer
	sampler  *sampler.Sampler
	registry ModelRegistry
	cfg      Config
	logger   *zap.Logger

	mu       sync.Mutex
	training map[int64]struct{}
}

// NewLearner creates the orchestrator. reg may be nil, which disables publishing and rollback.
func NewLearner(
	store Store,
	live *model.Live,
	trainer model.Trainer,
	smp *sampler.Sampler,
	reg ModelRegistry,
	cfg Config,
	logger *zap.Logger,
) *Learner {
	if cfg.MinSamplesForTraining <= 0 {
		cfg.MinSamplesForTraining = DefaultMinSamplesForTraining
	}
	if cfg.QualityGateTargetF1 <= 0 {
		cfg.QualityGateTargetF1 = DefaultQualityGateTargetF1
	}
	if cfg.TestFraction <= 0 {
		cfg.TestFraction = DefaultTestFraction
	}
	if cfg.EvalFolds <= 0 {
		cfg.EvalFolds = DefaultEvalFolds
	}
	if cfg.TempDir == "" {
		// candidates are renamed over the active file and must share its filesystem
		cfg.TempDir = os.TempDir()
		if cfg.ActiveModelPath != "" {
			cfg.TempDir = filepath.Join(filepath.Dir(cfg.ActiveModelPath), "tmp")
		}
	}
	if smp == nil {
		smp = sampler.New(live, sampler.Config{}, logger)
	}
	return &Learner{
		store:    store,
		live:     live,
		trainer:  trainer,
		sampler:  smp,
		registry: reg,
		cfg:      cfg,
		logger:   logger,
		training: make(map[int64]struct{}),
	}
}

// Config returns the effective settings
func (l *Learner) Config() Config {
	return l.cfg
}

// LoadActiveModel loads the active model file, restoring it from the registry's current
// version when the file is missing. Having no model at all is not an error.
func (l *Learner) LoadActiveModel() error {
	if l.cfg.ActiveModelPath == "" {
		return nil
	}

	if _, err := os.Stat(l.cfg.ActiveModelPath); errors.Is(err, os.ErrNotExist) {
		if l.registry == nil {
			l.logger.Info("No active model yet", zap.String("path", l.cfg.ActiveModelPath))
			return nil
		}
		cur, err := l.registry.CurrentVersion(l.cfg.ModelName)
		if err != nil {
			return err
		}
		if cur == nil {
			l.logger.Info("No active model yet", zap.String("path", l.cfg.ActiveModelPath))
			return nil
		}
		if err := l.installFromRegistry(); err != nil {
			return err
		}
	}

	if err := l.live.Load(l.cfg.ActiveModelPath); err != nil {
		return fmt.Errorf("failed to load active model: %w", err)
	}
	l.logger.Info("Active model loaded", zap.String("path", l.cfg.ActiveModelPath))
	return nil
}

// ModelLoaded reports whether predictions come from a trained model
func (l *Learner) ModelLoaded() bool {
	return l.live.IsLoaded()
}

// PredictResult is the answer of Predict
type PredictResult struct {
	Entities       []models.EntityAnnotation `json:"entities"`
	MeanConfidence float64                   `json:"mean_confidence"`
	ModelLoaded    bool                      `json:"model_loaded"`
}

// Predict runs the live model and keeps only labels recognized by the scenario
func (l *Learner) Predict(text string, scenarioID int64) (*PredictResult, error) {
	scenario, err := l.store.GetScenario(scenarioID)
	if err != nil {
		return nil, err
	}

	res := &PredictResult{Entities: []models.EntityAnnotation{}, ModelLoaded: l.live.IsLoaded()}
	if !res.ModelLoaded {
		return res, nil
	}

	var sum float64
	for _, p := range l.live.Predict(text) {
		if !scenario.Recognizes(p.Label) {
			continue
		}
		res.Entities = append(res.Entities, models.EntityAnnotation{
			StartIndex: p.StartIndex,
			EndIndex:   p.EndIndex,
			EntityType: p.Label,
			Text:       p.Text,
			Confidence: p.Confidence,
		})
		sum += p.Confidence
	}
	if len(res.Entities) > 0 {
		res.MeanConfidence = sum / float64(len(res.Entities))
	}
	return res, nil
}

// Correction is a human-verified labelling of a raw text
type Correction struct {
	ScenarioID         int64
	RawText            string
	Entities           []models.EntityAnnotation
	OriginalConfidence float64
	UncertainEntryID   *int64
}

// SubmitCorrection upserts the text as verified manual data and closes the queue entry it came from
func (l *Learner) SubmitCorrection(c Correction) (*models.AnnotatedText, error) {
	if strings.TrimSpace(c.RawText) == "" {
		return nil, fmt.Errorf("%w: raw text is empty", ErrInvalidInput)
	}
	if _, err := l.store.GetScenario(c.ScenarioID); err != nil {
		return nil, err
	}

	entities, err := normalizeEntities(c.RawText, c.Entities)
	if err != nil {
		return nil, err
	}

	text := &models.AnnotatedText{
		ScenarioID:      c.ScenarioID,
		RawText:         c.RawText,
		Annotations:     entities,
		Source:          models.SourceManualCorrection,
		ConfidenceScore: c.OriginalConfidence,
		IsVerified:      true,
	}
	created, err := l.store.AddAnnotatedText(text)
	if err != nil {
		return nil, err
	}

	if c.UncertainEntryID != nil {
		if err := l.store.MarkUncertainReviewed(*c.UncertainEntryID, false, ""); err != nil {
			return nil, fmt.Errorf("correction saved but queue entry not closed: %w", err)
		}
	}

	l.logger.Info("Correction submitted",
		zap.Int64("scenario_id", c.ScenarioID),
		zap.Int64("text_id", text.ID),
		zap.Bool("created", created),
		zap.Int("entities", len(entities)))
	return text, nil
}

func normalizeEntities(raw string, in []models.EntityAnnotation) (models.EntityList, error) {
	runes := []rune(raw)
	out := make(models.EntityList, 0, len(in))
	for _, e := range in {
		if e.StartIndex < 0 || e.EndIndex > len(runes) || e.StartIndex >= e.EndIndex {
			return nil, fmt.Errorf("%w: span [%d,%d) outside text of length %d", ErrInvalidInput, e.StartIndex, e.EndIndex, len(runes))
		}
		if e.EntityType == "" {
			return nil, fmt.Errorf("%w: span [%d,%d) has no entity type", ErrInvalidInput, e.StartIndex, e.EndIndex)
		}
		if e.Text == "" {
			e.Text = string(runes[e.StartIndex:e.EndIndex])
		}
		e.IsManual = true
		if e.Confidence == 0 {
			e.Confidence = 1
		}
		out = append(out, e)
	}
	return out, nil
}

// EnqueueUncertain scores texts with the live model and queues the topN least confident.
// Returns how many new entries were queued; texts already queued for the scenario are skipped.
func (l *Learner) EnqueueUncertain(scenarioID int64, texts []string, topN int) (int, error) {
	scenario, err := l.store.GetScenario(scenarioID)
	if err != nil {
		return 0, err
	}
	return l.enqueue(scenario, l.sampler.Select(scenarioID, texts, topN))
}

// EnqueueDocument chunks a document into paragraphs before scoring
func (l *Learner) EnqueueDocument(scenarioID int64, document string, topN int) (int, error) {
	scenario, err := l.store.GetScenario(scenarioID)
	if err != nil {
		return 0, err
	}
	return l.enqueue(scenario, l.sampler.SelectFromDocument(scenarioID, document, topN))
}

func (l *Learner) enqueue(scenario *models.Scenario, candidates []*models.UncertainEntry) (int, error) {
	inserted := 0
	for _, c := range candidates {
		kept := c.PredictedAnnotations[:0]
		for _, a := range c.PredictedAnnotations {
			if scenario.Recognizes(a.EntityType) {
				kept = append(kept, a)
			}
		}
		c.PredictedAnnotations = kept

		ok, err := l.store.InsertUncertainIfAbsent(c)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}

	l.logger.Info("Uncertain texts queued",
		zap.Int64("scenario_id", scenario.ID),
		zap.Int("candidates", len(candidates)),
		zap.Int("inserted", inserted))
	return inserted, nil
}

// PendingUncertain lists the review queue, least confident first
func (l *Learner) PendingUncertain(scenarioID int64, limit int) ([]*models.UncertainEntry, error) {
	return l.store.ListPendingUncertain(scenarioID, limit)
}

// SkipUncertain closes a queue entry without a correction
func (l *Learner) SkipUncertain(entryID int64, reason string) error {
	return l.store.MarkUncertainReviewed(entryID, true, reason)
}

// QueueStats summarises labelling progress of a scenario
type QueueStats struct {
	Pending        int  `json:"pending"`
	Verified       int  `json:"verified"`
	Total          int  `json:"total"`
	ModelLoaded    bool `json:"model_loaded"`
	MinForTraining int  `json:"min_for_training"`
}

// Stats returns queue and dataset counters for a scenario
func (l *Learner) Stats(scenarioID int64) (*QueueStats, error) {
	if _, err := l.store.GetScenario(scenarioID); err != nil {
		return nil, err
	}
	pending, err := l.store.CountPendingUncertain(scenarioID)
	if err != nil {
		return nil, err
	}
	verified, err := l.store.CountAnnotatedTexts(scenarioID, true)
	if err != nil {
		return nil, err
	}
	total, err := l.store.CountAnnotatedTexts(scenarioID, false)
	if err != nil {
		return nil, err
	}
	return &QueueStats{
		Pending:        pending,
		Verified:       verified,
		Total:          total,
		ModelLoaded:    l.live.IsLoaded(),
		MinForTraining: l.cfg.MinSamplesForTraining,
	}, nil
}

// IsNotFound reports whether err means a missing row
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound) || errors.Is(err, registry.ErrVersionNotFound)
}
