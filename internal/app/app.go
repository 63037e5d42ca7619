// Package app wires configuration into the store, registry, live model and learner
package app

import (
	"fmt"
	"os"
	"path/filepath"

	"entity-learning-service/internal/config"
	"entity-learning-service/internal/model"
	"entity-learning-service/internal/model/lexicon"
	"entity-learning-service/internal/models"
	"entity-learning-service/internal/registry"
	"entity-learning-service/internal/repository"
	"entity-learning-service/internal/sampler"
	"entity-learning-service/internal/service"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// App holds the long-lived components of a process
type App struct {
	Config   *config.Config
	Repo     *repository.Repository
	Registry *registry.Registry
	Live     *model.Live
	Learner  *service.Learner
	Logger   *zap.Logger
}

// NewLogger builds the process logger from the log section
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}

	zc := zap.NewProductionConfig()
	if cfg.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// New opens storage, seeds builtin scenarios and loads the active model
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg.Database.Type == repository.DialectSQLite {
		if dir := filepath.Dir(cfg.Database.Path); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
	}

	db, err := repository.Open(cfg.Database.Type, cfg.Database.Path, logger)
	if err != nil {
		return nil, err
	}
	repo := repository.NewRepository(db, logger)

	reg, err := registry.New(cfg.Model.Dir, logger)
	if err != nil {
		repo.Close()
		return nil, err
	}

	live := model.NewLive(lexicon.New)
	smp := sampler.New(live, sampler.Config{
		MinParagraphLength: cfg.Sampler.MinParagraphLength,
		MaxParagraphs:      cfg.Sampler.MaxParagraphs,
	}, logger)

	learner := service.NewLearner(repo, live, lexicon.NewTrainer(logger), smp, reg, LearnerConfig(cfg), logger)

	if err := learner.SeedScenarios(builtinScenarios(cfg)); err != nil {
		repo.Close()
		return nil, err
	}
	if err := learner.LoadActiveModel(); err != nil {
		logger.Error("Failed to load active model", zap.Error(err))
	}

	return &App{
		Config:   cfg,
		Repo:     repo,
		Registry: reg,
		Live:     live,
		Learner:  learner,
		Logger:   logger,
	}, nil
}

// LearnerConfig maps the learning and model sections onto the orchestrator settings
func LearnerConfig(cfg *config.Config) service.Config {
	return service.Config{
		MinSamplesForTraining: cfg.Learning.MinSamplesForTraining,
		QualityGateMinDelta:   cfg.Learning.QualityGateMinDelta,
		QualityGateTargetF1:   cfg.Learning.QualityGateTargetF1,
		TestFraction:          *cfg.Learning.TestFraction,
		DefaultSeed:           cfg.Learning.DefaultSeed,
		EvalFolds:             cfg.Learning.EvalFolds,
		ModelName:             cfg.Model.Name,
		ActiveModelPath:       cfg.Model.ActivePath,
		TempDir:               cfg.Model.TempDir,
		AutoPublish:           *cfg.Learning.AutoPublish,
		BlockOnRegression:     *cfg.Learning.BlockOnRegression,
		RegressionThreshold:   *cfg.Learning.RegressionThreshold,
	}
}

func builtinScenarios(cfg *config.Config) []models.Scenario {
	if len(cfg.Scenarios) == 0 {
		return service.BuiltinScenarios
	}
	scenarios := make([]models.Scenario, 0, len(cfg.Scenarios))
	for _, s := range cfg.Scenarios {
		scenarios = append(scenarios, models.Scenario{
			Name:        s.Name,
			Description: s.Description,
			EntityTypes: models.StringList(s.EntityTypes),
		})
	}
	return scenarios
}

// Close releases storage
func (a *App) Close() error {
	return a.Repo.Close()
}
