package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"entity-learning-service/internal/evaluation"
	"entity-learning-service/internal/models"
	"entity-learning-service/internal/registry"

	"go.uber.org/zap"
)

// ErrRegistryDisabled is returned by lifecycle operations when no registry is configured
var ErrRegistryDisabled = errors.New("model registry is not configured")

// EvaluateCurrent scores the live model on every verified text of the scenario with k-fold pooling
func (l *Learner) EvaluateCurrent(scenarioID int64, folds int, seed int64) (models.QualityMetrics, error) {
	if _, err := l.store.GetScenario(scenarioID); err != nil {
		return models.QualityMetrics{}, err
	}
	texts, err := l.store.ListAnnotatedTexts(scenarioID, true)
	if err != nil {
		return models.QualityMetrics{}, err
	}
	if folds <= 0 {
		folds = l.cfg.EvalFolds
	}
	if seed == 0 {
		seed = l.cfg.DefaultSeed
	}
	return evaluation.EvaluateKFold(evaluation.SamplesFromAnnotations(texts), folds, seed, l.live.Predict), nil
}

// Publish archives an artifact as a new version. An empty source publishes the active model.
func (l *Learner) Publish(sourcePath string, opts registry.PublishOptions) (*registry.VersionInfo, error) {
	if l.registry == nil {
		return nil, ErrRegistryDisabled
	}
	if sourcePath == "" {
		sourcePath = l.cfg.ActiveModelPath
	}
	return l.registry.Publish(l.cfg.ModelName, sourcePath, opts)
}

// Rollback restores an archived version and reloads it into the live model
func (l *Learner) Rollback(version string) (*registry.VersionInfo, error) {
	if l.registry == nil {
		return nil, ErrRegistryDisabled
	}
	info, err := l.registry.Rollback(l.cfg.ModelName, version)
	if err != nil {
		return nil, err
	}
	if err := l.installFromRegistry(); err != nil {
		return info, err
	}
	if err := l.live.Load(l.cfg.ActiveModelPath); err != nil {
		return info, fmt.Errorf("rolled back to %s but reload failed: %w", info.Version, err)
	}
	l.logger.Info("Model rolled back", zap.String("version", info.Version))
	return info, nil
}

// installFromRegistry copies the registry's current artifact over the active model file
func (l *Learner) installFromRegistry() error {
	src := l.registry.CurrentPath(l.cfg.ModelName)
	if src == l.cfg.ActiveModelPath {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.cfg.ActiveModelPath), 0o755); err != nil {
		return err
	}
	if _, err := registry.CopyFile(src, l.cfg.ActiveModelPath); err != nil {
		return fmt.Errorf("failed to install %s: %w", src, err)
	}
	return nil
}

// Versions lists published versions, oldest first
func (l *Learner) Versions() ([]registry.VersionInfo, error) {
	if l.registry == nil {
		return nil, ErrRegistryDisabled
	}
	return l.registry.Versions(l.cfg.ModelName)
}

// CurrentVersion returns the published version in use, nil when nothing was published
func (l *Learner) CurrentVersion() (*registry.VersionInfo, error) {
	if l.registry == nil {
		return nil, ErrRegistryDisabled
	}
	return l.registry.CurrentVersion(l.cfg.ModelName)
}

// Sessions lists the training audit log of a scenario, newest first
func (l *Learner) Sessions(scenarioID int64) ([]*models.LearningSession, error) {
	return l.store.ListLearningSessions(scenarioID)
}
