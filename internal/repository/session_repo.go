package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"entity-learning-service/internal/models"
)

const sessionColumns = `id, scenario_id, samples_before, samples_after, metrics_before, metrics_after,
	duration_ms, improved, model_applied, model_tag, trained_at`

// SaveLearningSession appends a session to the audit log
func (r *Repository) SaveLearningSession(s *models.LearningSession) error {
	if s.TrainedAt.IsZero() {
		s.TrainedAt = time.Now().UTC()
	}

	query := r.db.Rebind(`
		INSERT INTO learning_sessions (
			scenario_id, samples_before, samples_after, metrics_before, metrics_after,
			duration_ms, improved, model_applied, model_tag, trained_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	err := r.db.QueryRowx(query,
		s.ScenarioID,
		s.SamplesBefore,
		s.SamplesAfter,
		s.MetricsBefore,
		s.MetricsAfter,
		s.DurationMs,
		s.Improved,
		s.ModelApplied,
		s.ModelTag,
		s.TrainedAt,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to save learning session: %w", err)
	}
	return nil
}

// ListLearningSessions returns the sessions of a scenario, newest first
func (r *Repository) ListLearningSessions(scenarioID int64) ([]*models.LearningSession, error) {
	var sessions []*models.LearningSession
	query := r.db.Rebind(`SELECT ` + sessionColumns + ` FROM learning_sessions
		WHERE scenario_id = ? ORDER BY trained_at DESC, id DESC`)
	if err := r.db.Select(&sessions, query, scenarioID); err != nil {
		return nil, fmt.Errorf("failed to query learning sessions: %w", err)
	}
	return sessions, nil
}

// LatestLearningSession returns the most recent session of a scenario
func (r *Repository) LatestLearningSession(scenarioID int64) (*models.LearningSession, error) {
	s := &models.LearningSession{}
	query := r.db.Rebind(`SELECT ` + sessionColumns + ` FROM learning_sessions
		WHERE scenario_id = ? ORDER BY trained_at DESC, id DESC LIMIT 1`)
	err := r.db.Get(s, query, scenarioID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest learning session: %w", err)
	}
	return s, nil
}
