package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"entity-learning-service/internal/models"

	"go.uber.org/zap"
)

const scenarioColumns = `id, name, description, entity_types, created_at, is_builtin`

// AddScenario inserts a scenario and fills in its ID
func (r *Repository) AddScenario(s *models.Scenario) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	query := r.db.Rebind(`
		INSERT INTO scenarios (name, description, entity_types, created_at, is_builtin)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`)
	err := r.db.QueryRowx(query, s.Name, s.Description, s.EntityTypes, s.CreatedAt, s.IsBuiltin).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to save scenario: %w", err)
	}
	return nil
}

// EnsureScenario inserts the scenario unless one with the same name exists and returns the stored row
func (r *Repository) EnsureScenario(s *models.Scenario) (*models.Scenario, error) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	query := r.db.Rebind(`
		INSERT INTO scenarios (name, description, entity_types, created_at, is_builtin)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO NOTHING
	`)
	if _, err := r.db.Exec(query, s.Name, s.Description, s.EntityTypes, s.CreatedAt, s.IsBuiltin); err != nil {
		return nil, fmt.Errorf("failed to seed scenario %q: %w", s.Name, err)
	}

	stored := &models.Scenario{}
	err := r.db.Get(stored, r.db.Rebind(`SELECT `+scenarioColumns+` FROM scenarios WHERE name = ?`), s.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to load scenario %q: %w", s.Name, err)
	}
	return stored, nil
}

// ListScenarios returns all scenarios ordered by id
func (r *Repository) ListScenarios() ([]*models.Scenario, error) {
	var scenarios []*models.Scenario
	if err := r.db.Select(&scenarios, `SELECT `+scenarioColumns+` FROM scenarios ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to query scenarios: %w", err)
	}
	return scenarios, nil
}

// GetScenario retrieves a scenario by ID
func (r *Repository) GetScenario(id int64) (*models.Scenario, error) {
	s := &models.Scenario{}
	err := r.db.Get(s, r.db.Rebind(`SELECT `+scenarioColumns+` FROM scenarios WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scenario %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scenario: %w", err)
	}
	return s, nil
}

// DeleteScenario removes a user-defined scenario together with its texts, queue and sessions
func (r *Repository) DeleteScenario(id int64) error {
	s, err := r.GetScenario(id)
	if err != nil {
		return err
	}
	if s.IsBuiltin {
		return fmt.Errorf("scenario %q: %w", s.Name, ErrBuiltinScenario)
	}

	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"annotated_texts", "uncertain_entries", "learning_sessions", "training_jobs"} {
		if _, err := tx.Exec(tx.Rebind(`DELETE FROM `+table+` WHERE scenario_id = ?`), id); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}
	if _, err := tx.Exec(tx.Rebind(`DELETE FROM scenarios WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete scenario: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit scenario delete: %w", err)
	}

	r.logger.Info("Scenario deleted", zap.Int64("scenario_id", id), zap.String("name", s.Name))
	return nil
}
