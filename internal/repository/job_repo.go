package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"entity-learning-service/internal/models"
)

const jobColumns = `id, scenario_id, status, stage, outcome, message, session_id,
	created_at, completed_at, error_message`

// CreateJob creates a new training job
func (r *Repository) CreateJob(job *models.TrainingJob) error {
	query := r.db.Rebind(`
		INSERT INTO training_jobs (id, scenario_id, status, stage, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	_, err := r.db.Exec(query, job.ID, job.ScenarioID, job.Status, job.Stage, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// UpdateJob updates job progress
func (r *Repository) UpdateJob(job *models.TrainingJob) error {
	query := r.db.Rebind(`
		UPDATE training_jobs
		SET status = ?, stage = ?, outcome = ?, message = ?, session_id = ?, completed_at = ?, error_message = ?
		WHERE id = ?
	`)
	_, err := r.db.Exec(query,
		job.Status,
		job.Stage,
		job.Outcome,
		job.Message,
		job.SessionID,
		job.CompletedAt,
		job.ErrorMessage,
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID
func (r *Repository) GetJob(jobID string) (*models.TrainingJob, error) {
	job := &models.TrainingJob{}
	err := r.db.Get(job, r.db.Rebind(`SELECT `+jobColumns+` FROM training_jobs WHERE id = ?`), jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs returns the jobs of a scenario, newest first
func (r *Repository) ListJobs(scenarioID int64) ([]*models.TrainingJob, error) {
	var jobs []*models.TrainingJob
	query := r.db.Rebind(`SELECT ` + jobColumns + ` FROM training_jobs WHERE scenario_id = ? ORDER BY created_at DESC`)
	if err := r.db.Select(&jobs, query, scenarioID); err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	return jobs, nil
}
