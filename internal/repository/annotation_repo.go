package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"entity-learning-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const annotatedColumns = `id, scenario_id, raw_text, text_key, annotations, source,
	confidence_score, is_verified, created_at, updated_at`

// FindAnnotatedText looks up the row for an exact raw text within a scenario
func (r *Repository) FindAnnotatedText(scenarioID int64, rawText string) (*models.AnnotatedText, error) {
	return findAnnotatedText(r.db, scenarioID, rawText)
}

func findAnnotatedText(q queryer, scenarioID int64, rawText string) (*models.AnnotatedText, error) {
	a := &models.AnnotatedText{}
	query := q.Rebind(`
		SELECT `+annotatedColumns+`
		FROM annotated_texts
		WHERE scenario_id = ? AND text_key = ?
	`)
	err := sqlx.Get(q, a, query, scenarioID, TextKey(rawText))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find annotated text: %w", err)
	}
	// Key collision guard: dedup is by exact text.
	if a.RawText != rawText {
		return nil, ErrNotFound
	}
	return a, nil
}

// AddAnnotatedText stores a labelled text. A second submission of the same raw text for the
// same scenario updates the existing row. Returns true when a new row was created.
func (r *Repository) AddAnnotatedText(a *models.AnnotatedText) (bool, error) {
	now := time.Now().UTC()
	a.TextKey = TextKey(a.RawText)

	tx, err := r.db.Beginx()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := findAnnotatedText(tx, a.ScenarioID, a.RawText)
	switch {
	case err == nil:
		a.ID = existing.ID
		a.CreatedAt = existing.CreatedAt
		a.UpdatedAt = now
		if err := updateAnnotation(tx, a); err != nil {
			return false, err
		}
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("failed to commit annotation update: %w", err)
		}
		return false, nil
	case !errors.Is(err, ErrNotFound):
		return false, err
	}

	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	query := tx.Rebind(`
		INSERT INTO annotated_texts (
			scenario_id, raw_text, text_key, annotations, source,
			confidence_score, is_verified, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	err = tx.QueryRowx(query,
		a.ScenarioID,
		a.RawText,
		a.TextKey,
		a.Annotations,
		a.Source,
		a.ConfidenceScore,
		a.IsVerified,
		a.CreatedAt,
		a.UpdatedAt,
	).Scan(&a.ID)
	if err != nil {
		return false, fmt.Errorf("failed to save annotated text: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit annotated text: %w", err)
	}
	return true, nil
}

// UpdateAnnotation overwrites the annotations, provenance and verification state of a row
func (r *Repository) UpdateAnnotation(a *models.AnnotatedText) error {
	a.UpdatedAt = time.Now().UTC()
	return updateAnnotation(r.db, a)
}

func updateAnnotation(e execer, a *models.AnnotatedText) error {
	query := e.Rebind(`
		UPDATE annotated_texts
		SET annotations = ?, source = ?, confidence_score = ?, is_verified = ?, updated_at = ?
		WHERE id = ?
	`)
	res, err := e.Exec(query, a.Annotations, a.Source, a.ConfidenceScore, a.IsVerified, a.UpdatedAt, a.ID)
	if err != nil {
		return fmt.Errorf("failed to update annotation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("annotated text %d: %w", a.ID, ErrNotFound)
	}
	return nil
}

// ListAnnotatedTexts returns the texts of a scenario in insertion order
func (r *Repository) ListAnnotatedTexts(scenarioID int64, verifiedOnly bool) ([]*models.AnnotatedText, error) {
	query := `SELECT ` + annotatedColumns + ` FROM annotated_texts WHERE scenario_id = ?`
	if verifiedOnly {
		query += ` AND is_verified = ?`
	}
	query += ` ORDER BY id`

	args := []interface{}{scenarioID}
	if verifiedOnly {
		args = append(args, true)
	}

	var texts []*models.AnnotatedText
	if err := r.db.Select(&texts, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query annotated texts: %w", err)
	}
	return texts, nil
}

// CountAnnotatedTexts counts the texts of a scenario
func (r *Repository) CountAnnotatedTexts(scenarioID int64, verifiedOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM annotated_texts WHERE scenario_id = ?`
	args := []interface{}{scenarioID}
	if verifiedOnly {
		query += ` AND is_verified = ?`
		args = append(args, true)
	}

	var count int
	if err := r.db.Get(&count, r.db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("failed to count annotated texts: %w", err)
	}
	return count, nil
}

// DeleteAnnotatedText removes a labelled text
func (r *Repository) DeleteAnnotatedText(id int64) error {
	res, err := r.db.Exec(r.db.Rebind(`DELETE FROM annotated_texts WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete annotated text: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("annotated text %d: %w", id, ErrNotFound)
	}
	return nil
}
