package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"entity-learning-service/internal/models"

	"go.uber.org/zap"
)

const uncertainColumns = `id, scenario_id, raw_text, text_key, predicted_annotations, min_confidence,
	is_reviewed, is_skipped, skip_reason, reviewed_at, created_at`

// InsertUncertainIfAbsent queues a text for review. It is a no-op returning false when the
// scenario already holds an entry for the same raw text, reviewed or not.
func (r *Repository) InsertUncertainIfAbsent(e *models.UncertainEntry) (bool, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.TextKey = TextKey(e.RawText)

	query := r.db.Rebind(`
		INSERT INTO uncertain_entries (
			scenario_id, raw_text, text_key, predicted_annotations, min_confidence, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (scenario_id, text_key) DO NOTHING
		RETURNING id
	`)
	err := r.db.QueryRowx(query,
		e.ScenarioID,
		e.RawText,
		e.TextKey,
		e.PredictedAnnotations,
		e.MinConfidence,
		e.CreatedAt,
	).Scan(&e.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to queue uncertain entry: %w", err)
	}
	return true, nil
}

// GetUncertainEntry retrieves a queue entry by ID
func (r *Repository) GetUncertainEntry(id int64) (*models.UncertainEntry, error) {
	e := &models.UncertainEntry{}
	err := r.db.Get(e, r.db.Rebind(`SELECT `+uncertainColumns+` FROM uncertain_entries WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("uncertain entry %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get uncertain entry: %w", err)
	}
	return e, nil
}

// ListPendingUncertain returns unreviewed entries, least confident first.
// limit <= 0 returns all of them.
func (r *Repository) ListPendingUncertain(scenarioID int64, limit int) ([]*models.UncertainEntry, error) {
	query := `SELECT ` + uncertainColumns + ` FROM uncertain_entries
		WHERE scenario_id = ? AND is_reviewed = ?
		ORDER BY min_confidence ASC, id ASC`
	args := []interface{}{scenarioID, false}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var entries []*models.UncertainEntry
	if err := r.db.Select(&entries, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query uncertain entries: %w", err)
	}
	return entries, nil
}

// CountPendingUncertain counts unreviewed entries of a scenario
func (r *Repository) CountPendingUncertain(scenarioID int64) (int, error) {
	var count int
	query := r.db.Rebind(`SELECT COUNT(*) FROM uncertain_entries WHERE scenario_id = ? AND is_reviewed = ?`)
	if err := r.db.Get(&count, query, scenarioID, false); err != nil {
		return 0, fmt.Errorf("failed to count uncertain entries: %w", err)
	}
	return count, nil
}

// MarkUncertainReviewed closes a queue entry. Closing an already reviewed entry is a no-op.
func (r *Repository) MarkUncertainReviewed(id int64, skipped bool, reason string) error {
	query := r.db.Rebind(`
		UPDATE uncertain_entries
		SET is_reviewed = ?, is_skipped = ?, skip_reason = ?, reviewed_at = ?
		WHERE id = ? AND is_reviewed = ?
	`)
	res, err := r.db.Exec(query, true, skipped, reason, time.Now().UTC(), id, false)
	if err != nil {
		return fmt.Errorf("failed to mark uncertain entry reviewed: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	// Either already processed or missing
	if _, err := r.GetUncertainEntry(id); err != nil {
		return err
	}
	r.logger.Debug("Uncertain entry already reviewed", zap.Int64("id", id))
	return nil
}
