package repository

import (
	"encoding/hex"
	"errors"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("not found")
	// ErrBuiltinScenario is returned when deleting a built-in scenario
	ErrBuiltinScenario = errors.New("built-in scenario cannot be deleted")
)

// Repository is the annotation store: scenarios, labelled texts, learning sessions,
// the uncertainty queue and training jobs.
type Repository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// queryer and execer are satisfied by both *sqlx.DB and *sqlx.Tx
type queryer interface {
	sqlx.Queryer
	Rebind(query string) string
}

type execer interface {
	sqlx.Execer
	Rebind(query string) string
}

// NewRepository creates a repository over an opened and migrated database
func NewRepository(db *sqlx.DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// TextKey is the dedup key for a raw text. Equal keys mean byte-identical texts.
func TextKey(raw string) string {
	sum := blake2b.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}
