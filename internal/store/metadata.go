package store

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// Reserved metadata keys (spec.md §3).
const (
	MetaLastRun       = "last_run"
	MetaModelUsed     = "model_used"
	MetaSchemaVersion = "schema_version"
)

// GetMetadata returns the value for key, or ("", false) if absent.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM metadata WHERE key = ?`, key)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetMetadata upserts a key/value pair, either inside an existing
// transaction (tx != nil) or in its own.
func (s *Store) SetMetadata(ctx context.Context, tx *sqlx.Tx, key, value string) error {
	const q = `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	if tx != nil {
		_, err := tx.ExecContext(ctx, q, key, value)
		return err
	}
	_, err := s.db.ExecContext(ctx, q, key, value)
	return err
}
