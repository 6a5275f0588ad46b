package store

import (
	"context"
	"database/sql"
	"errors"
)

// GetPreference returns the stored value for key, or def when none is stored.
func (s *Store) GetPreference(ctx context.Context, key, def string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM preferences WHERE pref_key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return "", wrap("get preference "+key, err)
	}
	return value, nil
}

// SetPreference replaces the value stored under key.
func (s *Store) SetPreference(ctx context.Context, key, value string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrap("begin preference", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM preferences WHERE pref_key = ?", key); err != nil {
		return wrap("clear preference "+key, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO preferences (pref_key, value, updated_at) VALUES (?, ?, ?)", key, value, s.now()); err != nil {
		return wrap("set preference "+key, err)
	}
	if err := tx.Commit(); err != nil {
		return wrap("commit preference", err)
	}
	return nil
}
