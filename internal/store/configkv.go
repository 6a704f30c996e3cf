package store

import (
	"context"
	"database/sql"

	"foldmem/internal/faults"
)

// GetConfigValue reads one runtime tunable from the config table.
func (s *Store) GetConfigValue(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM config_entries WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, faults.Wrap(faults.StorageFailed, "get config value", err)
	}
	return value, true, nil
}

// SetConfigValue upserts one runtime tunable.
func (s *Store) SetConfigValue(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config_entries (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, fmtTime(s.now()))
	return faults.Wrap(faults.StorageFailed, "set config value", err)
}
