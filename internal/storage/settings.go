package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/steptrace/internal/model"
)

// GetSettings returns the persisted recorder settings, or ErrNotFound when
// none have been saved yet.
func (s *Store) GetSettings() (model.Settings, error) {
	var raw string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", SettingsKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Settings{}, ErrNotFound
	}
	if err != nil {
		return model.Settings{}, err
	}
	var st model.Settings
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return model.Settings{}, fmt.Errorf("decoding settings: %w", err)
	}
	return st, nil
}

// SaveSettings replaces the whole settings record.
func (s *Store) SaveSettings(st model.Settings) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		SettingsKey, string(raw), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}
