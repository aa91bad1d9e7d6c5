package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/steptrace/internal/model"
)

// SaveEpisode inserts the metadata of a new episode.
func (s *Store) SaveEpisode(ep model.Episode) error {
	browser, err := json.Marshal(ep.Browser)
	if err != nil {
		return fmt.Errorf("encoding browser info: %w", err)
	}
	origin, err := json.Marshal(ep.Origin)
	if err != nil {
		return fmt.Errorf("encoding origin: %w", err)
	}
	opts, err := json.Marshal(ep.Options)
	if err != nil {
		return fmt.Errorf("encoding options: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO episodes (episode_id, created_at, browser, origin, options)
		VALUES (?, ?, ?, ?, ?)`,
		ep.EpisodeID, ep.CreatedAt.UTC().Format(time.RFC3339Nano), string(browser), string(origin), string(opts),
	)
	if err != nil {
		return fmt.Errorf("inserting episode %s: %w", ep.EpisodeID, err)
	}
	return nil
}

// GetEpisode returns the metadata of an episode, or ErrNotFound.
func (s *Store) GetEpisode(id string) (model.Episode, error) {
	var ep model.Episode
	var createdAt, browser, origin, opts string
	err := s.db.QueryRow(`
		SELECT episode_id, created_at, browser, origin, options
		FROM episodes WHERE episode_id = ?`, id,
	).Scan(&ep.EpisodeID, &createdAt, &browser, &origin, &opts)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Episode{}, ErrNotFound
	}
	if err != nil {
		return model.Episode{}, err
	}

	if ep.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return model.Episode{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(browser), &ep.Browser); err != nil {
		return model.Episode{}, fmt.Errorf("decoding browser info: %w", err)
	}
	if err := json.Unmarshal([]byte(origin), &ep.Origin); err != nil {
		return model.Episode{}, fmt.Errorf("decoding origin: %w", err)
	}
	if err := json.Unmarshal([]byte(opts), &ep.Options); err != nil {
		return model.Episode{}, fmt.Errorf("decoding options: %w", err)
	}
	return ep, nil
}

// DeleteEpisode removes an episode and all of its steps. Deleting a missing
// episode is not an error.
func (s *Store) DeleteEpisode(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM steps WHERE episode_id = ?", id); err != nil {
		tx.Rollback()
		return fmt.Errorf("deleting steps of %s: %w", id, err)
	}
	if _, err := tx.Exec("DELETE FROM episodes WHERE episode_id = ?", id); err != nil {
		tx.Rollback()
		return fmt.Errorf("deleting episode %s: %w", id, err)
	}
	return tx.Commit()
}
