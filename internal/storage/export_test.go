package storage

import (
	"database/sql"
	"errors"

	"github.com/kalambet/steptrace/internal/model"
)

// GetStep returns one step, or ErrNotFound.
func (s *Store) GetStep(episodeID string, stepNumber int) (model.Step, error) {
	row := s.db.QueryRow(`
		SELECT episode_id, step_number, step_id, t_ms, t_iso, pre, action, post, derived
		FROM steps WHERE episode_id = ? AND step_number = ?`, episodeID, stepNumber)
	st, err := scanStep(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Step{}, ErrNotFound
	}
	return st, err
}

// CountSteps returns the number of steps stored for an episode.
func (s *Store) CountSteps(episodeID string) (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM steps WHERE episode_id = ?", episodeID).Scan(&n)
	return n, err
}
