package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kalambet/steptrace/internal/model"
)

// PutStep persists a pending step under (episode_id, step_number). A step
// that already exists under that key is rejected.
func (s *Store) PutStep(st model.Step) error {
	pre, err := json.Marshal(st.Pre)
	if err != nil {
		return fmt.Errorf("encoding pre: %w", err)
	}
	action, err := json.Marshal(st.Action)
	if err != nil {
		return fmt.Errorf("encoding action: %w", err)
	}
	post, err := nullableJSON(st.Post)
	if err != nil {
		return fmt.Errorf("encoding post: %w", err)
	}
	derived, err := nullableJSON(st.Derived)
	if err != nil {
		return fmt.Errorf("encoding derived: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO steps (episode_id, step_number, step_id, t_ms, t_iso, pre, action, post, derived, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.EpisodeID, st.StepNumber, st.StepID, st.TMs, st.TISO, string(pre), string(action), post, derived,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting step %s/%d: %w", st.EpisodeID, st.StepNumber, err)
	}
	return nil
}

// FinalizeStep merges the post-observation and derived diff into a
// persisted step. It returns ErrNotFound when the step no longer exists.
func (s *Store) FinalizeStep(episodeID string, stepNumber int, post model.Observation, derived model.Derived) error {
	postJSON, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("encoding post: %w", err)
	}
	derivedJSON, err := json.Marshal(derived)
	if err != nil {
		return fmt.Errorf("encoding derived: %w", err)
	}
	res, err := s.db.Exec(`
		UPDATE steps SET post = ?, derived = ?, updated_at = ?
		WHERE episode_id = ? AND step_number = ?`,
		string(postJSON), string(derivedJSON), time.Now().UTC().Format(time.RFC3339),
		episodeID, stepNumber,
	)
	if err != nil {
		return fmt.Errorf("finalizing step %s/%d: %w", episodeID, stepNumber, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSteps returns the steps of an episode ordered by step number.
func (s *Store) ListSteps(episodeID string) ([]model.Step, error) {
	rows, err := s.db.Query(`
		SELECT episode_id, step_number, step_id, t_ms, t_iso, pre, action, post, derived
		FROM steps WHERE episode_id = ? ORDER BY step_number ASC`, episodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []model.Step
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStep(r rowScanner) (model.Step, error) {
	var st model.Step
	var pre, action string
	var post, derived sql.NullString
	if err := r.Scan(&st.EpisodeID, &st.StepNumber, &st.StepID, &st.TMs, &st.TISO, &pre, &action, &post, &derived); err != nil {
		return model.Step{}, err
	}
	if err := json.Unmarshal([]byte(pre), &st.Pre); err != nil {
		return model.Step{}, fmt.Errorf("decoding pre of step %d: %w", st.StepNumber, err)
	}
	if err := json.Unmarshal([]byte(action), &st.Action); err != nil {
		return model.Step{}, fmt.Errorf("decoding action of step %d: %w", st.StepNumber, err)
	}
	if post.Valid {
		st.Post = &model.Observation{}
		if err := json.Unmarshal([]byte(post.String), st.Post); err != nil {
			return model.Step{}, fmt.Errorf("decoding post of step %d: %w", st.StepNumber, err)
		}
	}
	if derived.Valid {
		st.Derived = &model.Derived{}
		if err := json.Unmarshal([]byte(derived.String), st.Derived); err != nil {
			return model.Step{}, fmt.Errorf("decoding derived of step %d: %w", st.StepNumber, err)
		}
	}
	return st, nil
}

func nullableJSON[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
