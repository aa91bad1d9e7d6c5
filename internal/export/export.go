// Package export writes and reads episode files.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kalambet/steptrace/internal/model"
)

// Episode is the exported form of an episode: its metadata followed by the
// steps in ascending step_number order.
type Episode struct {
	model.Episode
	Steps []model.Step `json:"steps"`
}

// New assembles an export from episode metadata and its steps.
func New(ep model.Episode, steps []model.Step) *Episode {
	if steps == nil {
		steps = []model.Step{}
	}
	return &Episode{Episode: ep, Steps: steps}
}

// Filename returns the conventional file name for an episode.
func Filename(episodeID string) string {
	return "episode_" + episodeID + ".json"
}

// Validate checks that steps are numbered 0..n-1 without gaps or duplicates.
func (e *Episode) Validate() error {
	for i, st := range e.Steps {
		if st.StepNumber != i {
			return fmt.Errorf("step at position %d has step_number %d", i, st.StepNumber)
		}
	}
	return nil
}

// Encode writes e as indented JSON.
func Encode(w io.Writer, e *Episode) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}

// Read parses an exported episode.
func Read(r io.Reader) (*Episode, error) {
	var e Episode
	if err := json.NewDecoder(r).Decode(&e); err != nil {
		return nil, fmt.Errorf("decoding episode: %w", err)
	}
	return &e, nil
}

// WriteFile writes e into dir under its conventional name and returns the
// path.
func WriteFile(dir string, e *Episode) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}
	path := filepath.Join(dir, Filename(e.EpisodeID))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	if err := Encode(f, e); err != nil {
		f.Close()
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", path, err)
	}
	return path, nil
}

// ReadFile parses an exported episode file.
func ReadFile(path string) (*Episode, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}
