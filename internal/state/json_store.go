package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// JSONStore persists build state as a JSON file under the project's
// .sitewright directory.
type JSONStore struct {
	path string
}

// NewJSONStore creates a store writing to dir/state.json, creating dir if
// needed.
func NewJSONStore(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	return &JSONStore{path: filepath.Join(dir, "state.json")}, nil
}

// Load reads the persisted state. A missing file is not an error and
// yields a zero-value state.
func (s *JSONStore) Load() (BuildState, error) {
	var st BuildState

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, fmt.Errorf("reading state file: %w", err)
	}

	if err := json.Unmarshal(data, &st); err != nil {
		return BuildState{}, fmt.Errorf("unmarshaling state file: %w", err)
	}
	return st, nil
}

// Save writes the state atomically via a temporary file and rename.
func (s *JSONStore) Save(st BuildState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("writing temporary state file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}
