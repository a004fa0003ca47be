package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// FileStore reads keys from a JSON object on disk. The file is read on every
// lookup so edits are picked up without a restart.
//
// Values may be JSON strings (the raw stored text) or any other JSON value,
// which is returned in its encoded form.
type FileStore struct {
	path string
}

// NewFileStore returns a store over the JSON file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// GetItem returns the value stored under key. A missing file holds no keys.
func (s *FileStore) GetItem(_ context.Context, key string) (string, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", s.path, err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", false, fmt.Errorf("decode %s: %w", s.path, err)
	}

	raw, ok := doc[key]
	if !ok || string(raw) == "null" {
		return "", false, nil
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, true, nil
	}
	return string(raw), true, nil
}
