package prefs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// FileStore keeps all preferences in one JSON document rewritten atomically
// through a temp file on every Put.
type FileStore struct {
	mu     sync.Mutex
	path   string
	values map[string]json.RawMessage
}

// NewFileStore creates the parent directory of path if needed.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create prefs dir")
	}
	return &FileStore{path: path, values: make(map[string]json.RawMessage)}, nil
}

// Load implements Backend.
func (s *FileStore) Load() (map[string]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, errors.Wrap(err, "read prefs")
	}
	if len(payload) == 0 {
		return map[string]json.RawMessage{}, nil
	}

	values := make(map[string]json.RawMessage)
	if err := json.Unmarshal(payload, &values); err != nil {
		return nil, errors.Wrap(err, "decode prefs")
	}
	s.values = values

	out := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out, nil
}

// Put implements Backend.
func (s *FileStore) Put(key string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	payload, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode prefs")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write prefs temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist prefs")
	}
	return nil
}

// Close implements Backend.
func (s *FileStore) Close() error { return nil }
