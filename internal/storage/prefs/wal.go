package prefs

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
)

const (
	prefsSegmentLimit = 1000
	prefsMaxSegments  = 10
	prefsKeyPrefix    = "pref_"
)

// WALStore appends every Put to a write-ahead log. On Load the last write of
// each key wins.
type WALStore struct {
	mu  sync.Mutex
	wal *gowal.Wal
}

// NewWALStore opens (or creates) the log under dir.
func NewWALStore(dir string) (*WALStore, error) {
	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "prefs_",
		SegmentThreshold: prefsSegmentLimit,
		MaxSegments:      prefsMaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init prefs WAL")
	}
	return &WALStore{wal: wal}, nil
}

// Load implements Backend.
func (s *WALStore) Load() (map[string]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make(map[string]json.RawMessage)
	for msg := range s.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, prefsKeyPrefix) {
			continue
		}
		values[strings.TrimPrefix(msg.Key, prefsKeyPrefix)] = append(json.RawMessage(nil), msg.Value...)
	}
	return values, nil
}

// Put implements Backend.
func (s *WALStore) Put(key string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.wal.CurrentIndex() + 1
	return errors.Wrap(s.wal.Write(next, prefsKeyPrefix+key, value), "write prefs WAL")
}

// Close implements Backend.
func (s *WALStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wal.Close()
}
