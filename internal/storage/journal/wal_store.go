// Package journal keeps a durable log of closed trades across replay sessions.
package journal

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/barreplay/internal/domain"
	"github.com/vadiminshakov/gowal"
)

const (
	defaultJournalDir   = "./wal/journal"
	journalSegmentLimit = 1000
	journalMaxSegments  = 100
	journalKeyPrefix    = "closed_trade_"
)

// WALStore persists journal entries in a WAL. Entries are replayed into
// memory on open and served from there.
type WALStore struct {
	wal     *gowal.Wal
	mu      sync.RWMutex
	entries []domain.JournalEntry
	now     func() time.Time
}

// NewWALStore initializes a WAL-backed journal under the provided directory.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultJournalDir
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "journal_",
		SegmentThreshold: journalSegmentLimit,
		MaxSegments:      journalMaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init journal WAL")
	}

	s := &WALStore{wal: wal, now: time.Now}
	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, journalKeyPrefix) {
			continue
		}
		var entry domain.JournalEntry
		if err := json.Unmarshal(msg.Value, &entry); err != nil {
			// a torn tail write must not hide the rest of the journal
			continue
		}
		s.entries = append(s.entries, entry)
	}

	return s, nil
}

// Save appends entry and returns its sequence number.
func (s *WALStore) Save(entry domain.JournalEntry) (uint64, error) {
	if s == nil || s.wal == nil {
		return 0, errors.New("journal store is not initialized")
	}
	if entry.Symbol == "" {
		return 0, fmt.Errorf("journal entry symbol is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry.Seq = s.wal.CurrentIndex() + 1
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = s.now().UTC()
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return 0, errors.Wrap(err, "marshal journal entry")
	}

	key := journalKeyPrefix + entry.Symbol
	if err := s.wal.Write(entry.Seq, key, payload); err != nil {
		return 0, errors.Wrap(err, "write journal entry")
	}
	s.entries = append(s.entries, entry)
	return entry.Seq, nil
}

// EntriesAfter returns entries with a sequence number above seq, optionally
// limited to one symbol.
func (s *WALStore) EntriesAfter(seq uint64, symbol string) ([]domain.JournalEntry, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("journal store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.JournalEntry
	for _, entry := range s.entries {
		if entry.Seq <= seq || (symbol != "" && entry.Symbol != symbol) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// CurrentIndex returns the latest sequence number stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("journal store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
