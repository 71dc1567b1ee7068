// Package prefs persists small user preferences (indicator styles, drawing
// state, last replay position) as key -> JSON blobs.
package prefs

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Backend is a key -> JSON blob store read once at startup.
type Backend interface {
	// Load returns every stored key. A missing store is empty, not an error.
	Load() (map[string]json.RawMessage, error)
	// Put writes one key.
	Put(key string, value json.RawMessage) error
	Close() error
}

// Prefs caches a backend in memory. Failures are logged and never returned:
// a broken store degrades to defaults.
type Prefs struct {
	mu      sync.RWMutex
	backend Backend
	values  map[string]json.RawMessage
	logger  *zap.Logger
}

// Open loads backend once. Load failures are logged and leave Prefs empty.
func Open(backend Backend, logger *zap.Logger) *Prefs {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Prefs{backend: backend, values: make(map[string]json.RawMessage), logger: logger}
	if backend == nil {
		return p
	}

	values, err := backend.Load()
	if err != nil {
		logger.Warn("failed to load preferences, using defaults", zap.Error(err))
		return p
	}
	for k, v := range values {
		p.values[k] = v
	}
	logger.Debug("preferences loaded", zap.Int("keys", len(values)))
	return p
}

// Get decodes key into dst. Missing or malformed values report false.
func (p *Prefs) Get(key string, dst any) bool {
	p.mu.RLock()
	raw, ok := p.values[key]
	p.mu.RUnlock()
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		p.logger.Warn("ignoring malformed preference", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Raw returns the stored blob of key.
func (p *Prefs) Raw(key string) (json.RawMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	raw, ok := p.values[key]
	return raw, ok
}

// Set stores value under key and writes it through to the backend.
func (p *Prefs) Set(key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		p.logger.Warn("failed to encode preference", zap.String("key", key), zap.Error(err))
		return
	}
	p.SetRaw(key, raw)
}

// SetRaw stores an already encoded blob. Invalid JSON is rejected with a warning.
func (p *Prefs) SetRaw(key string, raw json.RawMessage) {
	if !json.Valid(raw) {
		p.logger.Warn("refusing to store invalid JSON", zap.String("key", key))
		return
	}

	p.mu.Lock()
	p.values[key] = append(json.RawMessage(nil), raw...)
	p.mu.Unlock()

	if p.backend == nil {
		return
	}
	if err := p.backend.Put(key, raw); err != nil {
		p.logger.Warn("failed to persist preference", zap.String("key", key), zap.Error(err))
	}
}

// Close closes the backend.
func (p *Prefs) Close() error {
	if p.backend == nil {
		return nil
	}
	return p.backend.Close()
}
