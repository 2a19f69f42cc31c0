// Package prefs persists small per-user preferences. The aggregation engine
// reads exactly one of them, the display timezone, but the store is generic
// key/value.
package prefs

import (
	"context"
	"errors"
	"sync"
)

// TimezoneKey is the preference slot holding the user's display timezone.
const TimezoneKey = "user.timezone"

// ErrNotFound is returned when no value is stored under the requested key.
var ErrNotFound = errors.New("prefs: not found")

// Store reads and writes user preferences.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore is an in-process Store used in tests and as a fallback when no
// persistent store is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the stored value or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

// Set stores a value under key, replacing any previous value.
func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	return nil
}

// Delete removes the value stored under key, if any.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()
	return nil
}
