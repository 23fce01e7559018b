package memstore

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-session/store"
)

var _ store.Backend = (*Store)(nil)

// Store is an in-memory store.Backend. Values live as long as the process.
type Store struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// New creates an empty in-memory backend.
func New() *Store {
	return &Store{
		values: make(map[string][]byte),
	}
}

func (s *Store) Available() bool {
	return true
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy so callers can't mutate what is stored
	s.values[key] = append([]byte(nil), value...)
	return nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}

// Keys returns the stored keys, mainly for assertions in tests.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}

// Raw returns the stored bytes for key without decoding.
func (s *Store) Raw(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]
	return value, ok
}
