package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned by a Backend when the key holds no value.
var ErrNotFound = errors.New("key not found")

// Backend is a key/value persistence medium for session data.
//
// Available reports whether the backend is backed by durable client-local
// storage in the current execution context. When it returns false the Store
// adapter never calls the other methods.
type Backend interface {
	Available() bool
	Set(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Store adapts a Backend into best-effort persistence: values are JSON encoded,
// failures are logged and swallowed, and every operation is a no-op when the
// backend is unavailable.
type Store struct {
	backend Backend
	logger  zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used to report backend failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New wraps backend. A nil backend behaves like Unavailable().
func New(backend Backend, options ...Option) *Store {
	if backend == nil {
		backend = Unavailable()
	}
	s := &Store{
		backend: backend,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "store").Logger()
	return s
}

// Available reports whether writes are persisted.
func (s *Store) Available() bool {
	return s != nil && s.backend.Available()
}

// Save encodes value and writes it under key.
func (s *Store) Save(ctx context.Context, key string, value any) {
	if !s.Available() {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Err(err).Str("key", key).Msg("Failed to encode value")
		return
	}
	if err := s.backend.Set(ctx, key, data); err != nil {
		s.logger.Err(err).Str("key", key).Msg("Failed to save value")
	}
}

// Get decodes the value stored under key into dst. It returns false when the
// key is absent, the backend is unavailable or the stored value is unreadable.
func (s *Store) Get(ctx context.Context, key string, dst any) bool {
	if !s.Available() {
		return false
	}
	data, err := s.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Err(err).Str("key", key).Msg("Failed to read value")
		}
		return false
	}
	if len(data) == 0 || string(data) == "null" {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.logger.Err(err).Str("key", key).Msg("Failed to decode value")
		return false
	}
	return true
}

// Remove deletes key. Removing an absent key is not an error.
func (s *Store) Remove(ctx context.Context, key string) {
	if !s.Available() {
		return
	}
	if err := s.backend.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Err(err).Str("key", key).Msg("Failed to remove value")
	}
}

type unavailable struct{}

// Unavailable returns the backend for execution contexts without durable
// client-local storage: reads are absent and writes are skipped.
func Unavailable() Backend {
	return unavailable{}
}

func (unavailable) Available() bool { return false }

func (unavailable) Set(context.Context, string, []byte) error { return nil }

func (unavailable) Get(context.Context, string) ([]byte, error) { return nil, ErrNotFound }

func (unavailable) Delete(context.Context, string) error { return nil }
