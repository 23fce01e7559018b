package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/go-auth-session/store"
)

const (
	// dirPermissions is the permission mode for the session directory.
	dirPermissions = 0o700

	// filePermissions is the permission mode for the session file. It holds
	// bearer credentials so it is owner read/write only.
	filePermissions = 0o600
)

var _ store.Backend = (*Store)(nil)

// Store keeps all entries in a single JSON document on local disk. Every
// write rewrites the document through a temporary file and rename so a crash
// never leaves a truncated session file behind.
type Store struct {
	path string
	mu   sync.Mutex
}

// New returns a backend persisting to path. The parent directory is created
// on first write.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// Available is false when no path is configured.
func (s *Store) Available() bool {
	return s.path != ""
}

// Set stores value, which must be a JSON document as produced by store.Store.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("[filestore.Set] value for %q is not JSON", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}
	entries[key] = json.RawMessage(value)
	return s.write(entries)
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return nil, err
	}
	value, ok := entries[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return []byte(value), nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)
	if len(entries) == 0 {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("[filestore.Delete] removing %s: %w", s.path, err)
		}
		return nil
	}
	return s.write(entries)
}

func (s *Store) read() (map[string]json.RawMessage, error) {
	entries := make(map[string]json.RawMessage)
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[filestore.read] reading %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("[filestore.read] parsing %s: %w", s.path, err)
	}
	return entries, nil
}

func (s *Store) write(entries map[string]json.RawMessage) error {
	if err := os.MkdirAll(filepath.Dir(s.path), dirPermissions); err != nil {
		return fmt.Errorf("[filestore.write] creating directory: %w", err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("[filestore.write] encoding: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*")
	if err != nil {
		return fmt.Errorf("[filestore.write] creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("[filestore.write] writing temp file: %w", err)
	}
	if err := tmp.Chmod(filePermissions); err != nil {
		tmp.Close()
		return fmt.Errorf("[filestore.write] chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("[filestore.write] closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("[filestore.write] replacing %s: %w", s.path, err)
	}
	return nil
}
