// Package store persists the license key and last-known-good status record
// across restarts, in a single JSON settings file written atomically.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Key names a persisted record
type Key string

const (
	// KeyLicenseKey holds the opaque license key token
	KeyLicenseKey Key = "license_key"
	// KeyLicenseStatus holds the last-known-good license record
	KeyLicenseStatus Key = "license_status"
	// KeyInstallID holds the generated installation identifier
	KeyInstallID Key = "install_id"
	// KeyHostVersion holds the host version seen on the last run, used to
	// detect upgrades that force a full re-check cycle
	KeyHostVersion Key = "host_version"
)

// Store is a file-backed settings store. Read-modify-write sequences are
// serialized by a mutex; writes go through a temp file and rename so a
// crash never leaves a torn file.
type Store struct {
	path string
	mu   sync.Mutex
}

// New creates a store backed by the given file path. The file is created
// lazily on first write; its directory must be creatable.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	return &Store{path: path}, nil
}

// Path returns the backing file path
func (s *Store) Path() string {
	return s.path
}

// Get unmarshals the value for key into out. The boolean reports whether
// the key was present.
func (s *Store) Get(key Key, out interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return false, err
	}

	raw, ok := records[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("failed to decode stored %s: %w", key, err)
	}
	return true, nil
}

// GetString returns the string value for key
func (s *Store) GetString(key Key) (string, bool, error) {
	var value string
	ok, err := s.Get(key, &value)
	return value, ok, err
}

// Put stores value under key
func (s *Store) Put(key Key, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	records[key] = raw

	return s.save(records)
}

// Delete removes the given keys. Missing keys are not an error.
func (s *Store) Delete(keys ...Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}

	changed := false
	for _, key := range keys {
		if _, ok := records[key]; ok {
			delete(records, key)
			changed = true
		}
	}
	if !changed {
		return nil
	}

	return s.save(records)
}

// load reads the settings file. A missing file is an empty store.
func (s *Store) load() (map[Key]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[Key]json.RawMessage), nil
		}
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	records := make(map[Key]json.RawMessage)
	if len(data) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse store file: %w", err)
	}
	return records, nil
}

// save writes the settings file atomically via temp file + rename
func (s *Store) save(records map[Key]json.RawMessage) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}
