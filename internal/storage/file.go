package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound is returned by Load when no record has ever been saved.
var ErrNotFound = errors.New("record not found")

// RecordStore persists a single JSON-encoded record by name.
type RecordStore interface {
	Load(v interface{}) error
	Save(v interface{}) error
	Close() error
}

// FileStore persists a record as pretty-printed JSON at a fixed path with
// owner-only permissions.
type FileStore struct {
	filePath string
	mu       sync.Mutex
}

// NewFileStore creates a file-backed record store. The file is created lazily
// on the first Save.
func NewFileStore(filePath string) *FileStore {
	return &FileStore{filePath: filePath}
}

// Load reads and decodes the record. A missing file means no record was ever
// saved, not an error condition.
func (s *FileStore) Load(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read %s: %w", s.filePath, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", s.filePath, err)
	}
	return nil
}

// Save encodes the record as indented JSON and writes it with 0600
// permissions, creating the parent directory (0700) if needed.
func (s *FileStore) Save(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	if err := os.WriteFile(s.filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.filePath, err)
	}
	return nil
}

// Close is a no-op for file stores.
func (s *FileStore) Close() error {
	return nil
}
