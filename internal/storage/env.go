package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// NewRecordStoreFromEnv picks the persistence backend for a named record.
// When DATABASE_URL is set the record lives in Postgres; otherwise it is a
// JSON file under the secure data directory.
func NewRecordStoreFromEnv(name string) (RecordStore, error) {
	if connStr := os.Getenv("DATABASE_URL"); connStr != "" {
		store, err := NewPostgresStore(connStr, name)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres store: %w", err)
		}
		fmt.Printf("Using PostgreSQL storage for %s\n", name)
		return store, nil
	}

	dir := os.Getenv("CALBRIDGE_DATA_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".calbridge")
	}

	return NewFileStore(filepath.Join(dir, name+".json")), nil
}
