package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore persists named JSON records in a single table. Useful when
// the server runs on a host without a durable filesystem.
type PostgresStore struct {
	db   *sql.DB
	name string
}

// NewPostgresStore opens a connection pool and ensures the records table
// exists. Each store instance owns one named record.
func NewPostgresStore(connectionString, name string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %v", err)
	}

	// Set connection pool limits for cloud stability
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %v", err)
	}

	store := &PostgresStore{db: db, name: name}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %v", err)
	}
	return store, nil
}

func (s *PostgresStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS broker_records (
		name VARCHAR(255) PRIMARY KEY,
		payload JSONB NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// Load reads and decodes the named record.
func (s *PostgresStore) Load(v interface{}) error {
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM broker_records WHERE name = $1`, s.name).Scan(&payload)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load record %s: %w", s.name, err)
	}

	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("failed to parse record %s: %w", s.name, err)
	}
	return nil
}

// Save encodes the record and upserts it.
func (s *PostgresStore) Save(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", s.name, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO broker_records (name, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET payload = $2, updated_at = NOW()`,
		s.name, payload)
	if err != nil {
		return fmt.Errorf("failed to save record %s: %w", s.name, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
