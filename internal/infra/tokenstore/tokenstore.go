// Package tokenstore persists the content API bearer credential in a
// small SQLite database so it survives restarts.
package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// DefaultDBPath is the default path for the credential database.
const DefaultDBPath = "data/credentials.db"

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	name       TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Store holds API credentials. It implements catalog.TokenSource: a
// missing credential reads back as an empty token, meaning anonymous.
type Store struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// NewStore creates a store backed by the database at path.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultDBPath
	}
	return &Store{path: path}
}

// Open opens the database and initializes the schema.
func (s *Store) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create credential directory: %w", err)
	}

	db, err := sql.Open("sqlite3", s.path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("open credential database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return fmt.Errorf("initialize credential schema: %w", err)
	}

	s.db = db
	log.Info().Str("path", s.path).Msg("Credential store opened")
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Token returns the stored bearer token, or "" when none is stored.
func (s *Store) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return "", errors.New("credential store not open")
	}

	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM credentials WHERE name = 'api_token'`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read credential: %w", err)
	}
	return value, nil
}

// SetToken stores or replaces the bearer token.
func (s *Store) SetToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return errors.New("credential store not open")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (name, value, updated_at) VALUES ('api_token', ?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		token, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	return nil
}

// Clear removes the stored token, returning the store to anonymous.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return errors.New("credential store not open")
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE name = 'api_token'`); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}
