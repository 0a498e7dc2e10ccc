// Package sqlite provides SQLite-backed provisioning persistence.
package sqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	sqlitemigrate "github.com/careloop/careloop/internal/platform/storage/sqlitemigrate"
	"github.com/careloop/careloop/internal/services/provisioning/storage"
	"github.com/careloop/careloop/internal/services/provisioning/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed provisioning persistence.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a provisioning SQLite store and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready() error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

var _ storage.Store = (*Store)(nil)
