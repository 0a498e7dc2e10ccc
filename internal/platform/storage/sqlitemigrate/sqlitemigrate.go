// Package sqlitemigrate applies embedded SQL migrations to a SQLite
// database. Applied files are recorded in a migration_history table so a
// restart never reruns them.
package sqlitemigrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"
)

const historyTable = "migration_history"

const (
	markerUp   = "-- +migrate Up"
	markerDown = "-- +migrate Down"
)

// ApplyMigrations runs every .sql file under migrationRoot in lexical order,
// skipping files already recorded in the history table. Each file commits in
// its own transaction together with its history row, so a failed migration
// leaves no record and is retried on the next start.
func ApplyMigrations(sqlDB *sql.DB, migrationFS fs.FS, migrationRoot string) error {
	if sqlDB == nil {
		return fmt.Errorf("sql db is required")
	}

	root := strings.TrimSpace(migrationRoot)
	if root == "" {
		root = "."
	}

	files, err := listMigrationFiles(migrationFS, root)
	if err != nil {
		return err
	}
	if err := ensureHistoryTable(sqlDB); err != nil {
		return err
	}

	for _, file := range files {
		key := file
		if root != "." {
			key = path.Join(root, file)
		}

		applied, err := inHistory(sqlDB, key)
		if err != nil {
			return fmt.Errorf("check history for %s: %w", key, err)
		}
		if applied {
			continue
		}

		content, err := fs.ReadFile(migrationFS, path.Join(root, file))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", key, err)
		}
		if err := applyOne(sqlDB, key, string(content)); err != nil {
			return err
		}
	}
	return nil
}

func listMigrationFiles(migrationFS fs.FS, root string) ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, root)
	if err != nil {
		return nil, fmt.Errorf("list migration files: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	slices.Sort(files)
	return files, nil
}

func ensureHistoryTable(sqlDB *sql.DB) error {
	createSQL := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (name TEXT PRIMARY KEY, applied_at INTEGER NOT NULL)",
		historyTable)
	if _, err := sqlDB.Exec(createSQL); err != nil {
		return fmt.Errorf("create history table: %w", err)
	}
	return nil
}

func applyOne(sqlDB *sql.DB, key, content string) error {
	upSQL := ExtractUpMigration(content)
	if strings.TrimSpace(upSQL) == "" {
		return nil
	}

	tx, err := sqlDB.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", key, err)
	}

	if _, err := tx.Exec(upSQL); err != nil && !IsAlreadyExistsError(err) {
		_ = tx.Rollback()
		return fmt.Errorf("apply %s: %w", key, err)
	}

	recordSQL := fmt.Sprintf("INSERT OR IGNORE INTO %s (name, applied_at) VALUES (?, ?)", historyTable)
	if _, err := tx.Exec(recordSQL, key, time.Now().UTC().UnixMilli()); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", key, err)
	}
	return nil
}

// ExtractUpMigration returns the SQL between the Up and Down markers. A file
// without markers is treated as Up-only.
func ExtractUpMigration(content string) string {
	up := strings.Index(content, markerUp)
	if up == -1 {
		return content
	}
	body := content[up+len(markerUp):]
	if down := strings.Index(body, markerDown); down != -1 {
		body = body[:down]
	}
	return body
}

// IsAlreadyExistsError reports whether the DDL failed only because the
// object it creates is already there. Those failures are safe to skip when
// a partially applied migration is rerun.
func IsAlreadyExistsError(err error) bool {
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "already exists") || strings.Contains(value, "duplicate column name")
}

func inHistory(sqlDB *sql.DB, name string) (bool, error) {
	var found int
	err := sqlDB.QueryRow("SELECT 1 FROM "+historyTable+" WHERE name = ?", name).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
