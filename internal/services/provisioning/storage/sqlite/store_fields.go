package sqlite

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/careloop/careloop/internal/services/provisioning/storage"
)

// updateFields merge-patches whitelisted columns on one row. Fields not in
// the whitelist are silently ignored; an update with no usable fields still
// bumps updated_at. Soft-deleted rows are not patched.
func (s *Store) updateFields(ctx context.Context, table, rowID string, whitelist map[string]string, fields map[string]any, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if rowID == "" {
		return fmt.Errorf("row id is required")
	}
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		if _, ok := whitelist[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	setClause := ""
	args := make([]any, 0, len(names)+2)
	for _, name := range names {
		setClause += whitelist[name] + " = ?, "
		args = append(args, fields[name])
	}
	setClause += "updated_at = ?"
	args = append(args, updatedAt.UTC().UnixMilli(), rowID)

	result, err := s.sqlDB.ExecContext(ctx,
		"UPDATE "+table+" SET "+setClause+" WHERE id = ? AND deleted_at IS NULL",
		args...,
	)
	if err != nil {
		return fmt.Errorf("update %s fields: %w", table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s fields: %w", table, err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// softDelete stamps deleted_at once; repeated deletion keeps the original
// timestamp and reports success.
func (s *Store) softDelete(ctx context.Context, table, rowID string, deletedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if rowID == "" {
		return fmt.Errorf("row id is required")
	}
	if deletedAt.IsZero() {
		deletedAt = time.Now().UTC()
	}

	result, err := s.sqlDB.ExecContext(ctx,
		"UPDATE "+table+" SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL",
		deletedAt.UTC().UnixMilli(), deletedAt.UTC().UnixMilli(), rowID,
	)
	if err != nil {
		return fmt.Errorf("soft delete %s row: %w", table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft delete %s row: %w", table, err)
	}
	if affected == 0 {
		var exists int
		checkErr := s.sqlDB.QueryRowContext(ctx,
			"SELECT 1 FROM "+table+" WHERE id = ?", rowID,
		).Scan(&exists)
		if checkErr != nil {
			return storage.ErrNotFound
		}
	}
	return nil
}
