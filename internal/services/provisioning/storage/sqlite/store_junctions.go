package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/careloop/careloop/internal/services/provisioning/storage"
)

// Link activates the relation pair. A soft-deleted row is revived; an
// active row is left untouched. The journal carries the timestamps, the
// junction row only tracks liveness.
func (s *Store) Link(ctx context.Context, relation, entity1ID, entity2ID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	relation, entity1ID, entity2ID, err := normalizeJunctionKey(relation, entity1ID, entity2ID)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO junctions (relation, entity1_id, entity2_id, deleted_at)
VALUES (?, ?, ?, NULL)
ON CONFLICT (relation, entity1_id, entity2_id) DO UPDATE SET
	deleted_at = NULL
`, relation, entity1ID, entity2ID)
	if err != nil {
		return fmt.Errorf("link %s: %w", relation, err)
	}
	return nil
}

// Unlink soft-deletes the relation pair. Missing or already-deleted rows
// are no-ops.
func (s *Store) Unlink(ctx context.Context, relation, entity1ID, entity2ID string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	relation, entity1ID, entity2ID, err := normalizeJunctionKey(relation, entity1ID, entity2ID)
	if err != nil {
		return err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	_, err = s.sqlDB.ExecContext(ctx, `
UPDATE junctions
SET deleted_at = ?
WHERE relation = ? AND entity1_id = ? AND entity2_id = ? AND deleted_at IS NULL
`, now.UTC().UnixMilli(), relation, entity1ID, entity2ID)
	if err != nil {
		return fmt.Errorf("unlink %s: %w", relation, err)
	}
	return nil
}

// GetLink returns one relation row, deleted or not.
func (s *Store) GetLink(ctx context.Context, relation, entity1ID, entity2ID string) (storage.JunctionRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.JunctionRecord{}, err
	}
	if err := s.ready(); err != nil {
		return storage.JunctionRecord{}, err
	}
	relation, entity1ID, entity2ID, err := normalizeJunctionKey(relation, entity1ID, entity2ID)
	if err != nil {
		return storage.JunctionRecord{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT relation, entity1_id, entity2_id, deleted_at
FROM junctions
WHERE relation = ? AND entity1_id = ? AND entity2_id = ?
`, relation, entity1ID, entity2ID)
	record, err := scanJunction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.JunctionRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.JunctionRecord{}, fmt.Errorf("get link: %w", err)
	}
	return record, nil
}

// ListLinks lists relation rows for one left-side entity.
func (s *Store) ListLinks(ctx context.Context, relation, entity1ID string, includeDeleted bool) ([]storage.JunctionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	relation = strings.TrimSpace(relation)
	entity1ID = strings.TrimSpace(entity1ID)
	if relation == "" || entity1ID == "" {
		return nil, fmt.Errorf("relation and entity id are required")
	}

	query := `
SELECT relation, entity1_id, entity2_id, deleted_at
FROM junctions
WHERE relation = ? AND entity1_id = ?
`
	if !includeDeleted {
		query += "AND deleted_at IS NULL\n"
	}
	query += "ORDER BY entity2_id ASC"

	rows, err := s.sqlDB.QueryContext(ctx, query, relation, entity1ID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	return collectJunctions(rows)
}

// ListLinksForEntity lists the active relation rows where the entity sits
// on either side of the pair.
func (s *Store) ListLinksForEntity(ctx context.Context, relation, entityID string) ([]storage.JunctionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	relation = strings.TrimSpace(relation)
	entityID = strings.TrimSpace(entityID)
	if relation == "" || entityID == "" {
		return nil, fmt.Errorf("relation and entity id are required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT relation, entity1_id, entity2_id, deleted_at
FROM junctions
WHERE relation = ? AND (entity1_id = ? OR entity2_id = ?) AND deleted_at IS NULL
ORDER BY entity1_id ASC, entity2_id ASC
`, relation, entityID, entityID)
	if err != nil {
		return nil, fmt.Errorf("list links for entity: %w", err)
	}
	defer rows.Close()

	return collectJunctions(rows)
}

func collectJunctions(rows *sql.Rows) ([]storage.JunctionRecord, error) {
	var records []storage.JunctionRecord
	for rows.Next() {
		record, err := scanJunction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return records, nil
}

func normalizeJunctionKey(relation, entity1ID, entity2ID string) (string, string, string, error) {
	relation = strings.TrimSpace(relation)
	entity1ID = strings.TrimSpace(entity1ID)
	entity2ID = strings.TrimSpace(entity2ID)
	if relation == "" {
		return "", "", "", fmt.Errorf("relation is required")
	}
	if entity1ID == "" || entity2ID == "" {
		return "", "", "", fmt.Errorf("entity ids are required")
	}
	return relation, entity1ID, entity2ID, nil
}

func scanJunction(row rowScanner) (storage.JunctionRecord, error) {
	var record storage.JunctionRecord
	var deletedAt sql.NullInt64
	if err := row.Scan(
		&record.Relation,
		&record.Entity1ID,
		&record.Entity2ID,
		&deletedAt,
	); err != nil {
		return storage.JunctionRecord{}, err
	}
	record.DeletedAt = milliPointer(deletedAt)
	return record, nil
}
