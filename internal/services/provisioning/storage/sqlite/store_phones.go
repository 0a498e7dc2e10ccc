package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/careloop/careloop/internal/services/provisioning/domain/org"
	"github.com/careloop/careloop/internal/services/provisioning/storage"
)

const phoneColumns = `
	id,
	organization_id,
	number,
	phone_type,
	label,
	created_at,
	updated_at,
	deleted_at
`

var phoneFieldColumns = map[string]string{
	"number": "number",
	"label":  "label",
}

// InsertPhone inserts the projection row; an existing ID is a no-op.
func (s *Store) InsertPhone(ctx context.Context, p org.Phone) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := s.ready(); err != nil {
		return false, err
	}
	if strings.TrimSpace(p.ID) == "" {
		return false, fmt.Errorf("phone id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO phones (
	id,
	organization_id,
	number,
	phone_type,
	label,
	created_at,
	updated_at,
	deleted_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING
`,
		p.ID,
		p.OrganizationID,
		p.Number,
		org.PhoneTypeLabel(p.Type),
		p.Label,
		p.CreatedAt.UTC().UnixMilli(),
		p.UpdatedAt.UTC().UnixMilli(),
		nullableMilli(p.DeletedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert phone: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert phone: %w", err)
	}
	return affected > 0, nil
}

// UpdatePhoneFields merge-patches whitelisted phone columns.
func (s *Store) UpdatePhoneFields(ctx context.Context, phoneID string, fields map[string]any, updatedAt time.Time) error {
	return s.updateFields(ctx, "phones", phoneID, phoneFieldColumns, fields, updatedAt)
}

// SoftDeletePhone sets deleted_at once.
func (s *Store) SoftDeletePhone(ctx context.Context, phoneID string, deletedAt time.Time) error {
	return s.softDelete(ctx, "phones", phoneID, deletedAt)
}

// GetPhone returns one phone by ID, deleted or not.
func (s *Store) GetPhone(ctx context.Context, phoneID string) (org.Phone, error) {
	if err := ctx.Err(); err != nil {
		return org.Phone{}, err
	}
	if err := s.ready(); err != nil {
		return org.Phone{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+phoneColumns+`
FROM phones
WHERE id = ?
`, phoneID)
	return scanPhone(row)
}

// ListPhonesByOrganization lists active phones for an organization.
func (s *Store) ListPhonesByOrganization(ctx context.Context, orgID string) ([]org.Phone, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+phoneColumns+`
FROM phones
WHERE organization_id = ? AND deleted_at IS NULL
ORDER BY created_at ASC, id ASC
`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list phones: %w", err)
	}
	defer rows.Close()

	var phones []org.Phone
	for rows.Next() {
		record, err := scanPhone(rows)
		if err != nil {
			return nil, err
		}
		phones = append(phones, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate phones: %w", err)
	}
	return phones, nil
}

func scanPhone(row rowScanner) (org.Phone, error) {
	var record org.Phone
	var phoneType string
	var createdAt, updatedAt int64
	var deletedAt sql.NullInt64
	err := row.Scan(
		&record.ID,
		&record.OrganizationID,
		&record.Number,
		&phoneType,
		&record.Label,
		&createdAt,
		&updatedAt,
		&deletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return org.Phone{}, storage.ErrNotFound
	}
	if err != nil {
		return org.Phone{}, fmt.Errorf("scan phone: %w", err)
	}
	record.Type = org.PhoneTypeFromLabel(phoneType)
	record.CreatedAt = time.UnixMilli(createdAt).UTC()
	record.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	record.DeletedAt = milliPointer(deletedAt)
	return record, nil
}
