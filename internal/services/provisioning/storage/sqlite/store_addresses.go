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

const addressColumns = `
	id,
	organization_id,
	line1,
	line2,
	city,
	state,
	postal_code,
	address_type,
	label,
	created_at,
	updated_at,
	deleted_at
`

var addressFieldColumns = map[string]string{
	"line1":       "line1",
	"line2":       "line2",
	"city":        "city",
	"state":       "state",
	"postal_code": "postal_code",
	"label":       "label",
}

// InsertAddress inserts the projection row; an existing ID is a no-op.
func (s *Store) InsertAddress(ctx context.Context, a org.Address) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := s.ready(); err != nil {
		return false, err
	}
	if strings.TrimSpace(a.ID) == "" {
		return false, fmt.Errorf("address id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO addresses (
	id,
	organization_id,
	line1,
	line2,
	city,
	state,
	postal_code,
	address_type,
	label,
	created_at,
	updated_at,
	deleted_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING
`,
		a.ID,
		a.OrganizationID,
		a.Line1,
		a.Line2,
		a.City,
		a.State,
		a.PostalCode,
		org.AddressTypeLabel(a.Type),
		a.Label,
		a.CreatedAt.UTC().UnixMilli(),
		a.UpdatedAt.UTC().UnixMilli(),
		nullableMilli(a.DeletedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert address: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert address: %w", err)
	}
	return affected > 0, nil
}

// UpdateAddressFields merge-patches whitelisted address columns.
func (s *Store) UpdateAddressFields(ctx context.Context, addressID string, fields map[string]any, updatedAt time.Time) error {
	return s.updateFields(ctx, "addresses", addressID, addressFieldColumns, fields, updatedAt)
}

// SoftDeleteAddress sets deleted_at once.
func (s *Store) SoftDeleteAddress(ctx context.Context, addressID string, deletedAt time.Time) error {
	return s.softDelete(ctx, "addresses", addressID, deletedAt)
}

// GetAddress returns one address by ID, deleted or not.
func (s *Store) GetAddress(ctx context.Context, addressID string) (org.Address, error) {
	if err := ctx.Err(); err != nil {
		return org.Address{}, err
	}
	if err := s.ready(); err != nil {
		return org.Address{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+addressColumns+`
FROM addresses
WHERE id = ?
`, addressID)
	return scanAddress(row)
}

// ListAddressesByOrganization lists active addresses for an organization.
func (s *Store) ListAddressesByOrganization(ctx context.Context, orgID string) ([]org.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+addressColumns+`
FROM addresses
WHERE organization_id = ? AND deleted_at IS NULL
ORDER BY created_at ASC, id ASC
`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	var addresses []org.Address
	for rows.Next() {
		record, err := scanAddress(rows)
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate addresses: %w", err)
	}
	return addresses, nil
}

func scanAddress(row rowScanner) (org.Address, error) {
	var record org.Address
	var addressType string
	var createdAt, updatedAt int64
	var deletedAt sql.NullInt64
	err := row.Scan(
		&record.ID,
		&record.OrganizationID,
		&record.Line1,
		&record.Line2,
		&record.City,
		&record.State,
		&record.PostalCode,
		&addressType,
		&record.Label,
		&createdAt,
		&updatedAt,
		&deletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return org.Address{}, storage.ErrNotFound
	}
	if err != nil {
		return org.Address{}, fmt.Errorf("scan address: %w", err)
	}
	record.Type = org.AddressTypeFromLabel(addressType)
	record.CreatedAt = time.UnixMilli(createdAt).UTC()
	record.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	record.DeletedAt = milliPointer(deletedAt)
	return record, nil
}
