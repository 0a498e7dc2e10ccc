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

const contactColumns = `
	id,
	organization_id,
	first_name,
	last_name,
	email,
	contact_type,
	label,
	created_at,
	updated_at,
	deleted_at
`

var contactFieldColumns = map[string]string{
	"first_name": "first_name",
	"last_name":  "last_name",
	"email":      "email",
	"label":      "label",
}

// InsertContact inserts the projection row; an existing ID is a no-op.
func (s *Store) InsertContact(ctx context.Context, c org.Contact) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := s.ready(); err != nil {
		return false, err
	}
	if strings.TrimSpace(c.ID) == "" {
		return false, fmt.Errorf("contact id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO contacts (
	id,
	organization_id,
	first_name,
	last_name,
	email,
	contact_type,
	label,
	created_at,
	updated_at,
	deleted_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING
`,
		c.ID,
		c.OrganizationID,
		c.FirstName,
		c.LastName,
		c.Email,
		org.ContactTypeLabel(c.Type),
		c.Label,
		c.CreatedAt.UTC().UnixMilli(),
		c.UpdatedAt.UTC().UnixMilli(),
		nullableMilli(c.DeletedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert contact: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert contact: %w", err)
	}
	return affected > 0, nil
}

// UpdateContactFields merge-patches whitelisted contact columns.
func (s *Store) UpdateContactFields(ctx context.Context, contactID string, fields map[string]any, updatedAt time.Time) error {
	return s.updateFields(ctx, "contacts", contactID, contactFieldColumns, fields, updatedAt)
}

// SoftDeleteContact sets deleted_at once.
func (s *Store) SoftDeleteContact(ctx context.Context, contactID string, deletedAt time.Time) error {
	return s.softDelete(ctx, "contacts", contactID, deletedAt)
}

// GetContact returns one contact by ID, deleted or not.
func (s *Store) GetContact(ctx context.Context, contactID string) (org.Contact, error) {
	if err := ctx.Err(); err != nil {
		return org.Contact{}, err
	}
	if err := s.ready(); err != nil {
		return org.Contact{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+contactColumns+`
FROM contacts
WHERE id = ?
`, contactID)
	return scanContact(row)
}

// ListContactsByOrganization lists active contacts for an organization.
func (s *Store) ListContactsByOrganization(ctx context.Context, orgID string) ([]org.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+contactColumns+`
FROM contacts
WHERE organization_id = ? AND deleted_at IS NULL
ORDER BY created_at ASC, id ASC
`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []org.Contact
	for rows.Next() {
		record, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return contacts, nil
}

func scanContact(row rowScanner) (org.Contact, error) {
	var record org.Contact
	var contactType string
	var createdAt, updatedAt int64
	var deletedAt sql.NullInt64
	err := row.Scan(
		&record.ID,
		&record.OrganizationID,
		&record.FirstName,
		&record.LastName,
		&record.Email,
		&contactType,
		&record.Label,
		&createdAt,
		&updatedAt,
		&deletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return org.Contact{}, storage.ErrNotFound
	}
	if err != nil {
		return org.Contact{}, fmt.Errorf("scan contact: %w", err)
	}
	record.Type = org.ContactTypeFromLabel(contactType)
	record.CreatedAt = time.UnixMilli(createdAt).UTC()
	record.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	record.DeletedAt = milliPointer(deletedAt)
	return record, nil
}
