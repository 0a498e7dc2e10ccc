package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/careloop/careloop/internal/platform/errors"
	"github.com/careloop/careloop/internal/services/provisioning/domain/org"
	"github.com/careloop/careloop/internal/services/provisioning/storage"
)

const organizationColumns = `
	id,
	name,
	label,
	org_type,
	partner_type,
	referring_partner_id,
	subdomain,
	subdomain_status,
	dns_record_id,
	activated_at,
	created_at,
	updated_at,
	deleted_at
`

// organizationFieldColumns whitelists the columns a merge-patch update may
// touch.
var organizationFieldColumns = map[string]string{
	"name":                 "name",
	"label":                "label",
	"referring_partner_id": "referring_partner_id",
}

// InsertOrganization inserts the projection row. An existing row with the
// same ID is left untouched and reported as not inserted.
func (s *Store) InsertOrganization(ctx context.Context, o org.Organization) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := s.ready(); err != nil {
		return false, err
	}
	if strings.TrimSpace(o.ID) == "" {
		return false, fmt.Errorf("organization id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO organizations (
	id,
	name,
	label,
	org_type,
	partner_type,
	referring_partner_id,
	subdomain,
	subdomain_status,
	dns_record_id,
	activated_at,
	created_at,
	updated_at,
	deleted_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING
`,
		o.ID,
		o.Name,
		o.Label,
		org.TypeLabel(o.Type),
		org.PartnerTypeLabel(o.PartnerType),
		o.ReferringPartnerID,
		o.Subdomain,
		org.SubdomainStatusLabel(o.SubdomainStatus),
		o.DNSRecordID,
		nullableMilli(o.ActivatedAt),
		o.CreatedAt.UTC().UnixMilli(),
		o.UpdatedAt.UTC().UnixMilli(),
		nullableMilli(o.DeletedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert organization: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert organization: %w", err)
	}
	return affected > 0, nil
}

// UpdateOrganizationFields merge-patches whitelisted columns. Unknown fields
// are ignored. Soft-deleted rows are not patched.
func (s *Store) UpdateOrganizationFields(ctx context.Context, orgID string, fields map[string]any, updatedAt time.Time) error {
	return s.updateFields(ctx, "organizations", orgID, organizationFieldColumns, fields, updatedAt)
}

// SoftDeleteOrganization sets deleted_at once. Already-deleted rows keep
// their original deletion time.
func (s *Store) SoftDeleteOrganization(ctx context.Context, orgID string, deletedAt time.Time) error {
	return s.softDelete(ctx, "organizations", orgID, deletedAt)
}

// SetSubdomainStatus updates the subdomain projection columns. Organizations
// without a subdomain never carry a status; writes against them are rejected.
func (s *Store) SetSubdomainStatus(ctx context.Context, orgID string, status org.SubdomainStatus, dnsRecordID string, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	var subdomain string
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT subdomain FROM organizations WHERE id = ? AND deleted_at IS NULL
`, orgID).Scan(&subdomain)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("set subdomain status: %w", err)
	}
	if subdomain == "" {
		return apperrors.WithMetadata(
			apperrors.CodeOrgSubdomainNotAllowed,
			"organization does not carry a subdomain",
			map[string]string{
				"OrganizationID": orgID,
				"ToStatus":       org.SubdomainStatusLabel(status),
			},
		)
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE organizations
SET subdomain_status = ?,
	dns_record_id = CASE WHEN ? != '' THEN ? ELSE dns_record_id END,
	updated_at = ?
WHERE id = ? AND deleted_at IS NULL
`,
		org.SubdomainStatusLabel(status),
		dnsRecordID, dnsRecordID,
		updatedAt.UTC().UnixMilli(),
		orgID,
	)
	if err != nil {
		return fmt.Errorf("set subdomain status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set subdomain status: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ActivateOrganization stamps activated_at once.
func (s *Store) ActivateOrganization(ctx context.Context, orgID string, activatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE organizations
SET activated_at = ?, updated_at = ?
WHERE id = ? AND deleted_at IS NULL AND activated_at IS NULL
`, activatedAt.UTC().UnixMilli(), activatedAt.UTC().UnixMilli(), orgID)
	if err != nil {
		return fmt.Errorf("activate organization: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("activate organization: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetOrganization(ctx, orgID); getErr != nil {
			return getErr
		}
	}
	return nil
}

// GetOrganization returns one organization by ID, deleted or not.
func (s *Store) GetOrganization(ctx context.Context, orgID string) (org.Organization, error) {
	if err := ctx.Err(); err != nil {
		return org.Organization{}, err
	}
	if err := s.ready(); err != nil {
		return org.Organization{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+organizationColumns+`
FROM organizations
WHERE id = ?
`, orgID)
	return scanOrganization(row)
}

// FindOrganizationBySubdomain returns the active organization owning the
// subdomain. Soft-deleted rows are ignored.
func (s *Store) FindOrganizationBySubdomain(ctx context.Context, subdomain string) (org.Organization, error) {
	if err := ctx.Err(); err != nil {
		return org.Organization{}, err
	}
	if err := s.ready(); err != nil {
		return org.Organization{}, err
	}
	subdomain = strings.ToLower(strings.TrimSpace(subdomain))
	if subdomain == "" {
		return org.Organization{}, fmt.Errorf("subdomain is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+organizationColumns+`
FROM organizations
WHERE subdomain = ? AND deleted_at IS NULL
`, subdomain)
	return scanOrganization(row)
}

// FindOrganizationByName returns the active subdomain-less organization with
// the given name.
func (s *Store) FindOrganizationByName(ctx context.Context, name string) (org.Organization, error) {
	if err := ctx.Err(); err != nil {
		return org.Organization{}, err
	}
	if err := s.ready(); err != nil {
		return org.Organization{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return org.Organization{}, fmt.Errorf("name is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+organizationColumns+`
FROM organizations
WHERE name = ? AND subdomain = '' AND deleted_at IS NULL
ORDER BY created_at ASC
LIMIT 1
`, name)
	return scanOrganization(row)
}

// ListOrganizations lists organizations, newest first.
func (s *Store) ListOrganizations(ctx context.Context, includeDeleted bool, limit int) ([]org.Organization, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	query := `
SELECT ` + organizationColumns + `
FROM organizations
`
	if !includeDeleted {
		query += "WHERE deleted_at IS NULL\n"
	}
	query += "ORDER BY created_at DESC, id DESC\nLIMIT ?"

	rows, err := s.sqlDB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var organizations []org.Organization
	for rows.Next() {
		record, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		organizations = append(organizations, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate organizations: %w", err)
	}
	return organizations, nil
}

func scanOrganization(row rowScanner) (org.Organization, error) {
	var record org.Organization
	var orgType, partnerType, subdomainStatus string
	var activatedAt, deletedAt sql.NullInt64
	var createdAt, updatedAt int64
	err := row.Scan(
		&record.ID,
		&record.Name,
		&record.Label,
		&orgType,
		&partnerType,
		&record.ReferringPartnerID,
		&record.Subdomain,
		&subdomainStatus,
		&record.DNSRecordID,
		&activatedAt,
		&createdAt,
		&updatedAt,
		&deletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return org.Organization{}, storage.ErrNotFound
	}
	if err != nil {
		return org.Organization{}, fmt.Errorf("scan organization: %w", err)
	}
	record.Type = org.TypeFromLabel(orgType)
	record.PartnerType = org.PartnerTypeFromLabel(partnerType)
	record.SubdomainStatus = org.SubdomainStatusFromLabel(subdomainStatus)
	record.CreatedAt = time.UnixMilli(createdAt).UTC()
	record.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	record.ActivatedAt = milliPointer(activatedAt)
	record.DeletedAt = milliPointer(deletedAt)
	return record, nil
}

func nullableMilli(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().UnixMilli()
}

func milliPointer(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := time.UnixMilli(value.Int64).UTC()
	return &t
}
