package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/careloop/careloop/internal/services/provisioning/domain/invite"
	"github.com/careloop/careloop/internal/services/provisioning/storage"
)

const invitationColumns = `
	id,
	organization_id,
	email,
	role,
	status,
	expires_at,
	created_at,
	updated_at
`

// InsertInvitation inserts the projection row; an existing ID is a no-op.
func (s *Store) InsertInvitation(ctx context.Context, inv invite.Invitation) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := s.ready(); err != nil {
		return false, err
	}
	if strings.TrimSpace(inv.ID) == "" {
		return false, fmt.Errorf("invitation id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO invitations (
	id,
	organization_id,
	email,
	role,
	status,
	expires_at,
	created_at,
	updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING
`,
		inv.ID,
		inv.OrganizationID,
		inv.Email,
		inv.Role,
		invite.StatusLabel(inv.Status),
		inv.ExpiresAt.UTC().UnixMilli(),
		inv.CreatedAt.UTC().UnixMilli(),
		inv.UpdatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("insert invitation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert invitation: %w", err)
	}
	return affected > 0, nil
}

// SetInvitationStatus updates the invitation lifecycle status.
func (s *Store) SetInvitationStatus(ctx context.Context, inviteID string, status invite.Status, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE invitations
SET status = ?, updated_at = ?
WHERE id = ?
`, invite.StatusLabel(status), updatedAt.UTC().UnixMilli(), inviteID)
	if err != nil {
		return fmt.Errorf("set invitation status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set invitation status: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetInvitation returns one invitation by ID.
func (s *Store) GetInvitation(ctx context.Context, inviteID string) (invite.Invitation, error) {
	if err := ctx.Err(); err != nil {
		return invite.Invitation{}, err
	}
	if err := s.ready(); err != nil {
		return invite.Invitation{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+invitationColumns+`
FROM invitations
WHERE id = ?
`, inviteID)
	record, err := scanInvitation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return invite.Invitation{}, storage.ErrNotFound
	}
	if err != nil {
		return invite.Invitation{}, fmt.Errorf("get invitation: %w", err)
	}
	return record, nil
}

// ListInvitationsByOrganization lists invitations for an organization.
func (s *Store) ListInvitationsByOrganization(ctx context.Context, orgID string) ([]invite.Invitation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+invitationColumns+`
FROM invitations
WHERE organization_id = ?
ORDER BY created_at ASC, id ASC
`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []invite.Invitation
	for rows.Next() {
		record, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		invitations = append(invitations, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invitations: %w", err)
	}
	return invitations, nil
}

func scanInvitation(row rowScanner) (invite.Invitation, error) {
	var record invite.Invitation
	var status string
	var expiresAt, createdAt, updatedAt int64
	if err := row.Scan(
		&record.ID,
		&record.OrganizationID,
		&record.Email,
		&record.Role,
		&status,
		&expiresAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return invite.Invitation{}, err
	}
	record.Status = invite.StatusFromLabel(status)
	record.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	record.CreatedAt = time.UnixMilli(createdAt).UTC()
	record.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return record, nil
}
