package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/careloop/careloop/internal/services/provisioning/domain/saga"
	"github.com/careloop/careloop/internal/services/provisioning/storage"
)

const sagaColumns = `
	id,
	organization_id,
	state,
	request,
	dns_skipped,
	dns_record_id,
	contact_ids,
	address_ids,
	phone_ids,
	invitation_ids,
	attempts,
	dns_verify_attempts,
	next_verify_at,
	last_error,
	cancel_requested,
	created_at,
	updated_at
`

// InsertSaga persists a new bootstrap saga record.
func (s *Store) InsertSaga(ctx context.Context, b saga.Bootstrap) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(b.ID) == "" {
		return fmt.Errorf("saga id is required")
	}

	contactIDs, addressIDs, phoneIDs, invitationIDs, err := encodeSagaIDs(b)
	if err != nil {
		return err
	}
	request := b.RequestJSON
	if len(request) == 0 {
		request = []byte("{}")
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO sagas (
	id,
	organization_id,
	state,
	request,
	dns_skipped,
	dns_record_id,
	contact_ids,
	address_ids,
	phone_ids,
	invitation_ids,
	attempts,
	dns_verify_attempts,
	next_verify_at,
	last_error,
	cancel_requested,
	created_at,
	updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		b.ID,
		b.OrganizationID,
		saga.StateLabel(b.State),
		string(request),
		boolInt(b.DNSSkipped),
		b.DNSRecordID,
		contactIDs,
		addressIDs,
		phoneIDs,
		invitationIDs,
		b.Attempts,
		b.DNSVerifyAttempts,
		optionalMilli(b.NextVerifyAt),
		b.LastError,
		boolInt(b.CancelRequested),
		b.CreatedAt.UTC().UnixMilli(),
		b.UpdatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert saga: %w", err)
	}
	return nil
}

// UpdateSaga persists the saga's current state and progress.
func (s *Store) UpdateSaga(ctx context.Context, b saga.Bootstrap) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	contactIDs, addressIDs, phoneIDs, invitationIDs, err := encodeSagaIDs(b)
	if err != nil {
		return err
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE sagas
SET state = ?,
	dns_record_id = ?,
	contact_ids = ?,
	address_ids = ?,
	phone_ids = ?,
	invitation_ids = ?,
	attempts = ?,
	dns_verify_attempts = ?,
	next_verify_at = ?,
	last_error = ?,
	cancel_requested = ?,
	updated_at = ?
WHERE id = ?
`,
		saga.StateLabel(b.State),
		b.DNSRecordID,
		contactIDs,
		addressIDs,
		phoneIDs,
		invitationIDs,
		b.Attempts,
		b.DNSVerifyAttempts,
		optionalMilli(b.NextVerifyAt),
		b.LastError,
		boolInt(b.CancelRequested),
		b.UpdatedAt.UTC().UnixMilli(),
		b.ID,
	)
	if err != nil {
		return fmt.Errorf("update saga: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update saga: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetSaga returns one saga by ID.
func (s *Store) GetSaga(ctx context.Context, sagaID string) (saga.Bootstrap, error) {
	if err := ctx.Err(); err != nil {
		return saga.Bootstrap{}, err
	}
	if err := s.ready(); err != nil {
		return saga.Bootstrap{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+sagaColumns+`
FROM sagas
WHERE id = ?
`, sagaID)
	record, err := scanSaga(row)
	if errors.Is(err, sql.ErrNoRows) {
		return saga.Bootstrap{}, storage.ErrNotFound
	}
	if err != nil {
		return saga.Bootstrap{}, fmt.Errorf("get saga: %w", err)
	}
	return record, nil
}

// ListResumableSagas returns sagas in non-terminal states, oldest first.
func (s *Store) ListResumableSagas(ctx context.Context, limit int) ([]saga.Bootstrap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+sagaColumns+`
FROM sagas
WHERE state NOT IN (?, ?)
ORDER BY created_at ASC, id ASC
LIMIT ?
`, saga.StateLabel(saga.StateActivated), saga.StateLabel(saga.StateCompensated), limit)
	if err != nil {
		return nil, fmt.Errorf("list resumable sagas: %w", err)
	}
	defer rows.Close()

	var sagas []saga.Bootstrap
	for rows.Next() {
		record, err := scanSaga(rows)
		if err != nil {
			return nil, fmt.Errorf("scan saga: %w", err)
		}
		sagas = append(sagas, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sagas: %w", err)
	}
	return sagas, nil
}

func encodeSagaIDs(b saga.Bootstrap) (string, string, string, string, error) {
	encode := func(ids []string) (string, error) {
		if ids == nil {
			ids = []string{}
		}
		raw, err := json.Marshal(ids)
		if err != nil {
			return "", fmt.Errorf("encode saga ids: %w", err)
		}
		return string(raw), nil
	}
	contactIDs, err := encode(b.ContactIDs)
	if err != nil {
		return "", "", "", "", err
	}
	addressIDs, err := encode(b.AddressIDs)
	if err != nil {
		return "", "", "", "", err
	}
	phoneIDs, err := encode(b.PhoneIDs)
	if err != nil {
		return "", "", "", "", err
	}
	invitationIDs, err := encode(b.InvitationIDs)
	if err != nil {
		return "", "", "", "", err
	}
	return contactIDs, addressIDs, phoneIDs, invitationIDs, nil
}

func scanSaga(row rowScanner) (saga.Bootstrap, error) {
	var record saga.Bootstrap
	var state, request, contactIDs, addressIDs, phoneIDs, invitationIDs string
	var dnsSkipped, cancelRequested int
	var createdAt, updatedAt, nextVerifyAt int64
	if err := row.Scan(
		&record.ID,
		&record.OrganizationID,
		&state,
		&request,
		&dnsSkipped,
		&record.DNSRecordID,
		&contactIDs,
		&addressIDs,
		&phoneIDs,
		&invitationIDs,
		&record.Attempts,
		&record.DNSVerifyAttempts,
		&nextVerifyAt,
		&record.LastError,
		&cancelRequested,
		&createdAt,
		&updatedAt,
	); err != nil {
		return saga.Bootstrap{}, err
	}
	record.State = saga.StateFromLabel(state)
	record.RequestJSON = []byte(request)
	record.DNSSkipped = dnsSkipped != 0
	record.CancelRequested = cancelRequested != 0
	if nextVerifyAt > 0 {
		record.NextVerifyAt = time.UnixMilli(nextVerifyAt).UTC()
	}
	record.CreatedAt = time.UnixMilli(createdAt).UTC()
	record.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	for _, pair := range []struct {
		raw    string
		target *[]string
	}{
		{contactIDs, &record.ContactIDs},
		{addressIDs, &record.AddressIDs},
		{phoneIDs, &record.PhoneIDs},
		{invitationIDs, &record.InvitationIDs},
	} {
		if err := json.Unmarshal([]byte(pair.raw), pair.target); err != nil {
			return saga.Bootstrap{}, fmt.Errorf("decode saga ids: %w", err)
		}
	}
	return record, nil
}

func optionalMilli(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func boolInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
