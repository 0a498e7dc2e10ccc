package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/careloop/careloop/internal/platform/id"
	"github.com/careloop/careloop/internal/services/provisioning/domain/event"
	"github.com/careloop/careloop/internal/services/provisioning/storage"
)

const eventColumns = `
	id,
	stream_id,
	stream_type,
	stream_version,
	event_type,
	payload,
	metadata,
	created_at,
	processed_at,
	processing_error,
	retry_count
`

// AppendEvent assigns the next stream version inside a transaction and
// stores the event.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if err := s.ready(); err != nil {
		return event.Event{}, err
	}

	evt.StreamID = strings.TrimSpace(evt.StreamID)
	if evt.StreamID == "" {
		return event.Event{}, fmt.Errorf("stream id is required")
	}
	if !evt.StreamType.IsValid() {
		return event.Event{}, fmt.Errorf("stream type %q is not valid", evt.StreamType)
	}
	if strings.TrimSpace(string(evt.Type)) == "" {
		return event.Event{}, fmt.Errorf("event type is required")
	}
	if evt.ID == "" {
		eventID, err := id.NewID()
		if err != nil {
			return event.Event{}, fmt.Errorf("generate event id: %w", err)
		}
		evt.ID = eventID
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}
	if len(evt.PayloadJSON) == 0 {
		evt.PayloadJSON = []byte("{}")
	}
	if len(evt.MetadataJSON) == 0 {
		evt.MetadataJSON = []byte("{}")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return event.Event{}, fmt.Errorf("begin append tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var maxVersion uint64
	err = tx.QueryRowContext(ctx, `
SELECT COALESCE(MAX(stream_version), 0)
FROM events
WHERE stream_id = ? AND stream_type = ?
`, evt.StreamID, string(evt.StreamType)).Scan(&maxVersion)
	if err != nil {
		return event.Event{}, fmt.Errorf("resolve stream version: %w", err)
	}
	evt.StreamVersion = maxVersion + 1

	_, err = tx.ExecContext(ctx, `
INSERT INTO events (
	id,
	stream_id,
	stream_type,
	stream_version,
	event_type,
	payload,
	metadata,
	created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
		evt.ID,
		evt.StreamID,
		string(evt.StreamType),
		evt.StreamVersion,
		string(evt.Type),
		string(evt.PayloadJSON),
		string(evt.MetadataJSON),
		evt.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return event.Event{}, fmt.Errorf("append event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return event.Event{}, fmt.Errorf("commit append tx: %w", err)
	}
	return evt, nil
}

// ListUnprocessed returns unprocessed events in journal order, skipping
// events whose retry count reached maxRetries.
func (s *Store) ListUnprocessed(ctx context.Context, maxRetries, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	if maxRetries <= 0 {
		return nil, fmt.Errorf("max retries must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+eventColumns+`
FROM events
WHERE processed_at IS NULL AND retry_count < ?
ORDER BY created_at ASC, stream_id ASC, stream_version ASC
LIMIT ?
`, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// MarkProcessed stamps processed_at exactly once. Marking an already
// processed event is rejected.
func (s *Store) MarkProcessed(ctx context.Context, eventID string, processedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE events
SET processed_at = ?, processing_error = ''
WHERE id = ? AND processed_at IS NULL
`, processedAt.UTC().UnixMilli(), eventID)
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetEvent(ctx, eventID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("event %s is already processed", eventID)
	}
	return nil
}

// RecordProcessingError stores the failure message and bumps retry_count.
// The event stays unprocessed so it can be retried.
func (s *Store) RecordProcessingError(ctx context.Context, eventID string, processingError string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE events
SET processing_error = ?, retry_count = retry_count + 1
WHERE id = ? AND processed_at IS NULL
`, strings.TrimSpace(processingError), eventID)
	if err != nil {
		return fmt.Errorf("record processing error: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record processing error: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListStreamEvents returns one stream's events ordered by version.
func (s *Store) ListStreamEvents(ctx context.Context, streamID string, streamType event.StreamType) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+eventColumns+`
FROM events
WHERE stream_id = ? AND stream_type = ?
ORDER BY stream_version ASC
`, streamID, string(streamType))
	if err != nil {
		return nil, fmt.Errorf("list stream events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListAllEvents returns every event in journal order, for replay.
func (s *Store) ListAllEvents(ctx context.Context) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+eventColumns+`
FROM events
ORDER BY created_at ASC, stream_id ASC, stream_version ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list all events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetEvent returns one event by ID.
func (s *Store) GetEvent(ctx context.Context, eventID string) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if err := s.ready(); err != nil {
		return event.Event{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+eventColumns+`
FROM events
WHERE id = ?
`, eventID)
	evt, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Event{}, storage.ErrNotFound
	}
	if err != nil {
		return event.Event{}, fmt.Errorf("get event: %w", err)
	}
	return evt, nil
}

// ListDeadEvents returns unprocessed events whose retries are exhausted.
func (s *Store) ListDeadEvents(ctx context.Context, maxRetries, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	if maxRetries <= 0 {
		return nil, fmt.Errorf("max retries must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+eventColumns+`
FROM events
WHERE processed_at IS NULL AND retry_count >= ?
ORDER BY created_at ASC, stream_id ASC, stream_version ASC
LIMIT ?
`, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// RequeueEvent clears the retry counter and error on an unprocessed event
// so dispatch picks it up again. Requeueing a processed event is rejected.
func (s *Store) RequeueEvent(ctx context.Context, eventID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE events
SET retry_count = 0, processing_error = ''
WHERE id = ? AND processed_at IS NULL
`, eventID)
	if err != nil {
		return fmt.Errorf("requeue event: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("requeue event: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetEvent(ctx, eventID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("event %s is already processed", eventID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (event.Event, error) {
	var evt event.Event
	var streamType, eventType, payload, metadata string
	var createdAt int64
	var processedAt sql.NullInt64
	if err := row.Scan(
		&evt.ID,
		&evt.StreamID,
		&streamType,
		&evt.StreamVersion,
		&eventType,
		&payload,
		&metadata,
		&createdAt,
		&processedAt,
		&evt.ProcessingError,
		&evt.RetryCount,
	); err != nil {
		return event.Event{}, err
	}
	evt.StreamType = event.StreamType(streamType)
	evt.Type = event.Type(eventType)
	evt.PayloadJSON = []byte(payload)
	evt.MetadataJSON = []byte(metadata)
	evt.CreatedAt = time.UnixMilli(createdAt).UTC()
	if processedAt.Valid {
		value := time.UnixMilli(processedAt.Int64).UTC()
		evt.ProcessedAt = &value
	}
	return evt, nil
}

func scanEvents(rows *sql.Rows) ([]event.Event, error) {
	var events []event.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
