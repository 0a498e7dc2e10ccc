package sqlite

import (
	"context"
	"fmt"
)

// projectionTables lists every derived table. The events journal and the
// sagas table are deliberately absent: the journal is the source of truth
// and saga records are workflow state, not a projection.
var projectionTables = []string{
	"organizations",
	"contacts",
	"addresses",
	"phones",
	"junctions",
	"invitations",
}

// ResetProjections clears every projection table so the journal can be
// replayed into empty views.
func (s *Store) ResetProjections(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range projectionTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset tx: %w", err)
	}
	return nil
}
