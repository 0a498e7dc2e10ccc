package sqlite

import (
	"context"
	"fmt"

	"github.com/careloop/careloop/internal/services/provisioning/domain/invite"
	"github.com/careloop/careloop/internal/services/provisioning/domain/org"
	"github.com/careloop/careloop/internal/services/provisioning/storage"
)

// CollectStatistics aggregates journal and projection counts for operators.
func (s *Store) CollectStatistics(ctx context.Context, maxRetries int) (storage.Statistics, error) {
	if err := ctx.Err(); err != nil {
		return storage.Statistics{}, err
	}
	if err := s.ready(); err != nil {
		return storage.Statistics{}, err
	}
	if maxRetries <= 0 {
		return storage.Statistics{}, fmt.Errorf("max retries must be greater than zero")
	}

	var stats storage.Statistics
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT
	COUNT(*),
	COUNT(processed_at),
	COALESCE(SUM(CASE WHEN processed_at IS NULL AND retry_count > 0 AND retry_count < ? THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN processed_at IS NULL AND retry_count >= ? THEN 1 ELSE 0 END), 0)
FROM events
`, maxRetries, maxRetries).Scan(
		&stats.TotalEvents,
		&stats.ProcessedEvents,
		&stats.FailedEvents,
		&stats.DeadEvents,
	)
	if err != nil {
		return storage.Statistics{}, fmt.Errorf("collect event statistics: %w", err)
	}

	err = s.sqlDB.QueryRowContext(ctx, `
SELECT
	COUNT(*),
	COALESCE(SUM(CASE WHEN subdomain_status = ? THEN 1 ELSE 0 END), 0)
FROM organizations
WHERE deleted_at IS NULL
`, org.SubdomainStatusLabel(org.SubdomainStatusVerified)).Scan(
		&stats.Organizations,
		&stats.ActiveSubdomains,
	)
	if err != nil {
		return storage.Statistics{}, fmt.Errorf("collect organization statistics: %w", err)
	}

	err = s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM invitations
WHERE status IN (?, ?)
`, invite.StatusLabel(invite.StatusPending), invite.StatusLabel(invite.StatusSent)).Scan(
		&stats.PendingInvitations,
	)
	if err != nil {
		return storage.Statistics{}, fmt.Errorf("collect invitation statistics: %w", err)
	}
	return stats, nil
}
