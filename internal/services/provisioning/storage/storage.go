// Package storage declares persistence interfaces for the provisioning
// service: the event journal plus the projection tables it feeds.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/careloop/careloop/internal/services/provisioning/domain/event"
	"github.com/careloop/careloop/internal/services/provisioning/domain/invite"
	"github.com/careloop/careloop/internal/services/provisioning/domain/org"
	"github.com/careloop/careloop/internal/services/provisioning/domain/saga"
)

// ErrNotFound indicates a record does not exist.
var ErrNotFound = errors.New("record not found")

// EventStore persists the append-only event journal.
type EventStore interface {
	// AppendEvent assigns the next stream version and stores the event.
	AppendEvent(ctx context.Context, evt event.Event) (event.Event, error)
	// ListUnprocessed returns unprocessed events in journal order.
	ListUnprocessed(ctx context.Context, maxRetries, limit int) ([]event.Event, error)
	// MarkProcessed stamps processed_at once; reprocessing is rejected.
	MarkProcessed(ctx context.Context, eventID string, processedAt time.Time) error
	// RecordProcessingError stores the failure and bumps retry_count.
	RecordProcessingError(ctx context.Context, eventID string, processingError string) error
	// ListStreamEvents returns one stream's events ordered by version.
	ListStreamEvents(ctx context.Context, streamID string, streamType event.StreamType) ([]event.Event, error)
	// ListAllEvents returns every event in journal order, for replay.
	ListAllEvents(ctx context.Context) ([]event.Event, error)
	// GetEvent returns one event by ID.
	GetEvent(ctx context.Context, eventID string) (event.Event, error)
	// ListDeadEvents returns unprocessed events whose retries are exhausted.
	ListDeadEvents(ctx context.Context, maxRetries, limit int) ([]event.Event, error)
	// RequeueEvent clears retry state so dispatch picks the event up again.
	RequeueEvent(ctx context.Context, eventID string) error
}

// OrganizationStore persists the organization projection.
type OrganizationStore interface {
	InsertOrganization(ctx context.Context, o org.Organization) (inserted bool, err error)
	UpdateOrganizationFields(ctx context.Context, orgID string, fields map[string]any, updatedAt time.Time) error
	SoftDeleteOrganization(ctx context.Context, orgID string, deletedAt time.Time) error
	SetSubdomainStatus(ctx context.Context, orgID string, status org.SubdomainStatus, dnsRecordID string, updatedAt time.Time) error
	ActivateOrganization(ctx context.Context, orgID string, activatedAt time.Time) error
	GetOrganization(ctx context.Context, orgID string) (org.Organization, error)
	// FindOrganizationBySubdomain ignores soft-deleted rows.
	FindOrganizationBySubdomain(ctx context.Context, subdomain string) (org.Organization, error)
	// FindOrganizationByName matches active rows without a subdomain.
	FindOrganizationByName(ctx context.Context, name string) (org.Organization, error)
	ListOrganizations(ctx context.Context, includeDeleted bool, limit int) ([]org.Organization, error)
}

// ContactStore persists the contact projection.
type ContactStore interface {
	InsertContact(ctx context.Context, c org.Contact) (inserted bool, err error)
	UpdateContactFields(ctx context.Context, contactID string, fields map[string]any, updatedAt time.Time) error
	SoftDeleteContact(ctx context.Context, contactID string, deletedAt time.Time) error
	GetContact(ctx context.Context, contactID string) (org.Contact, error)
	ListContactsByOrganization(ctx context.Context, orgID string) ([]org.Contact, error)
}

// AddressStore persists the address projection.
type AddressStore interface {
	InsertAddress(ctx context.Context, a org.Address) (inserted bool, err error)
	UpdateAddressFields(ctx context.Context, addressID string, fields map[string]any, updatedAt time.Time) error
	SoftDeleteAddress(ctx context.Context, addressID string, deletedAt time.Time) error
	GetAddress(ctx context.Context, addressID string) (org.Address, error)
	ListAddressesByOrganization(ctx context.Context, orgID string) ([]org.Address, error)
}

// PhoneStore persists the phone projection.
type PhoneStore interface {
	InsertPhone(ctx context.Context, p org.Phone) (inserted bool, err error)
	UpdatePhoneFields(ctx context.Context, phoneID string, fields map[string]any, updatedAt time.Time) error
	SoftDeletePhone(ctx context.Context, phoneID string, deletedAt time.Time) error
	GetPhone(ctx context.Context, phoneID string) (org.Phone, error)
	ListPhonesByOrganization(ctx context.Context, orgID string) ([]org.Phone, error)
}

// JunctionRecord is one row of a many-to-many relation table. The row
// carries no timestamps of its own; the event journal is the audit trail.
type JunctionRecord struct {
	Relation  string
	Entity1ID string
	Entity2ID string
	DeletedAt *time.Time
}

// JunctionStore persists many-to-many link projections with soft deletion.
type JunctionStore interface {
	// Link activates the pair, reviving a soft-deleted row when present.
	Link(ctx context.Context, relation, entity1ID, entity2ID string) error
	// Unlink soft-deletes the pair; missing or already-deleted rows are no-ops.
	Unlink(ctx context.Context, relation, entity1ID, entity2ID string, now time.Time) error
	GetLink(ctx context.Context, relation, entity1ID, entity2ID string) (JunctionRecord, error)
	ListLinks(ctx context.Context, relation, entity1ID string, includeDeleted bool) ([]JunctionRecord, error)
	// ListLinksForEntity lists active pairs where the entity is on either side.
	ListLinksForEntity(ctx context.Context, relation, entityID string) ([]JunctionRecord, error)
}

// InvitationStore persists the invitation projection.
type InvitationStore interface {
	InsertInvitation(ctx context.Context, inv invite.Invitation) (inserted bool, err error)
	SetInvitationStatus(ctx context.Context, inviteID string, status invite.Status, updatedAt time.Time) error
	GetInvitation(ctx context.Context, inviteID string) (invite.Invitation, error)
	ListInvitationsByOrganization(ctx context.Context, orgID string) ([]invite.Invitation, error)
}

// SagaStore persists durable bootstrap saga state.
type SagaStore interface {
	InsertSaga(ctx context.Context, s saga.Bootstrap) error
	UpdateSaga(ctx context.Context, s saga.Bootstrap) error
	GetSaga(ctx context.Context, sagaID string) (saga.Bootstrap, error)
	// ListResumableSagas returns sagas in non-terminal states.
	ListResumableSagas(ctx context.Context, limit int) ([]saga.Bootstrap, error)
}

// Statistics aggregates journal and projection counts for operators.
type Statistics struct {
	TotalEvents        int64
	ProcessedEvents    int64
	FailedEvents       int64
	DeadEvents         int64
	Organizations      int64
	ActiveSubdomains   int64
	PendingInvitations int64
}

// StatisticsStore reports operator counts.
type StatisticsStore interface {
	CollectStatistics(ctx context.Context, maxRetries int) (Statistics, error)
}

// Store aggregates every provisioning persistence concern.
type Store interface {
	EventStore
	OrganizationStore
	ContactStore
	AddressStore
	PhoneStore
	JunctionStore
	InvitationStore
	SagaStore
	StatisticsStore
	Close() error
}
