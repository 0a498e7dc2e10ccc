package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	apperrors "github.com/careloop/careloop/internal/platform/errors"
	"github.com/careloop/careloop/internal/platform/id"
	"github.com/careloop/careloop/internal/services/provisioning/domain/event"
	"github.com/careloop/careloop/internal/services/provisioning/domain/org"
	"github.com/careloop/careloop/internal/services/provisioning/domain/saga"
	"github.com/careloop/careloop/internal/services/provisioning/processor"
	"github.com/careloop/careloop/internal/services/provisioning/storage"
)

// Service exposes the provisioning operations: initiating and cancelling
// bootstrap workflows, entity mutation via the journal, and queries over
// the projections.
type Service struct {
	store       storage.Store
	dispatcher  *processor.Loop
	maxRetries  int
	now         func() time.Time
	idGenerator func() (string, error)
	logf        func(format string, args ...any)
}

// NewService creates the provisioning service surface.
func NewService(store storage.Store, dispatcher *processor.Loop, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = defaultRunnerMaxAttempts
	}
	return &Service{
		store:       store,
		dispatcher:  dispatcher,
		maxRetries:  maxRetries,
		now:         time.Now,
		idGenerator: id.NewID,
		logf:        log.Printf,
	}
}

// BootstrapResult identifies the workflow started for a bootstrap request.
type BootstrapResult struct {
	SagaID         string
	OrganizationID string
}

// InitiateBootstrap validates the request and appends the initiating event.
// The journal processor creates the durable saga record; the runner picks
// it up from there.
func (s *Service) InitiateBootstrap(ctx context.Context, request saga.Request) (BootstrapResult, error) {
	if _, err := org.NormalizeCreateOrganizationInput(org.CreateOrganizationInput{
		Name:               request.OrgData.Name,
		Type:               org.TypeFromLabel(request.OrgData.Type),
		PartnerType:        org.PartnerTypeFromLabel(request.OrgData.PartnerType),
		ReferringPartnerID: request.OrgData.ReferringPartnerID,
		Subdomain:          request.Subdomain,
	}); err != nil {
		return BootstrapResult{}, err
	}

	organizationID, err := s.idGenerator()
	if err != nil {
		return BootstrapResult{}, fmt.Errorf("generate organization id: %w", err)
	}
	sagaID, err := s.idGenerator()
	if err != nil {
		return BootstrapResult{}, fmt.Errorf("generate saga id: %w", err)
	}

	payloadJSON, err := json.Marshal(request)
	if err != nil {
		return BootstrapResult{}, fmt.Errorf("encode bootstrap payload: %w", err)
	}
	metadataJSON, err := json.Marshal(event.Metadata{SagaID: sagaID, Actor: "api"})
	if err != nil {
		return BootstrapResult{}, fmt.Errorf("encode bootstrap metadata: %w", err)
	}

	_, err = s.store.AppendEvent(ctx, event.Event{
		StreamID:     organizationID,
		StreamType:   event.StreamTypeOrganization,
		Type:         event.TypeBootstrapInitiated,
		PayloadJSON:  payloadJSON,
		MetadataJSON: metadataJSON,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return BootstrapResult{}, err
	}
	if _, err := s.dispatcher.Drain(ctx); err != nil {
		s.logf("drain journal after bootstrap initiation: %v", err)
	}
	return BootstrapResult{SagaID: sagaID, OrganizationID: organizationID}, nil
}

// CancelBootstrap asks the runner to compensate the saga at its next step
// boundary. Terminal sagas cannot be cancelled.
func (s *Service) CancelBootstrap(ctx context.Context, sagaID string) error {
	record, err := s.store.GetSaga(ctx, sagaID)
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.WithMetadata(apperrors.CodeSagaNotFound, "saga does not exist",
			map[string]string{"saga_id": sagaID})
	}
	if err != nil {
		return err
	}
	if record.Terminal() {
		return apperrors.WithMetadata(apperrors.CodeSagaInvalidTransition,
			"saga has already finished", map[string]string{
				"saga_id": sagaID,
				"state":   saga.StateLabel(record.State),
			})
	}
	record.CancelRequested = true
	record.UpdatedAt = s.now().UTC()
	return s.store.UpdateSaga(ctx, record)
}

// GetBootstrap returns the saga record for status inspection.
func (s *Service) GetBootstrap(ctx context.Context, sagaID string) (saga.Bootstrap, error) {
	record, err := s.store.GetSaga(ctx, sagaID)
	if errors.Is(err, storage.ErrNotFound) {
		return saga.Bootstrap{}, apperrors.WithMetadata(apperrors.CodeSagaNotFound,
			"saga does not exist", map[string]string{"saga_id": sagaID})
	}
	return record, err
}

// UpdateOrganization appends a merge-patch event for the organization.
func (s *Service) UpdateOrganization(ctx context.Context, orgID string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	if _, err := s.store.GetOrganization(ctx, orgID); err != nil {
		return err
	}
	return s.appendAndDrain(ctx, event.StreamTypeOrganization, orgID,
		event.TypeOrganizationUpdated, event.OrganizationUpdatedPayload{
			OrganizationID: orgID,
			Fields:         fields,
		})
}

// DeleteOrganization appends the soft-deletion event. The processor cascade
// emits deletion and unlink events for everything the organization owns.
func (s *Service) DeleteOrganization(ctx context.Context, orgID, reason string) error {
	if _, err := s.store.GetOrganization(ctx, orgID); err != nil {
		return err
	}
	return s.appendAndDrain(ctx, event.StreamTypeOrganization, orgID,
		event.TypeOrganizationDeleted, event.OrganizationDeletedPayload{
			OrganizationID: orgID,
			Reason:         reason,
		})
}

// LinkEntities appends a linked event for the relation implied by the event
// type. The event rides the stream of the relation's first endpoint, keyed
// by entity1ID.
func (s *Service) LinkEntities(ctx context.Context, linkType event.Type, entity1ID, entity2ID string) error {
	streamType := linkType.StreamType()
	if !linkType.IsJunction() || streamType == "" {
		return apperrors.WithMetadata(apperrors.CodeJunctionUnknownRelation,
			"event type is not a junction type", map[string]string{
				"event_type": string(linkType),
			})
	}
	return s.appendAndDrain(ctx, streamType, entity1ID, linkType,
		event.LinkPayload{Entity1ID: entity1ID, Entity2ID: entity2ID})
}

// GetOrganization returns one organization projection row.
func (s *Service) GetOrganization(ctx context.Context, orgID string) (org.Organization, error) {
	return s.store.GetOrganization(ctx, orgID)
}

// ListOrganizations lists organization projection rows.
func (s *Service) ListOrganizations(ctx context.Context, includeDeleted bool, limit int) ([]org.Organization, error) {
	return s.store.ListOrganizations(ctx, includeDeleted, limit)
}

// OrganizationDetail aggregates an organization with its active children.
type OrganizationDetail struct {
	Organization org.Organization
	Contacts     []org.Contact
	Addresses    []org.Address
	Phones       []org.Phone
}

// GetOrganizationDetail returns the organization with its linked entities.
func (s *Service) GetOrganizationDetail(ctx context.Context, orgID string) (OrganizationDetail, error) {
	organization, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return OrganizationDetail{}, err
	}
	contacts, err := s.store.ListContactsByOrganization(ctx, orgID)
	if err != nil {
		return OrganizationDetail{}, err
	}
	addresses, err := s.store.ListAddressesByOrganization(ctx, orgID)
	if err != nil {
		return OrganizationDetail{}, err
	}
	phones, err := s.store.ListPhonesByOrganization(ctx, orgID)
	if err != nil {
		return OrganizationDetail{}, err
	}
	return OrganizationDetail{
		Organization: organization,
		Contacts:     contacts,
		Addresses:    addresses,
		Phones:       phones,
	}, nil
}

// ListStreamEvents returns the journal history for one stream.
func (s *Service) ListStreamEvents(ctx context.Context, streamID string, streamType event.StreamType) ([]event.Event, error) {
	return s.store.ListStreamEvents(ctx, streamID, streamType)
}

// Statistics reports journal and projection counts.
func (s *Service) Statistics(ctx context.Context) (storage.Statistics, error) {
	return s.store.CollectStatistics(ctx, s.maxRetries)
}

func (s *Service) appendAndDrain(ctx context.Context, streamType event.StreamType, streamID string, eventType event.Type, payload any) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	metadataJSON, err := json.Marshal(event.Metadata{Actor: "api"})
	if err != nil {
		return fmt.Errorf("encode %s metadata: %w", eventType, err)
	}
	if _, err := s.store.AppendEvent(ctx, event.Event{
		StreamID:     streamID,
		StreamType:   streamType,
		Type:         eventType,
		PayloadJSON:  payloadJSON,
		MetadataJSON: metadataJSON,
		CreatedAt:    s.now().UTC(),
	}); err != nil {
		return err
	}
	_, err = s.dispatcher.Drain(ctx)
	return err
}
