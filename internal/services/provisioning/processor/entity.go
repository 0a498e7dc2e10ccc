package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/careloop/careloop/internal/services/provisioning/domain/event"
	"github.com/careloop/careloop/internal/services/provisioning/domain/invite"
	"github.com/careloop/careloop/internal/services/provisioning/domain/org"
	"github.com/careloop/careloop/internal/services/provisioning/domain/saga"
	"github.com/careloop/careloop/internal/services/provisioning/storage"
)

func (p *Processor) applyOrganizationEvent(ctx context.Context, evt event.Event) error {
	switch evt.Type {
	case event.TypeBootstrapInitiated:
		return p.applyBootstrapInitiated(ctx, evt)
	case event.TypeOrganizationCreated:
		return p.applyOrganizationCreated(ctx, evt)
	case event.TypeOrganizationUpdated:
		var payload event.OrganizationUpdatedPayload
		if err := decodePayload(evt, &payload); err != nil {
			return err
		}
		return p.store.UpdateOrganizationFields(ctx, payload.OrganizationID, payload.Fields, evt.CreatedAt)
	case event.TypeOrganizationDeleted:
		return p.applyOrganizationDeleted(ctx, evt)
	case event.TypeOrganizationActivated:
		var payload event.OrganizationActivatedPayload
		if err := decodePayload(evt, &payload); err != nil {
			return err
		}
		return p.store.ActivateOrganization(ctx, payload.OrganizationID, evt.CreatedAt)
	case event.TypeSubdomainStatusChanged:
		var payload event.SubdomainStatusChangedPayload
		if err := decodePayload(evt, &payload); err != nil {
			return err
		}
		status := org.SubdomainStatusFromLabel(payload.ToStatus)
		return p.store.SetSubdomainStatus(ctx, payload.OrganizationID, status, payload.DNSRecordID, evt.CreatedAt)
	case event.TypeInvitationCreated:
		return p.applyInvitationCreated(ctx, evt)
	case event.TypeInvitationRevoked:
		var payload event.InvitationRevokedPayload
		if err := decodePayload(evt, &payload); err != nil {
			return err
		}
		return p.store.SetInvitationStatus(ctx, payload.InvitationID, invite.StatusRevoked, evt.CreatedAt)
	default:
		p.logf("unrecognized organization event type %q for event %s, marking processed", evt.Type, evt.ID)
		return nil
	}
}

// applyBootstrapInitiated creates the durable saga record that the runner
// picks up. A saga that already exists for this workflow is left untouched.
func (p *Processor) applyBootstrapInitiated(ctx context.Context, evt event.Event) error {
	var payload event.BootstrapInitiatedPayload
	if err := decodePayload(evt, &payload); err != nil {
		return err
	}

	sagaID := metadataSagaID(evt)
	if sagaID == "" {
		sagaID = evt.ID
	}
	if _, err := p.store.GetSaga(ctx, sagaID); err == nil {
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	orgType := org.TypeFromLabel(payload.OrgData.Type)
	partnerType := org.PartnerTypeFromLabel(payload.OrgData.PartnerType)
	dnsSkipped := !org.IsSubdomainRequired(orgType, partnerType)

	record := saga.Bootstrap{
		ID:             sagaID,
		OrganizationID: evt.StreamID,
		State:          saga.StateCreated,
		RequestJSON:    evt.PayloadJSON,
		DNSSkipped:     dnsSkipped,
		CreatedAt:      evt.CreatedAt,
		UpdatedAt:      evt.CreatedAt,
	}
	return p.store.InsertSaga(ctx, record)
}

func (p *Processor) applyOrganizationCreated(ctx context.Context, evt event.Event) error {
	var payload event.OrganizationCreatedPayload
	if err := decodePayload(evt, &payload); err != nil {
		return err
	}

	record := org.Organization{
		ID:                 payload.OrganizationID,
		Name:               payload.Name,
		Label:              payload.Label,
		Type:               org.TypeFromLabel(payload.Type),
		PartnerType:        org.PartnerTypeFromLabel(payload.PartnerType),
		ReferringPartnerID: payload.ReferringPartnerID,
		Subdomain:          payload.Subdomain,
		SubdomainStatus:    org.SubdomainStatusFromLabel(payload.SubdomainStatus),
		CreatedAt:          evt.CreatedAt,
		UpdatedAt:          evt.CreatedAt,
	}
	_, err := p.store.InsertOrganization(ctx, record)
	return err
}

// applyOrganizationDeleted soft-deletes the organization and emits a
// deleted event per child entity. Each child's own deletion cascade then
// tombstones the junctions it touches, the organization's included. The
// cascade rides the journal so the regular processors apply it; nothing
// writes another entity's table directly.
func (p *Processor) applyOrganizationDeleted(ctx context.Context, evt event.Event) error {
	var payload event.OrganizationDeletedPayload
	if err := decodePayload(evt, &payload); err != nil {
		return err
	}
	orgID := payload.OrganizationID

	if err := p.store.SoftDeleteOrganization(ctx, orgID, evt.CreatedAt); err != nil {
		return err
	}

	cascadeMetadata := cascadeMetadataFrom(evt)

	contacts, err := p.store.ListContactsByOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	for _, contact := range contacts {
		if err := p.emitCascade(ctx, event.StreamTypeContact, contact.ID, event.TypeContactDeleted,
			event.ContactDeletedPayload{ContactID: contact.ID, Reason: "organization deleted"}, cascadeMetadata); err != nil {
			return err
		}
	}

	addresses, err := p.store.ListAddressesByOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	for _, address := range addresses {
		if err := p.emitCascade(ctx, event.StreamTypeAddress, address.ID, event.TypeAddressDeleted,
			event.AddressDeletedPayload{AddressID: address.ID, Reason: "organization deleted"}, cascadeMetadata); err != nil {
			return err
		}
	}

	phones, err := p.store.ListPhonesByOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	for _, phone := range phones {
		if err := p.emitCascade(ctx, event.StreamTypePhone, phone.ID, event.TypePhoneDeleted,
			event.PhoneDeletedPayload{PhoneID: phone.ID, Reason: "organization deleted"}, cascadeMetadata); err != nil {
			return err
		}
	}

	// Junctions touching the organization are tombstoned by each child's
	// own deletion cascade.
	return nil
}

// kindUnlinkTypes maps an entity kind to the unlink event for every relation
// the kind participates in.
var kindUnlinkTypes = map[event.StreamType][]event.Type{
	event.StreamTypeContact: {
		event.TypeOrganizationContactUnlinked,
		event.TypeContactAddressUnlinked,
		event.TypeContactPhoneUnlinked,
	},
	event.StreamTypeAddress: {
		event.TypeOrganizationAddressUnlinked,
		event.TypeContactAddressUnlinked,
		event.TypePhoneAddressUnlinked,
	},
	event.StreamTypePhone: {
		event.TypeOrganizationPhoneUnlinked,
		event.TypeContactPhoneUnlinked,
		event.TypePhoneAddressUnlinked,
	},
}

// cascadeUnlinks emits an unlinked event for every active junction touching
// the deleted entity, on either side of the pair. Junctions are live only
// while both endpoints are; the soft delete of one endpoint tombstones them
// through the journal.
func (p *Processor) cascadeUnlinks(ctx context.Context, kind event.StreamType, entityID string, metadataJSON []byte) error {
	for _, unlinkType := range kindUnlinkTypes[kind] {
		links, err := p.store.ListLinksForEntity(ctx, unlinkType.Relation(), entityID)
		if err != nil {
			return err
		}
		for _, link := range links {
			if err := p.emitCascade(ctx, unlinkType.StreamType(), link.Entity1ID, unlinkType,
				event.LinkPayload{Entity1ID: link.Entity1ID, Entity2ID: link.Entity2ID}, metadataJSON); err != nil {
				return err
			}
		}
	}
	return nil
}

func cascadeMetadataFrom(evt event.Event) []byte {
	metadataJSON, err := json.Marshal(event.Metadata{
		SagaID:      metadataSagaID(evt),
		CausationID: evt.ID,
		Actor:       "processor.cascade",
	})
	if err != nil {
		return nil
	}
	return metadataJSON
}

func (p *Processor) emitCascade(ctx context.Context, streamType event.StreamType, streamID string, eventType event.Type, payload any, metadataJSON []byte) error {
	if p.replay {
		return nil
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode cascade payload: %w", err)
	}
	_, err = p.store.AppendEvent(ctx, event.Event{
		StreamID:     streamID,
		StreamType:   streamType,
		Type:         eventType,
		PayloadJSON:  payloadJSON,
		MetadataJSON: metadataJSON,
		CreatedAt:    p.now().UTC(),
	})
	return err
}

func (p *Processor) applyInvitationCreated(ctx context.Context, evt event.Event) error {
	var payload event.InvitationCreatedPayload
	if err := decodePayload(evt, &payload); err != nil {
		return err
	}
	expiresAt, err := time.Parse(time.RFC3339, payload.ExpiresAt)
	if err != nil {
		return fmt.Errorf("parse invitation expiry: %w", err)
	}

	record := invite.Invitation{
		ID:             payload.InvitationID,
		OrganizationID: payload.OrganizationID,
		Email:          payload.Email,
		Role:           payload.Role,
		Status:         invite.StatusPending,
		ExpiresAt:      expiresAt.UTC(),
		CreatedAt:      evt.CreatedAt,
		UpdatedAt:      evt.CreatedAt,
	}
	_, err = p.store.InsertInvitation(ctx, record)
	return err
}

func (p *Processor) applyContactEvent(ctx context.Context, evt event.Event) error {
	switch evt.Type {
	case event.TypeContactCreated:
		var payload event.ContactCreatedPayload
		if err := decodePayload(evt, &payload); err != nil {
			return err
		}
		record := org.Contact{
			ID:             payload.ContactID,
			OrganizationID: payload.OrganizationID,
			FirstName:      payload.FirstName,
			LastName:       payload.LastName,
			Email:          payload.Email,
			Type:           org.ContactTypeFromLabel(payload.Type),
			Label:          payload.Label,
			CreatedAt:      evt.CreatedAt,
			UpdatedAt:      evt.CreatedAt,
		}
		_, err := p.store.InsertContact(ctx, record)
		return err
	case event.TypeContactUpdated:
		var payload event.ContactUpdatedPayload
		if err := decodePayload(evt, &payload); err != nil {
			return err
		}
		return p.store.UpdateContactFields(ctx, payload.ContactID, payload.Fields, evt.CreatedAt)
	case event.TypeContactDeleted:
		var payload event.ContactDeletedPayload
		if err := decodePayload(evt, &payload); err != nil {
			return err
		}
		if err := p.store.SoftDeleteContact(ctx, payload.ContactID, evt.CreatedAt); err != nil {
			return err
		}
		return p.cascadeUnlinks(ctx, event.StreamTypeContact, payload.ContactID, cascadeMetadataFrom(evt))
	default:
		p.logf("unrecognized contact event type %q for event %s, marking processed", evt.Type, evt.ID)
		return nil
	}
}

func (p *Processor) applyAddressEvent(ctx context.Context, evt event.Event) error {
	switch evt.Type {
	case event.TypeAddressCreated:
		var payload event.AddressCreatedPayload
		if err := decodePayload(evt, &payload); err != nil {
			return err
		}
		record := org.Address{
			ID:             payload.AddressID,
			OrganizationID: payload.OrganizationID,
			Line1:          payload.Line1,
			Line2:          payload.Line2,
			City:           payload.City,
			State:          payload.State,
			PostalCode:     payload.PostalCode,
			Type:           org.AddressTypeFromLabel(payload.Type),
			Label:          payload.Label,
			CreatedAt:      evt.CreatedAt,
			UpdatedAt:      evt.CreatedAt,
		}
		_, err := p.store.InsertAddress(ctx, record)
		return err
	case event.TypeAddressUpdated:
		var payload event.AddressUpdatedPayload
		if err := decodePayload(evt, &payload); err != nil {
			return err
		}
		return p.store.UpdateAddressFields(ctx, payload.AddressID, payload.Fields, evt.CreatedAt)
	case event.TypeAddressDeleted:
		var payload event.AddressDeletedPayload
		if err := decodePayload(evt, &payload); err != nil {
			return err
		}
		if err := p.store.SoftDeleteAddress(ctx, payload.AddressID, evt.CreatedAt); err != nil {
			return err
		}
		return p.cascadeUnlinks(ctx, event.StreamTypeAddress, payload.AddressID, cascadeMetadataFrom(evt))
	default:
		p.logf("unrecognized address event type %q for event %s, marking processed", evt.Type, evt.ID)
		return nil
	}
}

func (p *Processor) applyPhoneEvent(ctx context.Context, evt event.Event) error {
	switch evt.Type {
	case event.TypePhoneCreated:
		var payload event.PhoneCreatedPayload
		if err := decodePayload(evt, &payload); err != nil {
			return err
		}
		record := org.Phone{
			ID:             payload.PhoneID,
			OrganizationID: payload.OrganizationID,
			Number:         payload.Number,
			Type:           org.PhoneTypeFromLabel(payload.Type),
			Label:          payload.Label,
			CreatedAt:      evt.CreatedAt,
			UpdatedAt:      evt.CreatedAt,
		}
		_, err := p.store.InsertPhone(ctx, record)
		return err
	case event.TypePhoneUpdated:
		var payload event.PhoneUpdatedPayload
		if err := decodePayload(evt, &payload); err != nil {
			return err
		}
		return p.store.UpdatePhoneFields(ctx, payload.PhoneID, payload.Fields, evt.CreatedAt)
	case event.TypePhoneDeleted:
		var payload event.PhoneDeletedPayload
		if err := decodePayload(evt, &payload); err != nil {
			return err
		}
		if err := p.store.SoftDeletePhone(ctx, payload.PhoneID, evt.CreatedAt); err != nil {
			return err
		}
		return p.cascadeUnlinks(ctx, event.StreamTypePhone, payload.PhoneID, cascadeMetadataFrom(evt))
	default:
		p.logf("unrecognized phone event type %q for event %s, marking processed", evt.Type, evt.ID)
		return nil
	}
}

func decodePayload(evt event.Event, target any) error {
	if err := json.Unmarshal(evt.PayloadJSON, target); err != nil {
		return fmt.Errorf("decode %s payload: %w", evt.Type, err)
	}
	return nil
}

func metadataSagaID(evt event.Event) string {
	if len(evt.MetadataJSON) == 0 {
		return ""
	}
	var metadata event.Metadata
	if err := json.Unmarshal(evt.MetadataJSON, &metadata); err != nil {
		return ""
	}
	return metadata.SagaID
}
