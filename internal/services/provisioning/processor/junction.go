package processor

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/careloop/careloop/internal/platform/errors"
	"github.com/careloop/careloop/internal/services/provisioning/domain/event"
	"github.com/careloop/careloop/internal/services/provisioning/storage"
)

// applyJunction handles every <relation>.linked and <relation>.unlinked
// event in one dispatch. All six relation kinds share the same link/unlink
// semantics and the same tenant-scope check, so a single function keeps the
// twelve cases and the check together.
func (p *Processor) applyJunction(ctx context.Context, evt event.Event) error {
	var payload event.LinkPayload
	if err := decodePayload(evt, &payload); err != nil {
		return err
	}
	if payload.Entity1ID == "" || payload.Entity2ID == "" {
		return apperrors.New(apperrors.CodeEventPayloadInvalid, "junction payload requires both entity ids")
	}

	var linked bool
	switch evt.Type {
	case event.TypeOrganizationContactLinked,
		event.TypeOrganizationAddressLinked,
		event.TypeOrganizationPhoneLinked,
		event.TypeContactAddressLinked,
		event.TypeContactPhoneLinked,
		event.TypePhoneAddressLinked:
		linked = true
	case event.TypeOrganizationContactUnlinked,
		event.TypeOrganizationAddressUnlinked,
		event.TypeOrganizationPhoneUnlinked,
		event.TypeContactAddressUnlinked,
		event.TypeContactPhoneUnlinked,
		event.TypePhoneAddressUnlinked:
		linked = false
	default:
		return apperrors.WithMetadata(apperrors.CodeJunctionUnknownRelation,
			"unknown junction relation", map[string]string{
				"event_type": string(evt.Type),
			})
	}

	if err := p.checkJunctionScope(ctx, evt.Type, payload); err != nil {
		return err
	}

	if linked {
		return p.store.Link(ctx, evt.Type.Relation(), payload.Entity1ID, payload.Entity2ID)
	}
	return p.store.Unlink(ctx, evt.Type.Relation(), payload.Entity1ID, payload.Entity2ID, evt.CreatedAt)
}

// checkJunctionScope verifies both endpoints belong to the same tenant as
// the event's stream organization. A violation is a processing error, never
// a silent insert. A missing endpoint is also an error so the event retries
// once the creating event has been applied.
func (p *Processor) checkJunctionScope(ctx context.Context, eventType event.Type, payload event.LinkPayload) error {
	org1, err := p.junctionEndpointOrg(ctx, eventType, 1, payload.Entity1ID)
	if err != nil {
		return err
	}
	org2, err := p.junctionEndpointOrg(ctx, eventType, 2, payload.Entity2ID)
	if err != nil {
		return err
	}
	if org1 != org2 {
		return apperrors.WithMetadata(apperrors.CodeJunctionScopeViolation,
			"junction endpoints belong to different organizations", map[string]string{
				"event_type":     string(eventType),
				"entity1_org_id": org1,
				"entity2_org_id": org2,
			})
	}
	return nil
}

// junctionEndpointOrg resolves the owning organization of one junction
// endpoint. The endpoint's entity kind follows from the relation name order.
func (p *Processor) junctionEndpointOrg(ctx context.Context, eventType event.Type, position int, entityID string) (string, error) {
	kind := junctionEndpointKind(eventType.Relation(), position)
	switch kind {
	case "organization":
		record, err := p.store.GetOrganization(ctx, entityID)
		if err != nil {
			return "", junctionEndpointError(kind, entityID, err)
		}
		return record.ID, nil
	case "contact":
		record, err := p.store.GetContact(ctx, entityID)
		if err != nil {
			return "", junctionEndpointError(kind, entityID, err)
		}
		return record.OrganizationID, nil
	case "address":
		record, err := p.store.GetAddress(ctx, entityID)
		if err != nil {
			return "", junctionEndpointError(kind, entityID, err)
		}
		return record.OrganizationID, nil
	case "phone":
		record, err := p.store.GetPhone(ctx, entityID)
		if err != nil {
			return "", junctionEndpointError(kind, entityID, err)
		}
		return record.OrganizationID, nil
	default:
		return "", apperrors.WithMetadata(apperrors.CodeJunctionUnknownRelation,
			"unknown junction relation", map[string]string{
				"event_type": string(eventType),
			})
	}
}

func junctionEndpointKind(relation string, position int) string {
	for i := 1; i < len(relation); i++ {
		if relation[i] == '_' {
			if position == 1 {
				return relation[:i]
			}
			return relation[i+1:]
		}
	}
	return ""
}

func junctionEndpointError(kind, entityID string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("junction %s %s does not exist", kind, entityID)
	}
	return err
}
