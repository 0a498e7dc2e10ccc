// Package event defines the provisioning event journal vocabulary.
//
// Events are immutable facts. Projections are derived exclusively by
// replaying them; nothing outside a processor writes projection rows.
package event

import (
	"strings"
	"time"
)

// StreamType identifies which entity stream an event belongs to.
type StreamType string

const (
	// StreamTypeOrganization scopes events to an organization stream.
	StreamTypeOrganization StreamType = "organization"
	// StreamTypeContact scopes events to a contact stream.
	StreamTypeContact StreamType = "contact"
	// StreamTypeAddress scopes events to an address stream.
	StreamTypeAddress StreamType = "address"
	// StreamTypePhone scopes events to a phone stream.
	StreamTypePhone StreamType = "phone"
)

// Type identifies the kind of a provisioning event.
type Type string

// Organization lifecycle events.
const (
	// TypeBootstrapInitiated records an inbound request to bootstrap an organization.
	TypeBootstrapInitiated Type = "organization.bootstrap.initiated"
	// TypeOrganizationCreated records the creation of an organization.
	TypeOrganizationCreated Type = "organization.created"
	// TypeOrganizationUpdated records a merge-patch of organization fields.
	TypeOrganizationUpdated Type = "organization.updated"
	// TypeOrganizationDeleted records the soft deletion of an organization.
	TypeOrganizationDeleted Type = "organization.deleted"
	// TypeOrganizationActivated records the final activation of an organization.
	TypeOrganizationActivated Type = "organization.activated"
	// TypeSubdomainStatusChanged records a DNS provisioning status transition.
	TypeSubdomainStatusChanged Type = "organization.subdomain_status_changed"
)

// Contact events.
const (
	// TypeContactCreated records the creation of a contact.
	TypeContactCreated Type = "contact.created"
	// TypeContactUpdated records a merge-patch of contact fields.
	TypeContactUpdated Type = "contact.updated"
	// TypeContactDeleted records the soft deletion of a contact.
	TypeContactDeleted Type = "contact.deleted"
)

// Address events.
const (
	// TypeAddressCreated records the creation of an address.
	TypeAddressCreated Type = "address.created"
	// TypeAddressUpdated records a merge-patch of address fields.
	TypeAddressUpdated Type = "address.updated"
	// TypeAddressDeleted records the soft deletion of an address.
	TypeAddressDeleted Type = "address.deleted"
)

// Phone events.
const (
	// TypePhoneCreated records the creation of a phone.
	TypePhoneCreated Type = "phone.created"
	// TypePhoneUpdated records a merge-patch of phone fields.
	TypePhoneUpdated Type = "phone.updated"
	// TypePhoneDeleted records the soft deletion of a phone.
	TypePhoneDeleted Type = "phone.deleted"
)

// Junction events. Types follow the <relation>.linked / <relation>.unlinked
// naming convention the router keys on.
const (
	// TypeOrganizationContactLinked records an organization-contact association.
	TypeOrganizationContactLinked Type = "organization_contact.linked"
	// TypeOrganizationContactUnlinked records the removal of an organization-contact association.
	TypeOrganizationContactUnlinked Type = "organization_contact.unlinked"
	// TypeOrganizationAddressLinked records an organization-address association.
	TypeOrganizationAddressLinked Type = "organization_address.linked"
	// TypeOrganizationAddressUnlinked records the removal of an organization-address association.
	TypeOrganizationAddressUnlinked Type = "organization_address.unlinked"
	// TypeOrganizationPhoneLinked records an organization-phone association.
	TypeOrganizationPhoneLinked Type = "organization_phone.linked"
	// TypeOrganizationPhoneUnlinked records the removal of an organization-phone association.
	TypeOrganizationPhoneUnlinked Type = "organization_phone.unlinked"
	// TypeContactAddressLinked records a contact-address association.
	TypeContactAddressLinked Type = "contact_address.linked"
	// TypeContactAddressUnlinked records the removal of a contact-address association.
	TypeContactAddressUnlinked Type = "contact_address.unlinked"
	// TypeContactPhoneLinked records a contact-phone association.
	TypeContactPhoneLinked Type = "contact_phone.linked"
	// TypeContactPhoneUnlinked records the removal of a contact-phone association.
	TypeContactPhoneUnlinked Type = "contact_phone.unlinked"
	// TypePhoneAddressLinked records a phone-address association.
	TypePhoneAddressLinked Type = "phone_address.linked"
	// TypePhoneAddressUnlinked records the removal of a phone-address association.
	TypePhoneAddressUnlinked Type = "phone_address.unlinked"
)

// Invitation events (carried on the owning organization's stream).
const (
	// TypeInvitationCreated records the issuance of an administrative invitation.
	TypeInvitationCreated Type = "invitation.created"
	// TypeInvitationRevoked records the revocation of an invitation.
	TypeInvitationRevoked Type = "invitation.revoked"
)

// Event represents an immutable entry in the provisioning event journal.
type Event struct {
	// ID is the journal identity, assigned by storage on append.
	ID string
	// StreamID identifies the entity stream this event belongs to.
	StreamID string
	// StreamType identifies which kind of entity stream this is.
	StreamType StreamType
	// StreamVersion is the event sequence within the stream (starts at 1).
	// Assigned by storage on append.
	StreamVersion uint64
	// Type identifies the kind of event.
	Type Type
	// PayloadJSON holds event-specific data as JSON.
	PayloadJSON []byte
	// MetadataJSON holds correlation metadata (saga id, actor) as JSON.
	MetadataJSON []byte
	// CreatedAt is when the event was appended.
	CreatedAt time.Time
	// ProcessedAt is set at most once, after successful processor execution.
	ProcessedAt *time.Time
	// ProcessingError records the most recent processor failure, if any.
	ProcessingError string
	// RetryCount counts processor attempts for this event.
	RetryCount int
}

// Processed reports whether this event has already been applied.
func (e Event) Processed() bool {
	return e.ProcessedAt != nil
}

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// IsJunction reports whether the event type follows the link/unlink
// naming convention and belongs to the junction processor.
func (t Type) IsJunction() bool {
	return strings.HasSuffix(string(t), ".linked") || strings.HasSuffix(string(t), ".unlinked")
}

// Relation returns the junction relation prefix of a link/unlink event
// type (e.g. "organization_contact"), or "" for non-junction types.
func (t Type) Relation() string {
	if !t.IsJunction() {
		return ""
	}
	value := string(t)
	return value[:strings.LastIndex(value, ".")]
}

// StreamType returns the entity stream a junction event is appended to: the
// stream of the relation's first endpoint, whose ID keys the stream. Returns
// "" for non-junction types and unknown endpoint kinds.
func (t Type) StreamType() StreamType {
	relation := t.Relation()
	if relation == "" {
		return ""
	}
	kind, _, ok := strings.Cut(relation, "_")
	if !ok {
		return ""
	}
	if s := StreamType(kind); s.IsValid() {
		return s
	}
	return ""
}

// Domain returns the domain prefix of the event type (e.g. "organization").
func (t Type) Domain() string {
	for i, c := range t {
		if c == '.' {
			return string(t[:i])
		}
	}
	return string(t)
}

// IsValid reports whether the stream type is one of the known entity streams.
func (s StreamType) IsValid() bool {
	switch s {
	case StreamTypeOrganization, StreamTypeContact, StreamTypeAddress, StreamTypePhone:
		return true
	default:
		return false
	}
}
