package event

// BootstrapContact describes one contact in a bootstrap request.
type BootstrapContact struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Type      string `json:"type"`
	Label     string `json:"label,omitempty"`
}

// BootstrapAddress describes one address in a bootstrap request.
type BootstrapAddress struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Type       string `json:"type"`
	Label      string `json:"label,omitempty"`
}

// BootstrapPhone describes one phone in a bootstrap request.
type BootstrapPhone struct {
	Number string `json:"number"`
	Type   string `json:"type"`
	Label  string `json:"label,omitempty"`
}

// BootstrapOrgData describes the organization portion of a bootstrap request.
type BootstrapOrgData struct {
	Name               string `json:"name"`
	Type               string `json:"type"`
	PartnerType        string `json:"partner_type,omitempty"`
	ReferringPartnerID string `json:"referring_partner_id,omitempty"`
}

// BootstrapInitiatedPayload captures the payload for
// organization.bootstrap.initiated events.
type BootstrapInitiatedPayload struct {
	Subdomain string             `json:"subdomain,omitempty"`
	OrgData   BootstrapOrgData   `json:"org_data"`
	Contacts  []BootstrapContact `json:"contacts,omitempty"`
	Addresses []BootstrapAddress `json:"addresses,omitempty"`
	Phones    []BootstrapPhone   `json:"phones,omitempty"`
}

// OrganizationCreatedPayload captures the payload for organization.created events.
type OrganizationCreatedPayload struct {
	OrganizationID     string `json:"organization_id"`
	Name               string `json:"name"`
	Type               string `json:"type"`
	PartnerType        string `json:"partner_type,omitempty"`
	ReferringPartnerID string `json:"referring_partner_id,omitempty"`
	Subdomain          string `json:"subdomain,omitempty"`
	SubdomainStatus    string `json:"subdomain_status,omitempty"`
	Label              string `json:"label,omitempty"`
}

// OrganizationUpdatedPayload captures the payload for organization.updated events.
type OrganizationUpdatedPayload struct {
	OrganizationID string         `json:"organization_id"`
	Fields         map[string]any `json:"fields"`
}

// OrganizationDeletedPayload captures the payload for organization.deleted events.
type OrganizationDeletedPayload struct {
	OrganizationID string `json:"organization_id"`
	Reason         string `json:"reason,omitempty"`
}

// OrganizationActivatedPayload captures the payload for organization.activated events.
type OrganizationActivatedPayload struct {
	OrganizationID string `json:"organization_id"`
}

// SubdomainStatusChangedPayload captures the payload for
// organization.subdomain_status_changed events.
type SubdomainStatusChangedPayload struct {
	OrganizationID string `json:"organization_id"`
	FromStatus     string `json:"from_status"`
	ToStatus       string `json:"to_status"`
	DNSRecordID    string `json:"dns_record_id,omitempty"`
}

// ContactCreatedPayload captures the payload for contact.created events.
type ContactCreatedPayload struct {
	ContactID      string `json:"contact_id"`
	OrganizationID string `json:"organization_id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email,omitempty"`
	Type           string `json:"type"`
	Label          string `json:"label,omitempty"`
}

// ContactUpdatedPayload captures the payload for contact.updated events.
type ContactUpdatedPayload struct {
	ContactID string         `json:"contact_id"`
	Fields    map[string]any `json:"fields"`
}

// ContactDeletedPayload captures the payload for contact.deleted events.
type ContactDeletedPayload struct {
	ContactID string `json:"contact_id"`
	Reason    string `json:"reason,omitempty"`
}

// AddressCreatedPayload captures the payload for address.created events.
type AddressCreatedPayload struct {
	AddressID      string `json:"address_id"`
	OrganizationID string `json:"organization_id"`
	Line1          string `json:"line1"`
	Line2          string `json:"line2,omitempty"`
	City           string `json:"city,omitempty"`
	State          string `json:"state,omitempty"`
	PostalCode     string `json:"postal_code,omitempty"`
	Type           string `json:"type"`
	Label          string `json:"label,omitempty"`
}

// AddressUpdatedPayload captures the payload for address.updated events.
type AddressUpdatedPayload struct {
	AddressID string         `json:"address_id"`
	Fields    map[string]any `json:"fields"`
}

// AddressDeletedPayload captures the payload for address.deleted events.
type AddressDeletedPayload struct {
	AddressID string `json:"address_id"`
	Reason    string `json:"reason,omitempty"`
}

// PhoneCreatedPayload captures the payload for phone.created events.
type PhoneCreatedPayload struct {
	PhoneID        string `json:"phone_id"`
	OrganizationID string `json:"organization_id"`
	Number         string `json:"number"`
	Type           string `json:"type"`
	Label          string `json:"label,omitempty"`
}

// PhoneUpdatedPayload captures the payload for phone.updated events.
type PhoneUpdatedPayload struct {
	PhoneID string         `json:"phone_id"`
	Fields  map[string]any `json:"fields"`
}

// PhoneDeletedPayload captures the payload for phone.deleted events.
type PhoneDeletedPayload struct {
	PhoneID string `json:"phone_id"`
	Reason  string `json:"reason,omitempty"`
}

// LinkPayload captures the payload for all <relation>.linked and
// <relation>.unlinked events. Entity1 and Entity2 follow the relation
// name order (e.g. organization_contact: entity1 is the organization).
type LinkPayload struct {
	Entity1ID string `json:"entity1_id"`
	Entity2ID string `json:"entity2_id"`
}

// InvitationCreatedPayload captures the payload for invitation.created events.
type InvitationCreatedPayload struct {
	InvitationID   string `json:"invitation_id"`
	OrganizationID string `json:"organization_id"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	ExpiresAt      string `json:"expires_at"`
}

// InvitationRevokedPayload captures the payload for invitation.revoked events.
type InvitationRevokedPayload struct {
	InvitationID string `json:"invitation_id"`
	Reason       string `json:"reason,omitempty"`
}

// Metadata captures correlation metadata carried on every event.
type Metadata struct {
	// SagaID correlates events emitted by one bootstrap workflow instance.
	SagaID string `json:"saga_id,omitempty"`
	// CausationID is the journal id of the event that caused this one.
	CausationID string `json:"causation_id,omitempty"`
	// Actor identifies who or what appended the event.
	Actor string `json:"actor,omitempty"`
}
