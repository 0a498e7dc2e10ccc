// Package org defines the provisioning entity model: organizations and
// their contact, address, and phone records, plus the subdomain
// provisioning state machine.
package org

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/careloop/careloop/internal/platform/errors"
	"github.com/careloop/careloop/internal/platform/id"
)

// Type describes the kind of organization being provisioned.
type Type int

// PartnerType classifies partner organizations.
type PartnerType int

const (
	// TypeUnspecified represents an invalid organization type value.
	TypeUnspecified Type = iota
	// TypeProvider indicates a tenant-isolated healthcare provider.
	TypeProvider
	// TypePartner indicates a partner organization.
	TypePartner
	// TypeInternal indicates the platform's own internal organization.
	TypeInternal
)

const (
	// PartnerTypeNone indicates the organization is not a partner.
	PartnerTypeNone PartnerType = iota
	// PartnerTypeReseller indicates a reseller partner with its own branded tenancy.
	PartnerTypeReseller
	// PartnerTypeReferral indicates a referral partner.
	PartnerTypeReferral
	// PartnerTypeAffiliate indicates an affiliate partner.
	PartnerTypeAffiliate
)

var (
	// ErrEmptyName indicates a missing organization name.
	ErrEmptyName = apperrors.New(apperrors.CodeOrgNameEmpty, "organization name is required")
	// ErrInvalidType indicates a missing or invalid organization type.
	ErrInvalidType = apperrors.New(apperrors.CodeOrgInvalidType, "organization type is required")
	// ErrInvalidPartnerType indicates an invalid partner classification.
	ErrInvalidPartnerType = apperrors.New(apperrors.CodeOrgInvalidPartnerType, "partner type is not valid for this organization type")
	// ErrSubdomainRequired indicates the organization type requires a subdomain.
	ErrSubdomainRequired = apperrors.New(apperrors.CodeOrgSubdomainRequired, "subdomain is required for this organization type")
	// ErrSubdomainNotAllowed indicates the organization type forbids a subdomain.
	ErrSubdomainNotAllowed = apperrors.New(apperrors.CodeOrgSubdomainNotAllowed, "subdomain is not allowed for this organization type")
	// ErrInvalidSubdomain indicates a malformed subdomain label.
	ErrInvalidSubdomain = apperrors.New(apperrors.CodeOrgSubdomainInvalid, "subdomain must be a valid DNS label")
)

// subdomainPattern matches a single DNS label: lowercase alphanumerics and
// inner hyphens, at most 63 characters.
var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// Organization is the projection row for one organization.
type Organization struct {
	ID                 string
	Name               string
	Label              string
	Type               Type
	PartnerType        PartnerType
	ReferringPartnerID string
	// Subdomain is the tenant's DNS label, empty when not required.
	Subdomain string
	// SubdomainStatus tracks DNS provisioning; SubdomainStatusNone when
	// the organization type does not require a subdomain.
	SubdomainStatus SubdomainStatus
	// DNSRecordID is the registrar's record identifier, set once the DNS
	// record has been created.
	DNSRecordID string
	// ActivatedAt is set when the bootstrap workflow reaches its terminal
	// success state.
	ActivatedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	// DeletedAt marks the row soft-deleted; the row is never removed.
	DeletedAt *time.Time
}

// Deleted reports whether the organization is soft-deleted.
func (o Organization) Deleted() bool {
	return o.DeletedAt != nil
}

// CreateOrganizationInput describes the metadata needed to create an organization.
type CreateOrganizationInput struct {
	Name               string
	Label              string
	Type               Type
	PartnerType        PartnerType
	ReferringPartnerID string
	Subdomain          string
}

// CreateOrganization creates a new organization with a generated ID and
// timestamps. The subdomain status is derived from the organization type:
// SubdomainStatusPending when required, SubdomainStatusNone otherwise.
func CreateOrganization(input CreateOrganizationInput, now func() time.Time, idGenerator func() (string, error)) (Organization, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateOrganizationInput(input)
	if err != nil {
		return Organization{}, err
	}

	orgID, err := idGenerator()
	if err != nil {
		return Organization{}, fmt.Errorf("generate organization id: %w", err)
	}

	status := SubdomainStatusNone
	if IsSubdomainRequired(normalized.Type, normalized.PartnerType) {
		status = SubdomainStatusPending
	}

	createdAt := now().UTC()
	return Organization{
		ID:                 orgID,
		Name:               normalized.Name,
		Label:              normalized.Label,
		Type:               normalized.Type,
		PartnerType:        normalized.PartnerType,
		ReferringPartnerID: normalized.ReferringPartnerID,
		Subdomain:          normalized.Subdomain,
		SubdomainStatus:    status,
		CreatedAt:          createdAt,
		UpdatedAt:          createdAt,
	}, nil
}

// NormalizeCreateOrganizationInput trims and validates organization input.
func NormalizeCreateOrganizationInput(input CreateOrganizationInput) (CreateOrganizationInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return CreateOrganizationInput{}, ErrEmptyName
	}
	input.Label = strings.TrimSpace(input.Label)
	input.ReferringPartnerID = strings.TrimSpace(input.ReferringPartnerID)
	input.Subdomain = strings.ToLower(strings.TrimSpace(input.Subdomain))

	switch input.Type {
	case TypeProvider, TypeInternal:
		if input.PartnerType != PartnerTypeNone {
			return CreateOrganizationInput{}, ErrInvalidPartnerType
		}
	case TypePartner:
		if input.PartnerType == PartnerTypeNone {
			return CreateOrganizationInput{}, ErrInvalidPartnerType
		}
	default:
		return CreateOrganizationInput{}, ErrInvalidType
	}

	required := IsSubdomainRequired(input.Type, input.PartnerType)
	if required {
		if input.Subdomain == "" {
			return CreateOrganizationInput{}, ErrSubdomainRequired
		}
		if !subdomainPattern.MatchString(input.Subdomain) {
			return CreateOrganizationInput{}, ErrInvalidSubdomain
		}
	} else if input.Subdomain != "" {
		return CreateOrganizationInput{}, ErrSubdomainNotAllowed
	}

	return input, nil
}

// TypeLabel returns the string label for an organization type.
func TypeLabel(value Type) string {
	switch value {
	case TypeProvider:
		return "provider"
	case TypePartner:
		return "partner"
	case TypeInternal:
		return "internal"
	default:
		return "unspecified"
	}
}

// TypeFromLabel converts an organization type label to a Type value.
func TypeFromLabel(label string) Type {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "provider":
		return TypeProvider
	case "partner":
		return TypePartner
	case "internal":
		return TypeInternal
	default:
		return TypeUnspecified
	}
}

// PartnerTypeLabel returns the string label for a partner type.
func PartnerTypeLabel(value PartnerType) string {
	switch value {
	case PartnerTypeReseller:
		return "reseller"
	case PartnerTypeReferral:
		return "referral"
	case PartnerTypeAffiliate:
		return "affiliate"
	default:
		return ""
	}
}

// PartnerTypeFromLabel converts a partner type label to a PartnerType value.
func PartnerTypeFromLabel(label string) PartnerType {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "reseller":
		return PartnerTypeReseller
	case "referral":
		return PartnerTypeReferral
	case "affiliate":
		return PartnerTypeAffiliate
	default:
		return PartnerTypeNone
	}
}
