package org

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/careloop/careloop/internal/platform/errors"
	"github.com/careloop/careloop/internal/platform/id"
)

// ContactType classifies a contact's role within its organization.
type ContactType int

const (
	// ContactTypeUnspecified represents an invalid contact type value.
	ContactTypeUnspecified ContactType = iota
	// ContactTypeAdmin indicates an administrative contact.
	ContactTypeAdmin
	// ContactTypeBilling indicates a billing contact.
	ContactTypeBilling
	// ContactTypeClinical indicates a clinical contact.
	ContactTypeClinical
)

var (
	// ErrContactEmptyName indicates a missing contact name.
	ErrContactEmptyName = apperrors.New(apperrors.CodeContactNameEmpty, "contact name is required")
	// ErrContactInvalidType indicates a missing or invalid contact type.
	ErrContactInvalidType = apperrors.New(apperrors.CodeContactInvalidType, "contact type is required")
)

// Contact is the projection row for one contact.
type Contact struct {
	ID             string
	OrganizationID string
	FirstName      string
	LastName       string
	Email          string
	Type           ContactType
	Label          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// Deleted reports whether the contact is soft-deleted.
func (c Contact) Deleted() bool {
	return c.DeletedAt != nil
}

// CreateContactInput describes the metadata needed to create a contact.
type CreateContactInput struct {
	OrganizationID string
	FirstName      string
	LastName       string
	Email          string
	Type           ContactType
	Label          string
}

// CreateContact creates a new contact with a generated ID and timestamps.
func CreateContact(input CreateContactInput, now func() time.Time, idGenerator func() (string, error)) (Contact, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateContactInput(input)
	if err != nil {
		return Contact{}, err
	}

	contactID, err := idGenerator()
	if err != nil {
		return Contact{}, fmt.Errorf("generate contact id: %w", err)
	}

	createdAt := now().UTC()
	return Contact{
		ID:             contactID,
		OrganizationID: normalized.OrganizationID,
		FirstName:      normalized.FirstName,
		LastName:       normalized.LastName,
		Email:          normalized.Email,
		Type:           normalized.Type,
		Label:          normalized.Label,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}, nil
}

// NormalizeCreateContactInput trims and validates contact input.
func NormalizeCreateContactInput(input CreateContactInput) (CreateContactInput, error) {
	input.OrganizationID = strings.TrimSpace(input.OrganizationID)
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Label = strings.TrimSpace(input.Label)
	if input.FirstName == "" && input.LastName == "" {
		return CreateContactInput{}, ErrContactEmptyName
	}
	switch input.Type {
	case ContactTypeAdmin, ContactTypeBilling, ContactTypeClinical:
	default:
		return CreateContactInput{}, ErrContactInvalidType
	}
	return input, nil
}

// ContactTypeLabel returns the string label for a contact type.
func ContactTypeLabel(value ContactType) string {
	switch value {
	case ContactTypeAdmin:
		return "admin"
	case ContactTypeBilling:
		return "billing"
	case ContactTypeClinical:
		return "clinical"
	default:
		return "unspecified"
	}
}

// ContactTypeFromLabel converts a contact type label to a ContactType value.
func ContactTypeFromLabel(label string) ContactType {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "admin":
		return ContactTypeAdmin
	case "billing":
		return ContactTypeBilling
	case "clinical":
		return ContactTypeClinical
	default:
		return ContactTypeUnspecified
	}
}
