package org

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/careloop/careloop/internal/platform/errors"
	"github.com/careloop/careloop/internal/platform/id"
)

// AddressType classifies an address record.
type AddressType int

const (
	// AddressTypeUnspecified represents an invalid address type value.
	AddressTypeUnspecified AddressType = iota
	// AddressTypePhysical indicates a physical service location.
	AddressTypePhysical
	// AddressTypeMailing indicates a mailing address.
	AddressTypeMailing
	// AddressTypeBilling indicates a billing address.
	AddressTypeBilling
)

var (
	// ErrAddressEmptyLine indicates a missing street line.
	ErrAddressEmptyLine = apperrors.New(apperrors.CodeAddressLineEmpty, "address line is required")
	// ErrAddressInvalidType indicates a missing or invalid address type.
	ErrAddressInvalidType = apperrors.New(apperrors.CodeAddressInvalidType, "address type is required")
)

// Address is the projection row for one address.
type Address struct {
	ID             string
	OrganizationID string
	Line1          string
	Line2          string
	City           string
	State          string
	PostalCode     string
	Type           AddressType
	Label          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// Deleted reports whether the address is soft-deleted.
func (a Address) Deleted() bool {
	return a.DeletedAt != nil
}

// CreateAddressInput describes the metadata needed to create an address.
type CreateAddressInput struct {
	OrganizationID string
	Line1          string
	Line2          string
	City           string
	State          string
	PostalCode     string
	Type           AddressType
	Label          string
}

// CreateAddress creates a new address with a generated ID and timestamps.
func CreateAddress(input CreateAddressInput, now func() time.Time, idGenerator func() (string, error)) (Address, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateAddressInput(input)
	if err != nil {
		return Address{}, err
	}

	addressID, err := idGenerator()
	if err != nil {
		return Address{}, fmt.Errorf("generate address id: %w", err)
	}

	createdAt := now().UTC()
	return Address{
		ID:             addressID,
		OrganizationID: normalized.OrganizationID,
		Line1:          normalized.Line1,
		Line2:          normalized.Line2,
		City:           normalized.City,
		State:          normalized.State,
		PostalCode:     normalized.PostalCode,
		Type:           normalized.Type,
		Label:          normalized.Label,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}, nil
}

// NormalizeCreateAddressInput trims and validates address input.
func NormalizeCreateAddressInput(input CreateAddressInput) (CreateAddressInput, error) {
	input.OrganizationID = strings.TrimSpace(input.OrganizationID)
	input.Line1 = strings.TrimSpace(input.Line1)
	input.Line2 = strings.TrimSpace(input.Line2)
	input.City = strings.TrimSpace(input.City)
	input.State = strings.TrimSpace(input.State)
	input.PostalCode = strings.TrimSpace(input.PostalCode)
	input.Label = strings.TrimSpace(input.Label)
	if input.Line1 == "" {
		return CreateAddressInput{}, ErrAddressEmptyLine
	}
	switch input.Type {
	case AddressTypePhysical, AddressTypeMailing, AddressTypeBilling:
	default:
		return CreateAddressInput{}, ErrAddressInvalidType
	}
	return input, nil
}

// AddressTypeLabel returns the string label for an address type.
func AddressTypeLabel(value AddressType) string {
	switch value {
	case AddressTypePhysical:
		return "physical"
	case AddressTypeMailing:
		return "mailing"
	case AddressTypeBilling:
		return "billing"
	default:
		return "unspecified"
	}
}

// AddressTypeFromLabel converts an address type label to an AddressType value.
func AddressTypeFromLabel(label string) AddressType {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "physical":
		return AddressTypePhysical
	case "mailing":
		return AddressTypeMailing
	case "billing":
		return AddressTypeBilling
	default:
		return AddressTypeUnspecified
	}
}
