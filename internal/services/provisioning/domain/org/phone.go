package org

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/careloop/careloop/internal/platform/errors"
	"github.com/careloop/careloop/internal/platform/id"
)

// PhoneType classifies a phone record.
type PhoneType int

const (
	// PhoneTypeUnspecified represents an invalid phone type value.
	PhoneTypeUnspecified PhoneType = iota
	// PhoneTypeOffice indicates a main office line.
	PhoneTypeOffice
	// PhoneTypeMobile indicates a mobile number.
	PhoneTypeMobile
	// PhoneTypeFax indicates a fax line.
	PhoneTypeFax
)

var (
	// ErrPhoneEmptyNumber indicates a missing phone number.
	ErrPhoneEmptyNumber = apperrors.New(apperrors.CodePhoneNumberEmpty, "phone number is required")
	// ErrPhoneInvalidType indicates a missing or invalid phone type.
	ErrPhoneInvalidType = apperrors.New(apperrors.CodePhoneInvalidType, "phone type is required")
)

// Phone is the projection row for one phone.
type Phone struct {
	ID             string
	OrganizationID string
	Number         string
	Type           PhoneType
	Label          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// Deleted reports whether the phone is soft-deleted.
func (p Phone) Deleted() bool {
	return p.DeletedAt != nil
}

// CreatePhoneInput describes the metadata needed to create a phone.
type CreatePhoneInput struct {
	OrganizationID string
	Number         string
	Type           PhoneType
	Label          string
}

// CreatePhone creates a new phone with a generated ID and timestamps.
func CreatePhone(input CreatePhoneInput, now func() time.Time, idGenerator func() (string, error)) (Phone, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreatePhoneInput(input)
	if err != nil {
		return Phone{}, err
	}

	phoneID, err := idGenerator()
	if err != nil {
		return Phone{}, fmt.Errorf("generate phone id: %w", err)
	}

	createdAt := now().UTC()
	return Phone{
		ID:             phoneID,
		OrganizationID: normalized.OrganizationID,
		Number:         normalized.Number,
		Type:           normalized.Type,
		Label:          normalized.Label,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}, nil
}

// NormalizeCreatePhoneInput trims and validates phone input.
func NormalizeCreatePhoneInput(input CreatePhoneInput) (CreatePhoneInput, error) {
	input.OrganizationID = strings.TrimSpace(input.OrganizationID)
	input.Number = strings.TrimSpace(input.Number)
	input.Label = strings.TrimSpace(input.Label)
	if input.Number == "" {
		return CreatePhoneInput{}, ErrPhoneEmptyNumber
	}
	switch input.Type {
	case PhoneTypeOffice, PhoneTypeMobile, PhoneTypeFax:
	default:
		return CreatePhoneInput{}, ErrPhoneInvalidType
	}
	return input, nil
}

// PhoneTypeLabel returns the string label for a phone type.
func PhoneTypeLabel(value PhoneType) string {
	switch value {
	case PhoneTypeOffice:
		return "office"
	case PhoneTypeMobile:
		return "mobile"
	case PhoneTypeFax:
		return "fax"
	default:
		return "unspecified"
	}
}

// PhoneTypeFromLabel converts a phone type label to a PhoneType value.
func PhoneTypeFromLabel(label string) PhoneType {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "office":
		return PhoneTypeOffice
	case "mobile":
		return PhoneTypeMobile
	case "fax":
		return PhoneTypeFax
	default:
		return PhoneTypeUnspecified
	}
}
