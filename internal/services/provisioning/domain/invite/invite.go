// Package invite provides administrative invitation management for
// newly bootstrapped organizations.
package invite

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/careloop/careloop/internal/platform/errors"
	"github.com/careloop/careloop/internal/platform/id"
)

var (
	// ErrEmptyOrganizationID indicates a missing organization ID.
	ErrEmptyOrganizationID = apperrors.New(apperrors.CodeInviteEmptyOrgID, "organization id is required")
	// ErrEmptyRecipient indicates a missing recipient email.
	ErrEmptyRecipient = apperrors.New(apperrors.CodeInviteEmptyRecipient, "recipient email is required")
	// ErrAlreadyRevoked indicates the invitation was already revoked.
	ErrAlreadyRevoked = apperrors.New(apperrors.CodeInviteAlreadyRevoked, "invitation is already revoked")
	// ErrAlreadyAccepted indicates the invitation was already accepted.
	ErrAlreadyAccepted = apperrors.New(apperrors.CodeInviteAlreadyAccepted, "invitation is already accepted")
)

// defaultTTL is how long an administrative invitation stays claimable.
const defaultTTL = 7 * 24 * time.Hour

// Status represents the lifecycle status of an invitation.
type Status int

const (
	// StatusUnspecified represents an invalid invitation status.
	StatusUnspecified Status = iota
	// StatusPending indicates an invitation has been issued but not delivered.
	StatusPending
	// StatusSent indicates the invitation email has been handed to the sender.
	StatusSent
	// StatusAccepted indicates the recipient claimed the invitation.
	StatusAccepted
	// StatusRevoked indicates the invitation has been revoked.
	StatusRevoked
)

// Invitation represents one administrative invitation for an organization.
type Invitation struct {
	ID             string
	OrganizationID string
	Email          string
	Role           string
	Status         Status
	ExpiresAt      time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CreateInvitationInput describes the metadata needed to create an invitation.
type CreateInvitationInput struct {
	OrganizationID string
	Email          string
	Role           string
	// TTL overrides the default expiry window when positive.
	TTL time.Duration
}

// CreateInvitation creates a new invitation with a generated ID and timestamps.
func CreateInvitation(input CreateInvitationInput, now func() time.Time, idGenerator func() (string, error)) (Invitation, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateInvitationInput(input)
	if err != nil {
		return Invitation{}, err
	}

	inviteID, err := idGenerator()
	if err != nil {
		return Invitation{}, fmt.Errorf("generate invitation id: %w", err)
	}

	ttl := normalized.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	createdAt := now().UTC()
	return Invitation{
		ID:             inviteID,
		OrganizationID: normalized.OrganizationID,
		Email:          normalized.Email,
		Role:           normalized.Role,
		Status:         StatusPending,
		ExpiresAt:      createdAt.Add(ttl),
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}, nil
}

// NormalizeCreateInvitationInput trims and validates invitation input.
func NormalizeCreateInvitationInput(input CreateInvitationInput) (CreateInvitationInput, error) {
	input.OrganizationID = strings.TrimSpace(input.OrganizationID)
	if input.OrganizationID == "" {
		return CreateInvitationInput{}, ErrEmptyOrganizationID
	}
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if input.Email == "" {
		return CreateInvitationInput{}, ErrEmptyRecipient
	}
	input.Role = strings.TrimSpace(input.Role)
	if input.Role == "" {
		input.Role = "admin"
	}
	return input, nil
}

// Revoke marks the invitation revoked. Revoking an accepted invitation is
// rejected; revoking a revoked one is reported so compensation can treat it
// as a no-op.
func Revoke(invitation Invitation, now func() time.Time) (Invitation, error) {
	if now == nil {
		now = time.Now
	}
	switch invitation.Status {
	case StatusRevoked:
		return invitation, ErrAlreadyRevoked
	case StatusAccepted:
		return invitation, ErrAlreadyAccepted
	}
	invitation.Status = StatusRevoked
	invitation.UpdatedAt = now().UTC()
	return invitation, nil
}

// MarkSent records that the invitation email was handed to the sender.
func MarkSent(invitation Invitation, now func() time.Time) Invitation {
	if now == nil {
		now = time.Now
	}
	if invitation.Status == StatusPending {
		invitation.Status = StatusSent
		invitation.UpdatedAt = now().UTC()
	}
	return invitation
}

// StatusLabel returns the string label for an invitation status.
func StatusLabel(status Status) string {
	switch status {
	case StatusPending:
		return "PENDING"
	case StatusSent:
		return "SENT"
	case StatusAccepted:
		return "ACCEPTED"
	case StatusRevoked:
		return "REVOKED"
	default:
		return "UNSPECIFIED"
	}
}

// StatusFromLabel converts a status label to a Status value.
func StatusFromLabel(label string) Status {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "PENDING":
		return StatusPending
	case "SENT":
		return StatusSent
	case "ACCEPTED":
		return StatusAccepted
	case "REVOKED":
		return StatusRevoked
	default:
		return StatusUnspecified
	}
}
