// Package saga models the durable organization bootstrap workflow and its
// compensation ordering.
package saga

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/careloop/careloop/internal/platform/errors"
	"github.com/careloop/careloop/internal/platform/id"
	"github.com/careloop/careloop/internal/services/provisioning/domain/event"
)

var (
	// ErrInvalidTransition indicates a disallowed saga state change.
	ErrInvalidTransition = apperrors.New(apperrors.CodeSagaInvalidTransition, "invalid saga state transition")
	// ErrCancelled indicates the saga was cancelled before completion.
	ErrCancelled = apperrors.New(apperrors.CodeSagaCancelled, "saga was cancelled")
)

// State represents a bootstrap saga lifecycle state.
type State int

const (
	// StateUnspecified represents an invalid saga state.
	StateUnspecified State = iota
	// StateCreated indicates entity events have been appended.
	StateCreated
	// StateDNSConfiguring indicates the DNS record is being created.
	StateDNSConfiguring
	// StateDNSVerifying indicates DNS propagation is being polled.
	StateDNSVerifying
	// StateInvitationsSent indicates administrative invitations were issued.
	StateInvitationsSent
	// StateActivated indicates the organization activated. Terminal.
	StateActivated
	// StateCompensating indicates compensation is running.
	StateCompensating
	// StateCompensated indicates compensation finished. Terminal.
	StateCompensated
)

// Bootstrap is the durable record of one organization bootstrap run.
type Bootstrap struct {
	ID             string
	OrganizationID string
	State          State
	// RequestJSON preserves the original bootstrap payload for resume.
	RequestJSON []byte
	// DNSSkipped is true when the organization does not require a subdomain.
	DNSSkipped  bool
	DNSRecordID string
	// DNSVerifyAttempts counts propagation checks across polls. The runner
	// queries the registrar at most once per step.
	DNSVerifyAttempts int
	// NextVerifyAt defers the next propagation check; zero means check now.
	NextVerifyAt time.Time
	// Created entity IDs, tracked for reverse-order compensation.
	ContactIDs    []string
	AddressIDs    []string
	PhoneIDs      []string
	InvitationIDs []string
	Attempts      int
	LastError     string
	// CancelRequested asks the runner to compensate at the next step boundary.
	CancelRequested bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CreateBootstrap starts a new saga record in the created state.
func CreateBootstrap(organizationID string, requestJSON []byte, dnsSkipped bool, now func() time.Time, idGenerator func() (string, error)) (Bootstrap, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return Bootstrap{}, apperrors.New(apperrors.CodeOrgNameEmpty, "organization id is required")
	}
	sagaID, err := idGenerator()
	if err != nil {
		return Bootstrap{}, fmt.Errorf("generate saga id: %w", err)
	}
	createdAt := now().UTC()
	return Bootstrap{
		ID:             sagaID,
		OrganizationID: organizationID,
		State:          StateCreated,
		RequestJSON:    requestJSON,
		DNSSkipped:     dnsSkipped,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}, nil
}

// CanTransition reports whether a saga may move between states. Any
// non-terminal state may enter compensating.
func CanTransition(from, to State) bool {
	if from == to {
		return false
	}
	if to == StateCompensating {
		return from != StateActivated && from != StateCompensated && from != StateUnspecified
	}
	switch from {
	case StateCreated:
		return to == StateDNSConfiguring || to == StateInvitationsSent
	case StateDNSConfiguring:
		return to == StateDNSVerifying
	case StateDNSVerifying:
		return to == StateInvitationsSent
	case StateInvitationsSent:
		return to == StateActivated
	case StateCompensating:
		return to == StateCompensated
	default:
		return false
	}
}

// Transition applies a validated state change.
func Transition(b Bootstrap, to State, now func() time.Time) (Bootstrap, error) {
	if now == nil {
		now = time.Now
	}
	if !CanTransition(b.State, to) {
		return b, apperrors.WrapWithMetadata(apperrors.CodeSagaInvalidTransition,
			"invalid saga state transition", map[string]string{
				"from": StateLabel(b.State),
				"to":   StateLabel(to),
			}, ErrInvalidTransition)
	}
	if b.State == StateCreated && to == StateInvitationsSent && !b.DNSSkipped {
		return b, apperrors.WrapWithMetadata(apperrors.CodeSagaInvalidTransition,
			"dns steps cannot be skipped for this organization", map[string]string{
				"saga_id": b.ID,
			}, ErrInvalidTransition)
	}
	b.State = to
	b.UpdatedAt = now().UTC()
	return b, nil
}

// Terminal reports whether the saga has finished, successfully or not.
func (b Bootstrap) Terminal() bool {
	return b.State == StateActivated || b.State == StateCompensated
}

// CompensationStep identifies one undo action, executed in reverse order of
// the forward steps.
type CompensationStep int

const (
	// CompensateInvitations revokes issued invitations.
	CompensateInvitations CompensationStep = iota
	// CompensateDNS deletes the DNS record.
	CompensateDNS
	// CompensatePhones soft-deletes created phones.
	CompensatePhones
	// CompensateAddresses soft-deletes created addresses.
	CompensateAddresses
	// CompensateContacts soft-deletes created contacts.
	CompensateContacts
	// CompensateOrganization soft-deletes the organization. Always last.
	CompensateOrganization
)

// CompensationPlan lists the undo steps for a saga, newest work first.
// Steps whose forward step never ran are omitted.
func CompensationPlan(b Bootstrap) []CompensationStep {
	var plan []CompensationStep
	if len(b.InvitationIDs) > 0 {
		plan = append(plan, CompensateInvitations)
	}
	if !b.DNSSkipped && b.DNSRecordID != "" {
		plan = append(plan, CompensateDNS)
	}
	if len(b.PhoneIDs) > 0 {
		plan = append(plan, CompensatePhones)
	}
	if len(b.AddressIDs) > 0 {
		plan = append(plan, CompensateAddresses)
	}
	if len(b.ContactIDs) > 0 {
		plan = append(plan, CompensateContacts)
	}
	plan = append(plan, CompensateOrganization)
	return plan
}

// StateLabel returns the string label for a saga state.
func StateLabel(state State) string {
	switch state {
	case StateCreated:
		return "CREATED"
	case StateDNSConfiguring:
		return "DNS_CONFIGURING"
	case StateDNSVerifying:
		return "DNS_VERIFYING"
	case StateInvitationsSent:
		return "INVITATIONS_SENT"
	case StateActivated:
		return "ACTIVATED"
	case StateCompensating:
		return "COMPENSATING"
	case StateCompensated:
		return "COMPENSATED"
	default:
		return "UNSPECIFIED"
	}
}

// StateFromLabel converts a state label to a State value.
func StateFromLabel(label string) State {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "CREATED":
		return StateCreated
	case "DNS_CONFIGURING":
		return StateDNSConfiguring
	case "DNS_VERIFYING":
		return StateDNSVerifying
	case "INVITATIONS_SENT":
		return StateInvitationsSent
	case "ACTIVATED":
		return StateActivated
	case "COMPENSATING":
		return StateCompensating
	case "COMPENSATED":
		return StateCompensated
	default:
		return StateUnspecified
	}
}

// Request is the decoded bootstrap payload stored with the saga.
type Request = event.BootstrapInitiatedPayload
