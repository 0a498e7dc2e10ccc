// Package errors provides structured error handling with machine-readable codes.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Organization errors
	CodeOrgNameEmpty                 Code = "ORG_NAME_EMPTY"
	CodeOrgInvalidType               Code = "ORG_INVALID_TYPE"
	CodeOrgInvalidPartnerType        Code = "ORG_INVALID_PARTNER_TYPE"
	CodeOrgSubdomainRequired         Code = "ORG_SUBDOMAIN_REQUIRED"
	CodeOrgSubdomainNotAllowed       Code = "ORG_SUBDOMAIN_NOT_ALLOWED"
	CodeOrgSubdomainInvalid          Code = "ORG_SUBDOMAIN_INVALID"
	CodeOrgInvalidStatusTransition   Code = "ORG_INVALID_SUBDOMAIN_STATUS_TRANSITION"
	CodeOrgAlreadyExists             Code = "ORG_ALREADY_EXISTS"
	CodeOrgBootstrapPartiallyApplied Code = "ORG_BOOTSTRAP_PARTIALLY_APPLIED"

	// Contact errors
	CodeContactNameEmpty   Code = "CONTACT_NAME_EMPTY"
	CodeContactInvalidType Code = "CONTACT_INVALID_TYPE"

	// Address errors
	CodeAddressLineEmpty   Code = "ADDRESS_LINE_EMPTY"
	CodeAddressInvalidType Code = "ADDRESS_INVALID_TYPE"

	// Phone errors
	CodePhoneNumberEmpty Code = "PHONE_NUMBER_EMPTY"
	CodePhoneInvalidType Code = "PHONE_INVALID_TYPE"

	// Event journal errors
	CodeEventStreamIDEmpty   Code = "EVENT_STREAM_ID_EMPTY"
	CodeEventStreamTypeEmpty Code = "EVENT_STREAM_TYPE_EMPTY"
	CodeEventTypeEmpty       Code = "EVENT_TYPE_EMPTY"
	CodeEventPayloadInvalid  Code = "EVENT_PAYLOAD_INVALID"

	// Junction errors
	CodeJunctionUnknownRelation Code = "JUNCTION_UNKNOWN_RELATION"
	CodeJunctionScopeViolation  Code = "JUNCTION_SCOPE_VIOLATION"

	// Invitation errors
	CodeInviteEmptyOrgID      Code = "INVITE_EMPTY_ORG_ID"
	CodeInviteEmptyRecipient  Code = "INVITE_EMPTY_RECIPIENT"
	CodeInviteTokenInvalid    Code = "INVITE_TOKEN_INVALID"
	CodeInviteTokenExpired    Code = "INVITE_TOKEN_EXPIRED"
	CodeInviteAlreadyRevoked  Code = "INVITE_ALREADY_REVOKED"
	CodeInviteAlreadyAccepted Code = "INVITE_ALREADY_ACCEPTED"

	// Saga errors
	CodeSagaNotFound          Code = "SAGA_NOT_FOUND"
	CodeSagaInvalidTransition Code = "SAGA_INVALID_TRANSITION"
	CodeSagaCancelled         Code = "SAGA_CANCELLED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeOrgNameEmpty,
		CodeOrgInvalidType,
		CodeOrgInvalidPartnerType,
		CodeOrgSubdomainRequired,
		CodeOrgSubdomainNotAllowed,
		CodeOrgSubdomainInvalid,
		CodeContactNameEmpty,
		CodeContactInvalidType,
		CodeAddressLineEmpty,
		CodeAddressInvalidType,
		CodePhoneNumberEmpty,
		CodePhoneInvalidType,
		CodeEventStreamIDEmpty,
		CodeEventStreamTypeEmpty,
		CodeEventTypeEmpty,
		CodeEventPayloadInvalid,
		CodeInviteEmptyOrgID,
		CodeInviteEmptyRecipient,
		CodeInviteTokenInvalid:
		return codes.InvalidArgument

	// FailedPrecondition - valid input, wrong state
	case CodeOrgInvalidStatusTransition,
		CodeOrgBootstrapPartiallyApplied,
		CodeJunctionScopeViolation,
		CodeInviteTokenExpired,
		CodeInviteAlreadyRevoked,
		CodeInviteAlreadyAccepted,
		CodeSagaInvalidTransition:
		return codes.FailedPrecondition

	case CodeOrgAlreadyExists:
		return codes.AlreadyExists

	case CodeNotFound, CodeSagaNotFound, CodeJunctionUnknownRelation:
		return codes.NotFound

	case CodeSagaCancelled:
		return codes.Canceled

	default:
		return codes.Internal
	}
}
