package org

import (
	"strings"

	apperrors "github.com/careloop/careloop/internal/platform/errors"
)

// SubdomainStatus tracks the DNS provisioning lifecycle for an organization.
type SubdomainStatus int

const (
	// SubdomainStatusNone indicates the organization does not require a
	// subdomain. Distinct from pending: a none-status organization never
	// enters the DNS provisioning path.
	SubdomainStatusNone SubdomainStatus = iota
	// SubdomainStatusPending indicates provisioning has not started.
	SubdomainStatusPending
	// SubdomainStatusDNSCreated indicates the DNS record exists.
	SubdomainStatusDNSCreated
	// SubdomainStatusVerifying indicates propagation checks are running.
	SubdomainStatusVerifying
	// SubdomainStatusVerified indicates the organization is externally addressable.
	SubdomainStatusVerified
	// SubdomainStatusFailed indicates provisioning failed. Terminal absent
	// an explicit re-provision back to pending.
	SubdomainStatusFailed
)

// ErrInvalidSubdomainStatusTransition indicates a disallowed subdomain status change.
var ErrInvalidSubdomainStatusTransition = apperrors.New(
	apperrors.CodeOrgInvalidStatusTransition,
	"subdomain status transition is not allowed",
)

// IsSubdomainRequired reports whether an organization of the given type and
// partner classification is provisioned with its own subdomain.
// Tenant-isolated providers and reseller partners get one; referral and
// affiliate partners and the platform's internal organization do not.
func IsSubdomainRequired(orgType Type, partnerType PartnerType) bool {
	switch orgType {
	case TypeProvider:
		return true
	case TypePartner:
		return partnerType == PartnerTypeReseller
	default:
		return false
	}
}

// CanTransitionSubdomainStatus reports whether a subdomain status change is
// allowed. Forward progress is pending -> dns_created -> verifying ->
// verified; failed is reachable from any non-terminal state; failed may be
// explicitly re-provisioned back to pending. None never transitions.
func CanTransitionSubdomainStatus(from, to SubdomainStatus) bool {
	if from == SubdomainStatusNone || to == SubdomainStatusNone {
		return false
	}
	if to == SubdomainStatusFailed {
		return from != SubdomainStatusVerified && from != SubdomainStatusFailed
	}
	switch from {
	case SubdomainStatusPending:
		return to == SubdomainStatusDNSCreated
	case SubdomainStatusDNSCreated:
		return to == SubdomainStatusVerifying
	case SubdomainStatusVerifying:
		return to == SubdomainStatusVerified
	case SubdomainStatusFailed:
		return to == SubdomainStatusPending
	default:
		return false
	}
}

// TransitionSubdomainStatus validates and applies a subdomain status change.
func TransitionSubdomainStatus(organization Organization, to SubdomainStatus) (Organization, error) {
	if !CanTransitionSubdomainStatus(organization.SubdomainStatus, to) {
		return Organization{}, apperrors.WithMetadata(
			apperrors.CodeOrgInvalidStatusTransition,
			"subdomain status transition not allowed: "+
				SubdomainStatusLabel(organization.SubdomainStatus)+" -> "+SubdomainStatusLabel(to),
			map[string]string{
				"FromStatus": SubdomainStatusLabel(organization.SubdomainStatus),
				"ToStatus":   SubdomainStatusLabel(to),
			},
		)
	}
	organization.SubdomainStatus = to
	return organization, nil
}

// SubdomainStatusLabel returns the string label for a subdomain status.
func SubdomainStatusLabel(status SubdomainStatus) string {
	switch status {
	case SubdomainStatusPending:
		return "pending"
	case SubdomainStatusDNSCreated:
		return "dns_created"
	case SubdomainStatusVerifying:
		return "verifying"
	case SubdomainStatusVerified:
		return "verified"
	case SubdomainStatusFailed:
		return "failed"
	default:
		return ""
	}
}

// SubdomainStatusFromLabel converts a status label to a SubdomainStatus value.
func SubdomainStatusFromLabel(label string) SubdomainStatus {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "pending":
		return SubdomainStatusPending
	case "dns_created":
		return SubdomainStatusDNSCreated
	case "verifying":
		return SubdomainStatusVerifying
	case "verified":
		return SubdomainStatusVerified
	case "failed":
		return SubdomainStatusFailed
	default:
		return SubdomainStatusNone
	}
}
