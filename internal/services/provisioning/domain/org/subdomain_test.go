package org

import (
	"errors"
	"testing"

	apperrors "github.com/careloop/careloop/internal/platform/errors"
)

func TestCanTransitionSubdomainStatus(t *testing.T) {
	tests := []struct {
		name string
		from SubdomainStatus
		to   SubdomainStatus
		want bool
	}{
		{name: "pending to dns created", from: SubdomainStatusPending, to: SubdomainStatusDNSCreated, want: true},
		{name: "dns created to verifying", from: SubdomainStatusDNSCreated, to: SubdomainStatusVerifying, want: true},
		{name: "verifying to verified", from: SubdomainStatusVerifying, to: SubdomainStatusVerified, want: true},
		{name: "pending to failed", from: SubdomainStatusPending, to: SubdomainStatusFailed, want: true},
		{name: "dns created to failed", from: SubdomainStatusDNSCreated, to: SubdomainStatusFailed, want: true},
		{name: "verifying to failed", from: SubdomainStatusVerifying, to: SubdomainStatusFailed, want: true},
		{name: "failed back to pending", from: SubdomainStatusFailed, to: SubdomainStatusPending, want: true},
		{name: "pending skips to verified", from: SubdomainStatusPending, to: SubdomainStatusVerified, want: false},
		{name: "pending skips to verifying", from: SubdomainStatusPending, to: SubdomainStatusVerifying, want: false},
		{name: "verified to failed", from: SubdomainStatusVerified, to: SubdomainStatusFailed, want: false},
		{name: "verified back to pending", from: SubdomainStatusVerified, to: SubdomainStatusPending, want: false},
		{name: "failed to failed", from: SubdomainStatusFailed, to: SubdomainStatusFailed, want: false},
		{name: "none never transitions", from: SubdomainStatusNone, to: SubdomainStatusPending, want: false},
		{name: "never transitions to none", from: SubdomainStatusPending, to: SubdomainStatusNone, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransitionSubdomainStatus(tt.from, tt.to); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestTransitionSubdomainStatusApplies(t *testing.T) {
	organization := Organization{ID: "org-1", SubdomainStatus: SubdomainStatusPending}

	updated, err := TransitionSubdomainStatus(organization, SubdomainStatusDNSCreated)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if updated.SubdomainStatus != SubdomainStatusDNSCreated {
		t.Fatalf("expected dns_created, got %v", updated.SubdomainStatus)
	}
}

func TestTransitionSubdomainStatusRejectsInvalid(t *testing.T) {
	organization := Organization{ID: "org-1", SubdomainStatus: SubdomainStatusVerified}

	_, err := TransitionSubdomainStatus(organization, SubdomainStatusFailed)
	if err == nil {
		t.Fatal("expected error for verified -> failed")
	}
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected app error, got %T", err)
	}
	if appErr.Code != apperrors.CodeOrgInvalidStatusTransition {
		t.Fatalf("expected invalid transition code, got %v", appErr.Code)
	}
}

func TestSubdomainStatusLabelRoundTrip(t *testing.T) {
	statuses := []SubdomainStatus{
		SubdomainStatusPending,
		SubdomainStatusDNSCreated,
		SubdomainStatusVerifying,
		SubdomainStatusVerified,
		SubdomainStatusFailed,
	}
	for _, status := range statuses {
		if got := SubdomainStatusFromLabel(SubdomainStatusLabel(status)); got != status {
			t.Fatalf("expected %v, got %v", status, got)
		}
	}
}
