package invite

import (
	"testing"
	"time"
)

func TestTokenSignerRoundTrip(t *testing.T) {
	fixedTime := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	signer := NewTokenSigner([]byte("test-secret"), func() time.Time { return fixedTime })

	invitation := Invitation{
		ID:             "inv-1",
		OrganizationID: "org-1",
		Email:          "admin@clinic.example",
		Role:           "admin",
		ExpiresAt:      fixedTime.Add(24 * time.Hour),
	}

	raw, err := signer.Mint(invitation)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := signer.Verify(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "inv-1" {
		t.Fatalf("expected subject inv-1, got %q", claims.Subject)
	}
	if claims.OrganizationID != "org-1" {
		t.Fatalf("expected org-1, got %q", claims.OrganizationID)
	}
	if claims.Email != "admin@clinic.example" {
		t.Fatalf("expected invitation email, got %q", claims.Email)
	}
	if claims.Role != "admin" {
		t.Fatalf("expected admin role, got %q", claims.Role)
	}
}

func TestTokenSignerRejectsExpired(t *testing.T) {
	issuedAt := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	signer := NewTokenSigner([]byte("test-secret"), func() time.Time { return issuedAt })

	raw, err := signer.Mint(Invitation{
		ID:             "inv-1",
		OrganizationID: "org-1",
		Email:          "admin@clinic.example",
		ExpiresAt:      issuedAt.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	later := NewTokenSigner([]byte("test-secret"), func() time.Time { return issuedAt.Add(2 * time.Hour) })
	if _, err := later.Verify(raw); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestTokenSignerRejectsWrongSecret(t *testing.T) {
	fixedTime := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	signer := NewTokenSigner([]byte("test-secret"), func() time.Time { return fixedTime })

	raw, err := signer.Mint(Invitation{
		ID:             "inv-1",
		OrganizationID: "org-1",
		Email:          "admin@clinic.example",
		ExpiresAt:      fixedTime.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	other := NewTokenSigner([]byte("different-secret"), func() time.Time { return fixedTime })
	if _, err := other.Verify(raw); err == nil {
		t.Fatal("expected token signed with another secret to be rejected")
	}
}
