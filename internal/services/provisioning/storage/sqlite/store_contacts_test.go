package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/careloop/careloop/internal/services/provisioning/domain/org"
	"github.com/careloop/careloop/internal/services/provisioning/storage"
)

func TestContactLifecycle(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

	record := org.Contact{
		ID:             "con-1",
		OrganizationID: "org-1",
		FirstName:      "Ana",
		LastName:       "Reyes",
		Email:          "ana@clinic.example",
		Type:           org.ContactTypeAdmin,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	inserted, err := store.InsertContact(context.Background(), record)
	if err != nil {
		t.Fatalf("insert contact: %v", err)
	}
	if !inserted {
		t.Fatal("expected first insert to apply")
	}
	inserted, err = store.InsertContact(context.Background(), record)
	if err != nil {
		t.Fatalf("insert contact again: %v", err)
	}
	if inserted {
		t.Fatal("expected duplicate insert to be a no-op")
	}

	err = store.UpdateContactFields(context.Background(), "con-1", map[string]any{
		"email":           "ana.reyes@clinic.example",
		"organization_id": "org-hijack",
	}, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("update contact fields: %v", err)
	}

	got, err := store.GetContact(context.Background(), "con-1")
	if err != nil {
		t.Fatalf("get contact: %v", err)
	}
	if got.Email != "ana.reyes@clinic.example" {
		t.Fatalf("expected updated email, got %q", got.Email)
	}
	if got.OrganizationID != "org-1" {
		t.Fatalf("expected organization id untouched, got %q", got.OrganizationID)
	}

	if err := store.SoftDeleteContact(context.Background(), "con-1", now.Add(2*time.Minute)); err != nil {
		t.Fatalf("soft delete contact: %v", err)
	}
	// Updating a deleted contact is rejected.
	err = store.UpdateContactFields(context.Background(), "con-1", map[string]any{"email": "x@y.example"}, now.Add(3*time.Minute))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found for deleted row, got %v", err)
	}

	listed, err := store.ListContactsByOrganization(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("list contacts: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected deleted contact to be excluded, got %v", listed)
	}
}
