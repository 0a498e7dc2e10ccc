package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/careloop/careloop/internal/services/provisioning/domain/event"
	"github.com/careloop/careloop/internal/services/provisioning/domain/invite"
	"github.com/careloop/careloop/internal/services/provisioning/domain/org"
)

func TestCollectStatistics(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

	processed := appendTestEvent(t, store, "org-1", event.StreamTypeOrganization, event.TypeOrganizationCreated, now)
	failing := appendTestEvent(t, store, "org-2", event.StreamTypeOrganization, event.TypeOrganizationCreated, now.Add(time.Second))
	dead := appendTestEvent(t, store, "org-3", event.StreamTypeOrganization, event.TypeOrganizationCreated, now.Add(2*time.Second))

	if err := store.MarkProcessed(context.Background(), processed.ID, now.Add(time.Minute)); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if err := store.RecordProcessingError(context.Background(), failing.ID, "transient"); err != nil {
		t.Fatalf("record processing error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := store.RecordProcessingError(context.Background(), dead.ID, "fatal"); err != nil {
			t.Fatalf("record processing error: %v", err)
		}
	}

	if _, err := store.InsertOrganization(context.Background(), org.Organization{
		ID:              "org-1",
		Name:            "Lakeside Clinic",
		Type:            org.TypeProvider,
		Subdomain:       "lakeside",
		SubdomainStatus: org.SubdomainStatusVerified,
		CreatedAt:       now,
		UpdatedAt:       now,
	}); err != nil {
		t.Fatalf("insert organization: %v", err)
	}
	seedOrganization(t, store, "org-2", now)

	if _, err := store.InsertInvitation(context.Background(), invite.Invitation{
		ID:             "inv-1",
		OrganizationID: "org-1",
		Email:          "admin@clinic.example",
		Role:           "admin",
		Status:         invite.StatusPending,
		ExpiresAt:      now.Add(time.Hour),
		CreatedAt:      now,
		UpdatedAt:      now,
	}); err != nil {
		t.Fatalf("insert invitation: %v", err)
	}

	stats, err := store.CollectStatistics(context.Background(), 3)
	if err != nil {
		t.Fatalf("collect statistics: %v", err)
	}
	if stats.TotalEvents != 3 {
		t.Fatalf("expected 3 events, got %d", stats.TotalEvents)
	}
	if stats.ProcessedEvents != 1 {
		t.Fatalf("expected 1 processed, got %d", stats.ProcessedEvents)
	}
	if stats.FailedEvents != 1 {
		t.Fatalf("expected 1 failing, got %d", stats.FailedEvents)
	}
	if stats.DeadEvents != 1 {
		t.Fatalf("expected 1 dead, got %d", stats.DeadEvents)
	}
	if stats.Organizations != 2 {
		t.Fatalf("expected 2 organizations, got %d", stats.Organizations)
	}
	if stats.ActiveSubdomains != 1 {
		t.Fatalf("expected 1 verified subdomain, got %d", stats.ActiveSubdomains)
	}
	if stats.PendingInvitations != 1 {
		t.Fatalf("expected 1 outstanding invitation, got %d", stats.PendingInvitations)
	}
}

func TestResetProjectionsKeepsJournalAndSagas(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

	evt := appendTestEvent(t, store, "org-1", event.StreamTypeOrganization, event.TypeOrganizationCreated, now)
	seedOrganization(t, store, "org-1", now)
	if err := store.Link(context.Background(), "organization_contact", "org-1", "con-1"); err != nil {
		t.Fatalf("link: %v", err)
	}

	if err := store.ResetProjections(context.Background()); err != nil {
		t.Fatalf("reset projections: %v", err)
	}

	if _, err := store.GetOrganization(context.Background(), "org-1"); err == nil {
		t.Fatal("expected organization row to be gone")
	}
	if _, err := store.GetLink(context.Background(), "organization_contact", "org-1", "con-1"); err == nil {
		t.Fatal("expected junction row to be gone")
	}
	if _, err := store.GetEvent(context.Background(), evt.ID); err != nil {
		t.Fatalf("expected journal to survive reset: %v", err)
	}
}
