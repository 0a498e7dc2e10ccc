package processor

import (
	"context"
	"testing"
	"time"

	"github.com/careloop/careloop/internal/services/provisioning/domain/event"
	"github.com/careloop/careloop/internal/services/provisioning/domain/invite"
)

func TestOrganizationDeleteCascades(t *testing.T) {
	store := openTestStore(t)
	p := newTestProcessor(t, store)

	seedProjectedOrganization(t, p, store, "org-1", "Clinic One")
	seedProjectedContact(t, p, store, "con-1", "org-1")

	phoneEvt := appendEvent(t, store, "ph-1", event.StreamTypePhone, event.TypePhoneCreated,
		event.PhoneCreatedPayload{PhoneID: "ph-1", OrganizationID: "org-1", Number: "+15550100", Type: "main"})
	if err := p.Dispatch(context.Background(), phoneEvt); err != nil {
		t.Fatalf("dispatch phone created: %v", err)
	}
	for _, link := range []struct {
		eventType event.Type
		entity2   string
	}{
		{eventType: event.TypeOrganizationContactLinked, entity2: "con-1"},
		{eventType: event.TypeOrganizationPhoneLinked, entity2: "ph-1"},
	} {
		evt := appendEvent(t, store, "org-1", event.StreamTypeOrganization, link.eventType,
			event.LinkPayload{Entity1ID: "org-1", Entity2ID: link.entity2})
		if err := p.Dispatch(context.Background(), evt); err != nil {
			t.Fatalf("dispatch %s: %v", link.eventType, err)
		}
	}

	deleted := appendEvent(t, store, "org-1", event.StreamTypeOrganization, event.TypeOrganizationDeleted,
		event.OrganizationDeletedPayload{OrganizationID: "org-1", Reason: "offboarded"})
	if err := p.Dispatch(context.Background(), deleted); err != nil {
		t.Fatalf("dispatch organization deleted: %v", err)
	}
	// The cascade rides the journal; drain it.
	dispatchAll(t, p, store)

	organization, err := store.GetOrganization(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("get organization: %v", err)
	}
	if !organization.Deleted() {
		t.Fatal("expected organization soft-deleted")
	}
	contact, err := store.GetContact(context.Background(), "con-1")
	if err != nil {
		t.Fatalf("get contact: %v", err)
	}
	if !contact.Deleted() {
		t.Fatal("expected contact soft-deleted by cascade")
	}
	phone, err := store.GetPhone(context.Background(), "ph-1")
	if err != nil {
		t.Fatalf("get phone: %v", err)
	}
	if !phone.Deleted() {
		t.Fatal("expected phone soft-deleted by cascade")
	}
	for _, relation := range []struct{ relation, entity2 string }{
		{relation: "organization_contact", entity2: "con-1"},
		{relation: "organization_phone", entity2: "ph-1"},
	} {
		record, err := store.GetLink(context.Background(), relation.relation, "org-1", relation.entity2)
		if err != nil {
			t.Fatalf("get link %s: %v", relation.relation, err)
		}
		if record.DeletedAt == nil {
			t.Fatalf("expected %s link soft-deleted", relation.relation)
		}
	}

	// The cascade events carry the causing event's id.
	contactStream, err := store.ListStreamEvents(context.Background(), "con-1", event.StreamTypeContact)
	if err != nil {
		t.Fatalf("list contact stream: %v", err)
	}
	if len(contactStream) != 2 || contactStream[1].Type != event.TypeContactDeleted {
		t.Fatalf("expected cascade contact.deleted event, got %v", contactStream)
	}
}

func TestOrganizationDeleteCascadeSkippedOnReplay(t *testing.T) {
	store := openTestStore(t)
	p := newTestProcessor(t, store)

	seedProjectedOrganization(t, p, store, "org-1", "Clinic One")
	seedProjectedContact(t, p, store, "con-1", "org-1")

	all, err := store.ListAllEvents(context.Background())
	if err != nil {
		t.Fatalf("list all events: %v", err)
	}
	journalSize := len(all)

	deleted := appendEvent(t, store, "org-1", event.StreamTypeOrganization, event.TypeOrganizationDeleted,
		event.OrganizationDeletedPayload{OrganizationID: "org-1"})
	replayer := NewReplay(store, nil, t.Logf)
	if err := replayer.Apply(context.Background(), deleted); err != nil {
		t.Fatalf("replay apply: %v", err)
	}

	all, err = store.ListAllEvents(context.Background())
	if err != nil {
		t.Fatalf("list all events: %v", err)
	}
	if len(all) != journalSize+1 {
		t.Fatalf("expected no cascade events appended during replay, journal grew from %d to %d", journalSize+1, len(all))
	}
}

func TestInvitationEventsProject(t *testing.T) {
	store := openTestStore(t)
	p := newTestProcessor(t, store)

	expiresAt := time.Date(2026, 2, 17, 9, 0, 0, 0, time.UTC)
	created := appendEvent(t, store, "org-1", event.StreamTypeOrganization, event.TypeInvitationCreated,
		event.InvitationCreatedPayload{
			InvitationID:   "inv-1",
			OrganizationID: "org-1",
			Email:          "admin@clinic.example",
			Role:           "admin",
			ExpiresAt:      expiresAt.Format(time.RFC3339),
		})
	if err := p.Dispatch(context.Background(), created); err != nil {
		t.Fatalf("dispatch invitation created: %v", err)
	}

	record, err := store.GetInvitation(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("get invitation: %v", err)
	}
	if record.Status != invite.StatusPending {
		t.Fatalf("expected pending invitation, got %v", record.Status)
	}
	if !record.ExpiresAt.Equal(expiresAt) {
		t.Fatalf("expected expiry %v, got %v", expiresAt, record.ExpiresAt)
	}

	revoked := appendEvent(t, store, "org-1", event.StreamTypeOrganization, event.TypeInvitationRevoked,
		event.InvitationRevokedPayload{InvitationID: "inv-1", Reason: "compensated"})
	if err := p.Dispatch(context.Background(), revoked); err != nil {
		t.Fatalf("dispatch invitation revoked: %v", err)
	}
	record, err = store.GetInvitation(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("get invitation: %v", err)
	}
	if record.Status != invite.StatusRevoked {
		t.Fatalf("expected revoked invitation, got %v", record.Status)
	}
}

func TestEntityUpdateMergesWhitelistedFields(t *testing.T) {
	store := openTestStore(t)
	p := newTestProcessor(t, store)

	seedProjectedOrganization(t, p, store, "org-1", "Clinic One")

	updated := appendEvent(t, store, "org-1", event.StreamTypeOrganization, event.TypeOrganizationUpdated,
		event.OrganizationUpdatedPayload{OrganizationID: "org-1", Fields: map[string]any{
			"name":      "Clinic Renamed",
			"subdomain": "hijack",
		}})
	if err := p.Dispatch(context.Background(), updated); err != nil {
		t.Fatalf("dispatch organization updated: %v", err)
	}

	record, err := store.GetOrganization(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("get organization: %v", err)
	}
	if record.Name != "Clinic Renamed" {
		t.Fatalf("expected renamed organization, got %q", record.Name)
	}
	if record.Subdomain != "" {
		t.Fatalf("expected subdomain untouched, got %q", record.Subdomain)
	}
}

func TestSoftDeleteIsMonotonic(t *testing.T) {
	store := openTestStore(t)
	p := newTestProcessor(t, store)

	seedProjectedContact(t, p, store, "con-1", "org-1")

	first := appendEvent(t, store, "con-1", event.StreamTypeContact, event.TypeContactDeleted,
		event.ContactDeletedPayload{ContactID: "con-1"})
	if err := p.Dispatch(context.Background(), first); err != nil {
		t.Fatalf("dispatch contact deleted: %v", err)
	}
	record, err := store.GetContact(context.Background(), "con-1")
	if err != nil {
		t.Fatalf("get contact: %v", err)
	}
	tombstone := record.DeletedAt

	second := appendEvent(t, store, "con-1", event.StreamTypeContact, event.TypeContactDeleted,
		event.ContactDeletedPayload{ContactID: "con-1"})
	if err := p.Dispatch(context.Background(), second); err != nil {
		t.Fatalf("dispatch repeat delete: %v", err)
	}
	record, err = store.GetContact(context.Background(), "con-1")
	if err != nil {
		t.Fatalf("get contact: %v", err)
	}
	if record.DeletedAt == nil || !record.DeletedAt.Equal(*tombstone) {
		t.Fatalf("expected original tombstone preserved, got %v", record.DeletedAt)
	}
}
