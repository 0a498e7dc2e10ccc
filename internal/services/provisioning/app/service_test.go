package app

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/careloop/careloop/internal/platform/errors"
	"github.com/careloop/careloop/internal/services/provisioning/domain/event"
	"github.com/careloop/careloop/internal/services/provisioning/domain/saga"
	"github.com/careloop/careloop/internal/services/provisioning/storage"
)

func TestInitiateBootstrapCreatesSaga(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.service.InitiateBootstrap(ctx, partnerRequest())
	if err != nil {
		t.Fatalf("initiate bootstrap: %v", err)
	}
	if result.SagaID == "" || result.OrganizationID == "" {
		t.Fatalf("result = %+v, want both ids", result)
	}

	record, err := h.service.GetBootstrap(ctx, result.SagaID)
	if err != nil {
		t.Fatalf("get bootstrap: %v", err)
	}
	if record.State != saga.StateCreated {
		t.Errorf("state = %s, want created", saga.StateLabel(record.State))
	}
	if record.OrganizationID != result.OrganizationID {
		t.Errorf("saga organization = %q, want %q", record.OrganizationID, result.OrganizationID)
	}
	if !record.DNSSkipped {
		t.Error("expected DNS to be skipped for a referral partner")
	}

	events, err := h.store.ListStreamEvents(ctx, result.OrganizationID, event.StreamTypeOrganization)
	if err != nil {
		t.Fatalf("list stream events: %v", err)
	}
	if len(events) != 1 || events[0].Type != event.TypeBootstrapInitiated {
		t.Fatalf("stream events = %+v, want one bootstrap.initiated", events)
	}
}

func TestInitiateBootstrapValidatesRequest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		request saga.Request
	}{
		{
			name:    "empty name",
			request: saga.Request{OrgData: event.BootstrapOrgData{Type: "provider"}, Subdomain: "acme"},
		},
		{
			name:    "provider without subdomain",
			request: saga.Request{OrgData: event.BootstrapOrgData{Name: "Acme Health", Type: "provider"}},
		},
		{
			name:    "referral partner with subdomain",
			request: saga.Request{OrgData: event.BootstrapOrgData{Name: "Acme Referrals", Type: "partner", PartnerType: "referral"}, Subdomain: "acme"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := h.service.InitiateBootstrap(ctx, tc.request); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}

	events, err := h.store.ListAllEvents(ctx)
	if err != nil {
		t.Fatalf("list all events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("journal has %d events after rejected requests, want 0", len(events))
	}
}

func TestCancelBootstrap(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.service.CancelBootstrap(ctx, "saga-missing")
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeSagaNotFound {
		t.Fatalf("cancel missing saga: %v, want code %s", err, apperrors.CodeSagaNotFound)
	}

	result := h.bootstrap(t, partnerRequest())
	if err := h.service.CancelBootstrap(ctx, result.SagaID); err != nil {
		t.Fatalf("cancel pending saga: %v", err)
	}
	record, err := h.store.GetSaga(ctx, result.SagaID)
	if err != nil {
		t.Fatalf("get saga: %v", err)
	}
	if !record.CancelRequested {
		t.Error("expected cancel_requested to be set")
	}

	record.State = saga.StateActivated
	if err := h.store.UpdateSaga(ctx, record); err != nil {
		t.Fatalf("update saga: %v", err)
	}
	err = h.service.CancelBootstrap(ctx, result.SagaID)
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeSagaInvalidTransition {
		t.Fatalf("cancel terminal saga: %v, want code %s", err, apperrors.CodeSagaInvalidTransition)
	}
}

func TestUpdateOrganizationAppendsMergePatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.project(t, event.StreamTypeOrganization, "org-1", event.TypeOrganizationCreated,
		`{"organization_id":"org-1","name":"Lakeside Medical","type":"provider","subdomain":"lakeside","subdomain_status":"pending"}`)

	if err := h.service.UpdateOrganization(ctx, "org-1", map[string]any{"name": "Lakeside Health"}); err != nil {
		t.Fatalf("update organization: %v", err)
	}
	organization, err := h.service.GetOrganization(ctx, "org-1")
	if err != nil {
		t.Fatalf("get organization: %v", err)
	}
	if organization.Name != "Lakeside Health" {
		t.Errorf("name = %q, want Lakeside Health", organization.Name)
	}

	before, err := h.store.ListAllEvents(ctx)
	if err != nil {
		t.Fatalf("list all events: %v", err)
	}
	if err := h.service.UpdateOrganization(ctx, "org-1", nil); err != nil {
		t.Fatalf("empty update: %v", err)
	}
	after, err := h.store.ListAllEvents(ctx)
	if err != nil {
		t.Fatalf("list all events: %v", err)
	}
	if len(after) != len(before) {
		t.Errorf("empty update appended %d events", len(after)-len(before))
	}

	if err := h.service.UpdateOrganization(ctx, "org-404", map[string]any{"name": "x"}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("update missing organization: %v, want not found", err)
	}
}

func TestDeleteOrganizationCascades(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.project(t, event.StreamTypeOrganization, "org-1", event.TypeOrganizationCreated,
		`{"organization_id":"org-1","name":"Lakeside Medical","type":"provider","subdomain":"lakeside","subdomain_status":"pending"}`)
	h.project(t, event.StreamTypeContact, "con-1", event.TypeContactCreated,
		`{"contact_id":"con-1","organization_id":"org-1","first_name":"Ada","last_name":"Okafor","email":"ada@lakeside.example","type":"admin"}`)
	h.project(t, event.StreamTypeAddress, "adr-1", event.TypeAddressCreated,
		`{"address_id":"adr-1","organization_id":"org-1","line1":"200 Lakeside Dr","type":"physical"}`)
	h.project(t, event.StreamTypeOrganization, "org-1", event.TypeOrganizationContactLinked,
		`{"entity1_id":"org-1","entity2_id":"con-1"}`)
	h.project(t, event.StreamTypeContact, "con-1", event.TypeContactAddressLinked,
		`{"entity1_id":"con-1","entity2_id":"adr-1"}`)

	if err := h.service.DeleteOrganization(ctx, "org-1", "offboarded"); err != nil {
		t.Fatalf("delete organization: %v", err)
	}

	organization, err := h.store.GetOrganization(ctx, "org-1")
	if err != nil {
		t.Fatalf("get organization: %v", err)
	}
	if organization.DeletedAt == nil {
		t.Error("expected the organization to be soft-deleted")
	}
	contacts, err := h.store.ListContactsByOrganization(ctx, "org-1")
	if err != nil {
		t.Fatalf("list contacts: %v", err)
	}
	if len(contacts) != 0 {
		t.Errorf("active contacts = %d, want 0", len(contacts))
	}
	link, err := h.store.GetLink(ctx, event.TypeOrganizationContactLinked.Relation(), "org-1", "con-1")
	if err != nil {
		t.Fatalf("get link: %v", err)
	}
	if link.DeletedAt == nil {
		t.Error("expected the link to be tombstoned")
	}
	// The contact_address junction sits between two children of the deleted
	// organization; the cascade must tombstone it as well.
	link, err = h.store.GetLink(ctx, event.TypeContactAddressLinked.Relation(), "con-1", "adr-1")
	if err != nil {
		t.Fatalf("get contact address link: %v", err)
	}
	if link.DeletedAt == nil {
		t.Error("expected the contact address link to be tombstoned")
	}

	if err := h.service.DeleteOrganization(ctx, "org-404", "offboarded"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("delete missing organization: %v, want not found", err)
	}
}

func TestLinkEntities(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.project(t, event.StreamTypeOrganization, "org-1", event.TypeOrganizationCreated,
		`{"organization_id":"org-1","name":"Lakeside Medical","type":"provider","subdomain":"lakeside","subdomain_status":"pending"}`)
	h.project(t, event.StreamTypeContact, "con-1", event.TypeContactCreated,
		`{"contact_id":"con-1","organization_id":"org-1","first_name":"Ada","last_name":"Okafor","type":"admin"}`)
	h.project(t, event.StreamTypeAddress, "adr-1", event.TypeAddressCreated,
		`{"address_id":"adr-1","organization_id":"org-1","line1":"200 Lakeside Dr","type":"physical"}`)

	err := h.service.LinkEntities(ctx, event.TypeOrganizationCreated, "org-1", "con-1")
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeJunctionUnknownRelation {
		t.Fatalf("link with non-junction type: %v, want code %s", err, apperrors.CodeJunctionUnknownRelation)
	}

	if err := h.service.LinkEntities(ctx, event.TypeOrganizationContactLinked, "org-1", "con-1"); err != nil {
		t.Fatalf("link entities: %v", err)
	}
	link, err := h.store.GetLink(ctx, event.TypeOrganizationContactLinked.Relation(), "org-1", "con-1")
	if err != nil {
		t.Fatalf("get link: %v", err)
	}
	if link.DeletedAt != nil {
		t.Error("expected an active link")
	}

	// A contact_address link rides the contact stream, not the organization's.
	if err := h.service.LinkEntities(ctx, event.TypeContactAddressLinked, "con-1", "adr-1"); err != nil {
		t.Fatalf("link contact address: %v", err)
	}
	events, err := h.store.ListStreamEvents(ctx, "con-1", event.StreamTypeContact)
	if err != nil {
		t.Fatalf("list contact stream events: %v", err)
	}
	found := false
	for _, evt := range events {
		if evt.Type == event.TypeContactAddressLinked {
			found = true
		}
	}
	if !found {
		t.Error("expected the link event on the contact stream")
	}
	link, err = h.store.GetLink(ctx, event.TypeContactAddressLinked.Relation(), "con-1", "adr-1")
	if err != nil {
		t.Fatalf("get contact address link: %v", err)
	}
	if link.DeletedAt != nil {
		t.Error("expected an active contact address link")
	}
}

func TestStatisticsReflectWorkflowResults(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result := h.bootstrap(t, providerRequest())
	if err := h.runner.Step(ctx, result.SagaID); err != nil {
		t.Fatalf("step saga: %v", err)
	}

	stats, err := h.service.Statistics(ctx)
	if err != nil {
		t.Fatalf("collect statistics: %v", err)
	}
	if stats.Organizations != 1 {
		t.Errorf("organizations = %d, want 1", stats.Organizations)
	}
	if stats.ActiveSubdomains != 1 {
		t.Errorf("active subdomains = %d, want 1", stats.ActiveSubdomains)
	}
	if stats.TotalEvents == 0 || stats.ProcessedEvents != stats.TotalEvents {
		t.Errorf("events = %d processed of %d, want a fully drained journal",
			stats.ProcessedEvents, stats.TotalEvents)
	}
	if stats.DeadEvents != 0 {
		t.Errorf("dead events = %d, want 0", stats.DeadEvents)
	}
}
