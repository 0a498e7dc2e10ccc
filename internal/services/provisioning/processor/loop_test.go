package processor

import (
	"context"
	"testing"
	"time"

	"github.com/careloop/careloop/internal/services/provisioning/domain/event"
)

func TestRunOnceContinuesPastFailures(t *testing.T) {
	store := openTestStore(t)
	p := newTestProcessor(t, store)
	loop := NewLoop(p, LoopConfig{MaxAttempts: 2, BatchSize: 16})

	appendEvent(t, store, "org-1", event.StreamTypeOrganization, event.TypeOrganizationCreated,
		event.OrganizationCreatedPayload{OrganizationID: "org-1", Name: "Clinic One", Type: "internal"})
	// No projection row exists for org-404, so its update fails.
	appendEvent(t, store, "org-404", event.StreamTypeOrganization, event.TypeOrganizationUpdated,
		event.OrganizationUpdatedPayload{OrganizationID: "org-404", Fields: map[string]any{"name": "X"}})
	appendEvent(t, store, "org-2", event.StreamTypeOrganization, event.TypeOrganizationCreated,
		event.OrganizationCreatedPayload{OrganizationID: "org-2", Name: "Clinic Two", Type: "internal"})

	processed, err := loop.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected batch error from failing event")
	}
	if processed != 2 {
		t.Fatalf("expected 2 events processed despite failure, got %d", processed)
	}

	if _, err := store.GetOrganization(context.Background(), "org-1"); err != nil {
		t.Fatalf("expected org-1 projected: %v", err)
	}
	if _, err := store.GetOrganization(context.Background(), "org-2"); err != nil {
		t.Fatalf("expected org-2 projected: %v", err)
	}
}

func TestLoopStopsRetryingDeadEvents(t *testing.T) {
	store := openTestStore(t)
	p := newTestProcessor(t, store)
	loop := NewLoop(p, LoopConfig{MaxAttempts: 2, BatchSize: 16})

	evt := appendEvent(t, store, "org-404", event.StreamTypeOrganization, event.TypeOrganizationUpdated,
		event.OrganizationUpdatedPayload{OrganizationID: "org-404", Fields: map[string]any{"name": "X"}})

	for i := 0; i < 2; i++ {
		if _, err := loop.RunOnce(context.Background()); err == nil {
			t.Fatalf("expected failure on attempt %d", i+1)
		}
	}

	// Retries exhausted: the event leaves the polling window.
	processed, err := loop.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("expected empty batch, got %v", err)
	}
	if processed != 0 {
		t.Fatalf("expected no events processed, got %d", processed)
	}

	dead, err := store.ListDeadEvents(context.Background(), 2, 10)
	if err != nil {
		t.Fatalf("list dead events: %v", err)
	}
	if len(dead) != 1 || dead[0].ID != evt.ID {
		t.Fatalf("expected dead event %s, got %v", evt.ID, dead)
	}
}

func TestDrainProcessesCascades(t *testing.T) {
	store := openTestStore(t)
	p := newTestProcessor(t, store)
	loop := NewLoop(p, LoopConfig{MaxAttempts: 5, BatchSize: 2})

	seedProjectedOrganization(t, p, store, "org-1", "Clinic One")
	seedProjectedContact(t, p, store, "con-1", "org-1")
	appendEvent(t, store, "org-1", event.StreamTypeOrganization, event.TypeOrganizationDeleted,
		event.OrganizationDeletedPayload{OrganizationID: "org-1"})

	processed, err := loop.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	// The delete plus the cascade contact.deleted it appends.
	if processed != 2 {
		t.Fatalf("expected 2 events drained, got %d", processed)
	}

	contact, err := store.GetContact(context.Background(), "con-1")
	if err != nil {
		t.Fatalf("get contact: %v", err)
	}
	if !contact.Deleted() {
		t.Fatal("expected cascade to drain")
	}
}

func TestLoopDefaults(t *testing.T) {
	cfg := LoopConfig{}.normalized()
	if cfg.PollInterval != 500*time.Millisecond {
		t.Fatalf("expected default poll interval, got %v", cfg.PollInterval)
	}
	if cfg.BatchSize != 64 || cfg.MaxAttempts != 5 {
		t.Fatalf("expected default batch sizing, got %+v", cfg)
	}
	if cfg.RetryBackoff != time.Second || cfg.RetryMaxDelay != 30*time.Second {
		t.Fatalf("expected default retry delays, got %+v", cfg)
	}
}

func TestNextDelayBacksOff(t *testing.T) {
	delay := nextDelay(500*time.Millisecond, time.Second, 30*time.Second)
	if delay != 2*time.Second {
		t.Fatalf("expected 2s, got %v", delay)
	}
	delay = nextDelay(20*time.Second, time.Second, 30*time.Second)
	if delay != 30*time.Second {
		t.Fatalf("expected cap at 30s, got %v", delay)
	}
}
