package app

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/careloop/careloop/internal/services/provisioning/dns"
	"github.com/careloop/careloop/internal/services/provisioning/domain/event"
	"github.com/careloop/careloop/internal/services/provisioning/domain/invite"
	"github.com/careloop/careloop/internal/services/provisioning/domain/saga"
	"github.com/careloop/careloop/internal/services/provisioning/notify"
	"github.com/careloop/careloop/internal/services/provisioning/processor"
	"github.com/careloop/careloop/internal/services/provisioning/storage/sqlite"
)

// harness wires a real sqlite store, the dispatch loop, the saga runner,
// and the service surface against in-memory fakes for the registrar and
// the invitation sender. The clock only moves when a test ticks it.
type harness struct {
	store     *sqlite.Store
	registrar *dns.FakeRegistrar
	sender    *notify.CaptureSender
	signer    *invite.TokenSigner
	runner    *Runner
	service   *Service
	now       time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	path := filepath.Join(t.TempDir(), "provisioning.sqlite")
	store, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})

	h := &harness{
		store: store,
		now:   time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}

	var sequence int
	nextID := func() (string, error) {
		sequence++
		return fmt.Sprintf("id-%04d", sequence), nil
	}

	dispatcher := processor.NewLoop(
		processor.New(store, h.clock, t.Logf),
		processor.LoopConfig{BatchSize: 32, MaxAttempts: 5},
	)
	h.registrar = dns.NewFakeRegistrar()
	h.sender = notify.NewCaptureSender()
	h.signer = invite.NewTokenSigner([]byte("test-secret"), h.clock)

	h.runner = NewRunner(store, h.registrar, h.sender, h.signer, dispatcher, RunnerConfig{
		DNSVerifyInterval:    time.Millisecond,
		DNSVerifyMaxAttempts: 4,
		DNSVerifyMaxDelay:    5 * time.Millisecond,
	})
	h.runner.now = h.clock
	h.runner.idGenerator = nextID
	h.runner.logf = t.Logf

	h.service = NewService(store, dispatcher, 5)
	h.service.now = h.clock
	h.service.idGenerator = nextID
	h.service.logf = t.Logf

	return h
}

func (h *harness) clock() time.Time {
	return h.now
}

// tick advances the harness clock, letting deferred work come due.
func (h *harness) tick(d time.Duration) {
	h.now = h.now.Add(d)
}

// bootstrap initiates the workflow and returns the saga and organization
// IDs. The initiating event is dispatched, so the saga record exists.
func (h *harness) bootstrap(t *testing.T, request saga.Request) BootstrapResult {
	t.Helper()

	result, err := h.service.InitiateBootstrap(context.Background(), request)
	if err != nil {
		t.Fatalf("initiate bootstrap: %v", err)
	}
	return result
}

// stepUntilSettled steps the saga, ticking the clock past any deferred DNS
// check, until the saga is terminal or a step reports an error.
func (h *harness) stepUntilSettled(t *testing.T, sagaID string) error {
	t.Helper()

	ctx := context.Background()
	for i := 0; i < 32; i++ {
		if err := h.runner.Step(ctx, sagaID); err != nil {
			return err
		}
		record, err := h.store.GetSaga(ctx, sagaID)
		if err != nil {
			t.Fatalf("get saga: %v", err)
		}
		if record.Terminal() {
			return nil
		}
		h.tick(h.runner.cfg.DNSVerifyMaxDelay)
	}
	t.Fatal("saga did not settle")
	return nil
}

// project appends one event and drains the journal so its projection is
// in place before the test continues.
func (h *harness) project(t *testing.T, streamType event.StreamType, streamID string, eventType event.Type, payload string) {
	t.Helper()

	ctx := context.Background()
	if _, err := h.store.AppendEvent(ctx, event.Event{
		StreamID:    streamID,
		StreamType:  streamType,
		Type:        eventType,
		PayloadJSON: []byte(payload),
		CreatedAt:   h.clock(),
	}); err != nil {
		t.Fatalf("append %s: %v", eventType, err)
	}
	if _, err := h.runner.dispatcher.Drain(ctx); err != nil {
		t.Fatalf("drain after %s: %v", eventType, err)
	}
}

func providerRequest() saga.Request {
	return saga.Request{
		Subdomain: "lakeside",
		OrgData: event.BootstrapOrgData{
			Name: "Lakeside Medical",
			Type: "provider",
		},
		Contacts: []event.BootstrapContact{
			{FirstName: "Ada", LastName: "Okafor", Email: "ada@lakeside.example", Type: "admin"},
			{FirstName: "Ben", LastName: "Carver", Email: "ben@lakeside.example", Type: "billing"},
			{FirstName: "Cleo", LastName: "Marsh", Email: "cleo@lakeside.example", Type: "clinical"},
		},
		Addresses: []event.BootstrapAddress{
			{Line1: "1 Shore Rd", City: "Duluth", State: "MN", PostalCode: "55802", Type: "physical"},
			{Line1: "PO Box 88", City: "Duluth", State: "MN", PostalCode: "55801", Type: "mailing"},
			{Line1: "2 Clinic Way", City: "Superior", State: "WI", PostalCode: "54880", Type: "physical"},
		},
		Phones: []event.BootstrapPhone{
			{Number: "+1-218-555-0100", Type: "office"},
			{Number: "+1-218-555-0101", Type: "fax"},
			{Number: "+1-218-555-0102", Type: "mobile"},
		},
	}
}

func partnerRequest() saga.Request {
	return saga.Request{
		OrgData: event.BootstrapOrgData{
			Name:        "Northwind Referrals",
			Type:        "partner",
			PartnerType: "referral",
		},
		Contacts: []event.BootstrapContact{
			{FirstName: "Sam", LastName: "Ibe", Email: "sam@northwind.example", Type: "admin"},
		},
		Addresses: []event.BootstrapAddress{
			{Line1: "400 Market St", City: "St Paul", State: "MN", PostalCode: "55101", Type: "mailing"},
			{Line1: "410 Market St", City: "St Paul", State: "MN", PostalCode: "55101", Type: "physical"},
		},
		Phones: []event.BootstrapPhone{
			{Number: "+1-651-555-0130", Type: "office"},
			{Number: "+1-651-555-0131", Type: "fax"},
		},
	}
}
