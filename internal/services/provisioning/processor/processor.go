// Package processor applies journal events to projection tables.
//
// Processors are idempotent: replaying the full journal against empty
// projections converges to the same rows, and reapplying a single event
// never double-applies.
package processor

import (
	"context"
	"log"
	"time"

	"github.com/careloop/careloop/internal/services/provisioning/domain/event"
	"github.com/careloop/careloop/internal/services/provisioning/storage"
)

// Processor routes journal events to entity and junction appliers.
type Processor struct {
	store storage.Store
	now   func() time.Time
	logf  func(format string, args ...any)
	// replay suppresses cascade emission: during a full-journal replay the
	// original cascade events are already in the journal and re-appending
	// them would duplicate history.
	replay bool
}

// New creates a processor over the given store.
func New(store storage.Store, now func() time.Time, logf func(format string, args ...any)) *Processor {
	if now == nil {
		now = time.Now
	}
	if logf == nil {
		logf = log.Printf
	}
	return &Processor{store: store, now: now, logf: logf}
}

// NewReplay creates a processor that applies events without appending
// cascade events, for rebuilding projections from the existing journal.
func NewReplay(store storage.Store, now func() time.Time, logf func(format string, args ...any)) *Processor {
	p := New(store, now, logf)
	p.replay = true
	return p
}

// Dispatch applies one event to its projection and stamps it processed.
// Already-processed events are never redispatched. Unknown stream types are
// logged and marked processed as a no-op. Application failures are recorded
// on the event so the loop can retry it.
func (p *Processor) Dispatch(ctx context.Context, evt event.Event) error {
	if evt.Processed() {
		return nil
	}

	applyErr := p.apply(ctx, evt)
	if applyErr != nil {
		if err := p.store.RecordProcessingError(ctx, evt.ID, applyErr.Error()); err != nil {
			p.logf("record processing error for event %s: %v", evt.ID, err)
		}
		return applyErr
	}
	return p.store.MarkProcessed(ctx, evt.ID, p.now().UTC())
}

// Apply runs the projection side effects for one event without touching
// its processed marker. Replay uses this to rebuild projections from an
// already-processed journal.
func (p *Processor) Apply(ctx context.Context, evt event.Event) error {
	return p.apply(ctx, evt)
}

func (p *Processor) apply(ctx context.Context, evt event.Event) error {
	if evt.Type.IsJunction() {
		return p.applyJunction(ctx, evt)
	}

	switch evt.StreamType {
	case event.StreamTypeOrganization:
		return p.applyOrganizationEvent(ctx, evt)
	case event.StreamTypeContact:
		return p.applyContactEvent(ctx, evt)
	case event.StreamTypeAddress:
		return p.applyAddressEvent(ctx, evt)
	case event.StreamTypePhone:
		return p.applyPhoneEvent(ctx, evt)
	default:
		p.logf("unrecognized stream type %q for event %s, marking processed", evt.StreamType, evt.ID)
		return nil
	}
}
