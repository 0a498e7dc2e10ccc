package app

import (
	"context"
	"fmt"
	"log"

	"github.com/careloop/careloop/internal/services/provisioning/processor"
	"github.com/careloop/careloop/internal/services/provisioning/storage"
)

type projectionResetter interface {
	ResetProjections(ctx context.Context) error
}

// ReplayProjections clears every projection table and reapplies the full
// journal in order. The journal itself is untouched; replay never appends.
// Returns how many events were applied.
func ReplayProjections(ctx context.Context, store storage.Store, logf func(format string, args ...any)) (int, error) {
	if logf == nil {
		logf = log.Printf
	}
	resetter, ok := store.(projectionResetter)
	if !ok {
		return 0, fmt.Errorf("store does not support projection reset")
	}
	if err := resetter.ResetProjections(ctx); err != nil {
		return 0, err
	}

	events, err := store.ListAllEvents(ctx)
	if err != nil {
		return 0, err
	}

	replayer := processor.NewReplay(store, nil, logf)
	var applied int
	for _, evt := range events {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		// Events the live run never applied (still pending or dead) are
		// skipped so the rebuild converges to the live projection state.
		if !evt.Processed() {
			continue
		}
		if err := replayer.Apply(ctx, evt); err != nil {
			// Keep going so one poison event cannot block the rebuild.
			logf("replay event %s (%s): %v", evt.ID, evt.Type, err)
			continue
		}
		applied++
	}
	return applied, nil
}
