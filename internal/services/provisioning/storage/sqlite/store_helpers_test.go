package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/careloop/careloop/internal/services/provisioning/domain/event"
	"github.com/careloop/careloop/internal/services/provisioning/domain/org"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "provisioning.sqlite")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func appendTestEvent(t *testing.T, store *Store, streamID string, streamType event.StreamType, eventType event.Type, createdAt time.Time) event.Event {
	t.Helper()

	evt, err := store.AppendEvent(context.Background(), event.Event{
		StreamID:   streamID,
		StreamType: streamType,
		Type:       eventType,
		CreatedAt:  createdAt,
	})
	if err != nil {
		t.Fatalf("append event: %v", err)
	}
	return evt
}

func seedOrganization(t *testing.T, store *Store, orgID string, now time.Time) {
	t.Helper()

	inserted, err := store.InsertOrganization(context.Background(), org.Organization{
		ID:        orgID,
		Name:      "Org " + orgID,
		Type:      org.TypeInternal,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("insert organization: %v", err)
	}
	if !inserted {
		t.Fatalf("expected organization %s to be inserted", orgID)
	}
}
