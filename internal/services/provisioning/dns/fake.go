package dns

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeRegistrar is an in-memory registrar for tests and local development.
// Records propagate after PropagateAfter verification attempts.
type FakeRegistrar struct {
	mu sync.Mutex
	// PropagateAfter is how many VerifyRecord calls a record needs before
	// it reports propagated. Zero means immediately.
	PropagateAfter int
	// CreateErr, VerifyErr, and DeleteErr force the next matching call to
	// fail, for exercising compensation paths.
	CreateErr error
	VerifyErr error
	DeleteErr error

	nextID  int
	records map[string]*fakeRecord
}

type fakeRecord struct {
	record  Record
	queries int
}

// NewFakeRegistrar creates an empty fake registrar.
func NewFakeRegistrar() *FakeRegistrar {
	return &FakeRegistrar{records: map[string]*fakeRecord{}}
}

// CreateRecord registers an in-memory record.
func (f *FakeRegistrar) CreateRecord(_ context.Context, subdomain string) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return Record{}, f.CreateErr
	}
	subdomain = strings.ToLower(strings.TrimSpace(subdomain))
	if subdomain == "" {
		return Record{}, fmt.Errorf("subdomain is required")
	}

	f.nextID++
	record := Record{
		ID:        fmt.Sprintf("rec-%d", f.nextID),
		Subdomain: subdomain,
		FQDN:      subdomain + ".careloop.test",
		Target:    "ingress.careloop.test",
	}
	f.records[record.ID] = &fakeRecord{record: record}
	return record, nil
}

// VerifyRecord reports propagation once enough queries have been made.
func (f *FakeRegistrar) VerifyRecord(_ context.Context, recordID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.VerifyErr != nil {
		return false, f.VerifyErr
	}
	entry, ok := f.records[recordID]
	if !ok {
		return false, fmt.Errorf("record %s does not exist", recordID)
	}
	entry.queries++
	return entry.queries > f.PropagateAfter, nil
}

// DeleteRecord removes the record; unknown records are a no-op.
func (f *FakeRegistrar) DeleteRecord(_ context.Context, recordID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	delete(f.records, recordID)
	return nil
}

// RecordCount reports how many records currently exist.
func (f *FakeRegistrar) RecordCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

var _ Registrar = (*FakeRegistrar)(nil)
