package dns

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPRegistrarCreateRecord(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/records" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["subdomain"] != "lakeside" {
			t.Fatalf("expected lakeside, got %q", body["subdomain"])
		}
		_ = json.NewEncoder(w).Encode(Record{
			ID:        "rec-1",
			Subdomain: "lakeside",
			FQDN:      "lakeside.careloop.example",
			Target:    "ingress.careloop.example",
		})
	}))
	defer server.Close()

	registrar, err := NewHTTPRegistrar(server.URL, "secret-token", server.Client())
	if err != nil {
		t.Fatalf("new registrar: %v", err)
	}

	record, err := registrar.CreateRecord(context.Background(), "  Lakeside  ")
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	if record.ID != "rec-1" || record.FQDN != "lakeside.careloop.example" {
		t.Fatalf("unexpected record %+v", record)
	}
	if gotAuth != "Bearer secret-token" {
		t.Fatalf("expected bearer token, got %q", gotAuth)
	}
}

func TestHTTPRegistrarVerifyRecord(t *testing.T) {
	propagated := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/records/rec-1/status" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"propagated": propagated})
	}))
	defer server.Close()

	registrar, err := NewHTTPRegistrar(server.URL, "", server.Client())
	if err != nil {
		t.Fatalf("new registrar: %v", err)
	}

	ok, err := registrar.VerifyRecord(context.Background(), "rec-1")
	if err != nil {
		t.Fatalf("verify record: %v", err)
	}
	if ok {
		t.Fatal("expected unpropagated record")
	}

	propagated = true
	ok, err = registrar.VerifyRecord(context.Background(), "rec-1")
	if err != nil {
		t.Fatalf("verify record: %v", err)
	}
	if !ok {
		t.Fatal("expected propagated record")
	}
}

func TestHTTPRegistrarDeleteRecordMissingIsNoOp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Fatalf("unexpected method %s", r.Method)
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	registrar, err := NewHTTPRegistrar(server.URL, "", server.Client())
	if err != nil {
		t.Fatalf("new registrar: %v", err)
	}
	if err := registrar.DeleteRecord(context.Background(), "rec-404"); err != nil {
		t.Fatalf("expected missing record delete to succeed, got %v", err)
	}
}

func TestHTTPRegistrarSurfacesErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	}))
	defer server.Close()

	registrar, err := NewHTTPRegistrar(server.URL, "", server.Client())
	if err != nil {
		t.Fatalf("new registrar: %v", err)
	}
	if _, err := registrar.CreateRecord(context.Background(), "lakeside"); err == nil {
		t.Fatal("expected error for 502 response")
	}
	if err := registrar.DeleteRecord(context.Background(), "rec-1"); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestFakeRegistrarPropagation(t *testing.T) {
	fake := NewFakeRegistrar()
	fake.PropagateAfter = 2

	record, err := fake.CreateRecord(context.Background(), "lakeside")
	if err != nil {
		t.Fatalf("create record: %v", err)
	}

	for i := 0; i < 2; i++ {
		ok, err := fake.VerifyRecord(context.Background(), record.ID)
		if err != nil {
			t.Fatalf("verify record: %v", err)
		}
		if ok {
			t.Fatalf("expected record unpropagated on query %d", i+1)
		}
	}
	ok, err := fake.VerifyRecord(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("verify record: %v", err)
	}
	if !ok {
		t.Fatal("expected record propagated after threshold")
	}

	if err := fake.DeleteRecord(context.Background(), record.ID); err != nil {
		t.Fatalf("delete record: %v", err)
	}
	if fake.RecordCount() != 0 {
		t.Fatalf("expected empty registrar, got %d records", fake.RecordCount())
	}
	if err := fake.DeleteRecord(context.Background(), record.ID); err != nil {
		t.Fatalf("expected repeat delete to be a no-op, got %v", err)
	}
}
