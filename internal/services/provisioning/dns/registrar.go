// Package dns defines the registrar boundary for tenant subdomain records.
package dns

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/careloop/careloop/internal/platform/timeouts"
)

// Record is one registrar DNS record for a tenant subdomain.
type Record struct {
	ID        string `json:"id"`
	Subdomain string `json:"subdomain"`
	FQDN      string `json:"fqdn"`
	Target    string `json:"target"`
}

// Registrar manages tenant subdomain records at the DNS provider.
type Registrar interface {
	// CreateRecord provisions a CNAME for the subdomain and returns the
	// provider's record.
	CreateRecord(ctx context.Context, subdomain string) (Record, error)
	// VerifyRecord reports whether the record has propagated.
	VerifyRecord(ctx context.Context, recordID string) (bool, error)
	// DeleteRecord removes the record. Deleting an unknown record is a
	// no-op so compensation can run more than once.
	DeleteRecord(ctx context.Context, recordID string) error
}

// HTTPRegistrar talks to a registrar's JSON API.
type HTTPRegistrar struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPRegistrar creates a registrar client for the given API base URL.
func NewHTTPRegistrar(baseURL, token string, client *http.Client) (*HTTPRegistrar, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("registrar base url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: timeouts.RegistrarRequest}
	}
	return &HTTPRegistrar{baseURL: baseURL, token: token, client: client}, nil
}

// CreateRecord provisions a record via POST /records.
func (r *HTTPRegistrar) CreateRecord(ctx context.Context, subdomain string) (Record, error) {
	subdomain = strings.ToLower(strings.TrimSpace(subdomain))
	if subdomain == "" {
		return Record{}, fmt.Errorf("subdomain is required")
	}

	body, err := json.Marshal(map[string]string{"subdomain": subdomain})
	if err != nil {
		return Record{}, fmt.Errorf("encode create record request: %w", err)
	}
	var record Record
	if err := r.do(ctx, http.MethodPost, "/records", body, &record); err != nil {
		return Record{}, fmt.Errorf("create dns record: %w", err)
	}
	if record.ID == "" {
		return Record{}, fmt.Errorf("registrar returned record without id")
	}
	return record, nil
}

// VerifyRecord checks propagation via GET /records/{id}/status.
func (r *HTTPRegistrar) VerifyRecord(ctx context.Context, recordID string) (bool, error) {
	recordID = strings.TrimSpace(recordID)
	if recordID == "" {
		return false, fmt.Errorf("record id is required")
	}

	var status struct {
		Propagated bool `json:"propagated"`
	}
	if err := r.do(ctx, http.MethodGet, "/records/"+recordID+"/status", nil, &status); err != nil {
		return false, fmt.Errorf("verify dns record: %w", err)
	}
	return status.Propagated, nil
}

// DeleteRecord removes a record via DELETE /records/{id}. A 404 is treated
// as success.
func (r *HTTPRegistrar) DeleteRecord(ctx context.Context, recordID string) error {
	recordID = strings.TrimSpace(recordID)
	if recordID == "" {
		return fmt.Errorf("record id is required")
	}

	err := r.do(ctx, http.MethodDelete, "/records/"+recordID, nil, nil)
	if err != nil && strings.Contains(err.Error(), "status 404") {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete dns record: %w", err)
	}
	return nil
}

func (r *HTTPRegistrar) do(ctx context.Context, method, path string, body []byte, target any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build registrar request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("registrar returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode registrar response: %w", err)
	}
	return nil
}

var _ Registrar = (*HTTPRegistrar)(nil)
