package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alfredjeanlab/provenance/internal/ledger"
	"github.com/alfredjeanlab/provenance/internal/model"
)

// HTTPClient implements LedgerClient using the provenance HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

func (c *HTTPClient) RecordChange(ctx context.Context, ch *ledger.Change) (*ledger.Receipt, error) {
	var receipt ledger.Receipt
	if err := c.doJSON(ctx, http.MethodPost, "/v1/changes", ch, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *HTTPClient) ListEvents(ctx context.Context, entityType string, recordID int64, from, to time.Time) (*EventList, error) {
	path := recordPath(entityType, recordID, "events") + windowQuery(from, to)
	var list EventList
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *HTTPClient) Rehydrate(ctx context.Context, entityType string, recordID int64, at time.Time) (*RehydratedRecord, error) {
	path := recordPath(entityType, recordID, "at")
	if !at.IsZero() {
		q := url.Values{}
		q.Set("time", at.Format(time.RFC3339Nano))
		path += "?" + q.Encode()
	}
	var rec RehydratedRecord
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *HTTPClient) ListDigests(ctx context.Context, entityType string, recordID int64, from, to time.Time) (*DigestList, error) {
	path := recordPath(entityType, recordID, "digests") + windowQuery(from, to)
	var list DigestList
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *HTTPClient) TamperCheck(ctx context.Context, entityType string, recordID int64, live model.State) (*model.TamperReport, error) {
	body := map[string]any{"live_state": live}
	var report model.TamperReport
	if err := c.doJSON(ctx, http.MethodPost, recordPath(entityType, recordID, "tamper-check"), body, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *HTTPClient) Custody(ctx context.Context, entityType string, recordID int64, from, to time.Time) (*model.CustodyReport, error) {
	path := recordPath(entityType, recordID, "custody") + windowQuery(from, to)
	var report model.CustodyReport
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *HTTPClient) Sweep(ctx context.Context) (*model.SweepResult, error) {
	var result model.SweepResult
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sweep", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) RecentEvents(ctx context.Context, entityType string, limit int) (*EventList, error) {
	q := url.Values{}
	if entityType != "" {
		q.Set("entity", entityType)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	path := "/v1/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var list EventList
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *HTTPClient) Stats(ctx context.Context) (*model.Stats, error) {
	var stats model.Stats
	if err := c.doJSON(ctx, http.MethodGet, "/v1/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Export streams the full ledger as JSONL into w.
func (c *HTTPClient) Export(ctx context.Context, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/export", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("streaming export: %w", err)
	}
	return nil
}

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// APIError is an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func recordPath(entityType string, recordID int64, suffix string) string {
	return fmt.Sprintf("/v1/records/%s/%d/%s", url.PathEscape(entityType), recordID, suffix)
}

// windowQuery renders optional from/to bounds as a query string. Zero times
// are omitted, leaving the server defaults in effect.
func windowQuery(from, to time.Time) string {
	q := url.Values{}
	if !from.IsZero() {
		q.Set("from", from.Format(time.RFC3339Nano))
	}
	if !to.IsZero() {
		q.Set("to", to.Format(time.RFC3339Nano))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
