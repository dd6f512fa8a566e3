package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/provenance/internal/events"
	"github.com/alfredjeanlab/provenance/internal/ledger"
	"github.com/alfredjeanlab/provenance/internal/model"
	"github.com/alfredjeanlab/provenance/internal/store/memory"
)

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *capturePublisher) Publish(_ context.Context, topic string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

func newTestServer(t *testing.T, authToken string) (*httptest.Server, *ledger.Ledger, *capturePublisher) {
	t.Helper()
	l := ledger.New(memory.New(), ledger.Config{
		Schemas: model.SchemaSet{
			"company": {Fields: []string{"active", "amount", "name"}},
		},
		Logger: slog.New(slog.DiscardHandler),
	})
	pub := &capturePublisher{}
	srv := NewLedgerServer(l, pub, slog.New(slog.DiscardHandler))
	ts := httptest.NewServer(srv.NewHTTPHandler(authToken))
	t.Cleanup(ts.Close)
	return ts, l, pub
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func recordCreate(t *testing.T, url string, id int64, name string) *ledger.Receipt {
	t.Helper()
	resp := postJSON(t, url+"/v1/changes", ledger.Change{
		EntityType: "company", RecordID: id, Operation: model.OpCreate,
		Actor: "alice",
		State: model.State{"name": model.String(name)},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d", resp.StatusCode)
	}
	var receipt ledger.Receipt
	decodeBody(t, resp, &receipt)
	return &receipt
}

func TestHealth(t *testing.T) {
	ts, _, _ := newTestServer(t, "")

	resp, err := http.Get(ts.URL + "/v1/health")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["status"] != "ok" {
		t.Fatalf("got body %v", body)
	}
}

func TestAuthMiddleware(t *testing.T) {
	ts, _, _ := newTestServer(t, "secret")

	// Health is exempt.
	resp, err := http.Get(ts.URL + "/v1/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: status %d", resp.StatusCode)
	}

	for _, tc := range []struct {
		name   string
		header string
		want   int
	}{
		{"MissingHeader", "", http.StatusUnauthorized},
		{"WrongScheme", "Basic secret", http.StatusUnauthorized},
		{"WrongToken", "Bearer nope", http.StatusUnauthorized},
		{"ValidToken", "Bearer secret", http.StatusOK},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/stats", nil)
			if err != nil {
				t.Fatal(err)
			}
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Fatalf("status %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestRecordChange(t *testing.T) {
	ts, _, pub := newTestServer(t, "")

	receipt := recordCreate(t, ts.URL, 1, "Acme Corp")
	if len(receipt.EventIDs) != 1 {
		t.Fatalf("got event ids %v", receipt.EventIDs)
	}
	if receipt.Digest == nil || receipt.Digest.DigestValue == "" {
		t.Fatal("expected a sealed digest in the receipt")
	}

	topics := pub.published()
	if len(topics) == 0 || topics[0] != events.TopicChangeRecorded {
		t.Fatalf("got published topics %v", topics)
	}

	// The record rehydrates to the created state.
	resp, err := http.Get(ts.URL + "/v1/records/company/1/at")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rehydrate: status %d", resp.StatusCode)
	}
	var got struct {
		State model.State `json:"state"`
	}
	decodeBody(t, resp, &got)
	if got.State["name"].Raw != "Acme Corp" {
		t.Fatalf("got state %v", got.State)
	}
}

func TestRecordChange_Invalid(t *testing.T) {
	ts, _, _ := newTestServer(t, "")

	for _, tc := range []struct {
		name string
		ch   ledger.Change
	}{
		{"UnknownEntity", ledger.Change{EntityType: "widget", RecordID: 1, Operation: model.OpCreate, Actor: "a", State: model.State{}}},
		{"MissingActor", ledger.Change{EntityType: "company", RecordID: 1, Operation: model.OpCreate, State: model.State{}}},
		{"BadOperation", ledger.Change{EntityType: "company", RecordID: 1, Operation: "UPSERT", Actor: "a"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/v1/changes", tc.ch)
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestRecordChange_BadJSON(t *testing.T) {
	ts, _, _ := newTestServer(t, "")

	resp, err := http.Post(ts.URL+"/v1/changes", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
}

func TestRecordEvents(t *testing.T) {
	ts, _, _ := newTestServer(t, "")

	recordCreate(t, ts.URL, 1, "Acme")
	before := model.String("Acme")
	after := model.String("Acme Corp")
	resp := postJSON(t, ts.URL+"/v1/changes", ledger.Change{
		EntityType: "company", RecordID: 1, Operation: model.OpUpdate,
		Actor:  "bob",
		Fields: []ledger.FieldChange{{Field: "name", Before: &before, After: &after}},
		State:  model.State{"name": after},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("update: status %d", resp.StatusCode)
	}

	listResp, err := http.Get(ts.URL + "/v1/records/company/1/events")
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Events []*model.ChangeEvent `json:"events"`
		Total  int                  `json:"total"`
	}
	decodeBody(t, listResp, &got)
	if got.Total != 2 || len(got.Events) != 2 {
		t.Fatalf("got %d events", got.Total)
	}
	if got.Events[0].Operation != model.OpCreate || got.Events[1].Operation != model.OpUpdate {
		t.Fatalf("got operations %s, %s", got.Events[0].Operation, got.Events[1].Operation)
	}
	if got.Events[1].Actor != "bob" {
		t.Fatalf("got actor %q", got.Events[1].Actor)
	}
}

func TestRecordEvents_Window(t *testing.T) {
	ts, _, _ := newTestServer(t, "")

	r1 := recordCreate(t, ts.URL, 1, "Acme")
	before := model.String("Acme")
	after := model.String("Acme Corp")
	resp := postJSON(t, ts.URL+"/v1/changes", ledger.Change{
		EntityType: "company", RecordID: 1, Operation: model.OpUpdate,
		Actor:  "bob",
		Fields: []ledger.FieldChange{{Field: "name", Before: &before, After: &after}},
		State:  model.State{"name": after},
	})
	resp.Body.Close()

	// A window ending at the create timestamp excludes the update.
	url := fmt.Sprintf("%s/v1/records/company/1/events?to=%s",
		ts.URL, r1.OccurredAt.Format(time.RFC3339Nano))
	listResp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Total int `json:"total"`
	}
	decodeBody(t, listResp, &got)
	if got.Total != 1 {
		t.Fatalf("got %d events, want 1", got.Total)
	}
}

func TestRehydrateErrors(t *testing.T) {
	ts, _, _ := newTestServer(t, "")

	for _, tc := range []struct {
		name string
		path string
		want int
	}{
		{"NeverExisted", "/v1/records/company/99/at", http.StatusNotFound},
		{"UnknownEntity", "/v1/records/widget/1/at", http.StatusBadRequest},
		{"BadID", "/v1/records/company/abc/at", http.StatusBadRequest},
		{"BadTime", "/v1/records/company/99/at?time=yesterday", http.StatusBadRequest},
	} {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tc.path)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Fatalf("status %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestTamperCheck(t *testing.T) {
	ts, _, pub := newTestServer(t, "")
	recordCreate(t, ts.URL, 1, "Acme Corp")

	// Live row agrees with the ledger.
	resp := postJSON(t, ts.URL+"/v1/records/company/1/tamper-check", map[string]any{
		"live_state": model.State{"name": model.String("Acme Corp")},
	})
	var intact model.TamperReport
	decodeBody(t, resp, &intact)
	if !intact.Intact {
		t.Fatalf("expected intact, got discrepancies %v", intact.Discrepancies)
	}

	// Live row was edited behind the ledger's back.
	resp = postJSON(t, ts.URL+"/v1/records/company/1/tamper-check", map[string]any{
		"live_state": model.State{"name": model.String("Evil Corp")},
	})
	var tampered model.TamperReport
	decodeBody(t, resp, &tampered)
	if tampered.Intact || len(tampered.Discrepancies) != 1 {
		t.Fatalf("got report %+v", tampered)
	}
	if tampered.Discrepancies[0].Kind != model.DiscrepancyField {
		t.Fatalf("got kind %q", tampered.Discrepancies[0].Kind)
	}

	found := false
	for _, topic := range pub.published() {
		if topic == events.TopicTamperDetected {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a tamper-detected event on the bus")
	}
}

func TestCustody(t *testing.T) {
	ts, _, _ := newTestServer(t, "")
	recordCreate(t, ts.URL, 1, "Acme")

	resp, err := http.Get(ts.URL + "/v1/records/company/1/custody")
	if err != nil {
		t.Fatal(err)
	}
	var report model.CustodyReport
	decodeBody(t, resp, &report)
	if report.TotalEvents != 1 || len(report.Entries) != 1 {
		t.Fatalf("got report %+v", report)
	}
	if report.Entries[0].Actor != "alice" || report.Entries[0].Digest == "" {
		t.Fatalf("got entry %+v", report.Entries[0])
	}
}

func TestDigests(t *testing.T) {
	ts, _, _ := newTestServer(t, "")
	receipt := recordCreate(t, ts.URL, 1, "Acme")

	resp, err := http.Get(ts.URL + "/v1/records/company/1/digests")
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Digests []*model.IntegrityDigest `json:"digests"`
		Total   int                      `json:"total"`
	}
	decodeBody(t, resp, &got)
	if got.Total != 1 {
		t.Fatalf("got %d digests", got.Total)
	}
	if got.Digests[0].DigestValue != receipt.Digest.DigestValue {
		t.Fatal("digest does not match the receipt")
	}
}

func TestRecentEventsEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t, "")
	recordCreate(t, ts.URL, 1, "Acme")
	recordCreate(t, ts.URL, 2, "Globex")

	resp, err := http.Get(ts.URL + "/v1/events?limit=1")
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Events []*model.ChangeEvent `json:"events"`
	}
	decodeBody(t, resp, &got)
	if len(got.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(got.Events))
	}
	// Newest first.
	if got.Events[0].RecordID != 2 {
		t.Fatalf("got record %d, want 2", got.Events[0].RecordID)
	}

	bad, err := http.Get(ts.URL + "/v1/events?limit=zero")
	if err != nil {
		t.Fatal(err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", bad.StatusCode)
	}
}

func TestStatsEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t, "")
	recordCreate(t, ts.URL, 1, "Acme")

	resp, err := http.Get(ts.URL + "/v1/stats")
	if err != nil {
		t.Fatal(err)
	}
	var stats model.Stats
	decodeBody(t, resp, &stats)
	if stats.TotalEvents != 1 || stats.ByActor["alice"] != 1 {
		t.Fatalf("got stats %+v", stats)
	}
}

func TestSweepEndpoint(t *testing.T) {
	ts, _, pub := newTestServer(t, "")
	recordCreate(t, ts.URL, 1, "Acme")

	resp, err := http.Post(ts.URL+"/v1/sweep", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	var result model.SweepResult
	decodeBody(t, resp, &result)
	if result.Checked != 1 || result.Intact != 1 || result.Violations != 0 {
		t.Fatalf("got result %+v", result)
	}

	found := false
	for _, topic := range pub.published() {
		if topic == events.TopicSweepCompleted {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a sweep-completed event on the bus")
	}
}

func TestExportEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t, "")
	recordCreate(t, ts.URL, 1, "Acme")

	resp, err := http.Get(ts.URL + "/v1/export")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("got content type %q", ct)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	lines := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			lines++
		}
	}
	// header + 1 event + 1 digest + 1 snapshot-or-not; create at default
	// policy takes no snapshot, so 3 lines.
	if lines != 3 {
		t.Fatalf("got %d lines:\n%s", lines, data)
	}
}
