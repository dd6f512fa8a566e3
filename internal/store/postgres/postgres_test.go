package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alfredjeanlab/provenance/internal/model"
	"github.com/alfredjeanlab/provenance/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

// eventRowColumns is the column list for scanEvent results.
var eventRowColumns = []string{
	"event_id", "entity_type", "record_id", "operation", "field",
	"value_before", "value_after", "actor", "occurred_at", "related_id",
}

var digestRowColumns = []string{
	"digest_id", "entity_type", "record_id", "digest_value",
	"fields_included", "computed_at",
}

var snapshotRowColumns = []string{
	"snapshot_id", "entity_type", "record_id", "state",
	"state_digest", "taken_at",
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func TestScanHelpers(t *testing.T) {
	// nullString
	if nullString("").Valid {
		t.Error("nullString(\"\") should be invalid")
	}
	if ns := nullString("amount"); !ns.Valid || ns.String != "amount" {
		t.Errorf("nullString(\"amount\") = %v", ns)
	}

	// nullInt64Ptr
	if nullInt64Ptr(nil).Valid {
		t.Error("nullInt64Ptr(nil) should be invalid")
	}
	n := int64(42)
	if ni := nullInt64Ptr(&n); !ni.Valid || ni.Int64 != 42 {
		t.Errorf("nullInt64Ptr(&42) = %v", ni)
	}

	// valueBytes
	if valueBytes(nil) != nil {
		t.Error("valueBytes(nil) should be nil")
	}
	v := model.Int(10000)
	if string(valueBytes(&v)) != `{"type":"number","value":"10000"}` {
		t.Errorf("valueBytes = %s", valueBytes(&v))
	}

	// decodeValue
	got, err := decodeValue(nil)
	if err != nil || got != nil {
		t.Errorf("decodeValue(nil) = %v, %v", got, err)
	}
	got, err = decodeValue([]byte(`{"type":"string","value":"acme"}`))
	if err != nil {
		t.Fatalf("decodeValue: %v", err)
	}
	if got.Type != model.TypeString || got.Raw != "acme" {
		t.Errorf("decodeValue = %+v", got)
	}
}

func TestQueryAppendEvent(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	before := model.Int(10000)
	after := model.Float(12500.0)
	event := &model.ChangeEvent{
		EntityType:  "deal",
		RecordID:    7,
		Operation:   model.OpUpdate,
		Field:       "amount",
		ValueBefore: &before,
		ValueAfter:  &after,
		Actor:       "alice",
		OccurredAt:  now,
	}
	mock.ExpectQuery("INSERT INTO change_events").
		WithArgs(
			"deal", int64(7), "UPDATE", nullString("amount"),
			valueBytes(&before), valueBytes(&after), "alice", now, sqlmock.AnyArg(),
		).
		WillReturnRows(sqlmock.NewRows([]string{"event_id"}).AddRow(int64(101)))

	if err := queryAppendEvent(context.Background(), db, event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.EventID != 101 {
		t.Fatalf("expected event_id=101, got %d", event.EventID)
	}
}

func TestQueryEventsBetween(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	from := now.Add(-time.Hour)

	rows := sqlmock.NewRows(eventRowColumns).
		AddRow(int64(1), "deal", int64(7), "CREATE", nil,
			nil, []byte(`{"type":"record","value":"{}"}`), "alice", from, nil).
		AddRow(int64(2), "deal", int64(7), "UPDATE", "stage",
			[]byte(`{"type":"string","value":"open"}`), []byte(`{"type":"string","value":"won"}`), "bob", now, nil)
	mock.ExpectQuery("SELECT .+ FROM change_events WHERE entity_type = \\$1 AND record_id = \\$2").
		WithArgs("deal", int64(7), from, now).
		WillReturnRows(rows)

	events, err := queryEventsBetween(context.Background(), db, "deal", 7, from, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Operation != model.OpCreate || events[1].Field != "stage" {
		t.Fatalf("got op=%q field=%q", events[0].Operation, events[1].Field)
	}
	if events[1].ValueBefore == nil || events[1].ValueBefore.Raw != "open" {
		t.Fatalf("got value_before=%+v", events[1].ValueBefore)
	}
	if events[0].ValueBefore != nil {
		t.Fatalf("expected nil value_before on CREATE, got %+v", events[0].ValueBefore)
	}
}

func TestQueryCountEventsSince(t *testing.T) {
	db, mock := newMockDB(t)
	since := time.Now().UTC().Add(-time.Hour)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\)").
		WithArgs("contact", int64(3), since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	count, err := queryCountEventsSince(context.Background(), db, "contact", 3, since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 12 {
		t.Fatalf("expected 12, got %d", count)
	}
}

func TestQueryRecentEvents(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows(eventRowColumns).
		AddRow(int64(9), "deal", int64(7), "UPDATE", "stage",
			nil, []byte(`{"type":"string","value":"won"}`), "alice", now, nil)
	mock.ExpectQuery("SELECT .+ FROM change_events WHERE entity_type = \\$1 ORDER BY event_id DESC").
		WithArgs("deal", 10).
		WillReturnRows(rows)

	events, err := queryRecentEvents(context.Background(), db, "deal", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].EventID != 9 {
		t.Fatalf("got %d events", len(events))
	}
}

func TestQueryRecentEvents_DefaultLimit(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT .+ FROM change_events ORDER BY event_id DESC").
		WithArgs(25).
		WillReturnRows(sqlmock.NewRows(eventRowColumns))

	events, err := queryRecentEvents(context.Background(), db, "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestQueryAppendDigest(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	digest := &model.IntegrityDigest{
		EntityType:     "deal",
		RecordID:       7,
		DigestValue:    "deadbeef",
		FieldsIncluded: []string{"amount", "stage"},
		ComputedAt:     now,
	}
	mock.ExpectQuery("INSERT INTO integrity_digests").
		WithArgs("deal", int64(7), "deadbeef", mustJSON(t, []string{"amount", "stage"}), now).
		WillReturnRows(sqlmock.NewRows([]string{"digest_id"}).AddRow(int64(3)))

	if err := queryAppendDigest(context.Background(), db, digest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if digest.DigestID != 3 {
		t.Fatalf("expected digest_id=3, got %d", digest.DigestID)
	}
}

func TestQueryLatestDigest(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows(digestRowColumns).
		AddRow(int64(3), "deal", int64(7), "deadbeef", []byte(`["amount","stage"]`), now)
	mock.ExpectQuery("SELECT .+ FROM integrity_digests WHERE entity_type = \\$1 AND record_id = \\$2").
		WithArgs("deal", int64(7)).
		WillReturnRows(rows)

	d, err := queryLatestDigest(context.Background(), db, "deal", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.DigestValue != "deadbeef" || len(d.FieldsIncluded) != 2 {
		t.Fatalf("got %+v", d)
	}
}

func TestQueryLatestDigest_NoRows(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT .+ FROM integrity_digests").
		WithArgs("deal", int64(99)).
		WillReturnError(sql.ErrNoRows)

	d, err := queryLatestDigest(context.Background(), db, "deal", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != nil {
		t.Fatalf("expected nil digest, got %+v", d)
	}
}

func TestQueryAppendSnapshot(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	state := model.State{"stage": model.String("won")}
	snap := &model.Snapshot{
		EntityType:  "deal",
		RecordID:    7,
		State:       state,
		StateDigest: "cafef00d",
		TakenAt:     now,
	}
	mock.ExpectQuery("INSERT INTO snapshots").
		WithArgs("deal", int64(7), mustJSON(t, state), "cafef00d", now).
		WillReturnRows(sqlmock.NewRows([]string{"snapshot_id"}).AddRow(int64(5)))

	if err := queryAppendSnapshot(context.Background(), db, snap); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.SnapshotID != 5 {
		t.Fatalf("expected snapshot_id=5, got %d", snap.SnapshotID)
	}
}

func TestQueryNearestSnapshot(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows(snapshotRowColumns).
		AddRow(int64(5), "deal", int64(7),
			[]byte(`{"stage":{"type":"string","value":"won"}}`), "cafef00d", now)
	mock.ExpectQuery("SELECT .+ FROM snapshots WHERE entity_type = \\$1 AND record_id = \\$2 AND taken_at <= \\$3").
		WithArgs("deal", int64(7), now).
		WillReturnRows(rows)

	snap, err := queryNearestSnapshot(context.Background(), db, "deal", 7, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.StateDigest != "cafef00d" {
		t.Fatalf("got %+v", snap)
	}
	if v, ok := snap.State["stage"]; !ok || v.Raw != "won" {
		t.Fatalf("got state=%+v", snap.State)
	}
}

func TestQueryNearestSnapshot_NoRows(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT .+ FROM snapshots").
		WithArgs("deal", int64(7), sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)

	snap, err := queryNearestSnapshot(context.Background(), db, "deal", 7, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap != nil {
		t.Fatalf("expected nil snapshot, got %+v", snap)
	}
}

func TestQueryTrackedRecords(t *testing.T) {
	db, mock := newMockDB(t)
	rows := sqlmock.NewRows([]string{"entity_type", "record_id"}).
		AddRow("contact", int64(1)).
		AddRow("deal", int64(7))
	mock.ExpectQuery("SELECT DISTINCT entity_type, record_id FROM change_events").
		WillReturnRows(rows)

	refs, err := queryTrackedRecords(context.Background(), db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(refs))
	}
	if refs[0].EntityType != "contact" || refs[1].RecordID != 7 {
		t.Fatalf("got refs=%+v", refs)
	}
}

func TestQueryStats(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM change_events").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))
	mock.ExpectQuery("SELECT entity_type, COUNT\\(\\*\\)").
		WillReturnRows(sqlmock.NewRows([]string{"entity_type", "count"}).
			AddRow("deal", 30).AddRow("contact", 12))
	mock.ExpectQuery("SELECT operation, COUNT\\(\\*\\)").
		WillReturnRows(sqlmock.NewRows([]string{"operation", "count"}).
			AddRow("UPDATE", 25).AddRow("CREATE", 15).AddRow("DELETE", 2))
	mock.ExpectQuery("SELECT actor, COUNT\\(\\*\\)").
		WillReturnRows(sqlmock.NewRows([]string{"actor", "count"}).
			AddRow("alice", 40).AddRow("bob", 2))

	stats, err := queryStats(context.Background(), db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalEvents != 42 {
		t.Fatalf("expected total=42, got %d", stats.TotalEvents)
	}
	if stats.ByEntity["deal"] != 30 || stats.ByOperation["DELETE"] != 2 || stats.ByActor["alice"] != 40 {
		t.Fatalf("got stats=%+v", stats)
	}
}

func TestRunInTransaction_Commit(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO change_events").
		WillReturnRows(sqlmock.NewRows([]string{"event_id"}).AddRow(int64(1)))
	mock.ExpectCommit()

	s := &PostgresStore{db: db}
	err := s.RunInTransaction(context.Background(), func(tx store.Store) error {
		event := &model.ChangeEvent{
			EntityType: "deal", RecordID: 7, Operation: model.OpCreate,
			Actor: "alice", OccurredAt: now,
		}
		return tx.AppendEvent(context.Background(), event)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunInTransaction_Rollback(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	wantErr := errors.New("boom")
	s := &PostgresStore{db: db}
	err := s.RunInTransaction(context.Background(), func(tx store.Store) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected boom, got %v", err)
	}
}
