// Package model defines the entities persisted by the forensic ledger:
// change events, integrity digests, and snapshots.
package model

import (
	"fmt"
	"time"
)

// Operation is the kind of mutation a ChangeEvent records.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// Valid reports whether op is one of the three recognized operations.
func (op Operation) Valid() bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// RecordRef identifies a tracked business record.
type RecordRef struct {
	EntityType string `json:"entity_type"`
	RecordID   int64  `json:"record_id"`
}

func (r RecordRef) String() string {
	return fmt.Sprintf("%s/%d", r.EntityType, r.RecordID)
}

// ChangeEvent is one observed field mutation. Events are immutable once
// written and totally ordered per record by (occurred_at, event_id).
//
// For CREATE and DELETE the event describes the whole record: Field is empty,
// and the full state travels as a record-typed value (ValueAfter for CREATE,
// ValueBefore for DELETE).
type ChangeEvent struct {
	EventID     int64     `json:"event_id"`
	EntityType  string    `json:"entity_type"`
	RecordID    int64     `json:"record_id"`
	Operation   Operation `json:"operation"`
	Field       string    `json:"field,omitempty"`
	ValueBefore *Value    `json:"value_before,omitempty"`
	ValueAfter  *Value    `json:"value_after,omitempty"`
	Actor       string    `json:"actor"`
	OccurredAt  time.Time `json:"occurred_at"`
	RelatedID   *int64    `json:"related_id,omitempty"`
}

// Ref returns the record this event belongs to.
func (e *ChangeEvent) Ref() RecordRef {
	return RecordRef{EntityType: e.EntityType, RecordID: e.RecordID}
}

// IntegrityDigest is a content fingerprint of a record's full row state at a
// point in time. DigestValue is a deterministic function of FieldsIncluded and
// the field values only; digest history per record is append-only.
type IntegrityDigest struct {
	DigestID       int64     `json:"digest_id"`
	EntityType     string    `json:"entity_type"`
	RecordID       int64     `json:"record_id"`
	DigestValue    string    `json:"digest_value"`
	FieldsIncluded []string  `json:"fields_included"`
	ComputedAt     time.Time `json:"computed_at"`
}

// Snapshot is a materialized full state of a record at a point in time.
// Snapshots bound replay cost; they are never required for correctness.
type Snapshot struct {
	SnapshotID  int64     `json:"snapshot_id"`
	EntityType  string    `json:"entity_type"`
	RecordID    int64     `json:"record_id"`
	State       State     `json:"state"`
	StateDigest string    `json:"state_digest"`
	TakenAt     time.Time `json:"taken_at"`
}

// Stats summarizes ledger activity for audit dashboards.
type Stats struct {
	TotalEvents int            `json:"total_events"`
	ByEntity    map[string]int `json:"by_entity"`
	ByOperation map[string]int `json:"by_operation"`
	ByActor     map[string]int `json:"by_actor"`
}
