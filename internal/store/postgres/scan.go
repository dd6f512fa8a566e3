package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/provenance/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanEvent scans a single row into a model.ChangeEvent.
// The row must contain columns in the order defined by eventColumns.
func scanEvent(row scannable) (*model.ChangeEvent, error) {
	var e model.ChangeEvent
	var (
		field       sql.NullString
		valueBefore []byte
		valueAfter  []byte
		relatedID   sql.NullInt64
	)

	err := row.Scan(
		&e.EventID,
		&e.EntityType,
		&e.RecordID,
		&e.Operation,
		&field,
		&valueBefore,
		&valueAfter,
		&e.Actor,
		&e.OccurredAt,
		&relatedID,
	)
	if err != nil {
		return nil, err
	}

	e.Field = field.String
	if relatedID.Valid {
		id := relatedID.Int64
		e.RelatedID = &id
	}
	if e.ValueBefore, err = decodeValue(valueBefore); err != nil {
		return nil, fmt.Errorf("event %d value_before: %w", e.EventID, err)
	}
	if e.ValueAfter, err = decodeValue(valueAfter); err != nil {
		return nil, fmt.Errorf("event %d value_after: %w", e.EventID, err)
	}

	return &e, nil
}

func scanEvents(rows *sql.Rows) ([]*model.ChangeEvent, error) {
	var events []*model.ChangeEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// scanDigest scans a single row into a model.IntegrityDigest.
func scanDigest(row scannable) (*model.IntegrityDigest, error) {
	var d model.IntegrityDigest
	var fields []byte

	err := row.Scan(
		&d.DigestID,
		&d.EntityType,
		&d.RecordID,
		&d.DigestValue,
		&fields,
		&d.ComputedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &d.FieldsIncluded); err != nil {
			return nil, fmt.Errorf("digest %d fields_included: %w", d.DigestID, err)
		}
	}
	return &d, nil
}

func scanDigests(rows *sql.Rows) ([]*model.IntegrityDigest, error) {
	var digests []*model.IntegrityDigest
	for rows.Next() {
		d, err := scanDigest(rows)
		if err != nil {
			return nil, err
		}
		digests = append(digests, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return digests, nil
}

// scanSnapshot scans a single row into a model.Snapshot.
func scanSnapshot(row scannable) (*model.Snapshot, error) {
	var snap model.Snapshot
	var state []byte

	err := row.Scan(
		&snap.SnapshotID,
		&snap.EntityType,
		&snap.RecordID,
		&state,
		&snap.StateDigest,
		&snap.TakenAt,
	)
	if err != nil {
		return nil, err
	}

	if len(state) > 0 {
		if err := json.Unmarshal(state, &snap.State); err != nil {
			return nil, fmt.Errorf("snapshot %d state: %w", snap.SnapshotID, err)
		}
	}
	return &snap, nil
}

func scanSnapshots(rows *sql.Rows) ([]*model.Snapshot, error) {
	var snaps []*model.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snaps, nil
}

// decodeValue unmarshals a JSONB value column; NULL columns decode to nil.
func decodeValue(raw []byte) (*model.Value, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v model.Value
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// valueBytes converts a typed value to a []byte suitable for JSONB columns;
// nil values map to NULL.
func valueBytes(v *model.Value) []byte {
	if v == nil {
		return nil
	}
	raw, _ := json.Marshal(v)
	return raw
}

// stateBytes converts a state map to JSONB bytes.
func stateBytes(s model.State) []byte {
	raw, _ := json.Marshal(s)
	return raw
}

// fieldsBytes converts a fields_included list to JSONB bytes.
func fieldsBytes(fields []string) []byte {
	raw, _ := json.Marshal(fields)
	return raw
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullInt64Ptr converts an *int64 to a sql.NullInt64.
func nullInt64Ptr(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}
