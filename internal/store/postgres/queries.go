package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alfredjeanlab/provenance/internal/model"
)

// eventColumns is the column list used for SELECT statements on change_events.
const eventColumns = `event_id, entity_type, record_id, operation, field,
	value_before, value_after, actor, occurred_at, related_id`

// digestColumns is the column list for integrity_digests.
const digestColumns = `digest_id, entity_type, record_id, digest_value,
	fields_included, computed_at`

// snapshotColumns is the column list for snapshots.
const snapshotColumns = `snapshot_id, entity_type, record_id, state,
	state_digest, taken_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryAppendEvent(ctx context.Context, db executor, e *model.ChangeEvent) error {
	err := db.QueryRowContext(ctx, `
		INSERT INTO change_events (
			entity_type, record_id, operation, field,
			value_before, value_after, actor, occurred_at, related_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING event_id`,
		e.EntityType,
		e.RecordID,
		string(e.Operation),
		nullString(e.Field),
		valueBytes(e.ValueBefore),
		valueBytes(e.ValueAfter),
		e.Actor,
		e.OccurredAt,
		nullInt64Ptr(e.RelatedID),
	).Scan(&e.EventID)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func queryEventsBetween(ctx context.Context, db executor, entityType string, recordID int64, from, to time.Time) ([]*model.ChangeEvent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM change_events
		WHERE entity_type = $1 AND record_id = $2
		  AND occurred_at >= $3 AND occurred_at <= $4
		ORDER BY occurred_at ASC, event_id ASC`,
		entityType, recordID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("events between: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryEventsSince(ctx context.Context, db executor, entityType string, recordID int64, after, until time.Time) ([]*model.ChangeEvent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM change_events
		WHERE entity_type = $1 AND record_id = $2
		  AND occurred_at > $3 AND occurred_at <= $4
		ORDER BY occurred_at ASC, event_id ASC`,
		entityType, recordID, after, until,
	)
	if err != nil {
		return nil, fmt.Errorf("events since: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryCountEventsSince(ctx context.Context, db executor, entityType string, recordID int64, since time.Time) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM change_events
		WHERE entity_type = $1 AND record_id = $2 AND occurred_at > $3`,
		entityType, recordID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

func queryRecentEvents(ctx context.Context, db executor, entityType string, limit int) ([]*model.ChangeEvent, error) {
	if limit <= 0 {
		limit = 25
	}

	var (
		rows *sql.Rows
		err  error
	)
	if entityType != "" {
		rows, err = db.QueryContext(ctx, `
			SELECT `+eventColumns+`
			FROM change_events
			WHERE entity_type = $1
			ORDER BY event_id DESC
			LIMIT $2`,
			entityType, limit,
		)
	} else {
		rows, err = db.QueryContext(ctx, `
			SELECT `+eventColumns+`
			FROM change_events
			ORDER BY event_id DESC
			LIMIT $1`,
			limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryAllEvents(ctx context.Context, db executor) ([]*model.ChangeEvent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM change_events
		ORDER BY event_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("all events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryAppendDigest(ctx context.Context, db executor, d *model.IntegrityDigest) error {
	err := db.QueryRowContext(ctx, `
		INSERT INTO integrity_digests (
			entity_type, record_id, digest_value, fields_included, computed_at
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING digest_id`,
		d.EntityType,
		d.RecordID,
		d.DigestValue,
		fieldsBytes(d.FieldsIncluded),
		d.ComputedAt,
	).Scan(&d.DigestID)
	if err != nil {
		return fmt.Errorf("append digest: %w", err)
	}
	return nil
}

func queryLatestDigest(ctx context.Context, db executor, entityType string, recordID int64) (*model.IntegrityDigest, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+digestColumns+`
		FROM integrity_digests
		WHERE entity_type = $1 AND record_id = $2
		ORDER BY computed_at DESC, digest_id DESC
		LIMIT 1`,
		entityType, recordID,
	)
	d, err := scanDigest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest digest: %w", err)
	}
	return d, nil
}

func queryDigestsBetween(ctx context.Context, db executor, entityType string, recordID int64, from, to time.Time) ([]*model.IntegrityDigest, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+digestColumns+`
		FROM integrity_digests
		WHERE entity_type = $1 AND record_id = $2
		  AND computed_at >= $3 AND computed_at <= $4
		ORDER BY computed_at ASC, digest_id ASC`,
		entityType, recordID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("digests between: %w", err)
	}
	defer rows.Close()
	return scanDigests(rows)
}

func queryAllDigests(ctx context.Context, db executor) ([]*model.IntegrityDigest, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+digestColumns+`
		FROM integrity_digests
		ORDER BY digest_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("all digests: %w", err)
	}
	defer rows.Close()
	return scanDigests(rows)
}

func queryAppendSnapshot(ctx context.Context, db executor, snap *model.Snapshot) error {
	err := db.QueryRowContext(ctx, `
		INSERT INTO snapshots (
			entity_type, record_id, state, state_digest, taken_at
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING snapshot_id`,
		snap.EntityType,
		snap.RecordID,
		stateBytes(snap.State),
		snap.StateDigest,
		snap.TakenAt,
	).Scan(&snap.SnapshotID)
	if err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}
	return nil
}

func queryNearestSnapshot(ctx context.Context, db executor, entityType string, recordID int64, at time.Time) (*model.Snapshot, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM snapshots
		WHERE entity_type = $1 AND record_id = $2 AND taken_at <= $3
		ORDER BY taken_at DESC, snapshot_id DESC
		LIMIT 1`,
		entityType, recordID, at,
	)
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("nearest snapshot: %w", err)
	}
	return snap, nil
}

func queryAllSnapshots(ctx context.Context, db executor) ([]*model.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM snapshots
		ORDER BY snapshot_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("all snapshots: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

func queryTrackedRecords(ctx context.Context, db executor) ([]model.RecordRef, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT entity_type, record_id
		FROM change_events
		ORDER BY entity_type ASC, record_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("tracked records: %w", err)
	}
	defer rows.Close()

	var refs []model.RecordRef
	for rows.Next() {
		var ref model.RecordRef
		if err := rows.Scan(&ref.EntityType, &ref.RecordID); err != nil {
			return nil, fmt.Errorf("scan tracked record: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tracked records: %w", err)
	}
	return refs, nil
}

func queryStats(ctx context.Context, db executor) (*model.Stats, error) {
	stats := &model.Stats{
		ByEntity:    make(map[string]int),
		ByOperation: make(map[string]int),
		ByActor:     make(map[string]int),
	}

	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM change_events`).Scan(&stats.TotalEvents); err != nil {
		return nil, fmt.Errorf("stats total: %w", err)
	}

	groups := []struct {
		column string
		dest   map[string]int
	}{
		{"entity_type", stats.ByEntity},
		{"operation", stats.ByOperation},
		{"actor", stats.ByActor},
	}
	for _, g := range groups {
		rows, err := db.QueryContext(ctx, `
			SELECT `+g.column+`, COUNT(*)
			FROM change_events
			GROUP BY `+g.column+`
			ORDER BY COUNT(*) DESC`)
		if err != nil {
			return nil, fmt.Errorf("stats by %s: %w", g.column, err)
		}
		for rows.Next() {
			var key string
			var count int
			if err := rows.Scan(&key, &count); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan stats by %s: %w", g.column, err)
			}
			g.dest[key] = count
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("stats by %s: %w", g.column, err)
		}
		rows.Close()
	}

	return stats, nil
}
