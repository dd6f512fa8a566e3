package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/provenance/internal/model"
)

// ErrNotFound reports that the record did not exist at the requested time:
// either the time predates the record's creation, or it falls inside a
// deleted interval. It is a normal outcome, not a failure.
var ErrNotFound = errors.New("record did not exist at the requested time")

// Rehydrate reconstructs the record's full state as of the given time by
// replaying events forward from the nearest snapshot at or before it. The
// result is a pure function of the stored events and snapshots.
func (l *Ledger) Rehydrate(ctx context.Context, entityType string, recordID int64, at time.Time) (model.State, error) {
	sc, err := l.cfg.Schemas.Lookup(entityType)
	if err != nil {
		return nil, err
	}

	snap, err := l.store.NearestSnapshot(ctx, entityType, recordID, at)
	if err != nil {
		return nil, fmt.Errorf("rehydrate %s/%d: %w", entityType, recordID, err)
	}

	state := model.State{}
	exists := false
	baseTime := time.Time{}
	if snap != nil {
		state = snap.State.Clone()
		exists = true
		baseTime = snap.TakenAt
	}

	events, err := l.store.EventsSince(ctx, entityType, recordID, baseTime, at)
	if err != nil {
		return nil, fmt.Errorf("rehydrate %s/%d: %w", entityType, recordID, err)
	}

	// The record's state stays defined through the instant of its deletion;
	// absence covers the open interval after it. A DELETE at exactly the
	// requested time therefore does not apply.
	if n := len(events); n > 0 {
		if last := events[n-1]; last.Operation == model.OpDelete && last.OccurredAt.Equal(at) {
			events = events[:n-1]
		}
	}

	state, exists = replay(state, exists, events, sc, l.logger)
	if !exists {
		return nil, ErrNotFound
	}
	return state, nil
}

// replay folds events into base state in order. A CREATE resets the state to
// the event's full payload; an UPDATE sets one field; a DELETE marks the
// record absent until the next CREATE. Events that no longer fit the schema
// are skipped with a warning so schema evolution cannot break reconstruction
// of older history.
func replay(state model.State, exists bool, events []*model.ChangeEvent, sc model.Schema, logger *slog.Logger) (model.State, bool) {
	for _, e := range events {
		switch e.Operation {
		case model.OpCreate:
			if e.ValueAfter == nil {
				warnMalformed(logger, e, "CREATE without a record payload")
				continue
			}
			created, err := e.ValueAfter.RecordState()
			if err != nil {
				warnMalformed(logger, e, err.Error())
				continue
			}
			state = created.Clone()
			exists = true

		case model.OpUpdate:
			if !exists {
				// An update inside a deleted interval cannot apply; the
				// record is absent there.
				warnMalformed(logger, e, "UPDATE on absent record")
				continue
			}
			if e.Field == "" || !sc.Has(e.Field) {
				warnMalformed(logger, e, "field not in schema")
				continue
			}
			if e.ValueAfter == nil {
				delete(state, e.Field)
			} else {
				state[e.Field] = *e.ValueAfter
			}

		case model.OpDelete:
			state = model.State{}
			exists = false

		default:
			warnMalformed(logger, e, "unknown operation")
		}
	}
	return state, exists
}

func warnMalformed(logger *slog.Logger, e *model.ChangeEvent, reason string) {
	logger.Warn("skipping malformed event during replay",
		"event_id", e.EventID,
		"entity_type", e.EntityType,
		"record_id", e.RecordID,
		"operation", string(e.Operation),
		"field", e.Field,
		"reason", reason)
}
