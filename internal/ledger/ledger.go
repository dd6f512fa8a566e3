// Package ledger is the forensic core: it records field-level change events,
// seals an integrity digest after every mutation, materializes snapshots by
// policy, and reconstructs historical record state on demand.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/provenance/internal/model"
	"github.com/alfredjeanlab/provenance/internal/seal"
	"github.com/alfredjeanlab/provenance/internal/store"
)

const (
	// DefaultSnapshotEvery is the event-count snapshot trigger.
	DefaultSnapshotEvery = 50
	// DefaultSnapshotInterval is the wall-clock snapshot trigger.
	DefaultSnapshotInterval = 24 * time.Hour
	// DefaultLockTimeout bounds how long a writer waits for a record lock.
	DefaultLockTimeout = 5 * time.Second
)

// Config carries the ledger's tunables. Zero values fall back to defaults.
type Config struct {
	Schemas          model.SchemaSet
	SnapshotEvery    int
	SnapshotInterval time.Duration
	LockTimeout      time.Duration
	Logger           *slog.Logger
}

// Ledger coordinates the event store, integrity layer, and snapshot store so
// that every mutation lands as one atomic unit: events, digest, and maybe a
// snapshot, all in a single storage transaction.
type Ledger struct {
	store  store.Store
	cfg    Config
	locks  *recordLocks
	clock  *monotonicClock
	logger *slog.Logger
}

// New creates a Ledger over the given store.
func New(s store.Store, cfg Config) *Ledger {
	if cfg.SnapshotEvery <= 0 {
		cfg.SnapshotEvery = DefaultSnapshotEvery
	}
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = DefaultSnapshotInterval
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:  s,
		cfg:    cfg,
		locks:  newRecordLocks(),
		clock:  &monotonicClock{},
		logger: logger,
	}
}

// Schemas exposes the entity schema registry.
func (l *Ledger) Schemas() model.SchemaSet { return l.cfg.Schemas }

// Store exposes the underlying store for read projections.
func (l *Ledger) Store() store.Store { return l.store }

// FieldChange is one changed attribute within an UPDATE.
type FieldChange struct {
	Field  string       `json:"field"`
	Before *model.Value `json:"value_before,omitempty"`
	After  *model.Value `json:"value_after,omitempty"`
}

// Change is one business mutation to record. State is the full row state after
// the mutation (for DELETE: the state immediately before it). Fields lists the
// changed attributes and is required for UPDATE only.
type Change struct {
	EntityType string          `json:"entity_type"`
	RecordID   int64           `json:"record_id"`
	Operation  model.Operation `json:"operation"`
	Actor      string          `json:"actor"`
	RelatedID  *int64          `json:"related_id,omitempty"`
	Fields     []FieldChange   `json:"fields,omitempty"`
	State      model.State     `json:"state"`
}

// Receipt describes what one recorded mutation produced.
type Receipt struct {
	EventIDs   []int64                `json:"event_ids"`
	Digest     *model.IntegrityDigest `json:"digest"`
	Snapshot   *model.Snapshot        `json:"snapshot,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// ErrInvalidChange marks a change rejected by shape or schema validation.
// Transport layers map this to a client error.
var ErrInvalidChange = errors.New("invalid change")

// Record validates the change, serializes against other writers of the same
// record, and applies it in its own storage transaction.
func (l *Ledger) Record(ctx context.Context, ch Change) (*Receipt, error) {
	if err := l.validate(&ch); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChange, err)
	}

	ref := model.RecordRef{EntityType: ch.EntityType, RecordID: ch.RecordID}
	release, err := l.locks.acquire(ctx, ref, l.cfg.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	var receipt *Receipt
	err = l.store.RunInTransaction(ctx, func(tx store.Store) error {
		var txErr error
		receipt, txErr = l.apply(ctx, tx, ch)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// Apply records the change inside a caller-managed transaction, so the
// business-row write and the ledger writes commit or roll back together. The
// caller is responsible for serializing writers of the record.
func (l *Ledger) Apply(ctx context.Context, tx store.Store, ch Change) (*Receipt, error) {
	if err := l.validate(&ch); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChange, err)
	}
	return l.apply(ctx, tx, ch)
}

// validate checks the change shape against the entity schema and rewrites all
// values into canonical form.
func (l *Ledger) validate(ch *Change) error {
	if !ch.Operation.Valid() {
		return fmt.Errorf("invalid operation %q", ch.Operation)
	}
	if ch.Actor == "" {
		return fmt.Errorf("actor is required")
	}
	sc, err := l.cfg.Schemas.Lookup(ch.EntityType)
	if err != nil {
		return err
	}

	state, err := ch.State.Canonicalize()
	if err != nil {
		return fmt.Errorf("state: %w", err)
	}
	if err := l.cfg.Schemas.ValidateState(ch.EntityType, state); err != nil {
		return err
	}
	ch.State = state

	switch ch.Operation {
	case model.OpCreate, model.OpDelete:
		if len(ch.Fields) > 0 {
			return fmt.Errorf("%s takes no field list; the state is the payload", ch.Operation)
		}
	case model.OpUpdate:
		if len(ch.Fields) == 0 {
			return fmt.Errorf("UPDATE requires at least one changed field")
		}
		for i, fc := range ch.Fields {
			if !sc.Has(fc.Field) {
				return fmt.Errorf("entity %s has no field %q", ch.EntityType, fc.Field)
			}
			if fc.Before != nil {
				cv, err := fc.Before.Canonicalize()
				if err != nil {
					return fmt.Errorf("field %s before: %w", fc.Field, err)
				}
				ch.Fields[i].Before = &cv
			}
			if fc.After != nil {
				cv, err := fc.After.Canonicalize()
				if err != nil {
					return fmt.Errorf("field %s after: %w", fc.Field, err)
				}
				ch.Fields[i].After = &cv
			}
		}
	}
	return nil
}

// apply writes the events, seals the digest, and maybe snapshots. All writes
// go through tx so they commit atomically.
func (l *Ledger) apply(ctx context.Context, tx store.Store, ch Change) (*Receipt, error) {
	sc, err := l.cfg.Schemas.Lookup(ch.EntityType)
	if err != nil {
		return nil, err
	}
	occurredAt := l.clock.Now()

	events, err := buildEvents(ch, occurredAt)
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{OccurredAt: occurredAt}
	for _, e := range events {
		if err := tx.AppendEvent(ctx, e); err != nil {
			return nil, err
		}
		receipt.EventIDs = append(receipt.EventIDs, e.EventID)
	}

	// DELETE seals the empty state: the record's post-mutation content is
	// "absent", and verify of a deleted record must still have a digest to
	// agree with.
	sealedState := ch.State
	if ch.Operation == model.OpDelete {
		sealedState = model.State{}
	}
	digest := seal.Seal(ch.EntityType, ch.RecordID, sc.Fields, sealedState, occurredAt)
	if err := tx.AppendDigest(ctx, digest); err != nil {
		return nil, err
	}
	receipt.Digest = digest

	if ch.Operation != model.OpDelete {
		snap, err := l.maybeSnapshot(ctx, tx, ch.EntityType, ch.RecordID, sc, ch.State, occurredAt)
		if err != nil {
			return nil, err
		}
		receipt.Snapshot = snap
	}
	return receipt, nil
}

// buildEvents turns a change into its event rows: one per changed field for
// UPDATE, a single whole-record event for CREATE and DELETE.
func buildEvents(ch Change, occurredAt time.Time) ([]*model.ChangeEvent, error) {
	base := model.ChangeEvent{
		EntityType: ch.EntityType,
		RecordID:   ch.RecordID,
		Operation:  ch.Operation,
		Actor:      ch.Actor,
		OccurredAt: occurredAt,
		RelatedID:  ch.RelatedID,
	}

	switch ch.Operation {
	case model.OpCreate:
		e := base
		v := model.Record(ch.State)
		e.ValueAfter = &v
		return []*model.ChangeEvent{&e}, nil
	case model.OpDelete:
		e := base
		v := model.Record(ch.State)
		e.ValueBefore = &v
		return []*model.ChangeEvent{&e}, nil
	case model.OpUpdate:
		events := make([]*model.ChangeEvent, 0, len(ch.Fields))
		for _, fc := range ch.Fields {
			e := base
			e.Field = fc.Field
			e.ValueBefore = fc.Before
			e.ValueAfter = fc.After
			events = append(events, &e)
		}
		return events, nil
	}
	return nil, fmt.Errorf("invalid operation %q", ch.Operation)
}

// maybeSnapshot materializes the post-mutation state if the record has
// accumulated enough events since its last snapshot, or if the last snapshot
// is older than the configured interval.
func (l *Ledger) maybeSnapshot(ctx context.Context, tx store.Store, entityType string, recordID int64, sc model.Schema, state model.State, occurredAt time.Time) (*model.Snapshot, error) {
	last, err := tx.NearestSnapshot(ctx, entityType, recordID, occurredAt)
	if err != nil {
		return nil, err
	}

	since := time.Time{}
	if last != nil {
		since = last.TakenAt
	}
	count, err := tx.CountEventsSince(ctx, entityType, recordID, since)
	if err != nil {
		return nil, err
	}

	due := count >= l.cfg.SnapshotEvery
	if !due && last != nil && occurredAt.Sub(last.TakenAt) >= l.cfg.SnapshotInterval {
		due = true
	}
	if !due {
		return nil, nil
	}

	snap := &model.Snapshot{
		EntityType:  entityType,
		RecordID:    recordID,
		State:       state.Clone(),
		StateDigest: seal.Compute(sc.Fields, state),
		TakenAt:     occurredAt,
	}
	if err := tx.AppendSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	l.logger.Debug("snapshot taken",
		"entity_type", entityType, "record_id", recordID, "events_since", count)
	return snap, nil
}

// monotonicClock hands out strictly increasing UTC timestamps so that events
// within one process are totally ordered by occurred_at alone.
type monotonicClock struct {
	mu   sync.Mutex
	last time.Time
}

func (c *monotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UTC()
	if !now.After(c.last) {
		now = c.last.Add(time.Microsecond)
	}
	c.last = now
	return now
}
