// Package store defines the persistence interface for the forensic ledger.
package store

import (
	"context"
	"time"

	"github.com/alfredjeanlab/provenance/internal/model"
)

// Store persists the three append-only collections backing the ledger. There
// are deliberately no update or delete methods: the tables are append-only by
// contract, not merely by convention.
//
// Lookup methods that can legitimately find nothing (LatestDigest,
// NearestSnapshot) return (nil, nil); absence is a normal outcome there, not
// an error.
type Store interface {
	// Events
	AppendEvent(ctx context.Context, event *model.ChangeEvent) error
	// EventsBetween returns events for a record with occurred_at in
	// [from, to], ordered by (occurred_at, event_id).
	EventsBetween(ctx context.Context, entityType string, recordID int64, from, to time.Time) ([]*model.ChangeEvent, error)
	// EventsSince returns events with occurred_at in (after, until],
	// ordered by (occurred_at, event_id). Used for forward replay from a
	// snapshot base.
	EventsSince(ctx context.Context, entityType string, recordID int64, after, until time.Time) ([]*model.ChangeEvent, error)
	CountEventsSince(ctx context.Context, entityType string, recordID int64, since time.Time) (int, error)
	RecentEvents(ctx context.Context, entityType string, limit int) ([]*model.ChangeEvent, error)
	AllEvents(ctx context.Context) ([]*model.ChangeEvent, error)

	// Digests
	AppendDigest(ctx context.Context, digest *model.IntegrityDigest) error
	LatestDigest(ctx context.Context, entityType string, recordID int64) (*model.IntegrityDigest, error)
	DigestsBetween(ctx context.Context, entityType string, recordID int64, from, to time.Time) ([]*model.IntegrityDigest, error)
	AllDigests(ctx context.Context) ([]*model.IntegrityDigest, error)

	// Snapshots
	AppendSnapshot(ctx context.Context, snapshot *model.Snapshot) error
	// NearestSnapshot returns the newest snapshot with taken_at <= at.
	NearestSnapshot(ctx context.Context, entityType string, recordID int64, at time.Time) (*model.Snapshot, error)
	AllSnapshots(ctx context.Context) ([]*model.Snapshot, error)

	// Forensics projections
	TrackedRecords(ctx context.Context) ([]model.RecordRef, error)
	Stats(ctx context.Context) (*model.Stats, error)

	// RunInTransaction executes fn against a transaction-scoped Store and
	// commits on success or rolls back on error. The ledger relies on this
	// to make event append, digest seal, and snapshot one atomic unit.
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	Close() error
}
