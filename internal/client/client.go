// Package client provides a transport-agnostic interface for the provenance
// service and an HTTP/JSON implementation that talks to its REST API.
package client

import (
	"context"
	"io"
	"time"

	"github.com/alfredjeanlab/provenance/internal/ledger"
	"github.com/alfredjeanlab/provenance/internal/model"
)

// LedgerClient is the interface that all prov CLI commands use to communicate
// with the provenance server. It is implemented by HTTPClient (default) and
// can be backed by any transport.
type LedgerClient interface {
	// Mutations
	RecordChange(ctx context.Context, ch *ledger.Change) (*ledger.Receipt, error)

	// Record history and rehydration
	ListEvents(ctx context.Context, entityType string, recordID int64, from, to time.Time) (*EventList, error)
	Rehydrate(ctx context.Context, entityType string, recordID int64, at time.Time) (*RehydratedRecord, error)
	ListDigests(ctx context.Context, entityType string, recordID int64, from, to time.Time) (*DigestList, error)

	// Forensics
	TamperCheck(ctx context.Context, entityType string, recordID int64, live model.State) (*model.TamperReport, error)
	Custody(ctx context.Context, entityType string, recordID int64, from, to time.Time) (*model.CustodyReport, error)
	Sweep(ctx context.Context) (*model.SweepResult, error)

	// Ledger-wide views
	RecentEvents(ctx context.Context, entityType string, limit int) (*EventList, error)
	Stats(ctx context.Context) (*model.Stats, error)
	Export(ctx context.Context, w io.Writer) error

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// EventList is a page of change events.
type EventList struct {
	Events []*model.ChangeEvent `json:"events"`
	Total  int                  `json:"total"`
}

// DigestList is a page of integrity digests.
type DigestList struct {
	Digests []*model.IntegrityDigest `json:"digests"`
	Total   int                      `json:"total"`
}

// RehydratedRecord is a record's reconstructed state at a point in time.
type RehydratedRecord struct {
	EntityType string      `json:"entity_type"`
	RecordID   int64       `json:"record_id"`
	At         time.Time   `json:"at"`
	State      model.State `json:"state"`
}
