// Package archive exports the full ledger as JSONL and ships it to an
// S3-compatible destination on a schedule. The archive is a compliance
// artifact: a portable copy of the append-only history, not a backup of the
// live database.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/provenance/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version       string    `json:"version"`
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	EventCount    int       `json:"event_count"`
	DigestCount   int       `json:"digest_count"`
	SnapshotCount int       `json:"snapshot_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ExportJSONL writes the entire ledger from the store as JSONL to w: a header
// line, then one line per event, digest, and snapshot, each in append order.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	events, err := s.AllEvents(ctx)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	digests, err := s.AllDigests(ctx)
	if err != nil {
		return fmt.Errorf("list digests: %w", err)
	}
	snapshots, err := s.AllSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:       "1",
		Type:          "header",
		Timestamp:     time.Now().UTC(),
		EventCount:    len(events),
		DigestCount:   len(digests),
		SnapshotCount: len(snapshots),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, e := range events {
		if err := enc.Encode(record{Type: "event", Data: e}); err != nil {
			return fmt.Errorf("encode event %d: %w", e.EventID, err)
		}
	}
	for _, d := range digests {
		if err := enc.Encode(record{Type: "digest", Data: d}); err != nil {
			return fmt.Errorf("encode digest %d: %w", d.DigestID, err)
		}
	}
	for _, snap := range snapshots {
		if err := enc.Encode(record{Type: "snapshot", Data: snap}); err != nil {
			return fmt.Errorf("encode snapshot %d: %w", snap.SnapshotID, err)
		}
	}
	return nil
}
