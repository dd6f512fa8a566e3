package events

import (
	"context"
	"time"

	"github.com/alfredjeanlab/provenance/internal/model"
)

// Event topic constants
const (
	TopicChangeRecorded = "ledger.change.recorded"
	TopicSnapshotTaken  = "ledger.snapshot.taken"
	TopicTamperDetected = "ledger.tamper.detected"
	TopicSweepCompleted = "ledger.sweep.completed"
)

// Event types

type ChangeRecorded struct {
	EntityType string    `json:"entity_type"`
	RecordID   int64     `json:"record_id"`
	Operation  string    `json:"operation"`
	Actor      string    `json:"actor"`
	EventIDs   []int64   `json:"event_ids"`
	Digest     string    `json:"digest"`
	OccurredAt time.Time `json:"occurred_at"`
}

type SnapshotTaken struct {
	Snapshot *model.Snapshot `json:"snapshot"`
}

type TamperDetected struct {
	Report *model.TamperReport `json:"report"`
}

type SweepCompleted struct {
	Result *model.SweepResult `json:"result"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
