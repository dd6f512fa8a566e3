package model

import "time"

// DiscrepancyKind classifies what a tamper check found out of agreement.
type DiscrepancyKind string

const (
	// DiscrepancyField: a live field differs from the rehydrated value.
	DiscrepancyField DiscrepancyKind = "field"
	// DiscrepancyDigest: the stored digest does not match a re-seal of the
	// rehydrated state, or no digest exists at all.
	DiscrepancyDigest DiscrepancyKind = "digest"
	// DiscrepancyPresence: the record exists on one side only.
	DiscrepancyPresence DiscrepancyKind = "presence"
)

// Discrepancy is one mismatch found by a tamper check.
type Discrepancy struct {
	Kind     DiscrepancyKind `json:"kind"`
	Field    string          `json:"field,omitempty"`
	Expected string          `json:"expected"`
	Actual   string          `json:"actual"`
}

// TamperReport is the result of detect_tampering for one record. The record
// is intact iff Discrepancies is empty. A report is advisory; producing one
// never fails the surrounding business operation.
type TamperReport struct {
	ReportID      string        `json:"report_id"`
	EntityType    string        `json:"entity_type"`
	RecordID      int64         `json:"record_id"`
	CheckedAt     time.Time     `json:"checked_at"`
	Intact        bool          `json:"intact"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	Rehydrated    State         `json:"rehydrated_state,omitempty"`
}

// CustodyEntry is one step of a chain-of-custody timeline: the event, who
// performed it, and the state digest immediately after it applied.
type CustodyEntry struct {
	Event  *ChangeEvent `json:"event"`
	Actor  string       `json:"actor"`
	Digest string       `json:"digest"`
}

// CustodyReport is an ordered, audit-facing timeline for one record.
type CustodyReport struct {
	ReportID    string         `json:"report_id"`
	EntityType  string         `json:"entity_type"`
	RecordID    int64          `json:"record_id"`
	From        time.Time      `json:"from"`
	To          time.Time      `json:"to"`
	GeneratedAt time.Time      `json:"generated_at"`
	TotalEvents int            `json:"total_events"`
	Entries     []CustodyEntry `json:"entries"`
}

// SweepResult summarizes one pass of the out-of-band integrity sweep.
type SweepResult struct {
	RunID      string      `json:"run_id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Checked    int         `json:"checked"`
	Intact     int         `json:"intact"`
	Violations int         `json:"violations"`
	NoData     int         `json:"no_data"`
	Flagged    []RecordRef `json:"flagged,omitempty"`
}
