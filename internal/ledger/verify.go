package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alfredjeanlab/provenance/internal/idgen"
	"github.com/alfredjeanlab/provenance/internal/model"
	"github.com/alfredjeanlab/provenance/internal/seal"
)

// absentMark renders a missing value or digest in discrepancy output.
const absentMark = "<absent>"

// DetectTampering rehydrates the record to now, compares it field-by-field
// against the live row supplied by the caller, and re-verifies the last
// stored digest against a re-seal of the rehydrated state. A nil live state
// means the record is absent from the live table. The report is advisory;
// discrepancies are data, not errors.
func (l *Ledger) DetectTampering(ctx context.Context, entityType string, recordID int64, live model.State) (*model.TamperReport, error) {
	sc, err := l.cfg.Schemas.Lookup(entityType)
	if err != nil {
		return nil, err
	}
	reportID, err := idgen.Generate(idgen.ReportPrefix)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	report := &model.TamperReport{
		ReportID:   reportID,
		EntityType: entityType,
		RecordID:   recordID,
		CheckedAt:  now,
	}

	rehydrated, err := l.Rehydrate(ctx, entityType, recordID, now)
	exists := true
	if errors.Is(err, ErrNotFound) {
		rehydrated = model.State{}
		exists = false
	} else if err != nil {
		return nil, err
	}
	if exists {
		report.Rehydrated = rehydrated
	}

	if live != nil {
		if live, err = live.Canonicalize(); err != nil {
			return nil, fmt.Errorf("live state: %w", err)
		}
	}

	// Presence: the ledger and the live table must agree on whether the
	// record exists at all.
	if exists != (live != nil) {
		report.Discrepancies = append(report.Discrepancies, model.Discrepancy{
			Kind:     model.DiscrepancyPresence,
			Expected: presence(exists),
			Actual:   presence(live != nil),
		})
	}

	// Field comparison over the schema's domain.
	if exists && live != nil {
		for _, field := range sc.Fields {
			want := fieldValue(rehydrated, field)
			got := fieldValue(live, field)
			if !want.Equal(got) {
				report.Discrepancies = append(report.Discrepancies, model.Discrepancy{
					Kind:     model.DiscrepancyField,
					Field:    field,
					Expected: renderValue(want),
					Actual:   renderValue(got),
				})
			}
		}
	}

	// Digest chain: a re-seal of the rehydrated state must reproduce the
	// last stored digest.
	latest, err := l.store.LatestDigest(ctx, entityType, recordID)
	if err != nil {
		return nil, err
	}
	switch {
	case latest == nil && exists:
		report.Discrepancies = append(report.Discrepancies, model.Discrepancy{
			Kind:     model.DiscrepancyDigest,
			Expected: seal.Compute(sc.Fields, rehydrated),
			Actual:   absentMark,
		})
	case latest != nil:
		resealed := seal.Compute(latest.FieldsIncluded, rehydrated)
		if !seal.Verify(latest.FieldsIncluded, rehydrated, latest.DigestValue) {
			report.Discrepancies = append(report.Discrepancies, model.Discrepancy{
				Kind:     model.DiscrepancyDigest,
				Expected: resealed,
				Actual:   latest.DigestValue,
			})
		}
	}

	report.Intact = len(report.Discrepancies) == 0
	return report, nil
}

// ChainOfCustody builds the ordered who-changed-what timeline for a record
// over [from, to], rendering the state digest as of each step. It replays the
// full event history so each entry's digest reflects the state immediately
// after that event applied.
func (l *Ledger) ChainOfCustody(ctx context.Context, entityType string, recordID int64, from, to time.Time) (*model.CustodyReport, error) {
	sc, err := l.cfg.Schemas.Lookup(entityType)
	if err != nil {
		return nil, err
	}
	reportID, err := idgen.Generate(idgen.ReportPrefix)
	if err != nil {
		return nil, err
	}

	events, err := l.store.EventsBetween(ctx, entityType, recordID, time.Time{}, to)
	if err != nil {
		return nil, fmt.Errorf("chain of custody %s/%d: %w", entityType, recordID, err)
	}

	report := &model.CustodyReport{
		ReportID:    reportID,
		EntityType:  entityType,
		RecordID:    recordID,
		From:        from,
		To:          to,
		GeneratedAt: time.Now().UTC(),
	}

	state := model.State{}
	exists := false
	for _, e := range events {
		state, exists = replay(state, exists, []*model.ChangeEvent{e}, sc, l.logger)
		if e.OccurredAt.Before(from) {
			continue
		}
		sealed := state
		if !exists {
			sealed = model.State{}
		}
		report.Entries = append(report.Entries, model.CustodyEntry{
			Event:  e,
			Actor:  e.Actor,
			Digest: seal.Compute(sc.Fields, sealed),
		})
	}
	report.TotalEvents = len(report.Entries)
	return report, nil
}

// Sweep verifies the digest chain of every tracked record: rehydrate to now,
// re-seal, and compare against the last stored digest. Records with no digest
// at all are counted as no-data rather than violations.
func (l *Ledger) Sweep(ctx context.Context) (*model.SweepResult, error) {
	runID, err := idgen.Generate(idgen.SweepPrefix)
	if err != nil {
		return nil, err
	}
	result := &model.SweepResult{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
	}

	refs, err := l.store.TrackedRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}

	for _, ref := range refs {
		result.Checked++

		latest, err := l.store.LatestDigest(ctx, ref.EntityType, ref.RecordID)
		if err != nil {
			return nil, fmt.Errorf("sweep %s: %w", ref, err)
		}
		if latest == nil {
			result.NoData++
			continue
		}

		rehydrated, err := l.Rehydrate(ctx, ref.EntityType, ref.RecordID, time.Now().UTC())
		if errors.Is(err, ErrNotFound) {
			rehydrated = model.State{}
		} else if err != nil {
			return nil, fmt.Errorf("sweep %s: %w", ref, err)
		}

		if seal.Verify(latest.FieldsIncluded, rehydrated, latest.DigestValue) {
			result.Intact++
		} else {
			result.Violations++
			result.Flagged = append(result.Flagged, ref)
			l.logger.Warn("integrity violation",
				"entity_type", ref.EntityType, "record_id", ref.RecordID,
				"digest_id", latest.DigestID)
		}
	}

	result.FinishedAt = time.Now().UTC()
	return result, nil
}

func presence(p bool) string {
	if p {
		return "present"
	}
	return "absent"
}

func fieldValue(s model.State, field string) model.Value {
	if v, ok := s[field]; ok {
		return v
	}
	return model.Null()
}

func renderValue(v model.Value) string {
	if v.IsNull() {
		return absentMark
	}
	return string(v.Type) + ":" + v.Raw
}
