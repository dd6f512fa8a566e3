// Package memory provides an in-memory store.Store used by tests and by the
// ephemeral server mode. It mirrors the ordering and nil-on-absence semantics
// of the postgres store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/provenance/internal/model"
	"github.com/alfredjeanlab/provenance/internal/store"
)

// MemoryStore implements store.Store with in-process slices. All methods are
// safe for concurrent use.
type MemoryStore struct {
	mu sync.RWMutex

	events    []*model.ChangeEvent
	digests   []*model.IntegrityDigest
	snapshots []*model.Snapshot

	nextEventID    int64
	nextDigestID   int64
	nextSnapshotID int64
}

var _ store.Store = (*MemoryStore)(nil)

// New creates an empty in-memory store.
func New() *MemoryStore {
	return &MemoryStore{
		nextEventID:    1,
		nextDigestID:   1,
		nextSnapshotID: 1,
	}
}

func (s *MemoryStore) AppendEvent(ctx context.Context, event *model.ChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.EventID = s.nextEventID
	s.nextEventID++
	cp := *event
	s.events = append(s.events, &cp)
	return nil
}

func (s *MemoryStore) EventsBetween(ctx context.Context, entityType string, recordID int64, from, to time.Time) ([]*model.ChangeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.ChangeEvent
	for _, e := range s.events {
		if e.EntityType != entityType || e.RecordID != recordID {
			continue
		}
		if e.OccurredAt.Before(from) || e.OccurredAt.After(to) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sortEvents(out)
	return out, nil
}

func (s *MemoryStore) EventsSince(ctx context.Context, entityType string, recordID int64, after, until time.Time) ([]*model.ChangeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.ChangeEvent
	for _, e := range s.events {
		if e.EntityType != entityType || e.RecordID != recordID {
			continue
		}
		if !e.OccurredAt.After(after) || e.OccurredAt.After(until) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sortEvents(out)
	return out, nil
}

func (s *MemoryStore) CountEventsSince(ctx context.Context, entityType string, recordID int64, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, e := range s.events {
		if e.EntityType == entityType && e.RecordID == recordID && e.OccurredAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) RecentEvents(ctx context.Context, entityType string, limit int) ([]*model.ChangeEvent, error) {
	if limit <= 0 {
		limit = 25
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.ChangeEvent
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.events[i]
		if entityType != "" && e.EntityType != entityType {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) AllEvents(ctx context.Context) ([]*model.ChangeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.ChangeEvent, 0, len(s.events))
	for _, e := range s.events {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) AppendDigest(ctx context.Context, digest *model.IntegrityDigest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	digest.DigestID = s.nextDigestID
	s.nextDigestID++
	cp := *digest
	s.digests = append(s.digests, &cp)
	return nil
}

func (s *MemoryStore) LatestDigest(ctx context.Context, entityType string, recordID int64) (*model.IntegrityDigest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *model.IntegrityDigest
	for _, d := range s.digests {
		if d.EntityType != entityType || d.RecordID != recordID {
			continue
		}
		if latest == nil || d.ComputedAt.After(latest.ComputedAt) ||
			(d.ComputedAt.Equal(latest.ComputedAt) && d.DigestID > latest.DigestID) {
			latest = d
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) DigestsBetween(ctx context.Context, entityType string, recordID int64, from, to time.Time) ([]*model.IntegrityDigest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.IntegrityDigest
	for _, d := range s.digests {
		if d.EntityType != entityType || d.RecordID != recordID {
			continue
		}
		if d.ComputedAt.Before(from) || d.ComputedAt.After(to) {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ComputedAt.Equal(out[j].ComputedAt) {
			return out[i].ComputedAt.Before(out[j].ComputedAt)
		}
		return out[i].DigestID < out[j].DigestID
	})
	return out, nil
}

func (s *MemoryStore) AllDigests(ctx context.Context) ([]*model.IntegrityDigest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.IntegrityDigest, 0, len(s.digests))
	for _, d := range s.digests {
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) AppendSnapshot(ctx context.Context, snapshot *model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot.SnapshotID = s.nextSnapshotID
	s.nextSnapshotID++
	cp := *snapshot
	cp.State = snapshot.State.Clone()
	s.snapshots = append(s.snapshots, &cp)
	return nil
}

func (s *MemoryStore) NearestSnapshot(ctx context.Context, entityType string, recordID int64, at time.Time) (*model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var nearest *model.Snapshot
	for _, snap := range s.snapshots {
		if snap.EntityType != entityType || snap.RecordID != recordID {
			continue
		}
		if snap.TakenAt.After(at) {
			continue
		}
		if nearest == nil || snap.TakenAt.After(nearest.TakenAt) ||
			(snap.TakenAt.Equal(nearest.TakenAt) && snap.SnapshotID > nearest.SnapshotID) {
			nearest = snap
		}
	}
	if nearest == nil {
		return nil, nil
	}
	cp := *nearest
	cp.State = nearest.State.Clone()
	return &cp, nil
}

func (s *MemoryStore) AllSnapshots(ctx context.Context) ([]*model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Snapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		cp := *snap
		cp.State = snap.State.Clone()
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) TrackedRecords(ctx context.Context) ([]model.RecordRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[model.RecordRef]bool)
	var refs []model.RecordRef
	for _, e := range s.events {
		ref := e.Ref()
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].EntityType != refs[j].EntityType {
			return refs[i].EntityType < refs[j].EntityType
		}
		return refs[i].RecordID < refs[j].RecordID
	})
	return refs, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (*model.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &model.Stats{
		TotalEvents: len(s.events),
		ByEntity:    make(map[string]int),
		ByOperation: make(map[string]int),
		ByActor:     make(map[string]int),
	}
	for _, e := range s.events {
		stats.ByEntity[e.EntityType]++
		stats.ByOperation[string(e.Operation)]++
		stats.ByActor[e.Actor]++
	}
	return stats, nil
}

// txMark records the store's high-water marks at transaction entry. The
// tables are append-only, so truncating back to a mark is a complete revert.
type txMark struct {
	events, digests, snapshots                int
	nextEventID, nextDigestID, nextSnapshotID int64
}

// RunInTransaction executes fn against the store and reverts every append made
// through it if fn returns an error, so a failed unit leaves no partial rows.
func (s *MemoryStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	s.mu.Lock()
	mark := txMark{
		events:         len(s.events),
		digests:        len(s.digests),
		snapshots:      len(s.snapshots),
		nextEventID:    s.nextEventID,
		nextDigestID:   s.nextDigestID,
		nextSnapshotID: s.nextSnapshotID,
	}
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.events = s.events[:mark.events]
		s.digests = s.digests[:mark.digests]
		s.snapshots = s.snapshots[:mark.snapshots]
		s.nextEventID = mark.nextEventID
		s.nextDigestID = mark.nextDigestID
		s.nextSnapshotID = mark.nextSnapshotID
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func sortEvents(events []*model.ChangeEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].OccurredAt.Equal(events[j].OccurredAt) {
			return events[i].OccurredAt.Before(events[j].OccurredAt)
		}
		return events[i].EventID < events[j].EventID
	})
}
