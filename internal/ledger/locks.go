package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/alfredjeanlab/provenance/internal/model"
)

// recordLocks serializes writers per (entity_type, record_id). Each record gets
// a weighted semaphore of capacity one; acquisition is bounded by the
// configured lock timeout so a stuck writer surfaces as an error instead of a
// pile-up.
type recordLocks struct {
	mu   sync.Mutex
	sems map[model.RecordRef]*semaphore.Weighted
}

func newRecordLocks() *recordLocks {
	return &recordLocks{sems: make(map[model.RecordRef]*semaphore.Weighted)}
}

func (l *recordLocks) sem(ref model.RecordRef) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sems[ref]
	if !ok {
		s = semaphore.NewWeighted(1)
		l.sems[ref] = s
	}
	return s
}

// acquire blocks until the record's lock is held or the timeout elapses. The
// returned release function must be called exactly once.
func (l *recordLocks) acquire(ctx context.Context, ref model.RecordRef, timeout time.Duration) (func(), error) {
	s := l.sem(ref)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire write lock for %s: %w", ref, err)
	}
	return func() { s.Release(1) }, nil
}
