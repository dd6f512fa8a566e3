// Package sweep runs the periodic out-of-band integrity sweep: every tracked
// record's digest chain is re-verified on a schedule, and violations are
// published to the event bus for downstream alerting.
package sweep

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/provenance/internal/events"
	"github.com/alfredjeanlab/provenance/internal/ledger"
)

// Scheduler re-verifies the ledger at a fixed interval.
type Scheduler struct {
	ledger    *ledger.Ledger
	publisher events.Publisher
	interval  time.Duration
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that sweeps the ledger at the given
// interval and publishes each run's result.
func NewScheduler(l *ledger.Ledger, pub events.Publisher, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		ledger:    l,
		publisher: pub,
		interval:  interval,
		logger:    logger,
	}
}

// Start begins periodic sweeping. The first sweep runs after one interval,
// not immediately, so startup is not dominated by a full-ledger scan.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Scheduler) sweepOnce(ctx context.Context) {
	result, err := s.ledger.Sweep(ctx)
	if err != nil {
		s.logger.Error("integrity sweep failed", "err", err)
		return
	}

	s.logger.Info("integrity sweep completed",
		"run_id", result.RunID,
		"checked", result.Checked,
		"intact", result.Intact,
		"violations", result.Violations,
		"no_data", result.NoData)

	if err := s.publisher.Publish(ctx, events.TopicSweepCompleted, events.SweepCompleted{Result: result}); err != nil {
		s.logger.Warn("publish sweep result failed", "err", err)
	}
}
