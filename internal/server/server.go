// Package server exposes the ledger over HTTP and publishes ledger activity
// to the event bus.
package server

import (
	"context"
	"log/slog"

	"github.com/alfredjeanlab/provenance/internal/events"
	"github.com/alfredjeanlab/provenance/internal/ledger"
)

// LedgerServer wires the ledger core to the HTTP transport and the event bus.
type LedgerServer struct {
	ledger    *ledger.Ledger
	publisher events.Publisher
	logger    *slog.Logger
}

// NewLedgerServer returns a new LedgerServer backed by the given ledger and
// publisher.
func NewLedgerServer(l *ledger.Ledger, p events.Publisher, logger *slog.Logger) *LedgerServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerServer{
		ledger:    l,
		publisher: p,
		logger:    logger,
	}
}

// publish emits an event to the bus. Publishing is best-effort; failures are
// logged but never fail the request that produced the event.
func (s *LedgerServer) publish(ctx context.Context, topic string, event any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("failed to publish event", "topic", topic, "error", err)
	}
}
