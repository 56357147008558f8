package usecase

import (
	"sync"
	"time"

	"nestcheckout-service/internal/domain/entity"
	"nestcheckout-service/pkg/logger"
)

// ProcessedLedger is the in-memory idempotency set keyed by reservation
// id. Once an id is marked processed, the same event is excluded from
// every later tick until the entry ages out. Eviction keeps memory
// bounded at the cost of re-triggering very old id collisions.
type ProcessedLedger struct {
	mu      sync.Mutex
	entries map[string]time.Time
	logger  logger.Logger

	now func() time.Time
}

// NewProcessedLedger creates an empty ledger.
func NewProcessedLedger(logger logger.Logger) *ProcessedLedger {
	return &ProcessedLedger{
		entries: make(map[string]time.Time),
		logger:  logger,
		now:     time.Now,
	}
}

// FilterUnprocessed returns the events whose reservation id is not
// currently marked processed. It has no side effects.
func (l *ProcessedLedger) FilterUnprocessed(events []entity.CheckoutEvent) []entity.CheckoutEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	unprocessed := make([]entity.CheckoutEvent, 0, len(events))
	for _, event := range events {
		if _, ok := l.entries[event.ReservationID]; !ok {
			unprocessed = append(unprocessed, event)
		}
	}
	return unprocessed
}

// MarkProcessed records an event's reservation id with the current
// timestamp. Re-marking an already-marked id refreshes its age.
func (l *ProcessedLedger) MarkProcessed(event entity.CheckoutEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[event.ReservationID] = l.now()
	l.logger.Info("Marked event as processed", "reservationID", event.ReservationID)
}

// EvictOlderThan removes entries marked before now minus maxAge. It is
// called once at the start of each tick so the cutoff is evaluated at a
// single instant.
func (l *ProcessedLedger) EvictOlderThan(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-maxAge)
	evicted := 0
	for id, markedAt := range l.entries {
		if markedAt.Before(cutoff) {
			delete(l.entries, id)
			evicted++
		}
	}

	if evicted > 0 {
		l.logger.Info("Evicted aged ledger entries", "count", evicted)
	}
}

// Len returns the number of currently marked reservation ids.
func (l *ProcessedLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
