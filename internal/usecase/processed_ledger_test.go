package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestcheckout-service/internal/domain/entity"
	"nestcheckout-service/pkg/logger"
)

func eventWithID(id string) entity.CheckoutEvent {
	return entity.CheckoutEvent{ReservationID: id}
}

func TestLedger_FilterUnprocessed(t *testing.T) {
	ledger := NewProcessedLedger(logger.NewNop())

	events := []entity.CheckoutEvent{eventWithID("A"), eventWithID("B")}
	assert.Len(t, ledger.FilterUnprocessed(events), 2)

	ledger.MarkProcessed(eventWithID("A"))

	remaining := ledger.FilterUnprocessed(events)
	require.Len(t, remaining, 1)
	assert.Equal(t, "B", remaining[0].ReservationID)
}

func TestLedger_MarkedIDStaysExcluded(t *testing.T) {
	ledger := NewProcessedLedger(logger.NewNop())
	ledger.MarkProcessed(eventWithID("A"))

	// Same id, different field values: still the same event.
	duplicate := entity.CheckoutEvent{ReservationID: "A", GuestName: "Someone Else"}
	for i := 0; i < 3; i++ {
		assert.Empty(t, ledger.FilterUnprocessed([]entity.CheckoutEvent{duplicate}))
	}
}

func TestLedger_ReMarkingRefreshesAge(t *testing.T) {
	ledger := NewProcessedLedger(logger.NewNop())

	clock := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return clock }

	ledger.MarkProcessed(eventWithID("A"))

	// Re-mark 20 hours later; the entry's age restarts.
	clock = clock.Add(20 * time.Hour)
	ledger.MarkProcessed(eventWithID("A"))

	clock = clock.Add(10 * time.Hour)
	ledger.EvictOlderThan(24 * time.Hour)

	assert.Empty(t, ledger.FilterUnprocessed([]entity.CheckoutEvent{eventWithID("A")}))
}

func TestLedger_EvictionIsPureAging(t *testing.T) {
	ledger := NewProcessedLedger(logger.NewNop())

	marked := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	clock := marked
	ledger.now = func() time.Time { return clock }

	ledger.MarkProcessed(eventWithID("A"))

	// Just inside the age limit: still processed.
	clock = marked.Add(24*time.Hour - time.Second)
	ledger.EvictOlderThan(24 * time.Hour)
	assert.Empty(t, ledger.FilterUnprocessed([]entity.CheckoutEvent{eventWithID("A")}))

	// Past the age limit: evicted, id surfaces again.
	clock = marked.Add(24*time.Hour + time.Second)
	ledger.EvictOlderThan(24 * time.Hour)
	assert.Len(t, ledger.FilterUnprocessed([]entity.CheckoutEvent{eventWithID("A")}), 1)
	assert.Equal(t, 0, ledger.Len())
}

func TestLedger_Len(t *testing.T) {
	ledger := NewProcessedLedger(logger.NewNop())
	assert.Equal(t, 0, ledger.Len())

	ledger.MarkProcessed(eventWithID("A"))
	ledger.MarkProcessed(eventWithID("B"))
	ledger.MarkProcessed(eventWithID("A"))
	assert.Equal(t, 2, ledger.Len())
}
