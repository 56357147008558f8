// internal/domain/entity/calendar.go
package entity

import (
	"fmt"
	"time"
)

// CalendarEntry is a raw parsed calendar event. Entries are rebuilt on
// every feed fetch and never persisted.
type CalendarEntry struct {
	Start       time.Time
	End         time.Time
	Summary     string
	Description string
}

// CheckoutEvent is a guest checkout derived from a calendar entry.
// Identity is the reservation id alone: two events with the same id are
// the same event regardless of other fields.
type CheckoutEvent struct {
	ReservationID     string
	EventStart        time.Time
	EventEnd          time.Time
	PropertyName      string
	GuestName         string
	Summary           string
	Description       string
	HasTriggerKeyword bool
}

// FallbackReservationID builds a deterministic reservation id for entries
// whose description carries no labeled "Reservation:" field. Identical raw
// entries always produce the same id, so dedup survives re-fetching.
func FallbackReservationID(summary string, start time.Time) string {
	prefix := summary
	if len(prefix) > 20 {
		prefix = prefix[:20]
	}
	return fmt.Sprintf("%s_%s", prefix, start.UTC().Format(time.RFC3339))
}
