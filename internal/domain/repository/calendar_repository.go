package repository

import (
	"context"

	"nestcheckout-service/internal/domain/entity"
)

// CalendarFeed retrieves and parses the booking calendar into raw entries.
type CalendarFeed interface {
	// Fetch returns every event in the feed. A fetch or parse failure is
	// reported as *entity.FeedError; the caller treats it as "skip this
	// tick", not as fatal.
	Fetch(ctx context.Context) ([]entity.CalendarEntry, error)
}
