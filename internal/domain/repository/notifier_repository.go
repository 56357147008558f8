package repository

import (
	"context"

	"nestcheckout-service/internal/domain/entity"
)

// Notifier delivers the outcome of a processed checkout event.
type Notifier interface {
	// IsConfigured reports whether the sink has enough configuration to
	// deliver anything. Unconfigured sinks are skipped silently.
	IsConfigured() bool

	// SendCheckoutNotification delivers one outcome record.
	SendCheckoutNotification(ctx context.Context, result *entity.ActionResult) error
}
