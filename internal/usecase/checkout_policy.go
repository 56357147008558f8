package usecase

import (
	"strings"
	"time"

	"nestcheckout-service/internal/domain/entity"
	"nestcheckout-service/pkg/logger"
	"nestcheckout-service/pkg/utils"
)

// CheckoutPolicy decides which calendar entries are live checkout events.
// An entry passes the time window when it started within the buffer before
// now, or is currently ongoing. Among windowed entries, a checkout is one
// whose summary says check-out or whose description carries the trigger
// keyword; only trigger-keyword events are actually actuated downstream.
type CheckoutPolicy struct {
	triggerKeyword string
	buffer         time.Duration
	logger         logger.Logger
}

// NewCheckoutPolicy creates a policy with the configured trigger keyword
// and actionable-window buffer.
func NewCheckoutPolicy(triggerKeyword string, buffer time.Duration, logger logger.Logger) *CheckoutPolicy {
	return &CheckoutPolicy{
		triggerKeyword: triggerKeyword,
		buffer:         buffer,
		logger:         logger,
	}
}

// DetectCheckouts filters entries down to checkout events inside the
// actionable window. The window and content checks run per entry, since
// each entry has its own start and end.
func (p *CheckoutPolicy) DetectCheckouts(entries []entity.CalendarEntry, now time.Time) []entity.CheckoutEvent {
	bufferStart := now.Add(-p.buffer)
	events := make([]entity.CheckoutEvent, 0)

	for _, entry := range entries {
		inWindow := !entry.Start.Before(bufferStart) && !entry.Start.After(now)
		ongoing := !entry.Start.After(now) && !entry.End.Before(now)
		if !inWindow && !ongoing {
			continue
		}

		hasTrigger := p.triggerKeyword != "" &&
			strings.Contains(strings.ToUpper(entry.Description), strings.ToUpper(p.triggerKeyword))

		lowerSummary := strings.ToLower(entry.Summary)
		isCheckout := strings.Contains(lowerSummary, "check-out") || strings.Contains(lowerSummary, "checkout")

		if !isCheckout && !hasTrigger {
			continue
		}

		events = append(events, p.buildEvent(entry, hasTrigger))
	}

	return events
}

// buildEvent constructs the checkout event for a qualifying entry. The
// reservation id comes from the labeled description field when present;
// otherwise a deterministic fallback id is synthesized so re-fetched
// entries keep their identity.
func (p *CheckoutPolicy) buildEvent(entry entity.CalendarEntry, hasTrigger bool) entity.CheckoutEvent {
	reservationID, ok := utils.ExtractReservationID(entry.Description)
	if !ok {
		reservationID = entity.FallbackReservationID(entry.Summary, entry.Start)
		p.logger.Debug("No reservation id in description, using fallback",
			"reservationID", reservationID)
	}

	return entity.CheckoutEvent{
		ReservationID:     reservationID,
		EventStart:        entry.Start,
		EventEnd:          entry.End,
		PropertyName:      utils.ExtractPropertyName(entry.Description),
		GuestName:         utils.ExtractGuestName(entry.Description),
		Summary:           entry.Summary,
		Description:       entry.Description,
		HasTriggerKeyword: hasTrigger,
	}
}
