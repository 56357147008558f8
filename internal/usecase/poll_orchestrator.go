package usecase

import (
	"context"
	"sync"
	"time"

	"nestcheckout-service/internal/domain/entity"
	"nestcheckout-service/internal/domain/repository"
	"nestcheckout-service/pkg/logger"
	"nestcheckout-service/pkg/metrics"
)

// TokenInfo exposes token diagnostics for the status snapshot.
type TokenInfo interface {
	Expiry() *time.Time
}

// OrchestratorConfig carries the policy parameters the orchestrator runs
// with, echoed back on the status snapshot.
type OrchestratorConfig struct {
	PollInterval    time.Duration
	CheckoutBuffer  time.Duration
	ProcessedMaxAge time.Duration
	TriggerKeyword  string
	DeviceIDs       []string
}

// PollOrchestrator runs the checkout pipeline: evict aged ledger entries,
// fetch the feed, select actionable events, drop already-processed ones,
// actuate thermostats and hand outcomes to the notifier. Scheduled and
// manual triggers run the identical sequence and are serialized so at
// most one tick is in flight.
type PollOrchestrator struct {
	feed     repository.CalendarFeed
	devices  repository.DeviceController
	notifier repository.Notifier
	policy   *CheckoutPolicy
	ledger   *ProcessedLedger
	tokens   TokenInfo
	config   OrchestratorConfig
	logger   logger.Logger
	metrics  *metrics.Metrics

	tickMu sync.Mutex // serializes ticks

	stateMu          sync.Mutex
	lastPollTime     *time.Time
	lastActionTime   *time.Time
	lastActionResult *entity.ActionResult
	nextRun          func() time.Time

	now func() time.Time
}

// NewPollOrchestrator wires the pipeline together.
func NewPollOrchestrator(
	feed repository.CalendarFeed,
	devices repository.DeviceController,
	notifier repository.Notifier,
	policy *CheckoutPolicy,
	ledger *ProcessedLedger,
	tokens TokenInfo,
	config OrchestratorConfig,
	logger logger.Logger,
	metrics *metrics.Metrics,
) *PollOrchestrator {
	return &PollOrchestrator{
		feed:     feed,
		devices:  devices,
		notifier: notifier,
		policy:   policy,
		ledger:   ledger,
		tokens:   tokens,
		config:   config,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// SetNextRunFunc registers a callback reporting the next scheduled tick,
// surfaced on the status snapshot.
func (o *PollOrchestrator) SetNextRunFunc(next func() time.Time) {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	o.nextRun = next
}

// RunPollTick runs one full pipeline pass. A feed failure skips the tick
// and is not an error; per-event failures are contained and logged.
func (o *PollOrchestrator) RunPollTick(ctx context.Context) error {
	o.tickMu.Lock()
	defer o.tickMu.Unlock()

	started := o.now()
	o.stateMu.Lock()
	o.lastPollTime = &started
	o.stateMu.Unlock()

	if o.metrics != nil {
		o.metrics.PollsTotal.Inc()
		timer := time.Now()
		defer func() {
			o.metrics.PollDuration.Observe(time.Since(timer).Seconds())
		}()
	}

	o.logger.Info("Running calendar poll")
	o.ledger.EvictOlderThan(o.config.ProcessedMaxAge)

	entries, err := o.feed.Fetch(ctx)
	if err != nil {
		o.logger.Warn("Could not fetch calendar, skipping this poll", "error", err)
		if o.metrics != nil {
			o.metrics.ErrorsCount.WithLabelValues("feed_fetch").Inc()
		}
		return nil
	}

	events := o.policy.DetectCheckouts(entries, o.now())
	o.logger.Info("Checkout events in time window", "count", len(events))

	triggered := make([]entity.CheckoutEvent, 0, len(events))
	for _, event := range events {
		if event.HasTriggerKeyword {
			triggered = append(triggered, event)
		}
	}
	o.logger.Info("Events with trigger keyword", "count", len(triggered))

	unprocessed := o.ledger.FilterUnprocessed(triggered)
	o.logger.Info("Unprocessed events", "count", len(unprocessed))

	for _, event := range unprocessed {
		if o.metrics != nil {
			o.metrics.CheckoutsDetected.Inc()
		}
		if err := o.processEvent(ctx, event); err != nil {
			// One failing event never aborts its siblings.
			o.logger.Error("Failed to process event",
				"reservationID", event.ReservationID,
				"error", err)
			if o.metrics != nil {
				o.metrics.ErrorsCount.WithLabelValues("process_event").Inc()
			}
		}
	}

	return nil
}

// processEvent turns off the target thermostats for one checkout event.
// The event is marked processed after actuation was attempted, regardless
// of per-device outcome, so permanently failing devices cannot cause
// repeat storms. The one exception is when no target devices resolve at
// all: the event stays unmarked and a later tick retries it.
func (o *PollOrchestrator) processEvent(ctx context.Context, event entity.CheckoutEvent) error {
	o.logger.Info("Processing checkout event",
		"reservationID", event.ReservationID,
		"property", event.PropertyName,
		"guest", event.GuestName,
		"eventStart", event.EventStart.Format(time.RFC3339))

	devices, err := o.devices.ListDevices(ctx, false)
	if err != nil {
		return err
	}

	idToName := make(map[string]string, len(devices))
	for _, d := range devices {
		idToName[d.DeviceID] = d.DisplayName
	}

	deviceIDs := o.config.DeviceIDs
	if len(deviceIDs) == 0 {
		o.logger.Warn("No specific device ids configured, using all discovered thermostats")
		for _, d := range devices {
			deviceIDs = append(deviceIDs, d.DeviceID)
		}
	}

	if len(deviceIDs) == 0 {
		o.logger.Error("No thermostats found to turn off", "reservationID", event.ReservationID)
		o.recordResult(&entity.ActionResult{
			ReservationID: event.ReservationID,
			PropertyName:  event.PropertyName,
			GuestName:     event.GuestName,
			EventTime:     event.EventStart,
			Error:         "No thermostats found",
		})
		return nil
	}

	o.logger.Info("Turning off thermostats", "count", len(deviceIDs))
	results := o.devices.TurnOffMany(ctx, deviceIDs)

	// Attempted counts as processed.
	o.ledger.MarkProcessed(event)

	successCount := 0
	for _, ok := range results {
		if ok {
			successCount++
		}
	}
	failCount := len(results) - successCount

	if o.metrics != nil {
		o.metrics.ThermostatCommands.WithLabelValues("success").Add(float64(successCount))
		o.metrics.ThermostatCommands.WithLabelValues("failure").Add(float64(failCount))
	}

	if failCount == 0 {
		o.logger.Info("Turned off all thermostats", "count", successCount)
	} else {
		o.logger.Warn("Some thermostats failed to turn off",
			"succeeded", successCount,
			"failed", failCount)
	}

	namedResults := make(map[string]bool, len(results))
	for deviceID, ok := range results {
		name := idToName[deviceID]
		if name == "" {
			name = deviceID
		}
		namedResults[name] = ok
	}

	result := &entity.ActionResult{
		ReservationID:     event.ReservationID,
		PropertyName:      event.PropertyName,
		GuestName:         event.GuestName,
		EventTime:         event.EventStart,
		ThermostatsOff:    successCount,
		ThermostatsFailed: failCount,
		Results:           results,
		NamedResults:      namedResults,
	}
	o.recordResult(result)

	if o.notifier != nil && o.notifier.IsConfigured() {
		if err := o.notifier.SendCheckoutNotification(ctx, result); err != nil {
			o.logger.Error("Failed to send notification", "error", err)
			if o.metrics != nil {
				o.metrics.ErrorsCount.WithLabelValues("notification").Inc()
			}
		} else if o.metrics != nil {
			o.metrics.NotificationsSent.Inc()
		}
	}

	return nil
}

func (o *PollOrchestrator) recordResult(result *entity.ActionResult) {
	now := o.now()
	o.stateMu.Lock()
	o.lastActionTime = &now
	o.lastActionResult = result
	o.stateMu.Unlock()
}

// Status returns a plain snapshot of the last attempted outcome and the
// configured policy parameters.
func (o *PollOrchestrator) Status() entity.StatusSnapshot {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()

	snapshot := entity.StatusSnapshot{
		LastPollTime:     o.lastPollTime,
		LastActionTime:   o.lastActionTime,
		LastActionResult: o.lastActionResult,
		ProcessedCount:   o.ledger.Len(),
		Config: entity.SnapshotConfig{
			PollIntervalMinutes:   int(o.config.PollInterval / time.Minute),
			CheckoutBufferMinutes: int(o.config.CheckoutBuffer / time.Minute),
			TriggerKeyword:        o.config.TriggerKeyword,
			ConfiguredDeviceIDs:   o.config.DeviceIDs,
		},
	}

	if o.tokens != nil {
		snapshot.TokenExpiry = o.tokens.Expiry()
	}
	if o.nextRun != nil {
		if next := o.nextRun(); !next.IsZero() {
			snapshot.NextPollTime = &next
		}
	}

	return snapshot
}

// ListDevices exposes the device inventory for the HTTP layer.
func (o *PollOrchestrator) ListDevices(ctx context.Context, forceRefresh bool) ([]entity.Thermostat, error) {
	return o.devices.ListDevices(ctx, forceRefresh)
}

// TurnOffDevice exposes single-device actuation for the HTTP layer.
func (o *PollOrchestrator) TurnOffDevice(ctx context.Context, deviceID string) error {
	return o.devices.TurnOff(ctx, deviceID)
}
