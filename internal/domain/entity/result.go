// internal/domain/entity/result.go
package entity

import "time"

// ActionResult records the outcome of processing one checkout event. It
// is handed by value to the notification sink and surfaced unchanged on
// the status endpoint, including partial failures.
type ActionResult struct {
	ReservationID     string          `json:"reservation_id"`
	PropertyName      string          `json:"property"`
	GuestName         string          `json:"guest"`
	EventTime         time.Time       `json:"event_time"`
	ThermostatsOff    int             `json:"thermostats_off"`
	ThermostatsFailed int             `json:"thermostats_failed"`
	Results           map[string]bool `json:"results"`       // device id -> success
	NamedResults      map[string]bool `json:"named_results"` // display name -> success
	Error             string          `json:"error,omitempty"`
}

// Succeeded reports whether every targeted device was turned off.
func (r *ActionResult) Succeeded() bool {
	return r.Error == "" && r.ThermostatsFailed == 0
}

// StatusSnapshot is the plain status view exposed to the HTTP layer.
type StatusSnapshot struct {
	LastPollTime     *time.Time     `json:"last_poll_time"`
	NextPollTime     *time.Time     `json:"next_poll_time"`
	LastActionTime   *time.Time     `json:"last_action_time"`
	LastActionResult *ActionResult  `json:"last_action_result"`
	TokenExpiry      *time.Time     `json:"token_expiry"`
	ProcessedCount   int            `json:"processed_count"`
	Config           SnapshotConfig `json:"config"`
}

// SnapshotConfig echoes the policy parameters the orchestrator runs with.
type SnapshotConfig struct {
	PollIntervalMinutes   int      `json:"poll_interval_minutes"`
	CheckoutBufferMinutes int      `json:"checkout_buffer_minutes"`
	TriggerKeyword        string   `json:"trigger_keyword"`
	ConfiguredDeviceIDs   []string `json:"configured_device_ids"`
}
