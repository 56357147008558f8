package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"nestcheckout-service/internal/domain/entity"
	"nestcheckout-service/internal/domain/repository"
	"nestcheckout-service/pkg/logger"
	"nestcheckout-service/pkg/retry"
)

// DefaultSDMBaseURL is the Smart Device Management API base URL.
const DefaultSDMBaseURL = "https://smartdevicemanagement.googleapis.com/v1"

const (
	traitInfo           = "sdm.devices.traits.Info"
	traitThermostatMode = "sdm.devices.traits.ThermostatMode"
	traitTemperature    = "sdm.devices.traits.Temperature"
	traitHumidity       = "sdm.devices.traits.Humidity"

	commandSetMode = "sdm.devices.commands.ThermostatMode.SetMode"
)

// TokenProvider supplies a valid bearer token for each outbound call.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// SDMDeviceRepository controls thermostats through the SDM REST API. It
// owns an in-process device cache which is replaced wholesale on forced
// refresh and otherwise served for the process lifetime.
type SDMDeviceRepository struct {
	projectID string
	baseURL   string
	tokens    TokenProvider
	client    *http.Client
	policy    retry.Policy
	logger    logger.Logger

	mu    sync.Mutex
	cache []entity.Thermostat
}

// NewSDMDeviceRepository creates a device repository against the public
// SDM endpoint.
func NewSDMDeviceRepository(projectID string, tokens TokenProvider, logger logger.Logger) repository.DeviceController {
	return NewSDMDeviceRepositoryWithBaseURL(projectID, DefaultSDMBaseURL, tokens, logger)
}

// NewSDMDeviceRepositoryWithBaseURL creates a device repository against a
// custom base URL. Used in tests.
func NewSDMDeviceRepositoryWithBaseURL(projectID, baseURL string, tokens TokenProvider, logger logger.Logger) repository.DeviceController {
	return &SDMDeviceRepository{
		projectID: projectID,
		baseURL:   strings.TrimRight(baseURL, "/"),
		tokens:    tokens,
		client:    &http.Client{Timeout: 30 * time.Second},
		policy:    retry.DefaultPolicy(),
		logger:    logger,
	}
}

// ListDevices returns the thermostat inventory. The cache is bypassed
// only when empty or when forceRefresh is set.
func (r *SDMDeviceRepository) ListDevices(ctx context.Context, forceRefresh bool) ([]entity.Thermostat, error) {
	r.mu.Lock()
	if len(r.cache) > 0 && !forceRefresh {
		cached := r.cache
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	url := fmt.Sprintf("%s/enterprises/%s/devices", r.baseURL, r.projectID)
	r.logger.Info("Fetching devices", "url", url)

	var body []byte
	err := r.policy.Do(ctx, func() error {
		var opErr error
		body, opErr = r.doRequest(ctx, http.MethodGet, url, nil, "list_devices")
		return opErr
	}, isRetryable)
	if err != nil {
		return nil, err
	}

	var listing struct {
		Devices []struct {
			Name   string                     `json:"name"`
			Traits map[string]json.RawMessage `json:"traits"`
		} `json:"devices"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, &entity.DeviceAPIError{Operation: "list_devices", Err: fmt.Errorf("decode listing: %w", err)}
	}

	thermostats := make([]entity.Thermostat, 0, len(listing.Devices))
	for _, device := range listing.Devices {
		parts := strings.Split(device.Name, "/")
		deviceID := parts[len(parts)-1]

		modeRaw, ok := device.Traits[traitThermostatMode]
		if !ok {
			r.logger.Debug("Skipping non-thermostat device", "deviceID", deviceID)
			continue
		}

		thermostat := entity.Thermostat{
			DeviceID:    deviceID,
			Name:        device.Name,
			DisplayName: "Unknown",
			CurrentMode: "UNKNOWN",
		}

		var mode struct {
			Mode string `json:"mode"`
		}
		if err := json.Unmarshal(modeRaw, &mode); err == nil && mode.Mode != "" {
			thermostat.CurrentMode = mode.Mode
		}

		if infoRaw, ok := device.Traits[traitInfo]; ok {
			var info struct {
				CustomName string `json:"customName"`
			}
			if err := json.Unmarshal(infoRaw, &info); err == nil && info.CustomName != "" {
				thermostat.DisplayName = info.CustomName
			}
		}

		if tempRaw, ok := device.Traits[traitTemperature]; ok {
			var temp struct {
				AmbientTemperatureCelsius *float64 `json:"ambientTemperatureCelsius"`
			}
			if err := json.Unmarshal(tempRaw, &temp); err == nil {
				thermostat.AmbientTemperature = temp.AmbientTemperatureCelsius
			}
		}

		if humidityRaw, ok := device.Traits[traitHumidity]; ok {
			var humidity struct {
				AmbientHumidityPercent *float64 `json:"ambientHumidityPercent"`
			}
			if err := json.Unmarshal(humidityRaw, &humidity); err == nil {
				thermostat.HumidityPercent = humidity.AmbientHumidityPercent
			}
		}

		thermostats = append(thermostats, thermostat)
		r.logger.Info("Found thermostat",
			"name", thermostat.DisplayName,
			"deviceID", thermostat.DeviceID,
			"mode", thermostat.CurrentMode)
	}

	r.mu.Lock()
	r.cache = thermostats
	r.mu.Unlock()

	return thermostats, nil
}

// SetMode transitions one device to the requested mode (HEAT, COOL,
// HEATCOOL, OFF).
func (r *SDMDeviceRepository) SetMode(ctx context.Context, deviceID, mode string) error {
	url := fmt.Sprintf("%s/enterprises/%s/devices/%s:executeCommand", r.baseURL, r.projectID, deviceID)

	payload, err := json.Marshal(map[string]interface{}{
		"command": commandSetMode,
		"params":  map[string]string{"mode": mode},
	})
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	r.logger.Info("Setting thermostat mode", "deviceID", deviceID, "mode", mode)

	err = r.policy.Do(ctx, func() error {
		_, opErr := r.doRequest(ctx, http.MethodPost, url, payload, "set_mode")
		return opErr
	}, isRetryable)
	if err != nil {
		return err
	}

	r.logger.Info("Thermostat mode set", "deviceID", deviceID, "mode", mode)
	return nil
}

// TurnOff sets a single device to OFF.
func (r *SDMDeviceRepository) TurnOff(ctx context.Context, deviceID string) error {
	return r.SetMode(ctx, deviceID, entity.ModeOff)
}

// TurnOffMany turns off each device sequentially. A failure on one device
// is recorded as false and never aborts the remaining devices.
func (r *SDMDeviceRepository) TurnOffMany(ctx context.Context, deviceIDs []string) map[string]bool {
	results := make(map[string]bool, len(deviceIDs))

	for _, deviceID := range deviceIDs {
		if err := r.TurnOff(ctx, deviceID); err != nil {
			r.logger.Error("Failed to turn off thermostat", "deviceID", deviceID, "error", err)
			results[deviceID] = false
			continue
		}
		results[deviceID] = true
	}

	return results
}

// DeviceStatus returns the current state of one device from a forced
// listing, or nil if it is not present.
func (r *SDMDeviceRepository) DeviceStatus(ctx context.Context, deviceID string) (*entity.Thermostat, error) {
	devices, err := r.ListDevices(ctx, true)
	if err != nil {
		return nil, err
	}
	for i := range devices {
		if devices[i].DeviceID == deviceID {
			return &devices[i], nil
		}
	}
	return nil, nil
}

// doRequest performs one authenticated call and returns the response
// body. Non-2xx responses become *entity.DeviceAPIError carrying the
// status code for the retry predicate.
func (r *SDMDeviceRepository) doRequest(ctx context.Context, method, url string, payload []byte, operation string) ([]byte, error) {
	token, err := r.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, &entity.DeviceAPIError{Operation: operation, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &entity.DeviceAPIError{Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &entity.DeviceAPIError{Operation: operation, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &entity.DeviceAPIError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	return body, nil
}

// isRetryable is the retry predicate for device API calls. Auth failures
// will not self-resolve, so they are never retried.
func isRetryable(err error) bool {
	var authErr *entity.AuthError
	if errors.As(err, &authErr) {
		return false
	}
	var apiErr *entity.DeviceAPIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}
