package repository

import (
	"context"

	"nestcheckout-service/internal/domain/entity"
)

// DeviceController issues commands to remote thermostat devices.
type DeviceController interface {
	// ListDevices returns the thermostat inventory, served from cache
	// unless the cache is empty or forceRefresh is set.
	ListDevices(ctx context.Context, forceRefresh bool) ([]entity.Thermostat, error)

	// SetMode transitions one device to the requested mode.
	SetMode(ctx context.Context, deviceID, mode string) error

	// TurnOff sets a single device to OFF.
	TurnOff(ctx context.Context, deviceID string) error

	// TurnOffMany turns off each device in turn. A failure on one device
	// never aborts the others; it is recorded as false in the result map.
	TurnOffMany(ctx context.Context, deviceIDs []string) map[string]bool

	// DeviceStatus returns the current state of one device from a forced
	// listing, or nil if the device is not present.
	DeviceStatus(ctx context.Context, deviceID string) (*entity.Thermostat, error)
}
