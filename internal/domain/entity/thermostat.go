// internal/domain/entity/thermostat.go
package entity

// Thermostat is a cached device record from the device-management API.
type Thermostat struct {
	DeviceID           string   `json:"device_id"`
	Name               string   `json:"name"`
	DisplayName        string   `json:"display_name"`
	CurrentMode        string   `json:"current_mode"`
	AmbientTemperature *float64 `json:"temperature_celsius,omitempty"`
	HumidityPercent    *float64 `json:"humidity_percent,omitempty"`
}

// Thermostat modes accepted by the device API.
const (
	ModeHeat     = "HEAT"
	ModeCool     = "COOL"
	ModeHeatCool = "HEATCOOL"
	ModeOff      = "OFF"
)
