package model

// Snapshot is one telemetry payload pushed by the controller over /ws.
// Optional fields are pointers so that an absent field can be told apart from a zero value.
type Snapshot struct {
	MaintenanceMode      bool   `json:"maintenance_mode"`
	MaintenanceRemaining *int   `json:"maintenance_remaining,omitempty"` // seconds
	Pumping              bool   `json:"pumping"`
	LastPumpRun          *int64 `json:"last_pump_run,omitempty"` // epoch seconds

	SumpLow       bool `json:"sump_low"`
	RodiLow       bool `json:"rodi_low"`
	EmergencyHigh bool `json:"emergency_high"`

	Temperature *float64 `json:"temperature,omitempty"` // ℃

	Error     bool      `json:"error"`
	ErrorCode ErrorCode `json:"error_code"`

	DeviceName      *string `json:"device_name,omitempty"`
	Uptime          *int64  `json:"uptime,omitempty"`      // seconds
	WifiSignal      *int    `json:"wifi_signal,omitempty"` // dBm
	FirmwareVersion *string `json:"fw_version,omitempty"`
	FrontendVersion *string `json:"frontend_version,omitempty"`

	MinTemp *float64 `json:"min_temp,omitempty"`
	MaxTemp *float64 `json:"max_temp,omitempty"`

	FirmwareUpdateAvailable bool    `json:"firmware_update_available"`
	FrontendUpdateAvailable bool    `json:"frontend_update_available"`
	FirmwareUpdateVersion   *string `json:"firmware_update_version,omitempty"`
	FrontendUpdateVersion   *string `json:"frontend_update_version,omitempty"`
	FirmwareUpdateURL       *string `json:"firmware_update_url,omitempty"`
}

// Status is the body of GET /api/status. The firmware serialises the same
// document it pushes over the websocket.
type Status Snapshot

// UpdateAvailable reports whether the device advertises a firmware or web UI update.
func (s Status) UpdateAvailable() bool {
	return s.FirmwareUpdateAvailable || s.FrontendUpdateAvailable
}

// Thresholds is the safe temperature range, cached locally between sessions.
type Thresholds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DefaultThresholds is used when nothing has been stored yet.
var DefaultThresholds = Thresholds{Min: 22.0, Max: 30.0}

// TemperatureReading is one entry of GET /temperature_history.
type TemperatureReading struct {
	Timestamp   int64   `json:"timestamp"` // epoch seconds
	Temperature float64 `json:"temperature"`
}

// FrontendVersion is the body of GET /frontend_version.json.
type FrontendVersion struct {
	Version string `json:"version"`
}

// UnknownVersion is what the firmware reports when it cannot read the web UI version.
const UnknownVersion = "unknown"
