package render

import "github.com/anicoll/ato-dashboard/internal/pkg/model"

type SystemInfo struct {
	DeviceName      string `json:"device_name"`
	Uptime          string `json:"uptime"`
	WifiSignal      string `json:"wifi_signal"`
	FirmwareVersion string `json:"fw_version"`
	FrontendVersion string `json:"frontend_version"`
}

type UpdateNotice struct {
	UpdateView
	Updating      bool `json:"updating"`
	ButtonEnabled bool `json:"button_enabled"`
}

// Screen is everything the dashboard currently shows.
type Screen struct {
	Connection    ConnectionView   `json:"connection"`
	Maintenance   MaintenanceView  `json:"maintenance"`
	CountdownText string           `json:"countdown"`
	Pump          PumpView         `json:"pump"`
	Levels        LevelsView       `json:"levels"`
	Temperature   TemperatureView  `json:"temperature"`
	SafeRange     string           `json:"safe_range"`
	Thresholds    model.Thresholds `json:"thresholds"`
	Error         ErrorView        `json:"error"`
	System        SystemInfo       `json:"system"`
	Update        UpdateNotice     `json:"update"`
	HasTelemetry  bool             `json:"has_telemetry"`
}

func NewScreen(th model.Thresholds) Screen {
	return Screen{
		Connection: Connection(model.Disconnected),
		SafeRange:  FormatRange(th),
		Thresholds: th,
		Error:      ErrorView{Message: "No Errors", Class: "card"},
	}
}

// Apply folds a View into the screen. While an update is in flight the
// update banner is owned by the updater and is left alone.
func (s *Screen) Apply(v View) {
	s.HasTelemetry = true
	s.Maintenance = v.Maintenance
	if v.Maintenance.Countdown == CountdownStop {
		s.CountdownText = ""
	}
	lastRun := s.Pump.LastRun
	s.Pump = v.Pump
	if s.Pump.LastRun == nil {
		s.Pump.LastRun = lastRun
	}
	s.Levels = v.Levels
	if v.Temperature != nil {
		s.Temperature = *v.Temperature
	}
	s.SafeRange = v.SafeRange
	s.Error = v.Error

	setIf(&s.System.DeviceName, v.System.DeviceName)
	setIf(&s.System.Uptime, v.System.Uptime)
	setIf(&s.System.WifiSignal, v.System.WifiSignal)
	setIf(&s.System.FirmwareVersion, v.System.FirmwareVersion)
	setIf(&s.System.FrontendVersion, v.System.FrontendVersion)

	if v.Thresholds != nil {
		s.Thresholds = *v.Thresholds
	}
	if !s.Update.Updating {
		s.Update.UpdateView = v.Update
		s.Update.ButtonEnabled = v.Update.Visible
	}
}

func setIf(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
