// Package render projects telemetry snapshots onto dashboard state.
//
// Render is pure: given a snapshot, the locally cached thresholds and the
// installed web UI version it returns a View describing what every dashboard
// region should show. A Screen accumulates Views; regions that a snapshot
// leaves out keep their previous value.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/anicoll/ato-dashboard/internal/pkg/model"
)

type CountdownAction int

const (
	CountdownStop CountdownAction = iota
	CountdownStart
)

type MaintenanceView struct {
	Label         string `json:"label"`
	Class         string `json:"class"`
	PauseEnabled  bool   `json:"pause_enabled"`
	ResumeEnabled bool   `json:"resume_enabled"`

	Countdown        CountdownAction `json:"-"`
	CountdownSeconds int             `json:"-"`
}

type PumpView struct {
	Status  string  `json:"status"`
	Class   string  `json:"class"`
	LastRun *string `json:"last_run,omitempty"`
}

type LevelView struct {
	Label string `json:"label"`
	Class string `json:"class"`
}

type LevelsView struct {
	Sump      LevelView `json:"sump"`
	RODI      LevelView `json:"rodi"`
	Emergency LevelView `json:"emergency"`
}

type TemperatureView struct {
	Text  string `json:"text"`
	Class string `json:"class"`
}

type ErrorView struct {
	Visible      bool   `json:"visible"`
	Message      string `json:"message"`
	CodeText     string `json:"code_text"`
	Class        string `json:"class"`
	ResetVisible bool   `json:"reset_visible"`
}

// SystemView is sparse: nil fields were not present in the snapshot.
type SystemView struct {
	DeviceName      *string `json:"device_name,omitempty"`
	Uptime          *string `json:"uptime,omitempty"`
	WifiSignal      *string `json:"wifi_signal,omitempty"`
	FirmwareVersion *string `json:"fw_version,omitempty"`
	FrontendVersion *string `json:"frontend_version,omitempty"`
}

type UpdateView struct {
	Visible           bool   `json:"visible"`
	Message           string `json:"message"`
	FirmwareAvailable bool   `json:"firmware_available"`
	FrontendAvailable bool   `json:"frontend_available"`
}

// View is the set of changes one snapshot makes to the dashboard.
type View struct {
	Maintenance MaintenanceView
	Pump        PumpView
	Levels      LevelsView
	Temperature *TemperatureView
	SafeRange   string
	Error       ErrorView
	System      SystemView
	Update      UpdateView
	// Thresholds is set when the snapshot carried min/max values; they
	// become authoritative from the next snapshot on.
	Thresholds *model.Thresholds
}

type Renderer struct {
	loc *time.Location
}

func NewRenderer(loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.Local
	}
	return &Renderer{loc: loc}
}

// Render classifies temperature against th, the cached thresholds, not the
// ones carried by s.
func (r *Renderer) Render(s model.Snapshot, th model.Thresholds, frontendVersion string) View {
	v := View{
		Maintenance: maintenanceView(s),
		Pump:        r.pumpView(s),
		Levels:      levelsView(s),
		SafeRange:   FormatRange(th),
		Error:       errorView(s),
		System:      systemView(s, frontendVersion),
		Update:      UpdateBanner(s, frontendVersion),
	}
	if s.Temperature != nil {
		v.Temperature = &TemperatureView{
			Text:  FormatTemperature(*s.Temperature),
			Class: temperatureClass(*s.Temperature, th),
		}
	}
	if s.MinTemp != nil || s.MaxTemp != nil {
		next := th
		if s.MinTemp != nil {
			next.Min = *s.MinTemp
		}
		if s.MaxTemp != nil {
			next.Max = *s.MaxTemp
		}
		v.Thresholds = &next
	}
	return v
}

func maintenanceView(s model.Snapshot) MaintenanceView {
	if s.MaintenanceMode {
		remaining := 0
		if s.MaintenanceRemaining != nil {
			remaining = *s.MaintenanceRemaining
		}
		return MaintenanceView{
			Label:            "Maintenance",
			Class:            "warning-text",
			PauseEnabled:     false,
			ResumeEnabled:    true,
			Countdown:        CountdownStart,
			CountdownSeconds: remaining,
		}
	}
	return MaintenanceView{
		Label:         "Active",
		Class:         "success-text",
		PauseEnabled:  true,
		ResumeEnabled: false,
		Countdown:     CountdownStop,
	}
}

func (r *Renderer) pumpView(s model.Snapshot) PumpView {
	pv := PumpView{Status: "Inactive", Class: "inactive"}
	switch {
	case s.Pumping:
		pv.Status, pv.Class = "Active", "active"
	case s.MaintenanceMode:
		pv.Status, pv.Class = "Paused", "warning"
	}
	if s.LastPumpRun != nil && *s.LastPumpRun != 0 {
		lastRun := FormatLastRun(*s.LastPumpRun, r.loc)
		pv.LastRun = &lastRun
	}
	return pv
}

func levelsView(s model.Snapshot) LevelsView {
	return LevelsView{
		Sump:      lowLevel(s.SumpLow),
		RODI:      lowLevel(s.RodiLow),
		Emergency: highLevel(s.EmergencyHigh),
	}
}

func lowLevel(low bool) LevelView {
	if low {
		return LevelView{Label: "Low", Class: "warning"}
	}
	return LevelView{Label: "Normal", Class: "normal"}
}

func highLevel(high bool) LevelView {
	if high {
		return LevelView{Label: "HIGH!", Class: "error"}
	}
	return LevelView{Label: "Normal", Class: "normal"}
}

func temperatureClass(t float64, th model.Thresholds) string {
	switch {
	case t > th.Max:
		return "temp-high"
	case t < th.Min:
		return "temp-low"
	default:
		return "temp-ok"
	}
}

func errorView(s model.Snapshot) ErrorView {
	if !s.Error {
		return ErrorView{Message: "No Errors", Class: "card"}
	}
	return ErrorView{
		Visible:      true,
		Message:      s.ErrorCode.Message(),
		CodeText:     fmt.Sprintf("Error Code: %d", s.ErrorCode),
		Class:        "card error",
		ResetVisible: s.ErrorCode.Recoverable(),
	}
}

func systemView(s model.Snapshot, frontendVersion string) SystemView {
	sv := SystemView{
		DeviceName:      s.DeviceName,
		FirmwareVersion: s.FirmwareVersion,
	}
	if s.Uptime != nil {
		up := FormatUptime(*s.Uptime)
		sv.Uptime = &up
	}
	if s.WifiSignal != nil {
		sig := FormatSignal(*s.WifiSignal)
		sv.WifiSignal = &sig
	}
	if frontendVersion != "" {
		sv.FrontendVersion = &frontendVersion
	}
	return sv
}

// UpdateBanner composes the update notice. A web UI update is only announced
// when both the installed and offered versions are known and differ.
func UpdateBanner(s model.Snapshot, installedFrontend string) UpdateView {
	uv := UpdateView{}
	if !s.FirmwareUpdateAvailable && !s.FrontendUpdateAvailable {
		return uv
	}

	offered := "?"
	if s.FrontendUpdateVersion != nil && *s.FrontendUpdateVersion != "" {
		offered = *s.FrontendUpdateVersion
	}
	showFrontend := s.FrontendUpdateAvailable &&
		installedFrontend != "" &&
		installedFrontend != model.UnknownVersion &&
		offered != "?" &&
		installedFrontend != offered

	var parts []string
	if s.FirmwareUpdateAvailable {
		fw, next := "", "?"
		if s.FirmwareVersion != nil {
			fw = *s.FirmwareVersion
		}
		if s.FirmwareUpdateVersion != nil && *s.FirmwareUpdateVersion != "" {
			next = *s.FirmwareUpdateVersion
		}
		parts = append(parts, fmt.Sprintf("New firmware available (v%s -> server v%s)", fw, next))
		uv.FirmwareAvailable = true
	}
	if showFrontend {
		parts = append(parts, fmt.Sprintf("New web UI available (v%s -> server v%s)", installedFrontend, offered))
		uv.FrontendAvailable = true
	}
	uv.Message = strings.Join(parts, " & ")
	uv.Visible = uv.Message != ""
	return uv
}

// KnownVersion reports whether v is a usable web UI version string.
func KnownVersion(v *string) bool {
	return v != nil && *v != "" && *v != model.UnknownVersion
}

type ConnectionView struct {
	State model.ConnectionState `json:"state"`
	Class string                `json:"class"`
	Text  string                `json:"text"`
}

func Connection(state model.ConnectionState) ConnectionView {
	cv := ConnectionView{State: state, Class: "status-indicator " + state.String()}
	switch state {
	case model.Connected:
		cv.Text = "Connected"
	case model.Disconnected:
		cv.Text = "Disconnected"
	case model.Connecting:
		cv.Text = "Connecting..."
	case model.ConnError:
		cv.Text = "Connection Error"
	}
	return cv
}
