// Package control turns user intents into controller commands. Socket
// commands are fire and forget; HTTP actions confirm first where the
// action is disruptive and report the outcome through a Prompter.
package control

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/ato-dashboard/internal/pkg/model"
)

var (
	ErrNotConfirmed      = errors.New("action not confirmed")
	ErrEmptyDeviceName   = errors.New("device name is empty")
	ErrInvalidDeviceName = errors.New("device name may only contain letters, digits and hyphens")
	ErrInvalidRange      = errors.New("invalid temperature range")
)

const (
	MsgConfirmResetWiFi = "Are you sure you want to reset WiFi settings? This will reboot the device."
	MsgWiFiReset        = "WiFi will be reset. Rebooting!"
	MsgWiFiResetFailed  = "Failed to reset WiFi."
	MsgEmptyName        = "Please enter a device name."
	MsgInvalidName      = "Invalid device name (use alphanumeric + hyphen)"
	MsgInvalidRange     = "Minimum temperature must be below maximum."
	MsgRangeFailed      = "Failed to update temperature range."
	MsgNoUpdates        = "No updates available."
	MsgCheckFailed      = "Failed to check for updates."

	// the firmware stores the name in a 40 byte buffer including the suffix
	maxDeviceNameLen = 35
	deviceNameSuffix = "-ato"
)

// Prompter asks the user to confirm an action and shows acknowledgements.
type Prompter interface {
	Confirm(message string) bool
	Alert(message string)
}

type Sender interface {
	Send(cmd any) bool
}

type Device interface {
	ResetWiFi(ctx context.Context) (string, error)
	SetDeviceName(ctx context.Context, name string) (string, error)
	SetTemperatureRange(ctx context.Context, th model.Thresholds) (string, error)
	CheckUpdates(ctx context.Context) (string, error)
	Status(ctx context.Context) (*model.Status, error)
	StartUpdate(ctx context.Context) (string, error)
	TemperatureHistory(ctx context.Context) ([]model.TemperatureReading, error)
}

type Session interface {
	SetThresholds(ctx context.Context, th model.Thresholds) error
	BeginUpdate()
	UpdateFailed()
}

type Watcher interface {
	Start(ctx context.Context)
}

// ChartPoint is one history sample as [epoch milliseconds, °C].
type ChartPoint [2]float64

type Dispatcher struct {
	sender   Sender
	device   Device
	session  Session
	prompter Prompter
	watcher  Watcher
	reload   func()
	lifetime context.Context
	logger   *zap.Logger
}

type Option func(*Dispatcher)

// WithWatcher starts w, bound to lifetime, once an update has been accepted.
func WithWatcher(lifetime context.Context, w Watcher) Option {
	return func(d *Dispatcher) {
		d.lifetime = lifetime
		d.watcher = w
	}
}

// WithReload sets what happens when the dashboard must be reloaded.
func WithReload(fn func()) Option {
	return func(d *Dispatcher) {
		d.reload = fn
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

func New(sender Sender, device Device, session Session, prompter Prompter, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender:   sender,
		device:   device,
		session:  session,
		prompter: prompter,
		reload:   func() {},
		lifetime: context.Background(),
		logger:   zap.L(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ToggleMaintenance pauses (true) or resumes (false) the ATO. It reports
// whether the command went out; nothing is queued while disconnected.
func (d *Dispatcher) ToggleMaintenance(enable bool) bool {
	return d.sender.Send(model.MaintenanceCommand{Maintenance: enable})
}

func (d *Dispatcher) ResetError() bool {
	return d.sender.Send(model.ResetErrorCommand{ResetError: true})
}

func (d *Dispatcher) ResetWiFi(ctx context.Context) error {
	if !d.prompter.Confirm(MsgConfirmResetWiFi) {
		return ErrNotConfirmed
	}
	if _, err := d.device.ResetWiFi(ctx); err != nil {
		d.logger.Error("reset wifi failed", zap.Error(err))
		d.prompter.Alert(MsgWiFiResetFailed)
		return err
	}
	d.prompter.Alert(MsgWiFiReset)
	return nil
}

// ValidateDeviceName trims name and checks it the way the firmware does.
func ValidateDeviceName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyDeviceName
	}
	if len(name) > maxDeviceNameLen {
		return "", ErrInvalidDeviceName
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-') {
			return "", ErrInvalidDeviceName
		}
	}
	return name, nil
}

func (d *Dispatcher) SetDeviceName(ctx context.Context, name string) error {
	name, err := ValidateDeviceName(name)
	switch {
	case errors.Is(err, ErrEmptyDeviceName):
		d.prompter.Alert(MsgEmptyName)
		return err
	case err != nil:
		d.prompter.Alert(MsgInvalidName)
		return err
	}
	if !d.prompter.Confirm(`Are you sure you want to change the device name to "` + name + deviceNameSuffix + `"?`) {
		return ErrNotConfirmed
	}
	text, err := d.device.SetDeviceName(ctx, name)
	d.surface(text, err, "Failed to update device name.")
	return err
}

func (d *Dispatcher) SetTemperatureRange(ctx context.Context, minTemp, maxTemp float64) error {
	if !finite(minTemp) || !finite(maxTemp) || minTemp >= maxTemp {
		d.prompter.Alert(MsgInvalidRange)
		return ErrInvalidRange
	}
	th := model.Thresholds{Min: minTemp, Max: maxTemp}
	if err := d.session.SetThresholds(ctx, th); err != nil {
		d.logger.Error("failed to store thresholds locally", zap.Error(err))
	}
	text, err := d.device.SetTemperatureRange(ctx, th)
	d.surface(text, err, MsgRangeFailed)
	return err
}

// CheckForUpdates asks the device to look for updates and reloads the
// dashboard when one became available.
func (d *Dispatcher) CheckForUpdates(ctx context.Context) error {
	if _, err := d.device.CheckUpdates(ctx); err != nil {
		d.prompter.Alert(MsgCheckFailed)
		return err
	}
	status, err := d.device.Status(ctx)
	if err != nil {
		d.prompter.Alert(MsgCheckFailed)
		return err
	}
	if status.UpdateAvailable() {
		d.reload()
		return nil
	}
	d.prompter.Alert(MsgNoUpdates)
	return nil
}

// StartUpdate triggers the one click update and watches for the reboot.
func (d *Dispatcher) StartUpdate(ctx context.Context) error {
	d.session.BeginUpdate()
	if _, err := d.device.StartUpdate(ctx); err != nil {
		d.logger.Error("update request failed", zap.Error(err))
		d.session.UpdateFailed()
		return err
	}
	if d.watcher != nil {
		d.watcher.Start(d.lifetime)
	}
	return nil
}

func (d *Dispatcher) TemperatureHistory(ctx context.Context) ([]ChartPoint, error) {
	readings, err := d.device.TemperatureHistory(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(readings, func(r model.TemperatureReading, _ int) ChartPoint {
		return ChartPoint{float64(r.Timestamp * 1000), r.Temperature}
	}), nil
}

// surface shows the device's reply verbatim, or fallback when there is none.
func (d *Dispatcher) surface(text string, err error, fallback string) {
	switch {
	case text != "":
		d.prompter.Alert(text)
	case err != nil:
		d.prompter.Alert(fallback)
	}
	if err != nil {
		d.logger.Warn("device rejected request", zap.Error(err))
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
