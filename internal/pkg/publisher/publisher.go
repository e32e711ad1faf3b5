// Package publisher fans telemetry out to the registered sinks (MQTT,
// Postgres). Snapshots are flattened into sensor readings and a reading is
// only published when its value changed.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/anicoll/ato-dashboard/internal/pkg/model"
)

var errAlreadyRegistered = errors.New("publisher already registered")

const defaultDeviceName = "reef-ato"

type Publisher interface {
	Write(ctx context.Context, readings model.Readings) error
	RegisterDevice(ctx context.Context, device *model.Device) error
}

type Registry struct {
	mu         sync.Mutex
	publishers map[string]Publisher
	device     model.Device
	registered map[string]struct{}
	sensors    sync.Map
	now        func() time.Time
	logger     *zap.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		publishers: make(map[string]Publisher),
		registered: make(map[string]struct{}),
		device:     model.Device{Name: defaultDeviceName},
		now:        time.Now,
		logger:     zap.L(),
	}
}

func (r *Registry) Register(name string, p Publisher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.publishers[name]; ok {
		return errAlreadyRegistered
	}
	r.publishers[name] = p
	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.publishers)
}

// Identifier is the slug every sensor of device is published under.
func Identifier(device model.Device) string {
	return slug.Make(device.Name)
}

// Sensors flattens the fields present in s into sensors.
func Sensors(s model.Snapshot) []model.Sensor {
	sensors := []model.Sensor{
		boolSensor("Maintenance Mode", s.MaintenanceMode),
		boolSensor("Pumping", s.Pumping),
		boolSensor("Sump Low", s.SumpLow),
		boolSensor("RODI Low", s.RodiLow),
		boolSensor("Emergency High", s.EmergencyHigh),
		boolSensor("Error", s.Error),
		newSensor("Error Code", strconv.Itoa(int(s.ErrorCode)), ""),
		textSensor("Error Message", errorMessage(s)),
		boolSensor("Update Available", s.FirmwareUpdateAvailable || s.FrontendUpdateAvailable),
	}
	if s.Temperature != nil {
		sensors = append(sensors, newSensor("Temperature", strconv.FormatFloat(*s.Temperature, 'f', 2, 64), "°C"))
	}
	if s.MaintenanceRemaining != nil {
		sensors = append(sensors, newSensor("Maintenance Remaining", strconv.Itoa(*s.MaintenanceRemaining), "s"))
	}
	if s.LastPumpRun != nil && *s.LastPumpRun != 0 {
		sensors = append(sensors, textSensor("Last Pump Run", time.Unix(*s.LastPumpRun, 0).UTC().Format(time.RFC3339)))
	}
	if s.Uptime != nil {
		sensors = append(sensors, newSensor("Uptime", strconv.FormatInt(*s.Uptime, 10), "s"))
	}
	if s.WifiSignal != nil {
		sensors = append(sensors, newSensor("WiFi Signal", strconv.Itoa(*s.WifiSignal), "dBm"))
	}
	if s.FirmwareVersion != nil {
		sensors = append(sensors, textSensor("Firmware Version", *s.FirmwareVersion))
	}
	if s.MinTemp != nil {
		sensors = append(sensors, newSensor("Min Temperature", strconv.FormatFloat(*s.MinTemp, 'f', 2, 64), "°C"))
	}
	if s.MaxTemp != nil {
		sensors = append(sensors, newSensor("Max Temperature", strconv.FormatFloat(*s.MaxTemp, 'f', 2, 64), "°C"))
	}
	return sensors
}

func errorMessage(s model.Snapshot) string {
	if !s.Error {
		return "No Errors"
	}
	return s.ErrorCode.Message()
}

func newSensor(name, value, unit string) model.Sensor {
	return model.Sensor{Name: name, Slug: slug.Make(name), Value: value, Unit: unit}
}

func textSensor(name, value string) model.Sensor {
	s := newSensor(name, value, "")
	s.Text = true
	return s
}

func boolSensor(name string, v bool) model.Sensor {
	if v {
		return textSensor(name, "on")
	}
	return textSensor(name, "off")
}

// Publish writes the changed readings of s to every publisher. A failing
// publisher is logged and skipped.
func (r *Registry) Publish(ctx context.Context, s model.Snapshot) error {
	r.mu.Lock()
	if s.DeviceName != nil && *s.DeviceName != "" {
		r.device.Name = *s.DeviceName
	}
	if s.FirmwareVersion != nil {
		r.device.FirmwareVersion = *s.FirmwareVersion
	}
	device := r.device
	publishers := make(map[string]Publisher, len(r.publishers))
	for name, p := range r.publishers {
		publishers[name] = p
	}
	r.mu.Unlock()

	identifier := Identifier(device)
	now := r.now()
	readings := make(model.Readings, 0)
	for _, sensor := range Sensors(s) {
		if !r.shouldUpdate(identifier, sensor.Slug, sensor.Value) {
			continue
		}
		readings = append(readings, model.Reading{
			Timestamp:  now,
			Identifier: identifier,
			Slug:       sensor.Slug,
			Name:       sensor.Name,
			Value:      sensor.Value,
			Unit:       sensor.Unit,
			Text:       sensor.Text,
		})
	}
	if len(readings) == 0 {
		return nil
	}

	for name, p := range publishers {
		if err := r.registerDevice(ctx, name, p, device); err != nil {
			r.logger.Error("failed to register device", zap.Error(err), zap.String("publisher", name))
			continue
		}
		if err := p.Write(ctx, readings); err != nil {
			r.logger.Error("failed to publish data", zap.Error(err), zap.String("publisher", name))
			continue
		}
		r.logger.Debug("updated sensors", zap.Int("count", len(readings)), zap.String("publisher", name))
	}
	return nil
}

func (r *Registry) registerDevice(ctx context.Context, name string, p Publisher, device model.Device) error {
	key := fmt.Sprintf("%s_%s_%s", name, Identifier(device), device.FirmwareVersion)
	r.mu.Lock()
	_, done := r.registered[key]
	r.mu.Unlock()
	if done {
		return nil
	}
	if err := p.RegisterDevice(ctx, &device); err != nil {
		return err
	}
	r.mu.Lock()
	r.registered[key] = struct{}{}
	r.mu.Unlock()
	r.logger.Debug("registered device", zap.String("device", device.Name), zap.String("publisher", name))
	return nil
}

func (r *Registry) shouldUpdate(identifier, sensorSlug, newValue string) bool {
	key := fmt.Sprintf("%s_%s", identifier, sensorSlug)
	oldValue, exists := r.sensors.Load(key)
	if exists && strings.EqualFold(newValue, oldValue.(string)) {
		return false
	}
	if !exists {
		r.logger.Info("configured sensor", zap.String("device", identifier), zap.String("sensor", sensorSlug), zap.String("value", newValue))
	}
	r.sensors.Store(key, newValue)
	return true
}
