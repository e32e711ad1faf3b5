package control

import (
	"context"
	"errors"

	"github.com/anicoll/ato-dashboard/internal/pkg/model"
)

type mockSender struct {
	open bool
	sent []any
}

func (m *mockSender) Send(cmd any) bool {
	if !m.open {
		return false
	}
	m.sent = append(m.sent, cmd)
	return true
}

type mockPrompter struct {
	answer   bool
	confirms []string
	alerts   []string
}

func (m *mockPrompter) Confirm(message string) bool {
	m.confirms = append(m.confirms, message)
	return m.answer
}

func (m *mockPrompter) Alert(message string) {
	m.alerts = append(m.alerts, message)
}

type mockDevice struct {
	ResetWiFiFunc           func(ctx context.Context) (string, error)
	SetDeviceNameFunc       func(ctx context.Context, name string) (string, error)
	SetTemperatureRangeFunc func(ctx context.Context, th model.Thresholds) (string, error)
	CheckUpdatesFunc        func(ctx context.Context) (string, error)
	StatusFunc              func(ctx context.Context) (*model.Status, error)
	StartUpdateFunc         func(ctx context.Context) (string, error)
	TemperatureHistoryFunc  func(ctx context.Context) ([]model.TemperatureReading, error)
}

var errNotMocked = errors.New("not mocked")

func (m *mockDevice) ResetWiFi(ctx context.Context) (string, error) {
	if m.ResetWiFiFunc != nil {
		return m.ResetWiFiFunc(ctx)
	}
	return "", errNotMocked
}

func (m *mockDevice) SetDeviceName(ctx context.Context, name string) (string, error) {
	if m.SetDeviceNameFunc != nil {
		return m.SetDeviceNameFunc(ctx, name)
	}
	return "", errNotMocked
}

func (m *mockDevice) SetTemperatureRange(ctx context.Context, th model.Thresholds) (string, error) {
	if m.SetTemperatureRangeFunc != nil {
		return m.SetTemperatureRangeFunc(ctx, th)
	}
	return "", errNotMocked
}

func (m *mockDevice) CheckUpdates(ctx context.Context) (string, error) {
	if m.CheckUpdatesFunc != nil {
		return m.CheckUpdatesFunc(ctx)
	}
	return "", errNotMocked
}

func (m *mockDevice) Status(ctx context.Context) (*model.Status, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx)
	}
	return nil, errNotMocked
}

func (m *mockDevice) StartUpdate(ctx context.Context) (string, error) {
	if m.StartUpdateFunc != nil {
		return m.StartUpdateFunc(ctx)
	}
	return "", errNotMocked
}

func (m *mockDevice) TemperatureHistory(ctx context.Context) ([]model.TemperatureReading, error) {
	if m.TemperatureHistoryFunc != nil {
		return m.TemperatureHistoryFunc(ctx)
	}
	return nil, errNotMocked
}

type mockSession struct {
	thresholds []model.Thresholds
	began      int
	failed     int
}

func (m *mockSession) SetThresholds(_ context.Context, th model.Thresholds) error {
	m.thresholds = append(m.thresholds, th)
	return nil
}

func (m *mockSession) BeginUpdate()  { m.began++ }
func (m *mockSession) UpdateFailed() { m.failed++ }

type mockWatcher struct {
	started int
}

func (m *mockWatcher) Start(context.Context) { m.started++ }
