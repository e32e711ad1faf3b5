package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/anicoll/ato-dashboard/internal/pkg/countdown"
	"github.com/anicoll/ato-dashboard/internal/pkg/model"
)

type mockStore struct {
	mu    sync.Mutex
	saved []model.Thresholds
	err   error
}

func (m *mockStore) SaveThresholds(_ context.Context, th model.Thresholds) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, th)
	return nil
}

func (m *mockStore) all() []model.Thresholds {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Thresholds(nil), m.saved...)
}

type mockVersions struct {
	mu      sync.Mutex
	calls   int
	version string
	err     error
}

func (m *mockVersions) FrontendVersion(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.version, m.err
}

func (m *mockVersions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type manualTicker struct {
	ticks chan time.Time
}

func (m *manualTicker) ticker(time.Duration) (<-chan time.Time, func()) {
	return m.ticks, func() {}
}

func newTestDashboard(t *testing.T, opts ...Option) *Dashboard {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t)), WithLocation(time.UTC)}, opts...)
	d := New(model.DefaultThresholds, opts...)
	t.Cleanup(d.Close)
	return d
}

func TestDashboard_ThresholdAdoption(t *testing.T) {
	store := &mockStore{}
	d := newTestDashboard(t, WithStore(store))

	d.HandleSnapshot(model.Snapshot{
		Temperature: lo.ToPtr(29.5),
		MinTemp:     lo.ToPtr(24.0),
		MaxTemp:     lo.ToPtr(29.0),
	})
	screen := d.Screen()
	assert.Equal(t, "temp-ok", screen.Temperature.Class, "classified with the cached range")
	assert.Equal(t, model.Thresholds{Min: 24, Max: 29}, d.Thresholds())
	assert.Equal(t, []model.Thresholds{{Min: 24, Max: 29}}, store.all())

	d.HandleSnapshot(model.Snapshot{
		Temperature: lo.ToPtr(29.5),
		MinTemp:     lo.ToPtr(24.0),
		MaxTemp:     lo.ToPtr(29.0),
	})
	screen = d.Screen()
	assert.Equal(t, "temp-high", screen.Temperature.Class)
	assert.Equal(t, "24 - 29°C", screen.SafeRange)
	assert.Len(t, store.all(), 1, "unchanged thresholds are not rewritten")
}

func TestDashboard_VersionResolution(t *testing.T) {
	tests := map[string]struct {
		snapshotVersion *string
		source          *mockVersions
		want            string
		lookups         int
	}{
		"snapshot carries version": {
			snapshotVersion: lo.ToPtr("1.1"),
			source:          &mockVersions{version: "9.9"},
			want:            "1.1",
		},
		"snapshot reports unknown": {
			snapshotVersion: lo.ToPtr("unknown"),
			source:          &mockVersions{version: "1.2"},
			want:            "1.2",
			lookups:         1,
		},
		"looked up once": {
			source:  &mockVersions{version: "1.3"},
			want:    "1.3",
			lookups: 1,
		},
		"lookup fails": {
			source:  &mockVersions{err: errors.New("offline")},
			want:    "unknown",
			lookups: 2,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			d := newTestDashboard(t, WithVersionSource(tt.source))
			for range 2 {
				d.HandleSnapshot(model.Snapshot{FrontendVersion: tt.snapshotVersion})
			}
			assert.Equal(t, tt.want, d.FrontendVersion())
			assert.Equal(t, tt.lookups, tt.source.count())
			assert.Equal(t, tt.want, d.Screen().System.FrontendVersion)
		})
	}
}

func TestDashboard_UnknownVersionSuppressesWebUIBanner(t *testing.T) {
	d := newTestDashboard(t)
	d.HandleSnapshot(model.Snapshot{
		FrontendUpdateAvailable: true,
		FrontendUpdateVersion:   lo.ToPtr("2.0"),
	})
	assert.False(t, d.Screen().Update.Visible)
}

func TestDashboard_Countdown(t *testing.T) {
	clock := &manualTicker{ticks: make(chan time.Time)}
	d := newTestDashboard(t, WithCountdownOptions(countdown.WithTicker(clock.ticker)))

	d.HandleSnapshot(model.Snapshot{MaintenanceMode: true, MaintenanceRemaining: lo.ToPtr(65)})
	screen := d.Screen()
	assert.Equal(t, "Maintenance ends in: 01:05", screen.CountdownText)
	assert.True(t, screen.Maintenance.ResumeEnabled)
	assert.False(t, screen.Maintenance.PauseEnabled)

	clock.ticks <- time.Now()
	assert.Eventually(t, func() bool {
		return d.Screen().CountdownText == "Maintenance ends in: 01:04"
	}, time.Second, 5*time.Millisecond)

	d.HandleSnapshot(model.Snapshot{})
	assert.Empty(t, d.Screen().CountdownText)
	select {
	case clock.ticks <- time.Now():
		t.Fatal("countdown still running after maintenance ended")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDashboard_UpdateBannerLifecycle(t *testing.T) {
	d := newTestDashboard(t, WithBannerHideDelay(20*time.Millisecond))
	offer := model.Snapshot{
		FirmwareUpdateAvailable: true,
		FirmwareVersion:         lo.ToPtr("1.0.0"),
		FirmwareUpdateVersion:   lo.ToPtr("1.1.0"),
	}

	d.HandleSnapshot(offer)
	screen := d.Screen()
	assert.True(t, screen.Update.Visible)
	assert.True(t, screen.Update.ButtonEnabled)

	d.BeginUpdate()
	d.HandleSnapshot(offer)
	screen = d.Screen()
	assert.Equal(t, MsgUpdating, screen.Update.Message)
	assert.False(t, screen.Update.ButtonEnabled)

	d.RebootPending()
	assert.Equal(t, MsgRebooting, d.Screen().Update.Message)

	d.UpdateFailed()
	screen = d.Screen()
	assert.Equal(t, MsgUpdateFailed, screen.Update.Message)
	assert.True(t, screen.Update.ButtonEnabled)
	assert.True(t, screen.Update.Visible)
	assert.Eventually(t, func() bool { return !d.Screen().Update.Visible }, time.Second, 5*time.Millisecond)
}

func TestDashboard_SetThresholds(t *testing.T) {
	store := &mockStore{}
	d := newTestDashboard(t, WithStore(store))

	require.NoError(t, d.SetThresholds(context.Background(), model.Thresholds{Min: 23, Max: 27.5}))
	assert.Equal(t, "23 - 27.5°C", d.Screen().SafeRange)
	assert.Equal(t, []model.Thresholds{{Min: 23, Max: 27.5}}, store.all())

	store.err = errors.New("disk full")
	assert.Error(t, d.SetThresholds(context.Background(), model.Thresholds{Min: 1, Max: 2}))
	assert.Equal(t, model.Thresholds{Min: 23, Max: 27.5}, d.Thresholds())
}

func TestDashboard_ListenersAndConnection(t *testing.T) {
	d := newTestDashboard(t)
	var got []model.Snapshot
	d.OnSnapshot(func(s model.Snapshot) { got = append(got, s) })

	d.SetConnectionState(model.Connected)
	d.HandleSnapshot(model.Snapshot{Pumping: true})

	require.Len(t, got, 1)
	assert.True(t, got[0].Pumping)
	screen := d.Screen()
	assert.Equal(t, "Connected", screen.Connection.Text)
	assert.Equal(t, "Active", screen.Pump.Status)
	assert.True(t, screen.HasTelemetry)
}

func TestDashboard_Reset(t *testing.T) {
	versions := &mockVersions{version: "1.0"}
	d := newTestDashboard(t, WithVersionSource(versions))
	d.SetConnectionState(model.Connected)
	d.HandleSnapshot(model.Snapshot{DeviceName: lo.ToPtr("reef-ato")})

	d.Reset()
	screen := d.Screen()
	assert.False(t, screen.HasTelemetry)
	assert.Empty(t, screen.System.DeviceName)
	assert.Equal(t, "Connected", screen.Connection.Text)

	d.HandleSnapshot(model.Snapshot{})
	assert.Equal(t, 2, versions.count(), "version is looked up again after a reset")
}
