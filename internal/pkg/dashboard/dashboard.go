// Package dashboard owns the state of one dashboard session: the cached
// thresholds, the installed web UI version, the maintenance countdown and
// the accumulated screen.
package dashboard

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/ato-dashboard/internal/pkg/contxt"
	"github.com/anicoll/ato-dashboard/internal/pkg/countdown"
	"github.com/anicoll/ato-dashboard/internal/pkg/model"
	"github.com/anicoll/ato-dashboard/internal/pkg/render"
)

const (
	MsgUpdating      = "Updating firmware... Device will reboot when done."
	MsgUpdateFailed  = "Update failed!"
	MsgRebooting     = "Device rebooting, waiting to reconnect..."
	defaultHideDelay = 5 * time.Second
	defaultLookup    = 3 * time.Second
)

type ThresholdStore interface {
	SaveThresholds(ctx context.Context, th model.Thresholds) error
}

type VersionSource interface {
	FrontendVersion(ctx context.Context) (string, error)
}

type Dashboard struct {
	renderer      *render.Renderer
	countdown     *countdown.Countdown
	countdownOpts []countdown.Option
	store         ThresholdStore
	versions      VersionSource
	lookupTimeout time.Duration
	hideDelay     time.Duration
	loc           *time.Location
	logger        *zap.Logger

	mu         sync.Mutex
	screen     render.Screen
	thresholds model.Thresholds
	version    string
	hideTimer  *time.Timer
	listeners  []func(model.Snapshot)
}

type Option func(*Dashboard)

func WithStore(s ThresholdStore) Option {
	return func(d *Dashboard) {
		d.store = s
	}
}

func WithVersionSource(v VersionSource) Option {
	return func(d *Dashboard) {
		d.versions = v
	}
}

func WithVersionTimeout(t time.Duration) Option {
	return func(d *Dashboard) {
		d.lookupTimeout = t
	}
}

func WithLocation(loc *time.Location) Option {
	return func(d *Dashboard) {
		d.loc = loc
	}
}

func WithBannerHideDelay(t time.Duration) Option {
	return func(d *Dashboard) {
		d.hideDelay = t
	}
}

func WithCountdownOptions(opts ...countdown.Option) Option {
	return func(d *Dashboard) {
		d.countdownOpts = append(d.countdownOpts, opts...)
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(d *Dashboard) {
		d.logger = l
	}
}

// New starts a session with the thresholds loaded from local storage.
func New(th model.Thresholds, opts ...Option) *Dashboard {
	d := &Dashboard{
		lookupTimeout: defaultLookup,
		hideDelay:     defaultHideDelay,
		logger:        zap.L(),
		thresholds:    th,
		screen:        render.NewScreen(th),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.renderer = render.NewRenderer(d.loc)
	d.countdown = countdown.New(d.showCountdown, d.countdownOpts...)
	return d
}

// showCountdown runs under the countdown's lock. d.mu is never held while
// calling into the countdown, so the lock order is countdown then d.mu.
func (d *Dashboard) showCountdown(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.screen.CountdownText = text
}

// OnSnapshot registers fn to receive every snapshot after it was rendered.
func (d *Dashboard) OnSnapshot(fn func(model.Snapshot)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, fn)
}

// HandleSnapshot projects s onto the screen.
func (d *Dashboard) HandleSnapshot(s model.Snapshot) {
	version := d.resolveVersion(s)

	view := d.renderer.Render(s, d.Thresholds(), version)
	if view.Maintenance.Countdown == render.CountdownStop {
		// stop before applying so a late tick cannot repaint the cleared text
		d.countdown.Stop()
	}

	d.mu.Lock()
	d.screen.Apply(view)
	var adopted *model.Thresholds
	if view.Thresholds != nil && *view.Thresholds != d.thresholds {
		d.thresholds = *view.Thresholds
		adopted = view.Thresholds
	}
	listeners := append([]func(model.Snapshot){}, d.listeners...)
	d.mu.Unlock()

	if view.Maintenance.Countdown == render.CountdownStart {
		d.countdown.Start(view.Maintenance.CountdownSeconds)
	}
	if adopted != nil {
		d.persist(*adopted)
	}
	for _, fn := range listeners {
		fn(s)
	}
}

// resolveVersion prefers the version carried by the snapshot. Otherwise
// the device's version document is read, once per session while it
// yields a real version.
func (d *Dashboard) resolveVersion(s model.Snapshot) string {
	if render.KnownVersion(s.FrontendVersion) {
		d.mu.Lock()
		d.version = *s.FrontendVersion
		d.mu.Unlock()
		return *s.FrontendVersion
	}

	d.mu.Lock()
	cached := d.version
	d.mu.Unlock()
	if render.KnownVersion(&cached) {
		return cached
	}
	if d.versions == nil {
		return model.UnknownVersion
	}

	version, err := d.versions.FrontendVersion(contxt.NewContext(d.lookupTimeout))
	if err != nil {
		d.logger.Debug("frontend version lookup failed", zap.Error(err))
		version = model.UnknownVersion
	}
	d.mu.Lock()
	d.version = version
	d.mu.Unlock()
	return version
}

func (d *Dashboard) persist(th model.Thresholds) {
	if d.store == nil {
		return
	}
	if err := d.store.SaveThresholds(contxt.NewContext(d.lookupTimeout), th); err != nil {
		d.logger.Error("failed to store thresholds", zap.Error(err))
	}
}

func (d *Dashboard) SetConnectionState(state model.ConnectionState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.screen.Connection = render.Connection(state)
}

// SetThresholds stores th locally and uses it for the following snapshots.
func (d *Dashboard) SetThresholds(ctx context.Context, th model.Thresholds) error {
	if d.store != nil {
		if err := d.store.SaveThresholds(ctx, th); err != nil {
			return err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.thresholds = th
	d.screen.Thresholds = th
	d.screen.SafeRange = render.FormatRange(th)
	return nil
}

func (d *Dashboard) Thresholds() model.Thresholds {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.thresholds
}

// FrontendVersion is the installed web UI version last resolved.
func (d *Dashboard) FrontendVersion() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.version == "" {
		return model.UnknownVersion
	}
	return d.version
}

// BeginUpdate locks the update banner while the device installs an update.
func (d *Dashboard) BeginUpdate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopHideLocked()
	d.screen.Update.Updating = true
	d.screen.Update.Visible = true
	d.screen.Update.Message = MsgUpdating
	d.screen.Update.ButtonEnabled = false
}

// UpdateFailed re-enables the update control and hides the banner after
// the hide delay.
func (d *Dashboard) UpdateFailed() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopHideLocked()
	d.screen.Update.Updating = false
	d.screen.Update.Visible = true
	d.screen.Update.Message = MsgUpdateFailed
	d.screen.Update.ButtonEnabled = true

	var timer *time.Timer
	timer = time.AfterFunc(d.hideDelay, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.hideTimer != timer {
			return
		}
		d.hideTimer = nil
		d.screen.Update.Visible = false
	})
	d.hideTimer = timer
}

// RebootPending reports that the device went offline during an update.
func (d *Dashboard) RebootPending() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.screen.Update.Updating = true
	d.screen.Update.Visible = true
	d.screen.Update.Message = MsgRebooting
}

func (d *Dashboard) stopHideLocked() {
	if d.hideTimer != nil {
		d.hideTimer.Stop()
		d.hideTimer = nil
	}
}

// Reset starts the screen over as a freshly loaded page would, keeping the
// thresholds and connection state.
func (d *Dashboard) Reset() {
	d.countdown.Stop()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopHideLocked()
	conn := d.screen.Connection
	d.screen = render.NewScreen(d.thresholds)
	d.screen.Connection = conn
	d.version = ""
}

// Screen returns a copy of the current screen.
func (d *Dashboard) Screen() render.Screen {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.screen
}

func (d *Dashboard) Close() {
	d.countdown.Stop()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopHideLocked()
}
