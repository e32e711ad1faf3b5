package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/anicoll/ato-dashboard/internal/pkg/config"
	"github.com/anicoll/ato-dashboard/internal/pkg/control"
	"github.com/anicoll/ato-dashboard/internal/pkg/dashboard"
	"github.com/anicoll/ato-dashboard/internal/pkg/device"
	"github.com/anicoll/ato-dashboard/internal/pkg/model"
	"github.com/anicoll/ato-dashboard/internal/pkg/render"
	"github.com/anicoll/ato-dashboard/internal/pkg/store"
	"github.com/anicoll/ato-dashboard/internal/pkg/watcher"
)

const (
	connectTimeout = 10 * time.Second
	msgBackOnline  = "Device is back online."
)

var (
	errNotConnected = errors.New("controller not reachable")
	errUsage        = errors.New("invalid arguments")
)

// cliPrompter asks on the terminal. With assumeYes every confirmation is
// granted without asking. Alerts may come from watcher goroutines.
type cliPrompter struct {
	mu        sync.Mutex
	in        *bufio.Reader
	out       io.Writer
	assumeYes bool
}

func newCLIPrompter(in io.Reader, out io.Writer, assumeYes bool) *cliPrompter {
	return &cliPrompter{in: bufio.NewReader(in), out: out, assumeYes: assumeYes}
}

func (p *cliPrompter) Confirm(message string) bool {
	if p.assumeYes {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s [y/N]: ", message)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func (p *cliPrompter) Alert(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, message)
}

// noSocket stands in for the connection in commands that only use HTTP.
type noSocket struct{}

func (noSocket) Send(any) bool { return false }

// oneShot carries what a single command needs.
type oneShot struct {
	cfg      *config.Config
	dev      *device.Client
	dash     *dashboard.Dashboard
	prompter *cliPrompter
	out      io.Writer
	newConn  ConnectionFactory
}

func (o *oneShot) dispatcher(sender control.Sender, opts ...control.Option) *control.Dispatcher {
	return control.New(sender, o.dev, o.dash, o.prompter, opts...)
}

// action wraps fn with configuration, logging and local state.
func action(fn func(ctx context.Context, o *oneShot, args cli.Args) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := configFromCLI(c)
		if err != nil {
			return err
		}
		logger, err := setupLogger(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer func() {
			_ = logger.Sync()
		}()
		zap.ReplaceGlobals(logger)

		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		st, err := store.Open(c.Context, cfg.StatePath)
		if err != nil {
			return err
		}
		defer st.Close()
		th, err := st.LoadThresholds(c.Context)
		if err != nil {
			return err
		}

		dev := newDevice(cfg.DeviceCfg)
		dash := dashboard.New(th,
			dashboard.WithStore(st),
			dashboard.WithVersionSource(dev),
			dashboard.WithVersionTimeout(cfg.DeviceCfg.RequestTimeout),
			dashboard.WithLocation(loc),
		)
		defer dash.Close()

		return fn(c.Context, &oneShot{
			cfg:      cfg,
			dev:      dev,
			dash:     dash,
			prompter: newCLIPrompter(c.App.Reader, c.App.Writer, c.Bool("yes")),
			out:      c.App.Writer,
			newConn:  managerFactory(cfg.DeviceCfg),
		}, c.Args())
	}
}

// connectOnce opens a connection and waits until it is usable. The
// connection lives as long as ctx; connectTimeout only bounds the wait.
func connectOnce(ctx context.Context, newConn ConnectionFactory) (Connection, error) {
	connected := make(chan struct{})
	var once sync.Once
	conn := newConn(func(state model.ConnectionState) {
		if state == model.Connected {
			once.Do(func() { close(connected) })
		}
	}, func(model.Snapshot) {})

	if err := conn.Connect(ctx); err != nil {
		zap.L().Debug("first dial failed, retrying", zap.Error(err))
	}
	timeout := time.NewTimer(connectTimeout)
	defer timeout.Stop()
	select {
	case <-connected:
		return conn, nil
	case <-timeout.C:
	case <-ctx.Done():
	}
	conn.Close()
	return nil, errNotConnected
}

func sendSocketCommand(ctx context.Context, o *oneShot, send func(d *control.Dispatcher) bool) error {
	conn, err := connectOnce(ctx, o.newConn)
	if err != nil {
		return err
	}
	defer conn.Close()
	if !send(o.dispatcher(conn)) {
		return errNotConnected
	}
	return nil
}

func maintenance(ctx context.Context, o *oneShot, args cli.Args) error {
	var enable bool
	switch args.First() {
	case "on", "pause":
		enable = true
	case "off", "resume":
	default:
		return fmt.Errorf("%w: expected on or off", errUsage)
	}
	if err := sendSocketCommand(ctx, o, func(d *control.Dispatcher) bool {
		return d.ToggleMaintenance(enable)
	}); err != nil {
		return err
	}
	if enable {
		o.prompter.Alert("Maintenance mode enabled.")
	} else {
		o.prompter.Alert("Maintenance mode disabled.")
	}
	return nil
}

func resetError(ctx context.Context, o *oneShot, _ cli.Args) error {
	if err := sendSocketCommand(ctx, o, func(d *control.Dispatcher) bool {
		return d.ResetError()
	}); err != nil {
		return err
	}
	o.prompter.Alert("Error reset sent.")
	return nil
}

func resetWiFi(ctx context.Context, o *oneShot, _ cli.Args) error {
	return o.dispatcher(noSocket{}).ResetWiFi(ctx)
}

func setName(ctx context.Context, o *oneShot, args cli.Args) error {
	return o.dispatcher(noSocket{}).SetDeviceName(ctx, strings.Join(args.Slice(), " "))
}

func setTempRange(ctx context.Context, o *oneShot, args cli.Args) error {
	if args.Len() != 2 {
		return fmt.Errorf("%w: expected min and max", errUsage)
	}
	minTemp, err := strconv.ParseFloat(args.Get(0), 64)
	if err != nil {
		return fmt.Errorf("%w: min: %w", errUsage, err)
	}
	maxTemp, err := strconv.ParseFloat(args.Get(1), 64)
	if err != nil {
		return fmt.Errorf("%w: max: %w", errUsage, err)
	}
	return o.dispatcher(noSocket{}).SetTemperatureRange(ctx, minTemp, maxTemp)
}

func checkUpdates(ctx context.Context, o *oneShot, _ cli.Args) error {
	found := false
	d := o.dispatcher(noSocket{}, control.WithReload(func() { found = true }))
	if err := d.CheckForUpdates(ctx); err != nil {
		return err
	}
	if !found {
		return nil
	}
	status, err := o.dev.Status(ctx)
	if err != nil {
		return err
	}
	o.dash.HandleSnapshot(model.Snapshot(*status))
	o.prompter.Alert(o.dash.Screen().Update.Message)
	return nil
}

// update starts the update and waits until the device has rebooted.
func update(ctx context.Context, o *oneShot, _ cli.Args) error {
	back := make(chan struct{})
	w := watcher.New(o.dev,
		watcher.WithInterval(o.cfg.DeviceCfg.WatchInterval),
		watcher.OnOffline(func() { o.prompter.Alert(dashboard.MsgRebooting) }),
		watcher.OnReload(func() { close(back) }),
	)
	d := o.dispatcher(noSocket{}, control.WithWatcher(ctx, w))
	if err := d.StartUpdate(ctx); err != nil {
		o.prompter.Alert(dashboard.MsgUpdateFailed)
		return err
	}
	o.prompter.Alert(dashboard.MsgUpdating)
	select {
	case <-back:
		o.prompter.Alert(msgBackOnline)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func history(ctx context.Context, o *oneShot, _ cli.Args) error {
	points, err := o.dispatcher(noSocket{}).TemperatureHistory(ctx)
	if err != nil {
		return err
	}
	loc, err := o.cfg.Location()
	if err != nil {
		return err
	}
	for _, p := range points {
		at := time.UnixMilli(int64(p[0])).In(loc).Format(time.DateTime)
		fmt.Fprintf(o.out, "%s\t%s\n", at, render.FormatTemperature(p[1]))
	}
	return nil
}

// status prints the dashboard as rendered from one status fetch.
func status(ctx context.Context, o *oneShot, _ cli.Args) error {
	st, err := o.dev.Status(ctx)
	if err != nil {
		return err
	}
	o.dash.SetConnectionState(model.Connected)
	o.dash.HandleSnapshot(model.Snapshot(*st))
	enc := json.NewEncoder(o.out)
	enc.SetIndent("", "  ")
	return enc.Encode(o.dash.Screen())
}

// Commands are the one-shot subcommands.
func Commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:   "watch",
			Usage:  "follow the controller, serve the local api and publish sensors",
			Action: WatchCommand,
		},
		{
			Name:      "maintenance",
			Usage:     "pause (on) or resume (off) top-off",
			ArgsUsage: "on|off",
			Action:    action(maintenance),
		},
		{
			Name:   "reset-error",
			Usage:  "clear a recoverable controller error",
			Action: action(resetError),
		},
		{
			Name:   "reset-wifi",
			Usage:  "forget the wifi settings and reboot the controller",
			Action: action(resetWiFi),
		},
		{
			Name:      "set-name",
			Usage:     "rename the controller",
			ArgsUsage: "<name>",
			Action:    action(setName),
		},
		{
			Name:      "set-temp-range",
			Usage:     "set the safe temperature range in °C",
			ArgsUsage: "<min> <max>",
			Action:    action(setTempRange),
		},
		{
			Name:   "check-updates",
			Usage:  "ask the controller to look for updates",
			Action: action(checkUpdates),
		},
		{
			Name:   "update",
			Usage:  "install the available update and wait for the reboot",
			Action: action(update),
		},
		{
			Name:   "history",
			Usage:  "print the recorded temperature history",
			Action: action(history),
		},
		{
			Name:   "status",
			Usage:  "print the current dashboard as json",
			Action: action(status),
		},
	}
}
