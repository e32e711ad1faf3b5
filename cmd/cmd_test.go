package cmd

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/anicoll/ato-dashboard/internal/pkg/config"
	"github.com/anicoll/ato-dashboard/internal/pkg/control"
	"github.com/anicoll/ato-dashboard/internal/pkg/dashboard"
	"github.com/anicoll/ato-dashboard/internal/pkg/device"
	"github.com/anicoll/ato-dashboard/internal/pkg/model"
)

const waitFor = 2 * time.Second

func useTestLogger(t *testing.T) {
	t.Helper()
	restore := zap.ReplaceGlobals(zaptest.NewLogger(t))
	t.Cleanup(restore)
}

func TestSession_ReloadStartsOver(t *testing.T) {
	useTestLogger(t)
	screen := &mockScreen{}
	factory := &mockFactory{setup: func(c *MockConnection) {
		c.SendFunc = func(any) bool { return true }
	}}
	sess := newSession(screen, factory.New)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	require.Eventually(t, func() bool { return len(factory.all()) == 1 }, waitFor, 5*time.Millisecond)
	first := factory.all()[0]
	first.OnStatus(model.Connected)
	first.OnSnapshot(model.Snapshot{Pumping: true})
	assert.True(t, sess.Send(model.ResetErrorCommand{ResetError: true}))

	sess.Reload()
	require.Eventually(t, func() bool { return len(factory.all()) == 2 }, waitFor, 5*time.Millisecond)
	assert.True(t, first.Closed())

	// callbacks from the replaced connection are ignored
	first.OnStatus(model.Disconnected)
	first.OnSnapshot(model.Snapshot{})
	states, snapshots, resets := screen.counts()
	assert.Equal(t, 1, states)
	assert.Equal(t, 1, snapshots)
	assert.Equal(t, 1, resets)

	second := factory.all()[1]
	second.OnStatus(model.Connecting)
	states, _, _ = screen.counts()
	assert.Equal(t, 2, states)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("session did not stop")
	}
	assert.True(t, second.Closed())
	assert.False(t, sess.Send(model.ResetErrorCommand{ResetError: true}))
}

func TestSession_PendingReloadsCollapse(t *testing.T) {
	useTestLogger(t)
	factory := &mockFactory{setup: func(c *MockConnection) {
		c.ConnectFunc = func(context.Context) error { return errors.New("dial failed") }
	}}
	sess := newSession(&mockScreen{}, factory.New)
	sess.Reload()
	sess.Reload()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sess.Run(ctx) }()

	require.Eventually(t, func() bool { return len(factory.all()) == 2 }, waitFor, 5*time.Millisecond)
	assert.Never(t, func() bool { return len(factory.all()) > 2 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestPublishLoop(t *testing.T) {
	useTestLogger(t)
	var published atomic.Int32
	p := &mockPublisher{PublishFunc: func(ctx context.Context, s model.Snapshot) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		if published.Add(1) == 1 {
			return errors.New("broker down")
		}
		return nil
	}}
	snapshots := make(chan model.Snapshot, 2)
	snapshots <- model.Snapshot{}
	snapshots <- model.Snapshot{Pumping: true}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- publishLoop(ctx, p, snapshots) }()

	require.Eventually(t, func() bool { return published.Load() == 2 }, waitFor, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestCronDbCleanup(t *testing.T) {
	useTestLogger(t)

	t.Run("initial cleanup fails", func(t *testing.T) {
		db := &mockCleaner{CleanupFunc: func(context.Context) error { return errors.New("db down") }}
		assert.EqualError(t, cronDbCleanup(context.Background(), db, "0 3 * * *"), "db down")
	})

	t.Run("bad schedule", func(t *testing.T) {
		assert.Error(t, cronDbCleanup(context.Background(), &mockCleaner{}, "every night"))
	})

	t.Run("stops with context", func(t *testing.T) {
		db := &mockCleaner{}
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- cronDbCleanup(ctx, db, "CRON_TZ=Australia/Adelaide 0 3 * * *") }()
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(waitFor):
			t.Fatal("cleanup job did not stop")
		}
		assert.Equal(t, 1, db.calls)
	})
}

func TestCLIPrompter_Confirm(t *testing.T) {
	tests := map[string]struct {
		input     string
		assumeYes bool
		want      bool
		wantOut   string
	}{
		"yes":          {input: "y\n", want: true, wantOut: "Sure? [y/N]: "},
		"long yes":     {input: " YES \n", want: true, wantOut: "Sure? [y/N]: "},
		"no":           {input: "n\n", wantOut: "Sure? [y/N]: "},
		"enter":        {input: "\n", wantOut: "Sure? [y/N]: "},
		"closed input": {input: "", wantOut: "Sure? [y/N]: "},
		"assume yes":   {assumeYes: true, want: true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var out bytes.Buffer
			p := newCLIPrompter(strings.NewReader(tt.input), &out, tt.assumeYes)
			assert.Equal(t, tt.want, p.Confirm("Sure?"))
			assert.Equal(t, tt.wantOut, out.String())
		})
	}

	var out bytes.Buffer
	newCLIPrompter(strings.NewReader(""), &out, false).Alert("done")
	assert.Equal(t, "done\n", out.String())
}

func TestConfigFromCLI(t *testing.T) {
	t.Setenv("ATO_HOST", "env-host")
	t.Setenv("TZ", "UTC")

	var got *config.Config
	runApp := func(args ...string) error {
		app := &cli.App{
			Name:  "ato-dashboard",
			Flags: Flags(),
			Action: func(c *cli.Context) error {
				var err error
				got, err = configFromCLI(c)
				return err
			},
		}
		return app.Run(append([]string{"ato-dashboard"}, args...))
	}

	require.NoError(t, runApp())
	assert.Equal(t, "env-host", got.DeviceCfg.Host)
	assert.Equal(t, 5, got.DeviceCfg.ReconnectAttempts)

	require.NoError(t, runApp(
		"--ato-host", "flag-host:8443",
		"--ato-secure",
		"--reconnect-attempts", "3",
		"--mqtt-host", "tcp://broker:1883",
	))
	assert.Equal(t, "flag-host:8443", got.DeviceCfg.Host)
	assert.Equal(t, "wss://flag-host:8443/ws", got.DeviceCfg.WebsocketURL())
	assert.Equal(t, 3, got.DeviceCfg.ReconnectAttempts)
	assert.Equal(t, 2*time.Second, got.DeviceCfg.ReconnectDelay)
	assert.True(t, got.MqttCfg.Enabled())

	t.Setenv("ATO_HOST", "")
	assert.Error(t, runApp())
}

func TestConnectOnce(t *testing.T) {
	useTestLogger(t)

	t.Run("connected", func(t *testing.T) {
		factory := &mockFactory{setup: func(c *MockConnection) {
			c.ConnectFunc = func(context.Context) error {
				c.OnStatus(model.Connecting)
				c.OnStatus(model.Connected)
				return nil
			}
		}}
		conn, err := connectOnce(context.Background(), factory.New)
		require.NoError(t, err)
		assert.False(t, conn.(*MockConnection).Closed())
	})

	t.Run("never connects", func(t *testing.T) {
		factory := &mockFactory{}
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := connectOnce(ctx, factory.New)
		assert.ErrorIs(t, err, errNotConnected)
		assert.True(t, factory.all()[0].Closed())
	})
}

func TestConnectOnce_ConnectionOutlivesWait(t *testing.T) {
	useTestLogger(t)
	received := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		received <- string(data)
	}))
	t.Cleanup(srv.Close)

	newConn := managerFactory(&config.DeviceConfig{
		Host:              strings.TrimPrefix(srv.URL, "http://"),
		ReconnectDelay:    time.Second,
		ReconnectAttempts: 1,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := connectOnce(ctx, newConn)
	require.NoError(t, err)
	defer conn.Close()

	// the wait is over; the connection must still be usable afterwards
	time.Sleep(20 * time.Millisecond)
	require.True(t, conn.Send(model.ResetErrorCommand{ResetError: true}))
	select {
	case got := <-received:
		assert.JSONEq(t, `{"reset_error":true}`, got)
	case <-time.After(waitFor):
		t.Fatal("command never reached the controller")
	}
}

func newArgs(t *testing.T, args ...string) cli.Args {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	require.NoError(t, fs.Parse(args))
	return cli.NewContext(cli.NewApp(), fs, nil).Args()
}

func newTestOneShot(t *testing.T, handler http.Handler, newConn ConnectionFactory) (*oneShot, *bytes.Buffer) {
	t.Helper()
	useTestLogger(t)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	out := &bytes.Buffer{}
	dash := dashboard.New(model.DefaultThresholds)
	t.Cleanup(dash.Close)
	return &oneShot{
		cfg: &config.Config{
			DeviceCfg: &config.DeviceConfig{WatchInterval: 10 * time.Millisecond},
			Timezone:  "UTC",
		},
		dev:      device.New(srv.URL),
		dash:     dash,
		prompter: newCLIPrompter(strings.NewReader(""), out, true),
		out:      out,
		newConn:  newConn,
	}, out
}

func TestMaintenanceCommand(t *testing.T) {
	var sent any
	factory := &mockFactory{setup: func(c *MockConnection) {
		c.ConnectFunc = func(context.Context) error {
			c.OnStatus(model.Connected)
			return nil
		}
		c.SendFunc = func(cmd any) bool {
			sent = cmd
			return true
		}
	}}
	o, out := newTestOneShot(t, http.NotFoundHandler(), factory.New)

	require.NoError(t, maintenance(context.Background(), o, newArgs(t, "on")))
	assert.Equal(t, model.MaintenanceCommand{Maintenance: true}, sent)
	assert.Equal(t, "Maintenance mode enabled.\n", out.String())
	assert.True(t, factory.all()[0].Closed())

	assert.ErrorIs(t, maintenance(context.Background(), o, newArgs(t, "maybe")), errUsage)
}

func TestSetTempRangeCommand(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/set_temp_range", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "23.5", r.FormValue("min"))
		assert.Equal(t, "29", r.FormValue("max"))
		_, _ = w.Write([]byte("Temperature range updated"))
	})
	o, out := newTestOneShot(t, mux, nil)

	require.NoError(t, setTempRange(context.Background(), o, newArgs(t, "23.5", "29")))
	assert.Equal(t, "Temperature range updated\n", out.String())
	assert.Equal(t, model.Thresholds{Min: 23.5, Max: 29}, o.dash.Thresholds())

	assert.ErrorIs(t, setTempRange(context.Background(), o, newArgs(t, "23.5")), errUsage)
	assert.ErrorIs(t, setTempRange(context.Background(), o, newArgs(t, "warm", "29")), errUsage)
	assert.ErrorIs(t, setTempRange(context.Background(), o, newArgs(t, "29", "23")), control.ErrInvalidRange)
}

func TestHistoryCommand(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/temperature_history", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"timestamp":1735689600,"temperature":25.46},{"timestamp":1735693200,"temperature":26}]`))
	})
	o, out := newTestOneShot(t, mux, nil)

	require.NoError(t, history(context.Background(), o, newArgs(t)))
	assert.Equal(t, "2025-01-01 00:00:00\t25.5°C\n2025-01-01 01:00:00\t26.0°C\n", out.String())
}

func TestUpdateCommand(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auto_update", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("Update started"))
	})
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, _ *http.Request) {
		if polls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"pumping":false}`))
	})
	o, out := newTestOneShot(t, mux, nil)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, update(ctx, o, newArgs(t)))
	assert.Contains(t, out.String(), dashboard.MsgUpdating)
	assert.Contains(t, out.String(), dashboard.MsgRebooting)
	assert.True(t, strings.HasSuffix(out.String(), msgBackOnline+"\n"))
}
