package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anicoll/ato-dashboard/internal/pkg/config"
	"github.com/anicoll/ato-dashboard/internal/pkg/control"
	"github.com/anicoll/ato-dashboard/internal/pkg/contxt"
	"github.com/anicoll/ato-dashboard/internal/pkg/dashboard"
	"github.com/anicoll/ato-dashboard/internal/pkg/database"
	"github.com/anicoll/ato-dashboard/internal/pkg/database/migration"
	"github.com/anicoll/ato-dashboard/internal/pkg/device"
	"github.com/anicoll/ato-dashboard/internal/pkg/model"
	"github.com/anicoll/ato-dashboard/internal/pkg/mqtt"
	"github.com/anicoll/ato-dashboard/internal/pkg/publisher"
	"github.com/anicoll/ato-dashboard/internal/pkg/server"
	"github.com/anicoll/ato-dashboard/internal/pkg/store"
	"github.com/anicoll/ato-dashboard/internal/pkg/watcher"
)

const (
	publishTimeout  = 10 * time.Second
	snapshotBacklog = 16
)

// WatchCommand runs the dashboard: it follows the controller's telemetry,
// serves the local API and publishes sensors until interrupted.
func WatchCommand(c *cli.Context) error {
	cfg, err := configFromCLI(c)
	if err != nil {
		return err
	}
	return run(c.Context, cfg)
}

func setupLogger(level string) (*zap.Logger, error) {
	var err error
	logCfg := zap.NewProductionConfig()

	logCfg.Level, err = zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil
	return logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
}

func newDevice(cfg *config.DeviceConfig) *device.Client {
	opts := []device.Option{device.WithTimeout(cfg.RequestTimeout)}
	if cfg.InsecureSkipVerify {
		opts = append(opts, device.InsecureSkipVerify())
	}
	return device.New(cfg.BaseURL(), opts...)
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, err := setupLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()
	zap.ReplaceGlobals(logger)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, cfg.StatePath)
	if err != nil {
		return err
	}
	defer st.Close()
	th, err := st.LoadThresholds(ctx)
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

	eg, ctx := errgroup.WithContext(ctx)

	registry := publisher.NewRegistry()
	var serverOpts []server.Option
	if cfg.MqttCfg.Enabled() {
		mqttSvc := mqtt.New(mqtt.NewClient(cfg.MqttCfg))
		if err := mqttSvc.Connect(); err != nil {
			return err
		}
		defer mqttSvc.Close()
		if err := registry.Register("mqtt", mqttSvc); err != nil {
			return err
		}
	}
	if cfg.DatabaseURL != "" {
		if err := migration.Migrate(cfg.DatabaseURL); err != nil {
			return err
		}
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := registry.Register("postgres", db); err != nil {
			return err
		}
		serverOpts = append(serverOpts, server.WithArchive(db))

		spec := cfg.CronSpec(cfg.CleanupSchedule)
		eg.Go(func() error {
			return cronDbCleanup(ctx, db, spec)
		})
	}

	if registry.Len() > 0 {
		snapshots := make(chan model.Snapshot, snapshotBacklog)
		dash.OnSnapshot(func(s model.Snapshot) {
			select {
			case snapshots <- s:
			default:
				logger.Warn("publisher backlog full, dropping snapshot")
			}
		})
		eg.Go(func() error {
			return publishLoop(ctx, registry, snapshots)
		})
	}

	sess := newSession(dash, managerFactory(cfg.DeviceCfg))
	w := watcher.New(dev,
		watcher.WithInterval(cfg.DeviceCfg.WatchInterval),
		watcher.OnOffline(dash.RebootPending),
		watcher.OnReload(sess.Reload),
	)
	controllers := func(p control.Prompter) server.Controller {
		return control.New(sess, dev, dash, p,
			control.WithWatcher(ctx, w),
			control.WithReload(sess.Reload),
		)
	}

	eg.Go(func() error {
		return sess.Run(ctx)
	})

	eg.Go(func() error {
		srv := &http.Server{
			Handler:      server.New(controllers, dash, serverOpts...).Handler(),
			Addr:         cfg.ListenAddr,
			WriteTimeout: 15 * time.Second,
			ReadTimeout:  15 * time.Second,
		}
		logger.Info("serving dashboard api", zap.String("addr", cfg.ListenAddr))
		return server.Run(ctx, srv)
	})

	return eg.Wait()
}

type snapshotPublisher interface {
	Publish(ctx context.Context, s model.Snapshot) error
}

func publishLoop(ctx context.Context, p snapshotPublisher, snapshots <-chan model.Snapshot) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-snapshots:
			if err := p.Publish(contxt.WithTimeout(ctx, publishTimeout), s); err != nil {
				zap.L().Error("failed to publish snapshot", zap.Error(err))
			}
		}
	}
}

var errCron = errors.New("cron error")

func cronDbCleanup(ctx context.Context, db cleaner, spec string) error {
	if err := db.Cleanup(ctx); err != nil {
		return err
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if err := db.Cleanup(contxt.WithTimeout(ctx, time.Minute)); err != nil {
			zap.L().Error("error cleaning up database", zap.Error(errors.Join(errCron, err)))
			return
		}
		zap.L().Info("pruned telemetry archive")
	}); err != nil {
		return err
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
