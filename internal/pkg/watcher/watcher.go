// Package watcher follows a device through an update reboot. It polls the
// status endpoint and fires a reload once the device answers again after
// having gone offline.
package watcher

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/ato-dashboard/internal/pkg/contxt"
	"github.com/anicoll/ato-dashboard/internal/pkg/model"
)

const DefaultInterval = 2 * time.Second

type Poller interface {
	Status(ctx context.Context) (*model.Status, error)
}

type Watcher struct {
	poller    Poller
	interval  time.Duration
	onOffline func()
	onReload  func()
	logger    *zap.Logger
	running   atomic.Bool
}

type Option func(*Watcher)

func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		w.interval = d
	}
}

// OnOffline is called on every failed poll.
func OnOffline(fn func()) Option {
	return func(w *Watcher) {
		w.onOffline = fn
	}
}

// OnReload is called once, when the device is back after being offline.
func OnReload(fn func()) Option {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		w.logger = l
	}
}

func New(poller Poller, opts ...Option) *Watcher {
	w := &Watcher{
		poller:    poller,
		interval:  DefaultInterval,
		onOffline: func() {},
		onReload:  func() {},
		logger:    zap.L(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins polling until ctx ends or the reload fires. Calling Start
// while already polling does nothing.
func (w *Watcher) Start(ctx context.Context) {
	if !w.running.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Watcher) Running() bool {
	return w.running.Load()
}

func (w *Watcher) run(ctx context.Context) {
	defer w.running.Store(false)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	offline := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if _, err := w.poller.Status(contxt.WithTimeout(ctx, w.interval)); err != nil {
			if ctx.Err() != nil {
				return
			}
			if !offline {
				w.logger.Info("device went offline", zap.Error(err))
			}
			offline = true
			w.onOffline()
			continue
		}
		if offline {
			w.logger.Info("device back online, reloading")
			w.onReload()
			return
		}
	}
}
