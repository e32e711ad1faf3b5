package connection

import (
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/ato-dashboard/internal/pkg/model"
	"github.com/anicoll/ato-dashboard/pkg/sockets"
)

// SocketFactory builds an undialled socket from transport options.
type SocketFactory func(opts ...func(*sockets.Conn)) sockets.Connection

type Option func(*Manager)

func WithReconnectDelay(d time.Duration) Option {
	return func(m *Manager) {
		m.delay = d
	}
}

func WithMaxAttempts(n int) Option {
	return func(m *Manager) {
		m.maxAttempts = n
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.pingInterval = d
	}
}

func InsecureSkipVerify() Option {
	return func(m *Manager) {
		m.skipVerify = true
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

func WithSocketFactory(f SocketFactory) Option {
	return func(m *Manager) {
		m.newSocket = f
	}
}

// OnStatus receives every connection state change.
func OnStatus(f func(model.ConnectionState)) Option {
	return func(m *Manager) {
		m.onStatus = f
	}
}

// OnSnapshot receives every well formed telemetry frame, in arrival order.
func OnSnapshot(f func(model.Snapshot)) Option {
	return func(m *Manager) {
		m.onSnapshot = f
	}
}
