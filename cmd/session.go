package cmd

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/anicoll/ato-dashboard/internal/pkg/config"
	"github.com/anicoll/ato-dashboard/internal/pkg/connection"
	"github.com/anicoll/ato-dashboard/internal/pkg/model"
)

// screen is the part of the dashboard a session drives.
type screen interface {
	SetConnectionState(state model.ConnectionState)
	HandleSnapshot(s model.Snapshot)
	Reset()
}

// session keeps one live connection feeding the dashboard. A reload drops
// the connection, starts the screen over and connects again, the way a
// browser reloads the page.
type session struct {
	dash    screen
	newConn ConnectionFactory
	reloads chan struct{}
	logger  *zap.Logger

	mu   sync.Mutex
	conn Connection
	gen  uint64
}

func newSession(dash screen, newConn ConnectionFactory) *session {
	return &session{
		dash:    dash,
		newConn: newConn,
		reloads: make(chan struct{}, 1),
		logger:  zap.L(),
	}
}

// Send forwards cmd to the current connection.
func (s *session) Send(cmd any) bool {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return false
	}
	return conn.Send(cmd)
}

// Reload asks Run to start over. Reloads requested while one is pending
// collapse into it.
func (s *session) Reload() {
	select {
	case s.reloads <- struct{}{}:
	default:
	}
}

func (s *session) Run(ctx context.Context) error {
	for {
		conn := s.attach()
		if err := conn.Connect(ctx); err != nil {
			s.logger.Warn("controller unreachable, retrying in background", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.detach(conn)
			return nil
		case <-s.reloads:
			s.logger.Info("reloading dashboard")
			s.detach(conn)
			s.dash.Reset()
		}
	}
}

// attach builds a connection whose callbacks are ignored once it has been
// replaced.
func (s *session) attach() Connection {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	current := func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.gen == gen
	}
	conn := s.newConn(
		func(state model.ConnectionState) {
			if current() {
				s.dash.SetConnectionState(state)
			}
		},
		func(snapshot model.Snapshot) {
			if current() {
				s.dash.HandleSnapshot(snapshot)
			}
		},
	)

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return conn
}

func (s *session) detach(conn Connection) {
	s.mu.Lock()
	s.gen++
	s.conn = nil
	s.mu.Unlock()
	conn.Close()
}

func managerFactory(cfg *config.DeviceConfig) ConnectionFactory {
	return func(onStatus func(model.ConnectionState), onSnapshot func(model.Snapshot)) Connection {
		opts := []connection.Option{
			connection.WithReconnectDelay(cfg.ReconnectDelay),
			connection.WithMaxAttempts(cfg.ReconnectAttempts),
			connection.OnStatus(onStatus),
			connection.OnSnapshot(onSnapshot),
		}
		if cfg.InsecureSkipVerify {
			opts = append(opts, connection.InsecureSkipVerify())
		}
		return connection.New(cfg.WebsocketURL(), opts...)
	}
}
