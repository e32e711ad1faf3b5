// Package connection keeps the dashboard attached to the controller's
// websocket and turns its frames into telemetry snapshots.
package connection

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/ato-dashboard/internal/pkg/model"
	"github.com/anicoll/ato-dashboard/pkg/sockets"
)

const (
	DefaultReconnectDelay = 2 * time.Second
	DefaultMaxAttempts    = 5
	maxFrameSize          = 64 * 1024
)

type Manager struct {
	url          string
	delay        time.Duration
	maxAttempts  int
	pingInterval time.Duration
	skipVerify   bool
	newSocket    SocketFactory
	logger       *zap.Logger
	onStatus     func(model.ConnectionState)
	onSnapshot   func(model.Snapshot)

	mu       sync.Mutex
	ctx      context.Context
	conn     sockets.Connection
	attempts int
	timer    *time.Timer
	closed   bool
	done     chan struct{}
	state    model.ConnectionState
}

func New(url string, opts ...Option) *Manager {
	m := &Manager{
		url:         url,
		delay:       DefaultReconnectDelay,
		maxAttempts: DefaultMaxAttempts,
		newSocket:   sockets.New,
		logger:      zap.L(),
		onStatus:    func(model.ConnectionState) {},
		onSnapshot:  func(model.Snapshot) {},
		state:       model.Disconnected,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect dials the controller. A failed dial is reported as an error
// followed by a close, so it consumes a reconnect attempt like any other
// drop. Cancelling ctx has the same effect as Close.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.ctx == nil {
		m.ctx = ctx
		go func() {
			select {
			case <-ctx.Done():
				m.Close()
			case <-m.done:
			}
		}()
	}
	m.mu.Unlock()
	return m.dial(ctx)
}

func (m *Manager) dial(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	m.setStatus(model.Connecting)
	m.logger.Debug("connecting to", zap.String("url", m.url))

	var conn sockets.Connection
	opts := []func(*sockets.Conn){
		sockets.OnConnected(func(sockets.Connection) { m.handleOpen() }),
		sockets.OnMessage(m.handleMessage),
		sockets.OnError(m.handleError),
		sockets.OnClose(func() { m.handleClose(conn) }),
		sockets.WithMaxMessageSize(maxFrameSize),
	}
	if m.skipVerify {
		opts = append(opts, sockets.InsecureSkipVerify())
	}
	if m.pingInterval > 0 {
		opts = append(opts, sockets.WithPingInterval(m.pingInterval))
	}
	conn = m.newSocket(opts...)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.conn = conn
	m.mu.Unlock()

	if err := conn.Dial(ctx, m.url); err != nil {
		m.logger.Error("failed to connect to", zap.String("url", m.url), zap.Error(err))
		m.handleError(err)
		m.handleClose(conn)
		return err
	}

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		_ = conn.Close()
	}
	return nil
}

func (m *Manager) handleOpen() {
	m.mu.Lock()
	m.attempts = 0
	m.mu.Unlock()
	m.logger.Info("connected to controller", zap.String("url", m.url))
	m.setStatus(model.Connected)
}

func (m *Manager) handleMessage(data []byte, _ sockets.Connection) {
	var snapshot model.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		m.logger.Warn("dropping malformed frame", zap.Int("size", len(data)), zap.Error(err))
		return
	}
	m.onSnapshot(snapshot)
}

func (m *Manager) handleError(err error) {
	m.logger.Warn("websocket error", zap.Error(err))
	m.setStatus(model.ConnError)
}

func (m *Manager) handleClose(conn sockets.Connection) {
	m.mu.Lock()
	if m.conn != nil && m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	if m.closed {
		m.mu.Unlock()
		m.setStatus(model.Disconnected)
		return
	}
	retry := m.attempts < m.maxAttempts
	if retry {
		m.attempts++
		attempt := m.attempts
		m.timer = time.AfterFunc(m.delay, m.reconnect)
		m.logger.Info("scheduling reconnect", zap.Int("attempt", attempt), zap.Duration("delay", m.delay))
	} else {
		m.logger.Warn("reconnect attempts exhausted", zap.Int("attempts", m.attempts))
	}
	m.mu.Unlock()
	m.setStatus(model.Disconnected)
}

func (m *Manager) reconnect() {
	m.mu.Lock()
	m.timer = nil
	ctx := m.ctx
	m.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	_ = m.dial(ctx)
}

func (m *Manager) setStatus(state model.ConnectionState) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
	m.onStatus(state)
}

// State is the last reported connection state.
func (m *Manager) State() model.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Send JSON encodes cmd and writes it when the socket is open. Nothing is
// queued: when the socket is not open the command is dropped and Send
// returns false.
func (m *Manager) Send(cmd any) bool {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil || !conn.IsOpen() {
		return false
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		m.logger.Error("failed to encode command", zap.Error(err))
		return false
	}
	if err := conn.Send(data); err != nil {
		m.logger.Warn("failed to send command", zap.Error(err))
		return false
	}
	return true
}

// Close cancels any pending reconnect and closes the socket. No further
// reconnects happen afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.done)
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	conn := m.conn
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}
