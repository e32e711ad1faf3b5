package sockets

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrNotOpen = errors.New("connection not open")

type Connection interface {
	Dial(ctx context.Context, url string) error
	Send(msg []byte) error
	IsOpen() bool
	io.Closer
}

type Conn struct {
	ws               *websocket.Conn
	mu               sync.Mutex
	open             bool
	closeOnce        sync.Once
	done             chan struct{}
	sslSkipVerify    bool
	handshakeTimeout time.Duration
	pingInterval     time.Duration
	maxMessageSize   int64
	onError          func(err error)
	onMessage        func([]byte, Connection)
	onConnected      func(Connection)
	onClose          func()
}

func New(opts ...func(*Conn)) Connection {
	c := &Conn{
		handshakeTimeout: 15 * time.Second,
		done:             make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Close closes the connection. OnClose fires once, whether the close was
// requested here or observed by the read loop.
func (c *Conn) Close() error {
	c.mu.Lock()
	ws := c.ws
	c.open = false
	c.mu.Unlock()
	if ws == nil {
		return nil
	}
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := ws.Close()
	c.finish()
	return err
}

func (c *Conn) finish() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.open = false
		c.mu.Unlock()
		close(c.done)
		if c.onClose != nil {
			c.onClose()
		}
	})
}

func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Send writes a text frame. It fails with ErrNotOpen instead of queueing when
// the socket is not open.
func (c *Conn) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNotOpen
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		return err
	}
	return nil
}

func (c *Conn) Dial(ctx context.Context, url string) error {
	dialer := &websocket.Dialer{
		HandshakeTimeout: c.handshakeTimeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: c.sslSkipVerify,
		},
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	if c.maxMessageSize > 0 {
		conn.SetReadLimit(c.maxMessageSize)
	}

	c.mu.Lock()
	c.ws = conn
	c.open = true
	c.mu.Unlock()

	if c.onConnected != nil {
		c.onConnected(c)
	}
	go c.readLoop(conn)
	c.setupPing()
	return nil
}

func (c *Conn) readLoop(conn *websocket.Conn) {
	defer c.finish()
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if c.onError != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && c.IsOpen() {
				c.onError(err)
			}
			_ = conn.Close()
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if c.onMessage != nil {
			c.onMessage(msg, c)
		}
	}
}

func (c *Conn) setupPing() {
	if c.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.pingInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-c.done:
				return
			case <-ticker.C:
				c.mu.Lock()
				if !c.open {
					c.mu.Unlock()
					return
				}
				err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				c.mu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()
}
