package cmd

import (
	"context"
	"sync"

	"github.com/anicoll/ato-dashboard/internal/pkg/model"
)

// MockConnection is a mock implementation of the Connection interface.
type MockConnection struct {
	ConnectFunc func(ctx context.Context) error
	SendFunc    func(cmd any) bool

	OnStatus   func(model.ConnectionState)
	OnSnapshot func(model.Snapshot)

	mu     sync.Mutex
	closed bool
}

func (m *MockConnection) Connect(ctx context.Context) error {
	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx)
	}
	return nil
}

func (m *MockConnection) Send(cmd any) bool {
	if m.SendFunc != nil {
		return m.SendFunc(cmd)
	}
	return false
}

func (m *MockConnection) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *MockConnection) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// mockFactory hands out MockConnections and remembers them in order.
type mockFactory struct {
	mu    sync.Mutex
	conns []*MockConnection
	setup func(c *MockConnection)
}

func (f *mockFactory) New(onStatus func(model.ConnectionState), onSnapshot func(model.Snapshot)) Connection {
	c := &MockConnection{OnStatus: onStatus, OnSnapshot: onSnapshot}
	if f.setup != nil {
		f.setup(c)
	}
	f.mu.Lock()
	f.conns = append(f.conns, c)
	f.mu.Unlock()
	return c
}

func (f *mockFactory) all() []*MockConnection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*MockConnection(nil), f.conns...)
}

// mockScreen records what a session feeds the dashboard.
type mockScreen struct {
	mu        sync.Mutex
	states    []model.ConnectionState
	snapshots []model.Snapshot
	resets    int
}

func (m *mockScreen) SetConnectionState(state model.ConnectionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, state)
}

func (m *mockScreen) HandleSnapshot(s model.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, s)
}

func (m *mockScreen) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
}

func (m *mockScreen) counts() (states, snapshots, resets int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states), len(m.snapshots), m.resets
}

type mockCleaner struct {
	mu          sync.Mutex
	calls       int
	CleanupFunc func(ctx context.Context) error
}

func (m *mockCleaner) Cleanup(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.CleanupFunc != nil {
		return m.CleanupFunc(ctx)
	}
	return nil
}

type mockPublisher struct {
	PublishFunc func(ctx context.Context, s model.Snapshot) error
}

func (m *mockPublisher) Publish(ctx context.Context, s model.Snapshot) error {
	return m.PublishFunc(ctx, s)
}
