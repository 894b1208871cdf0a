// Package mock provides hand-written fakes for the session surface so the
// watch loop, detector and resolver can be exercised without a server.
package mock

import (
	"context"
	"sync"
	"time"

	"mailwatch/internal/session"
)

// SessionMock implements session.Session with per-method hooks. Unset hooks
// return zero values so tests only script what they care about. Call
// counters are safe to poll while the watcher goroutine is running.
type SessionMock struct {
	SelectFunc     func(ctx context.Context, mailbox string) (session.MailboxInfo, error)
	IdleWaitFunc   func(ctx context.Context, timeout time.Duration) (session.Signal, error)
	FetchSinceFunc func(ctx context.Context, uid uint32) ([]session.RawMessage, error)
	CloseFunc      func() error
	CurrentState   session.State

	mu            sync.Mutex
	selectCalls   int
	idleWaitCalls int
	fetchCalls    int
	closeCalls    int
}

var _ session.Session = (*SessionMock)(nil)

func (m *SessionMock) Select(ctx context.Context, mailbox string) (session.MailboxInfo, error) {
	m.count(&m.selectCalls)
	if m.SelectFunc != nil {
		return m.SelectFunc(ctx, mailbox)
	}
	return session.MailboxInfo{Name: mailbox}, nil
}

func (m *SessionMock) IdleWait(ctx context.Context, timeout time.Duration) (session.Signal, error) {
	m.count(&m.idleWaitCalls)
	if m.IdleWaitFunc != nil {
		return m.IdleWaitFunc(ctx, timeout)
	}
	return session.SignalNone, nil
}

func (m *SessionMock) FetchSince(ctx context.Context, uid uint32) ([]session.RawMessage, error) {
	m.count(&m.fetchCalls)
	if m.FetchSinceFunc != nil {
		return m.FetchSinceFunc(ctx, uid)
	}
	return nil, nil
}

func (m *SessionMock) Close() error {
	m.count(&m.closeCalls)
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func (m *SessionMock) State() session.State {
	return m.CurrentState
}

func (m *SessionMock) SelectCalls() int   { return m.read(&m.selectCalls) }
func (m *SessionMock) IdleWaitCalls() int { return m.read(&m.idleWaitCalls) }
func (m *SessionMock) FetchCalls() int    { return m.read(&m.fetchCalls) }
func (m *SessionMock) CloseCalls() int    { return m.read(&m.closeCalls) }

func (m *SessionMock) count(field *int) {
	m.mu.Lock()
	*field++
	m.mu.Unlock()
}

func (m *SessionMock) read(field *int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *field
}

// ConnectorMock implements session.Connector, handing out scripted sessions
// one connection attempt at a time.
type ConnectorMock struct {
	ConnectFunc func(ctx context.Context, attempt int) (session.Session, error)

	mu       sync.Mutex
	attempts int
}

var _ session.Connector = (*ConnectorMock)(nil)

func (m *ConnectorMock) Connect(ctx context.Context) (session.Session, error) {
	m.mu.Lock()
	m.attempts++
	attempt := m.attempts
	m.mu.Unlock()

	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx, attempt)
	}
	return &SessionMock{CurrentState: session.Authenticated}, nil
}

// ConnectCalls reports how many connection attempts have been made.
func (m *ConnectorMock) ConnectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}
