package realtime

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrNoToken = errors.New("realtime: no auth token")

// Manager hands out leases on a single gateway session. Leases with the
// same token share it; acquiring with another token replaces it.
type Manager struct {
	gatewayURL string
	delay      time.Duration
	dialer     *websocket.Dialer
	log        *zap.Logger

	mu      sync.Mutex
	session *Session
	token   string
	refs    int

	open atomic.Int32
}

func NewManager(gatewayURL string, reconnectDelay time.Duration, log *zap.Logger) *Manager {
	return &Manager{
		gatewayURL: gatewayURL,
		delay:      reconnectDelay,
		dialer:     websocket.DefaultDialer,
		log:        log,
	}
}

// Lease is one holder's share of the session.
type Lease struct {
	m       *Manager
	session *Session
	once    sync.Once
}

func (l *Lease) Session() *Session { return l.session }

// Release drops the lease; the last one closes the socket.
func (l *Lease) Release() {
	l.once.Do(func() { l.m.release(l.session) })
}

func (m *Manager) Acquire(authToken string) (*Lease, error) {
	if authToken == "" {
		return nil, ErrNoToken
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil && m.token != authToken {
		m.log.Info("auth token changed, replacing realtime session", zap.String("socket_id", m.session.ID()))
		m.session.Close()
		m.session = nil
		m.refs = 0
	}
	if m.session == nil {
		s := newSession(m.gatewayURL, authToken, m.delay, m.dialer, m.log)
		s.onOpen = func() { m.open.Add(1) }
		s.onClose = func() { m.open.Add(-1) }
		s.start()
		m.session = s
		m.token = authToken
	}
	m.refs++
	return &Lease{m: m, session: m.session}, nil
}

func (m *Manager) release(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != s {
		// replaced by a newer token and already closed
		return
	}
	m.refs--
	if m.refs > 0 {
		return
	}
	m.session = nil
	m.token = ""
	s.Close()
}

// OpenConnections counts sockets currently open to the gateway.
func (m *Manager) OpenConnections() int {
	return int(m.open.Load())
}

// Current returns the live session, if any.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Close tears down the live session regardless of outstanding leases.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		m.session.Close()
		m.session = nil
		m.token = ""
		m.refs = 0
	}
}
