// Package realtime bridges the backend event gateway to toasts. One
// process-wide Manager owns the socket; bridges lease it.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/franzego/tourpush/pkg/token"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type State string

const (
	StateDisconnected   State = "disconnected"
	StateConnecting     State = "connecting"
	StateConnected      State = "connected"
	StateRegistered     State = "registered"
	StateRegisterFailed State = "register-failed"
)

const writeWait = 10 * time.Second

// Session is one gateway connection for one token. It reconnects after
// drops and registers again on every connect.
type Session struct {
	id    string
	url   string
	token string
	delay time.Duration
	log   *zap.Logger

	dialer *websocket.Dialer
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	state     State
	conn      *websocket.Conn
	listeners map[int]func(Envelope)
	nextID    int

	closeOnce sync.Once
	onOpen    func()
	onClose   func()
}

func newSession(gatewayURL, authToken string, delay time.Duration, dialer *websocket.Dialer, log *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        uuid.New().String(),
		url:       gatewayURL,
		token:     authToken,
		delay:     delay,
		dialer:    dialer,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     StateDisconnected,
		listeners: make(map[int]func(Envelope)),
	}
	s.log = log.With(zap.String("socket_id", s.id), zap.String("sub", token.Subject(authToken)))
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev != st {
		s.log.Debug("realtime state", zap.String("from", string(prev)), zap.String("to", string(st)))
	}
}

// Connected reports whether the socket is currently open.
func (s *Session) Connected() bool {
	switch s.State() {
	case StateConnected, StateRegistered, StateRegisterFailed:
		return true
	}
	return false
}

// On adds a listener for every frame except the registration replies,
// which are handled here. The returned func removes it.
func (s *Session) On(fn func(Envelope)) (off func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Session) start() {
	go s.run()
}

func (s *Session) run() {
	defer close(s.done)
	for {
		if s.ctx.Err() != nil {
			return
		}
		s.connect()
		s.setState(StateDisconnected)

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.delay):
		}
	}
}

// connect holds one connection until it drops or the session closes.
func (s *Session) connect() {
	s.setState(StateConnecting)
	conn, _, err := s.dialer.DialContext(s.ctx, s.url, nil)
	if err != nil {
		if s.ctx.Err() == nil {
			s.log.Warn("realtime connect failed", zap.String("url", s.url), zap.Error(err))
		}
		return
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.mu.Unlock()
	if s.onOpen != nil {
		s.onOpen()
	}
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()
		if s.onClose != nil {
			s.onClose()
		}
	}()

	s.setState(StateConnected)
	s.log.Info("realtime connected", zap.String("url", s.url))
	if err := s.emit(EventRegister, registerData{Token: token.Bearer(s.token)}); err != nil {
		s.log.Warn("realtime register emit failed", zap.Error(err))
		return
	}

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if s.ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.log.Warn("realtime connection dropped", zap.Error(err))
			}
			return
		}
		s.dispatch(env)
	}
}

func (s *Session) dispatch(env Envelope) {
	switch env.Event {
	case EventRegistered:
		s.setState(StateRegistered)
		s.log.Info("realtime registered")
		return
	case EventRegisterError:
		s.setState(StateRegisterFailed)
		s.log.Warn("realtime register rejected", zap.ByteString("data", env.Data))
		return
	}

	s.mu.Lock()
	fns := make([]func(Envelope), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(env)
	}
}

// emit writes one event. Only the connection goroutine and Close write.
func (s *Session) emit(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return errors.New("realtime socket not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(Envelope{Event: event, Data: raw})
}

// Close stops reconnecting and closes the socket. It waits for the
// connection goroutine, so no socket outlives the call.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.mu.Lock()
		if s.conn != nil {
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			s.conn.Close()
		}
		clear(s.listeners)
		s.mu.Unlock()
		<-s.done
		s.log.Info("realtime session closed")
	})
}
