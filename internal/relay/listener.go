package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/franzego/tourpush/internal/models"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ListenerOptions describe the page a Listener speaks for.
type ListenerOptions struct {
	PageURL string
	// Visibility is VisibilityVisible, VisibilityHidden or empty when the
	// page cannot report it.
	Visibility string
	OnPush     func(models.PushMessage)
	OnFocus    func()
}

// Listener is the page side of the relay.
type Listener struct {
	conn *websocket.Conn
	opts ListenerOptions
	log  *zap.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Dial connects to the agent's relay endpoint, e.g. ws://localhost:8090/relay.
func Dial(ctx context.Context, hubURL string, opts ListenerOptions, log *zap.Logger) (*Listener, error) {
	u, err := url.Parse(hubURL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	q := u.Query()
	if opts.PageURL != "" {
		q.Set("url", opts.PageURL)
	}
	if opts.Visibility != "" {
		q.Set("visibility", opts.Visibility)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	return &Listener{conn: conn, opts: opts, log: log}, nil
}

// Run dispatches relay messages until the connection closes or ctx ends.
// Messages of unknown type are ignored.
func (l *Listener) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	for {
		var msg inbound
		if err := l.conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("relay read: %w", err)
		}
		l.dispatch(msg)
	}
}

func (l *Listener) dispatch(msg inbound) {
	switch msg.Type {
	case models.RelayTypePushEvent:
		var push models.PushMessage
		if err := json.Unmarshal(msg.Payload, &push); err != nil {
			l.log.Warn("malformed relay payload", zap.Error(err))
			return
		}
		if l.opts.OnPush != nil {
			l.opts.OnPush(push)
		}
	case models.RelayTypeFocus:
		if l.opts.OnFocus != nil {
			l.opts.OnFocus()
		}
	}
}

// SetVisible reports a visibility change to the agent.
func (l *Listener) SetVisible(visible bool) error {
	return l.write(models.ClientUpdate{Type: models.RelayTypeVisibility, Visible: visible})
}

// Navigate reports that the page now shows pageURL.
func (l *Listener) Navigate(pageURL string) error {
	return l.write(models.ClientUpdate{Type: models.RelayTypeNavigate, URL: pageURL})
}

func (l *Listener) write(u models.ClientUpdate) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.conn.WriteJSON(u)
}

func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.writeMu.Lock()
		werr := l.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		l.writeMu.Unlock()
		err = errors.Join(werr, l.conn.Close())
	})
	return err
}
