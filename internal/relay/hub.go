// Package relay connects the agent with open page clients. The agent side
// (Hub) is the worker's view of open windows; the page side (Listener)
// receives relayed pushes.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/franzego/tourpush/internal/models"
	"github.com/franzego/tourpush/internal/worker"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 16
)

var (
	ErrClientClosed = errors.New("client closed")
	ErrClientBusy   = errors.New("client send buffer full")
)

const (
	VisibilityVisible = "visible"
	VisibilityHidden  = "hidden"
)

type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// pages of any local origin may attach
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// ServeWS upgrades the request and serves the client until it disconnects.
// The page announces itself with ?url=<page url>&visibility=visible|hidden;
// leaving visibility out means the page cannot report it.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	q := r.URL.Query()
	c := &Client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
		url:  q.Get("url"),
		log:  h.log,
	}
	switch q.Get("visibility") {
	case VisibilityVisible:
		c.vis = worker.Visibility{Supported: true, Visible: true}
	case VisibilityHidden:
		c.vis = worker.Visibility{Supported: true, Visible: false}
	}

	h.register(c)
	defer h.unregister(c)

	go c.writePump()
	c.readPump()
	return nil
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info("page client connected", zap.String("client", c.id), zap.String("url", c.URL()), zap.Int("clients", n))
}

func (h *Hub) unregister(c *Client) {
	c.close()
	h.mu.Lock()
	delete(h.clients, c.id)
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info("page client disconnected", zap.String("client", c.id), zap.Int("clients", n))
}

// MatchAll returns every connected page client.
func (h *Hub) MatchAll(context.Context) ([]worker.WindowClient, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]worker.WindowClient, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out, nil
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.close()
	}
}

// Client is one connected page.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	log  *zap.Logger

	mu     sync.RWMutex
	url    string
	vis    worker.Visibility
	closed bool
}

func (c *Client) ID() string { return c.id }

func (c *Client) URL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.url
}

func (c *Client) Visibility() worker.Visibility {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vis
}

func (c *Client) PostMessage(ctx context.Context, msg models.RelayMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, b)
}

// Focus asks the page to bring itself to the foreground.
func (c *Client) Focus(ctx context.Context) error {
	return c.PostMessage(ctx, models.RelayMessage{Type: models.RelayTypeFocus})
}

func (c *Client) enqueue(ctx context.Context, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrClientBusy
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	c.conn.Close()
}

func (c *Client) apply(u models.ClientUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch u.Type {
	case models.RelayTypeVisibility:
		c.vis = worker.Visibility{Supported: true, Visible: u.Visible}
	case models.RelayTypeNavigate:
		c.url = u.URL
	}
}

func (c *Client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var u models.ClientUpdate
		if err := c.conn.ReadJSON(&u); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("page client read failed", zap.String("client", c.id), zap.Error(err))
			}
			return
		}
		c.apply(u)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.log.Debug("page client write failed", zap.String("client", c.id), zap.Error(err))
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}
