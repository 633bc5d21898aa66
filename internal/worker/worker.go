// Package worker is the push delivery worker: it turns an incoming push into
// a relay to open pages and, when none of them is looking, a system
// notification. It also resolves notification clicks to a page.
package worker

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/franzego/tourpush/internal/models"
	"go.uber.org/zap"
)

// Visibility is what a window client can tell about itself. Clients that
// cannot report visibility are treated as visible.
type Visibility struct {
	Supported bool
	Visible   bool
}

func (v Visibility) CountsAsVisible() bool {
	return !v.Supported || v.Visible
}

// WindowClient is an open page the worker can talk to.
type WindowClient interface {
	ID() string
	URL() string
	Visibility() Visibility
	PostMessage(ctx context.Context, msg models.RelayMessage) error
	Focus(ctx context.Context) error
}

// Clients lists open window clients, including ones not controlled by this
// worker.
type Clients interface {
	MatchAll(ctx context.Context) ([]WindowClient, error)
}

// Notifier shows and closes system notifications.
type Notifier interface {
	Show(ctx context.Context, n models.SystemNotification) (models.SystemNotification, error)
	Close(ctx context.Context, id string) error
}

type WindowOpener interface {
	OpenWindow(ctx context.Context, url string) error
}

type Options struct {
	Icon  string
	Badge string
	// Origin is the page origin relative notification URLs resolve against.
	Origin string
}

type Worker struct {
	clients  Clients
	notifier Notifier
	opener   WindowOpener
	opts     Options
	log      *zap.Logger
}

func New(clients Clients, notifier Notifier, opener WindowOpener, opts Options, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		clients:  clients,
		notifier: notifier,
		opener:   opener,
		opts:     opts,
		log:      log,
	}
}

// PushOutcome reports what HandlePush did with one push.
type PushOutcome struct {
	Message      models.PushMessage `json:"message"`
	Relayed      int                `json:"relayed"`
	Failed       int                `json:"failed"`
	Shown        bool               `json:"shown"`
	Notification string             `json:"notification,omitempty"`
}

// ParsePushMessage decodes a push payload. Unparsable payloads become a
// message titled "Notification" whose body is the raw text.
func ParsePushMessage(raw []byte) models.PushMessage {
	var msg models.PushMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		msg = models.PushMessage{}
		if utf8.Valid(raw) {
			msg.Body = strings.TrimSpace(string(raw))
		}
	}
	if msg.Title == "" {
		msg.Title = models.DefaultTitle
	}
	if msg.URL == "" {
		msg.URL = models.DefaultURL
	}
	if msg.Data == nil {
		msg.Data = map[string]interface{}{}
	}
	return msg
}

// HandlePush relays the push to every open client and shows a system
// notification only when no client is visible. It never fails; problems
// with single clients or the notifier are logged.
//
// Visibility is read after the relay, so a page changing visibility in
// between can get both a toast and a system notification, or neither
// would have been needed. That race is accepted.
func (w *Worker) HandlePush(ctx context.Context, raw []byte) PushOutcome {
	msg := ParsePushMessage(raw)
	out := PushOutcome{Message: msg}

	clients, err := w.clients.MatchAll(ctx)
	if err != nil {
		w.log.Warn("listing window clients failed", zap.Error(err))
		clients = nil
	}

	relay := models.RelayMessage{Type: models.RelayTypePushEvent, Payload: &msg}
	for _, c := range clients {
		if err := c.PostMessage(ctx, relay); err != nil {
			out.Failed++
			w.log.Debug("relay to client failed", zap.String("client", c.ID()), zap.Error(err))
			continue
		}
		out.Relayed++
	}

	// re-read: clients may have come or gone while relaying
	if current, err := w.clients.MatchAll(ctx); err == nil {
		clients = current
	}
	for _, c := range clients {
		if c.Visibility().CountsAsVisible() {
			w.log.Debug("client visible, system notification suppressed",
				zap.String("client", c.ID()), zap.String("title", msg.Title))
			return out
		}
	}

	shown, err := w.notifier.Show(ctx, models.SystemNotification{
		Title: msg.Title,
		Body:  msg.Body,
		Icon:  w.opts.Icon,
		Badge: w.opts.Badge,
		Data:  map[string]interface{}{"url": msg.URL},
	})
	if err != nil {
		w.log.Error("showing system notification failed", zap.String("title", msg.Title), zap.Error(err))
		return out
	}
	out.Shown = true
	out.Notification = shown.ID
	return out
}
