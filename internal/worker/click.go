package worker

import (
	"context"
	"net/url"

	"github.com/franzego/tourpush/internal/models"
	"go.uber.org/zap"
)

type ClickOutcome struct {
	Target  string `json:"target"`
	Focused string `json:"focused,omitempty"`
	Opened  bool   `json:"opened"`
}

// HandleNotificationClick closes the notification, then focuses an open
// client already showing the target path or opens a new window there.
func (w *Worker) HandleNotificationClick(ctx context.Context, n models.SystemNotification) ClickOutcome {
	if err := w.notifier.Close(ctx, n.ID); err != nil {
		w.log.Warn("closing notification failed", zap.String("notification", n.ID), zap.Error(err))
	}

	target := w.resolve(n.TargetURL())
	out := ClickOutcome{Target: target.String()}

	clients, err := w.clients.MatchAll(ctx)
	if err != nil {
		w.log.Warn("listing window clients failed", zap.Error(err))
	}
	for _, c := range clients {
		// a client that never reported its page cannot match
		if c.URL() == "" || pathOf(w.resolve(c.URL())) != pathOf(target) {
			continue
		}
		if err := c.Focus(ctx); err != nil {
			w.log.Warn("focusing client failed", zap.String("client", c.ID()), zap.Error(err))
			continue
		}
		out.Focused = c.ID()
		return out
	}

	if err := w.opener.OpenWindow(ctx, out.Target); err != nil {
		w.log.Error("opening window failed", zap.String("url", out.Target), zap.Error(err))
		return out
	}
	out.Opened = true
	return out
}

func (w *Worker) resolve(raw string) *url.URL {
	ref, err := url.Parse(raw)
	if err != nil {
		ref = &url.URL{Path: models.DefaultURL}
	}
	base, err := url.Parse(w.opts.Origin)
	if err != nil || w.opts.Origin == "" {
		return ref
	}
	return base.ResolveReference(ref)
}

func pathOf(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	return u.Path
}
