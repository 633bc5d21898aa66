package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/franzego/tourpush/internal/models"
	"github.com/franzego/tourpush/pkg/circuitbreaker"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrSubscriptionGone means the push endpoint answered 404 or 410.
var ErrSubscriptionGone = errors.New("push subscription gone")

type SenderConfig struct {
	Subscriber      string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	TTL             int
	Timeout         time.Duration
}

// PushSender delivers encrypted pushes the way the backend's push provider
// does.
type PushSender struct {
	cfg        SenderConfig
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	log        *zap.Logger
}

func NewPushSender(cfg SenderConfig, log *zap.Logger) *PushSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 60
	}
	return &PushSender{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cb:         circuitbreaker.NewCircuitBreaker("push-sender", 0, log),
		log:        log,
	}
}

// Send encrypts msg for sub and posts it to the subscription endpoint.
func (s *PushSender) Send(ctx context.Context, sub models.PushSubscription, msg models.PushMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal push: %w", err)
	}

	_, err = s.cb.Execute(func() (interface{}, error) {
		resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.Keys.P256dh,
				Auth:   sub.Keys.Auth,
			},
		}, &webpush.Options{
			HTTPClient:      s.httpClient,
			Subscriber:      s.cfg.Subscriber,
			VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
			VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
			TTL:             s.cfg.TTL,
			Urgency:         webpush.UrgencyNormal,
		})
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
			return nil, ErrSubscriptionGone
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return nil, &StatusError{Op: "send push", StatusCode: resp.StatusCode}
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	s.log.Info("push sent", zap.String("endpoint", sub.Endpoint), zap.String("title", msg.Title))
	return nil
}
