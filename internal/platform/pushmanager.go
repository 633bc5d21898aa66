package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/franzego/tourpush/internal/models"
	"github.com/franzego/tourpush/internal/webpush"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const subscriptionKey = "push:subscription"

var (
	ErrUserVisibleOnly = errors.New("push subscriptions must be user visible only")
	ErrInvalidState    = errors.New("a subscription with a different application server key exists")
)

// Subscription is the runtime's record of the device subscription, including
// the private key material that never leaves the device.
type Subscription struct {
	ID                   string                  `json:"id"`
	Endpoint             string                  `json:"endpoint"`
	Keys                 models.SubscriptionKeys `json:"keys"`
	PrivateKey           string                  `json:"private_key"`
	ApplicationServerKey string                  `json:"application_server_key"`
	UserVisibleOnly      bool                    `json:"user_visible_only"`
	CreatedAt            time.Time               `json:"created_at"`
}

func (s *Subscription) KeyPair() (*webpush.KeyPair, error) {
	return webpush.ParseKeyPair(s.PrivateKey, s.Keys.Auth)
}

// ServerKey returns the application server key the subscription is bound to.
func (s *Subscription) ServerKey() ([]byte, error) {
	return webpush.DecodeKey(s.ApplicationServerKey)
}

// Public is what gets mirrored to the backend.
func (s *Subscription) Public(userAgent string) models.PushSubscription {
	return models.PushSubscription{
		Endpoint:  s.Endpoint,
		Keys:      s.Keys,
		UserAgent: userAgent,
	}
}

type SubscribeOptions struct {
	ApplicationServerKey []byte
	UserVisibleOnly      bool
}

// PushManager holds the single push subscription of this device. Endpoints
// point at the agent's push route.
type PushManager struct {
	redis        *redis.Client
	endpointBase string
	now          func() time.Time
}

func NewPushManager(rdb *redis.Client, agentURL string) *PushManager {
	return &PushManager{
		redis:        rdb,
		endpointBase: strings.TrimRight(agentURL, "/") + "/push/",
		now:          time.Now,
	}
}

// GetSubscription returns nil when the device is not subscribed.
func (m *PushManager) GetSubscription(ctx context.Context) (*Subscription, error) {
	data, err := m.redis.Get(ctx, subscriptionKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read subscription: %w", err)
	}
	var sub Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("decode subscription: %w", err)
	}
	return &sub, nil
}

// Lookup returns the subscription if its id matches, nil otherwise.
func (m *PushManager) Lookup(ctx context.Context, id string) (*Subscription, error) {
	sub, err := m.GetSubscription(ctx)
	if err != nil || sub == nil || sub.ID != id {
		return nil, err
	}
	return sub, nil
}

// Subscribe creates the device subscription, or returns the existing one
// when it was made for the same application server key.
func (m *PushManager) Subscribe(ctx context.Context, opts SubscribeOptions) (*Subscription, error) {
	if !opts.UserVisibleOnly {
		return nil, ErrUserVisibleOnly
	}
	if len(opts.ApplicationServerKey) == 0 {
		return nil, fmt.Errorf("subscribe: %w", webpush.ErrInvalidKey)
	}

	existing, err := m.GetSubscription(ctx)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return m.reuse(existing, opts)
	}

	kp, err := webpush.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	id := uuid.New().String()
	sub := &Subscription{
		ID:                   id,
		Endpoint:             m.endpointBase + id,
		Keys:                 models.SubscriptionKeys{P256dh: kp.P256dh(), Auth: kp.AuthSecret()},
		PrivateKey:           kp.PrivateKeyString(),
		ApplicationServerKey: webpush.EncodeKey(opts.ApplicationServerKey),
		UserVisibleOnly:      true,
		CreatedAt:            m.now().UTC(),
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return nil, err
	}

	created, err := m.redis.SetNX(ctx, subscriptionKey, data, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("store subscription: %w", err)
	}
	if !created {
		// lost a race with another subscribe call
		existing, err = m.GetSubscription(ctx)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, errors.New("subscription vanished while subscribing")
		}
		return m.reuse(existing, opts)
	}
	return sub, nil
}

func (m *PushManager) reuse(existing *Subscription, opts SubscribeOptions) (*Subscription, error) {
	key, err := existing.ServerKey()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(key, opts.ApplicationServerKey) {
		return nil, ErrInvalidState
	}
	return existing, nil
}

// Unsubscribe removes the device subscription and reports whether there was one.
func (m *PushManager) Unsubscribe(ctx context.Context) (bool, error) {
	n, err := m.redis.Del(ctx, subscriptionKey).Result()
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	return n > 0, nil
}
