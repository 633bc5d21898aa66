package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/franzego/tourpush/internal/models"
	"github.com/franzego/tourpush/pkg/circuitbreaker"
	"github.com/franzego/tourpush/pkg/token"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var ErrMissingKey = errors.New("vapid public key missing")

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Op         string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: backend responded with status %d", e.Op, e.StatusCode)
}

// BackendClient talks to the booking platform's notification endpoints.
type BackendClient struct {
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	log        *zap.Logger
}

func NewBackendClient(baseURL string, timeout time.Duration, log *zap.Logger) *BackendClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BackendClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cb:  circuitbreaker.NewCircuitBreaker("notification-backend", 0, log),
		log: log,
	}
}

type vapidKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

// VAPIDPublicKey fetches the application server key subscriptions must be
// created with.
func (b *BackendClient) VAPIDPublicKey(ctx context.Context) (string, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			b.baseURL+"/notifications/vapid-public-key", nil)
		if err != nil {
			return "", err
		}

		resp, err := b.httpClient.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return "", &StatusError{Op: "fetch vapid key", StatusCode: resp.StatusCode}
		}
		var body vapidKeyResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", fmt.Errorf("decode vapid key response: %w", err)
		}
		return body.PublicKey, nil
	})
	if err != nil {
		return "", err
	}

	key := result.(string)
	if key == "" {
		return "", ErrMissingKey
	}
	return key, nil
}

// Subscribe stores the subscription for the token's user.
func (b *BackendClient) Subscribe(ctx context.Context, authToken string, sub models.PushSubscription) error {
	payload, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal subscription: %w", err)
	}

	_, err = b.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			b.baseURL+"/notifications/subscribe", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", token.Bearer(authToken))

		resp, err := b.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{Op: "subscribe", StatusCode: resp.StatusCode}
		}
		return nil, nil
	})
	return err
}

// Unsubscribe deletes the backend copy of the subscription for endpoint.
func (b *BackendClient) Unsubscribe(ctx context.Context, authToken, endpoint string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
			b.baseURL+"/notifications/unsubscribe?endpoint="+url.QueryEscape(endpoint), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", token.Bearer(authToken))

		resp, err := b.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{Op: "unsubscribe", StatusCode: resp.StatusCode}
		}
		return nil, nil
	})
	return err
}
