// Package subscription enables and disables push notifications for this
// device: permission, worker registration, the device subscription and its
// mirror on the backend.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/franzego/tourpush/internal/models"
	"github.com/franzego/tourpush/internal/platform"
	"github.com/franzego/tourpush/internal/webpush"
	"go.uber.org/zap"
)

var (
	ErrNotSupported         = errors.New("push notifications are not supported")
	ErrPermissionNotGranted = errors.New("notification permission not granted")
	ErrBusy                 = errors.New("push notifications are already being enabled")
	ErrRemoteUnsubscribe    = errors.New("backend unsubscribe failed")
)

// WorkerScope is the scope the push worker registers at.
const WorkerScope = "/"

type Status string

const (
	StatusIdle     Status = "idle"
	StatusEnabling Status = "enabling"
	StatusEnabled  Status = "enabled"
	StatusError    Status = "error"
)

type PermissionAPI interface {
	Supported() bool
	State(ctx context.Context) (models.Permission, error)
	Request(ctx context.Context) (models.Permission, error)
}

type Registrar interface {
	Register(ctx context.Context, scope string) error
}

type PushManager interface {
	GetSubscription(ctx context.Context) (*platform.Subscription, error)
	Subscribe(ctx context.Context, opts platform.SubscribeOptions) (*platform.Subscription, error)
	Unsubscribe(ctx context.Context) (bool, error)
}

type Backend interface {
	VAPIDPublicKey(ctx context.Context) (string, error)
	Subscribe(ctx context.Context, authToken string, sub models.PushSubscription) error
	Unsubscribe(ctx context.Context, authToken, endpoint string) error
}

type Manager struct {
	permissions PermissionAPI
	registrar   Registrar
	push        PushManager
	backend     Backend
	userAgent   string
	log         *zap.Logger

	mu     sync.Mutex
	status Status
	errMsg string
}

func NewManager(permissions PermissionAPI, registrar Registrar, push PushManager, backend Backend, userAgent string, log *zap.Logger) *Manager {
	return &Manager{
		permissions: permissions,
		registrar:   registrar,
		push:        push,
		backend:     backend,
		userAgent:   userAgent,
		log:         log,
		status:      StatusIdle,
	}
}

// Status returns the current state and the last error message, if any.
func (m *Manager) Status() (Status, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, m.errMsg
}

func (m *Manager) setStatus(s Status, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = s
	m.errMsg = ""
	if err != nil {
		m.errMsg = err.Error()
	}
}

// begin moves to enabling unless an enable is already running.
func (m *Manager) begin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == StatusEnabling {
		return false
	}
	m.status = StatusEnabling
	m.errMsg = ""
	return true
}

// Enable turns push notifications on. An existing device subscription counts
// as already enabled and is not posted to the backend again.
func (m *Manager) Enable(ctx context.Context, authToken string) error {
	if !m.begin() {
		return ErrBusy
	}
	err := m.enable(ctx, authToken)
	if err != nil {
		m.setStatus(StatusError, err)
		m.log.Warn("enabling push failed", zap.Error(err))
		return err
	}
	m.setStatus(StatusEnabled, nil)
	return nil
}

func (m *Manager) enable(ctx context.Context, authToken string) error {
	if !m.permissions.Supported() {
		return ErrNotSupported
	}

	perm, err := m.permissions.State(ctx)
	if err != nil {
		return err
	}
	if perm == models.PermissionDefault {
		if perm, err = m.permissions.Request(ctx); err != nil {
			return err
		}
	}
	if perm != models.PermissionGranted {
		return fmt.Errorf("%w: %s", ErrPermissionNotGranted, perm)
	}

	if err := m.registrar.Register(ctx, WorkerScope); err != nil {
		return fmt.Errorf("register push worker: %w", err)
	}

	existing, err := m.push.GetSubscription(ctx)
	if err != nil {
		return err
	}
	if existing != nil {
		m.log.Info("push already enabled", zap.String("endpoint", existing.Endpoint))
		return nil
	}

	publicKey, err := m.backend.VAPIDPublicKey(ctx)
	if err != nil {
		return fmt.Errorf("fetch vapid key: %w", err)
	}
	serverKey, err := webpush.DecodeKey(publicKey)
	if err != nil {
		return fmt.Errorf("decode vapid key: %w", err)
	}

	sub, err := m.push.Subscribe(ctx, platform.SubscribeOptions{
		ApplicationServerKey: serverKey,
		UserVisibleOnly:      true,
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	if err := m.backend.Subscribe(ctx, authToken, sub.Public(m.userAgent)); err != nil {
		// drop the device copy so a retry runs the whole flow again
		if _, uerr := m.push.Unsubscribe(ctx); uerr != nil {
			m.log.Warn("removing unsaved device subscription failed", zap.Error(uerr))
		}
		return fmt.Errorf("save subscription: %w", err)
	}
	m.log.Info("push enabled", zap.String("endpoint", sub.Endpoint))
	return nil
}

// Disable removes the backend copy and the device subscription. The device
// subscription is removed even when the backend call fails; that failure is
// then returned wrapped in ErrRemoteUnsubscribe. The subscription lives
// outside the worker, so no ready worker is needed.
func (m *Manager) Disable(ctx context.Context, authToken string) error {
	sub, err := m.push.GetSubscription(ctx)
	if err != nil {
		m.setStatus(StatusError, err)
		return err
	}
	if sub == nil {
		m.setStatus(StatusIdle, nil)
		return nil
	}

	remoteErr := m.backend.Unsubscribe(ctx, authToken, sub.Endpoint)
	if remoteErr != nil {
		m.log.Warn("backend unsubscribe failed, removing device subscription anyway",
			zap.String("endpoint", sub.Endpoint), zap.Error(remoteErr))
	}

	if _, err := m.push.Unsubscribe(ctx); err != nil {
		err = errors.Join(err, remoteErr)
		m.setStatus(StatusError, err)
		return err
	}

	if remoteErr != nil {
		err := fmt.Errorf("%w: %w", ErrRemoteUnsubscribe, remoteErr)
		m.setStatus(StatusError, err)
		return err
	}
	m.setStatus(StatusIdle, nil)
	m.log.Info("push disabled", zap.String("endpoint", sub.Endpoint))
	return nil
}
