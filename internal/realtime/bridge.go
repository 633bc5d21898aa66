package realtime

import (
	"sync"

	"github.com/franzego/tourpush/internal/toast"
	"go.uber.org/zap"
)

// Toaster shows a toast in the page.
type Toaster interface {
	Show(toast.Toast)
}

// Bridge turns gateway domain events into toasts and an optional sound for
// one mounted view.
type Bridge struct {
	manager   *Manager
	formatter *Formatter
	toaster   Toaster
	sound     toast.Sound
	log       *zap.Logger

	mu    sync.Mutex
	lease *Lease
	off   func()
}

// NewBridge builds a bridge; sound may be nil.
func NewBridge(manager *Manager, formatter *Formatter, toaster Toaster, sound toast.Sound, log *zap.Logger) *Bridge {
	return &Bridge{
		manager:   manager,
		formatter: formatter,
		toaster:   toaster,
		sound:     sound,
		log:       log,
	}
}

// Mount (re)attaches the bridge for authToken. Any previous mount is torn
// down first; an empty token leaves the bridge unmounted.
func (b *Bridge) Mount(authToken string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unmountLocked()

	lease, err := b.manager.Acquire(authToken)
	if err != nil {
		return err
	}
	b.lease = lease
	b.off = lease.Session().On(b.handle)
	return nil
}

func (b *Bridge) Unmount() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unmountLocked()
}

func (b *Bridge) unmountLocked() {
	if b.off != nil {
		b.off()
		b.off = nil
	}
	if b.lease != nil {
		b.lease.Release()
		b.lease = nil
	}
}

// Session returns the mounted session, or nil.
func (b *Bridge) Session() *Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lease == nil {
		return nil
	}
	return b.lease.Session()
}

func (b *Bridge) handle(env Envelope) {
	if !IsDomainEvent(env.Event) {
		b.log.Debug("ignoring realtime event", zap.String("event", env.Event))
		return
	}
	t, err := b.formatter.Toast(env)
	if err != nil {
		b.log.Warn("malformed realtime event", zap.String("event", env.Event), zap.Error(err))
		return
	}
	b.toaster.Show(t)
	toast.PlaySafely(b.sound, b.log)
}
