// Package tray keeps system notifications shown by the worker in Redis so a
// later click can find the notification's data again.
package tray

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/franzego/tourpush/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	indexKey = "notification:tray"
	ttl      = 24 * time.Hour
)

var ErrNotFound = errors.New("notification not found")

type Tray struct {
	redis *redis.Client
	log   *zap.Logger
	now   func() time.Time
}

func New(rdb *redis.Client, log *zap.Logger) *Tray {
	return &Tray{redis: rdb, log: log, now: time.Now}
}

func itemKey(id string) string {
	return fmt.Sprintf("notification:tray:%s", id)
}

// Show stores n under a fresh id and returns it with ID and ShownAt set.
func (t *Tray) Show(ctx context.Context, n models.SystemNotification) (models.SystemNotification, error) {
	n.ID = uuid.New().String()
	n.ShownAt = t.now()

	data, err := json.Marshal(n)
	if err != nil {
		return n, err
	}
	pipe := t.redis.TxPipeline()
	pipe.Set(ctx, itemKey(n.ID), data, ttl)
	pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(n.ShownAt.UnixNano()), Member: n.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return n, fmt.Errorf("store notification: %w", err)
	}

	t.log.Info("system notification shown",
		zap.String("id", n.ID),
		zap.String("title", n.Title),
		zap.String("body", n.Body),
		zap.String("url", n.TargetURL()),
	)
	return n, nil
}

func (t *Tray) Get(ctx context.Context, id string) (models.SystemNotification, error) {
	var n models.SystemNotification
	data, err := t.redis.Get(ctx, itemKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return n, ErrNotFound
	}
	if err != nil {
		return n, err
	}
	if err := json.Unmarshal(data, &n); err != nil {
		return n, fmt.Errorf("decode notification %s: %w", id, err)
	}
	return n, nil
}

// Close removes the notification. Closing an unknown id returns ErrNotFound.
func (t *Tray) Close(ctx context.Context, id string) error {
	pipe := t.redis.TxPipeline()
	del := pipe.Del(ctx, itemKey(id))
	pipe.ZRem(ctx, indexKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("close notification: %w", err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns the notifications still in the tray, newest first. Index
// entries whose data expired are pruned.
func (t *Tray) List(ctx context.Context) ([]models.SystemNotification, error) {
	ids, err := t.redis.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.SystemNotification, 0, len(ids))
	for _, id := range ids {
		n, err := t.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			t.redis.ZRem(ctx, indexKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
