package tray

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/franzego/tourpush/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTray(t *testing.T) (*Tray, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, zap.NewNop()), s
}

func TestTray_ShowGetClose(t *testing.T) {
	tr, _ := setupTray(t)
	ctx := context.Background()

	shown, err := tr.Show(ctx, models.SystemNotification{
		Title: "Booking #12 · CONFIRMED",
		Body:  "2024-01-01",
		Data:  map[string]interface{}{"url": "/bookings/12"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, shown.ID)
	assert.False(t, shown.ShownAt.IsZero())

	got, err := tr.Get(ctx, shown.ID)
	require.NoError(t, err)
	assert.Equal(t, "Booking #12 · CONFIRMED", got.Title)
	assert.Equal(t, "/bookings/12", got.TargetURL())

	require.NoError(t, tr.Close(ctx, shown.ID))
	_, err = tr.Get(ctx, shown.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, tr.Close(ctx, shown.ID), ErrNotFound)
}

func TestTray_ListNewestFirstAndPrunesExpired(t *testing.T) {
	tr, s := setupTray(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	tr.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	first, err := tr.Show(ctx, models.SystemNotification{Title: "first"})
	require.NoError(t, err)
	second, err := tr.Show(ctx, models.SystemNotification{Title: "second"})
	require.NoError(t, err)

	list, err := tr.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	s.FastForward(25 * time.Hour)

	list, err = tr.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	members, err := s.ZMembers(indexKey)
	if err == nil {
		assert.Empty(t, members)
	}
}
