package relay

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/franzego/tourpush/internal/models"
	"github.com/franzego/tourpush/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupHub(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub(zap.NewNop())
	router := gin.New()
	router.GET("/relay", func(c *gin.Context) {
		_ = hub.ServeWS(c.Writer, c.Request)
	})
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/relay"
}

func onlyClient(t *testing.T, hub *Hub) worker.WindowClient {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	clients, err := hub.MatchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, clients, 1)
	return clients[0]
}

func TestRelay_PushEventReachesPage(t *testing.T) {
	hub, url := setupHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pushes := make(chan models.PushMessage, 1)
	l, err := Dial(ctx, url, ListenerOptions{
		PageURL:    "http://localhost:5173/bookings/12",
		Visibility: VisibilityVisible,
		OnPush:     func(m models.PushMessage) { pushes <- m },
	}, zap.NewNop())
	require.NoError(t, err)
	go l.Run(ctx)

	client := onlyClient(t, hub)
	assert.Equal(t, "http://localhost:5173/bookings/12", client.URL())
	assert.Equal(t, worker.Visibility{Supported: true, Visible: true}, client.Visibility())

	msg := models.PushMessage{Title: "Booking #12 · CONFIRMED", Body: "2024-01-01", URL: "/bookings/12"}
	require.NoError(t, client.PostMessage(ctx, models.RelayMessage{Type: models.RelayTypePushEvent, Payload: &msg}))

	select {
	case got := <-pushes:
		assert.Equal(t, msg.Title, got.Title)
		assert.Equal(t, msg.Body, got.Body)
		assert.Equal(t, msg.URL, got.URL)
	case <-time.After(2 * time.Second):
		t.Fatal("push not relayed")
	}
}

func TestRelay_IgnoresUnknownTypesAndHandlesFocus(t *testing.T) {
	hub, url := setupHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pushes := make(chan models.PushMessage, 1)
	focused := make(chan struct{}, 1)
	l, err := Dial(ctx, url, ListenerOptions{
		OnPush:  func(m models.PushMessage) { pushes <- m },
		OnFocus: func() { focused <- struct{}{} },
	}, zap.NewNop())
	require.NoError(t, err)
	go l.Run(ctx)

	client := onlyClient(t, hub)
	require.NoError(t, client.PostMessage(ctx, models.RelayMessage{Type: "SOMETHING_ELSE"}))
	require.NoError(t, client.Focus(ctx))

	select {
	case <-focused:
	case <-time.After(2 * time.Second):
		t.Fatal("focus not delivered")
	}
	assert.Empty(t, pushes)
}

func TestRelay_VisibilityAndNavigationUpdates(t *testing.T) {
	hub, url := setupHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l, err := Dial(ctx, url, ListenerOptions{PageURL: "http://localhost:5173/"}, zap.NewNop())
	require.NoError(t, err)
	go l.Run(ctx)

	client := onlyClient(t, hub)
	assert.Equal(t, worker.Visibility{}, client.Visibility())
	assert.True(t, client.Visibility().CountsAsVisible())

	require.NoError(t, l.SetVisible(false))
	require.Eventually(t, func() bool {
		return client.Visibility() == worker.Visibility{Supported: true, Visible: false}
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, l.Navigate("http://localhost:5173/refunds"))
	require.Eventually(t, func() bool {
		return client.URL() == "http://localhost:5173/refunds"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRelay_ClosedClientRejectsMessages(t *testing.T) {
	hub, url := setupHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l, err := Dial(ctx, url, ListenerOptions{}, zap.NewNop())
	require.NoError(t, err)
	go l.Run(ctx)

	client := onlyClient(t, hub)
	require.NoError(t, l.Close())
	require.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	err = client.PostMessage(ctx, models.RelayMessage{Type: models.RelayTypePushEvent})
	assert.ErrorIs(t, err, ErrClientClosed)
}
