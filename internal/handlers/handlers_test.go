package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	webpushgo "github.com/SherClockHolmes/webpush-go"
	"github.com/alicebob/miniredis/v2"
	"github.com/franzego/tourpush/internal/models"
	"github.com/franzego/tourpush/internal/platform"
	"github.com/franzego/tourpush/internal/relay"
	"github.com/franzego/tourpush/internal/services"
	"github.com/franzego/tourpush/internal/tray"
	"github.com/franzego/tourpush/internal/webpush"
	"github.com/franzego/tourpush/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockOpener struct {
	mock.Mock
}

func (m *MockOpener) OpenWindow(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) IsConnected() bool {
	return m.Called().Bool(0)
}

type agent struct {
	server  *httptest.Server
	redis   *miniredis.Miniredis
	push    *platform.PushManager
	tray    *tray.Tray
	hub     *relay.Hub
	opener  *MockOpener
	sub     *platform.Subscription
	sender  *services.PushSender
	vapidPK string
}

func setupAgent(t *testing.T, queue QueueStatus) *agent {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()

	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rdb.Close() })

	a := &agent{redis: s, opener: new(MockOpener)}
	a.tray = tray.New(rdb, log)
	a.hub = relay.NewHub(log)
	w := worker.New(a.hub, a.tray, a.opener, worker.Options{
		Icon:   "/icons/icon-192.png",
		Badge:  "/icons/badge-72.png",
		Origin: "http://app.test",
	}, log)

	mux := http.NewServeMux()
	a.server = httptest.NewServer(mux)
	t.Cleanup(func() {
		a.hub.Close()
		a.server.Close()
	})
	a.push = platform.NewPushManager(rdb, a.server.URL)

	router := NewRouter(Routes{
		Push:          NewPushHandler(w, log),
		Notifications: NewNotificationHandler(a.tray, w, log),
		Relay:         NewRelayHandler(a.hub, log),
		Health:        NewHealthHandler(queue, rdb, a.hub),
		Subscriptions: a.push,
	}, log)
	mux.Handle("/", router)

	vapidPrivate, vapidPublic, err := webpushgo.GenerateVAPIDKeys()
	require.NoError(t, err)
	serverKey, err := webpush.DecodeKey(vapidPublic)
	require.NoError(t, err)

	a.sub, err = a.push.Subscribe(context.Background(), platform.SubscribeOptions{
		ApplicationServerKey: serverKey,
		UserVisibleOnly:      true,
	})
	require.NoError(t, err)

	a.vapidPK = vapidPublic
	a.sender = services.NewPushSender(services.SenderConfig{
		Subscriber:      "ops@tours.example",
		VAPIDPublicKey:  vapidPublic,
		VAPIDPrivateKey: vapidPrivate,
	}, log)
	return a
}

func (a *agent) send(t *testing.T, msg models.PushMessage) error {
	t.Helper()
	return a.sender.Send(context.Background(), a.sub.Public("test"), msg)
}

func (a *agent) listNotifications(t *testing.T) []models.SystemNotification {
	t.Helper()
	resp, err := http.Get(a.server.URL + "/notifications")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Success bool                        `json:"success"`
		Data    []models.SystemNotification `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
	return body.Data
}

func TestPush_NoPagesShowsSystemNotificationAndClickOpens(t *testing.T) {
	a := setupAgent(t, nil)
	a.opener.On("OpenWindow", mock.Anything, "http://app.test/bookings/12").Return(nil).Once()

	require.NoError(t, a.send(t, models.PushMessage{
		Title: "Booking #12 · CONFIRMED",
		Body:  "2024-01-01",
		URL:   "/bookings/12",
	}))

	items := a.listNotifications(t)
	require.Len(t, items, 1)
	assert.Equal(t, "Booking #12 · CONFIRMED", items[0].Title)
	assert.Equal(t, "2024-01-01", items[0].Body)
	assert.Equal(t, "/icons/icon-192.png", items[0].Icon)
	assert.Equal(t, "/bookings/12", items[0].TargetURL())

	resp, err := http.Post(a.server.URL+"/notifications/"+items[0].ID+"/click", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data worker.ClickOutcome `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Data.Opened)

	assert.Empty(t, a.listNotifications(t))
	a.opener.AssertExpectations(t)
}

func TestPush_VisiblePageGetsToastOnly(t *testing.T) {
	a := setupAgent(t, nil)

	received := make(chan models.PushMessage, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(a.server.URL, "http") + "/relay"
	l, err := relay.Dial(ctx, wsURL, relay.ListenerOptions{
		PageURL:    "http://app.test/",
		Visibility: relay.VisibilityVisible,
		OnPush:     func(m models.PushMessage) { received <- m },
	}, zap.NewNop())
	require.NoError(t, err)
	go l.Run(ctx)
	require.Eventually(t, func() bool { return a.hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.send(t, models.PushMessage{Title: "Booking #12 · CONFIRMED", Body: "2024-01-01"}))

	select {
	case m := <-received:
		assert.Equal(t, "Booking #12 · CONFIRMED", m.Title)
		assert.Equal(t, "/", m.URL)
	case <-time.After(2 * time.Second):
		t.Fatal("page never got the relayed push")
	}
	assert.Empty(t, a.listNotifications(t))
}

func TestPush_RejectsMalformedVAPIDToken(t *testing.T) {
	a := setupAgent(t, nil)

	req, err := http.NewRequest(http.MethodPost, a.sub.Endpoint, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "vapid t=x.y.z, k="+a.vapidPK)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, a.listNotifications(t))
}

func TestPush_UnknownSubscriptionIsGone(t *testing.T) {
	a := setupAgent(t, nil)
	_, err := a.push.Unsubscribe(context.Background())
	require.NoError(t, err)

	err = a.send(t, models.PushMessage{Title: "late"})
	assert.ErrorIs(t, err, services.ErrSubscriptionGone)
}

func TestPush_RejectsForeignVAPIDKey(t *testing.T) {
	a := setupAgent(t, nil)
	otherPrivate, otherPublic, err := webpushgo.GenerateVAPIDKeys()
	require.NoError(t, err)

	foreign := services.NewPushSender(services.SenderConfig{
		Subscriber:      "intruder@example.com",
		VAPIDPublicKey:  otherPublic,
		VAPIDPrivateKey: otherPrivate,
	}, zap.NewNop())
	err = foreign.Send(context.Background(), a.sub.Public("test"), models.PushMessage{Title: "spoof"})

	var statusErr *services.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Empty(t, a.listNotifications(t))
}

func TestPush_UndecryptableBody(t *testing.T) {
	a := setupAgent(t, nil)

	// capture a correctly signed header, then replay it with a broken body
	var authz string
	capture := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusCreated)
	}))
	defer capture.Close()
	pub := a.sub.Public("test")
	pub.Endpoint = capture.URL + "/push/" + a.sub.ID
	require.NoError(t, a.sender.Send(context.Background(), pub, models.PushMessage{Title: "x"}))
	require.NotEmpty(t, authz)

	req, err := http.NewRequest(http.MethodPost, a.sub.Endpoint, bytes.NewReader(bytes.Repeat([]byte{1}, 100)))
	require.NoError(t, err)
	req.Header.Set("Authorization", authz)
	req.Header.Set("Content-Encoding", webpush.ContentEncoding)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err = http.NewRequest(http.MethodPost, a.sub.Endpoint, strings.NewReader("plain"))
	require.NoError(t, err)
	req.Header.Set("Authorization", authz)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestNotifications_ClickUnknown(t *testing.T) {
	a := setupAgent(t, nil)
	resp, err := http.Post(a.server.URL+"/notifications/nope/click", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	a.opener.AssertNotCalled(t, "OpenWindow", mock.Anything, mock.Anything)
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		q := new(MockQueue)
		q.On("IsConnected").Return(true)
		a := setupAgent(t, q)

		resp, err := http.Get(a.server.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "healthy", body["status"])
		assert.NotEmpty(t, resp.Header.Get("X-Correlation-ID"))
	})

	t.Run("without rabbitmq is degraded", func(t *testing.T) {
		a := setupAgent(t, nil)
		resp, err := http.Get(a.server.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "degraded", body["status"])
	})

	t.Run("redis down", func(t *testing.T) {
		a := setupAgent(t, nil)
		a.redis.Close()
		resp, err := http.Get(a.server.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}
