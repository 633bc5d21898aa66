package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/franzego/tourpush/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newBackend(t *testing.T, setup func(r *gin.Engine)) *BackendClient {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	setup(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return NewBackendClient(srv.URL, 0, zap.NewNop())
}

func TestVAPIDPublicKey_Success(t *testing.T) {
	client := newBackend(t, func(r *gin.Engine) {
		r.GET("/notifications/vapid-public-key", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"publicKey": "BPubKey"})
		})
	})

	key, err := client.VAPIDPublicKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BPubKey", key)
}

func TestVAPIDPublicKey_Missing(t *testing.T) {
	client := newBackend(t, func(r *gin.Engine) {
		r.GET("/notifications/vapid-public-key", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{})
		})
	})

	_, err := client.VAPIDPublicKey(context.Background())
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestSubscribe_SendsBearerAndBody(t *testing.T) {
	var gotAuth string
	var gotBody models.PushSubscription
	client := newBackend(t, func(r *gin.Engine) {
		r.POST("/notifications/subscribe", func(c *gin.Context) {
			gotAuth = c.GetHeader("Authorization")
			_ = c.ShouldBindJSON(&gotBody)
			c.Status(http.StatusCreated)
		})
	})

	sub := models.PushSubscription{
		Endpoint:  "http://agent/push/1",
		Keys:      models.SubscriptionKeys{P256dh: "p", Auth: "a"},
		UserAgent: "tourpush/dev",
	}
	require.NoError(t, client.Subscribe(context.Background(), "jwt", sub))
	assert.Equal(t, "Bearer jwt", gotAuth)
	assert.Equal(t, sub, gotBody)
}

func TestSubscribe_NonSuccessCarriesStatus(t *testing.T) {
	client := newBackend(t, func(r *gin.Engine) {
		r.POST("/notifications/subscribe", func(c *gin.Context) {
			c.Status(http.StatusUnauthorized)
		})
	})

	err := client.Subscribe(context.Background(), "jwt", models.PushSubscription{Endpoint: "e"})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Contains(t, err.Error(), "401")
}

func TestUnsubscribe_EncodesEndpoint(t *testing.T) {
	var gotEndpoint, gotAuth string
	client := newBackend(t, func(r *gin.Engine) {
		r.DELETE("/notifications/unsubscribe", func(c *gin.Context) {
			gotEndpoint = c.Query("endpoint")
			gotAuth = c.GetHeader("Authorization")
			c.Status(http.StatusNoContent)
		})
	})

	endpoint := "http://agent:8090/push/1?x=a&y=b"
	require.NoError(t, client.Unsubscribe(context.Background(), "Bearer jwt", endpoint))
	assert.Equal(t, endpoint, gotEndpoint)
	assert.Equal(t, "Bearer jwt", gotAuth)
}

func TestUnsubscribe_ServerError(t *testing.T) {
	client := newBackend(t, func(r *gin.Engine) {
		r.DELETE("/notifications/unsubscribe", func(c *gin.Context) {
			c.JSON(http.StatusInternalServerError, json.RawMessage(`{"error":"boom"}`))
		})
	})

	err := client.Unsubscribe(context.Background(), "jwt", "e")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}
