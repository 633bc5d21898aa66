package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/franzego/tourpush/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAgent(t *testing.T, setup func(r *gin.Engine)) *AgentClient {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	setup(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return NewAgentClient(srv.URL + "/")
}

func TestAgentClient_Notifications(t *testing.T) {
	client := newAgent(t, func(r *gin.Engine) {
		r.GET("/notifications", func(c *gin.Context) {
			c.JSON(http.StatusOK, models.APIResponse{
				Success: true,
				Data:    []models.SystemNotification{{ID: "n1", Title: "Booking #12"}},
			})
		})
	})

	items, err := client.Notifications(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "n1", items[0].ID)
}

func TestAgentClient_Click(t *testing.T) {
	client := newAgent(t, func(r *gin.Engine) {
		r.POST("/notifications/:id/click", func(c *gin.Context) {
			if c.Param("id") != "n1" {
				c.JSON(http.StatusNotFound, models.APIResponse{Success: false})
				return
			}
			c.JSON(http.StatusOK, models.APIResponse{
				Success: true,
				Data:    gin.H{"target": "http://app.test/bookings/12", "opened": true},
			})
		})
	})

	outcome, err := client.Click(context.Background(), "n1")
	require.NoError(t, err)
	assert.True(t, outcome.Opened)
	assert.Equal(t, "http://app.test/bookings/12", outcome.Target)

	_, err = client.Click(context.Background(), "missing")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}
