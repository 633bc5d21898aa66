package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type QueueStatus interface {
	IsConnected() bool
}

type ClientCounter interface {
	Len() int
}

type HealthHandler struct {
	queue QueueStatus
	redis *redis.Client
	relay ClientCounter
}

// NewHealthHandler builds the agent health check; queue may be nil when the
// agent runs without RabbitMQ.
func NewHealthHandler(queue QueueStatus, redis *redis.Client, relay ClientCounter) *HealthHandler {
	return &HealthHandler{
		queue: queue,
		redis: redis,
		relay: relay,
	}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)

	// Check RabbitMQ, plain pushes only
	if h.queue != nil && h.queue.IsConnected() {
		checks["rabbitmq"] = "healthy"
	} else {
		checks["rabbitmq"] = "degraded"
	}

	// Check Redis, the tray and subscription live there
	if err := h.redis.Ping(ctx).Err(); err == nil {
		checks["redis"] = "healthy"
	} else {
		checks["redis"] = "unhealthy"
	}

	checks["relay"] = "healthy"

	// Determine overall status
	overallStatus := "healthy"
	for _, status := range checks {
		if status == "unhealthy" {
			overallStatus = "unhealthy"
			break
		} else if status == "degraded" {
			overallStatus = "degraded"
		}
	}

	statusCode := http.StatusOK
	if overallStatus == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":       overallStatus,
		"timestamp":    time.Now().Format(time.RFC3339),
		"checks":       checks,
		"page_clients": h.relay.Len(),
		"version":      "1.0.0",
	})
}
