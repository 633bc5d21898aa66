package handlers

import (
	"github.com/franzego/tourpush/internal/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Routes groups the agent's handlers.
type Routes struct {
	Push          *PushHandler
	Notifications *NotificationHandler
	Relay         *RelayHandler
	Health        *HealthHandler
	Subscriptions middleware.SubscriptionLookup
	// PushRateLimit is requests per minute per client on the push route.
	PushRateLimit int
}

func NewRouter(routes Routes, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.CorrelationID(), middleware.RequestLogger(log))

	r.GET("/health", routes.Health.HealthCheck)
	r.POST("/push/:id",
		middleware.RateLimit(routes.PushRateLimit, log),
		middleware.VAPIDAuth(routes.Subscriptions, log),
		routes.Push.Receive,
	)
	r.GET("/notifications", routes.Notifications.List)
	r.POST("/notifications/:id/click", routes.Notifications.Click)
	r.GET("/relay", routes.Relay.Connect)
	return r
}
