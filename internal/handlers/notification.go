package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/franzego/tourpush/internal/models"
	"github.com/franzego/tourpush/internal/tray"
	"github.com/franzego/tourpush/internal/worker"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type NotificationStore interface {
	List(ctx context.Context) ([]models.SystemNotification, error)
	Get(ctx context.Context, id string) (models.SystemNotification, error)
}

type ClickHandler interface {
	HandleNotificationClick(ctx context.Context, n models.SystemNotification) worker.ClickOutcome
}

type NotificationHandler struct {
	tray   NotificationStore
	worker ClickHandler
	log    *zap.Logger
}

func NewNotificationHandler(store NotificationStore, w ClickHandler, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{tray: store, worker: w, log: log}
}

// List returns the system notifications currently shown, newest first.
func (n *NotificationHandler) List(c *gin.Context) {
	items, err := n.tray.List(c.Request.Context())
	if err != nil {
		n.log.Error("listing notifications failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.APIResponse{
			Success: false,
			Error:   "failed to list notifications",
			Message: "Internal Server Error",
		})
		return
	}
	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Notifications retrieved",
		Data:    items,
	})
}

// Click plays a user click on a shown notification.
func (n *NotificationHandler) Click(c *gin.Context) {
	ctx := c.Request.Context()
	item, err := n.tray.Get(ctx, c.Param("id"))
	if errors.Is(err, tray.ErrNotFound) {
		c.JSON(http.StatusNotFound, models.APIResponse{
			Success: false,
			Error:   err.Error(),
			Message: "Notification Not Found",
		})
		return
	}
	if err != nil {
		n.log.Error("loading notification failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.APIResponse{
			Success: false,
			Error:   "failed to load notification",
			Message: "Internal Server Error",
		})
		return
	}

	outcome := n.worker.HandleNotificationClick(context.WithoutCancel(ctx), item)
	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Notification clicked",
		Data:    outcome,
	})
}
