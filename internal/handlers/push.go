package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/franzego/tourpush/internal/middleware"
	"github.com/franzego/tourpush/internal/models"
	"github.com/franzego/tourpush/internal/platform"
	"github.com/franzego/tourpush/internal/webpush"
	"github.com/franzego/tourpush/internal/worker"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxPushBody is the largest encrypted body a push service may send.
const maxPushBody = 4096 + 1024

// PushDeliverer is the worker's push entry point.
type PushDeliverer interface {
	HandlePush(ctx context.Context, raw []byte) worker.PushOutcome
}

type PushHandler struct {
	worker PushDeliverer
	log    *zap.Logger
}

func NewPushHandler(w PushDeliverer, log *zap.Logger) *PushHandler {
	return &PushHandler{worker: w, log: log}
}

// Receive accepts an encrypted push for the subscription VAPIDAuth resolved.
func (h *PushHandler) Receive(c *gin.Context) {
	sub, ok := c.MustGet(middleware.SubscriptionKey).(*platform.Subscription)
	if !ok {
		c.JSON(http.StatusInternalServerError, models.APIResponse{
			Success: false,
			Error:   "subscription missing from context",
			Message: "Internal Server Error",
		})
		return
	}

	var raw []byte
	if c.Request.ContentLength != 0 {
		enc := strings.ToLower(strings.TrimSpace(c.GetHeader("Content-Encoding")))
		if enc != webpush.ContentEncoding {
			c.JSON(http.StatusUnsupportedMediaType, models.APIResponse{
				Success: false,
				Error:   "content encoding must be " + webpush.ContentEncoding,
				Message: "Unsupported Media Type",
			})
			return
		}
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPushBody+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, models.APIResponse{
				Success: false,
				Error:   err.Error(),
				Message: "Invalid Request Body",
			})
			return
		}
		if len(body) > maxPushBody {
			c.JSON(http.StatusRequestEntityTooLarge, models.APIResponse{
				Success: false,
				Error:   "payload too large",
				Message: "Request Entity Too Large",
			})
			return
		}
		if raw, err = h.decrypt(sub, body); err != nil {
			h.log.Warn("push payload rejected", zap.String("subscription", sub.ID), zap.Error(err))
			c.JSON(http.StatusBadRequest, models.APIResponse{
				Success: false,
				Error:   err.Error(),
				Message: "Invalid Push Payload",
			})
			return
		}
	}

	// the push is handled before answering, so the provider only sees 201
	// once the relay and notification decision are done
	outcome := h.worker.HandlePush(context.WithoutCancel(c.Request.Context()), raw)
	h.log.Info("push delivered",
		zap.String("subscription", sub.ID),
		zap.String("correlation_id", c.GetString(middleware.CorrelationIDKey)),
		zap.Int("relayed", outcome.Relayed),
		zap.Bool("shown", outcome.Shown),
	)

	c.JSON(http.StatusCreated, models.APIResponse{
		Success: true,
		Message: "Push accepted",
		Data:    outcome,
	})
}

func (h *PushHandler) decrypt(sub *platform.Subscription, body []byte) ([]byte, error) {
	kp, err := sub.KeyPair()
	if err != nil {
		return nil, errors.Join(webpush.ErrDecrypt, err)
	}
	return webpush.Decrypt(body, kp)
}
