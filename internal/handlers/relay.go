package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RelayServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request) error
}

type RelayHandler struct {
	hub RelayServer
	log *zap.Logger
}

func NewRelayHandler(hub RelayServer, log *zap.Logger) *RelayHandler {
	return &RelayHandler{hub: hub, log: log}
}

// Connect upgrades a page to the relay socket and blocks until it leaves.
func (h *RelayHandler) Connect(c *gin.Context) {
	if err := h.hub.ServeWS(c.Writer, c.Request); err != nil {
		// the upgrader has already answered the request
		h.log.Debug("relay upgrade failed", zap.Error(err))
	}
}
