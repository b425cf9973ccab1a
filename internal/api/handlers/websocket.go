package handlers

import (
	"net/http"

	"vidshare-realtime/internal/websocket"

	"github.com/gin-gonic/gin"
)

type WSHandler struct {
	hub *websocket.Hub
}

func NewWSHandler(hub *websocket.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// HandleWebSocket upgrades the request; the hub owns the connection from here.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request)
}

// GetStats returns open, active and online counts.
func (h *WSHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Stats())
}

// GetMetrics returns aggregated local fan-out metrics.
func (h *WSHandler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Broadcaster().Metrics().Snapshot())
}
