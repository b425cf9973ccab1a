package handlers

import (
	"net/http"

	"vidshare-realtime/internal/websocket"

	"github.com/gin-gonic/gin"
)

type PresenceHandler struct {
	presence *websocket.PresenceTracker
}

func NewPresenceHandler(presence *websocket.PresenceTracker) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

func (h *PresenceHandler) GetOnlineCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"count": h.presence.OnlineCount()})
}

// GetUserPresence reports whether userID is online and since when.
func (h *PresenceHandler) GetUserPresence(c *gin.Context) {
	entry, ok := h.presence.Entry(c.Param("userId"))
	if !ok {
		c.JSON(http.StatusOK, gin.H{"userId": c.Param("userId"), "online": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"userId":      entry.UserID,
		"online":      true,
		"displayName": entry.DisplayName,
		"onlineSince": entry.OnlineSince,
	})
}
