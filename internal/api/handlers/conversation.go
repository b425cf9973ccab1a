package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"vidshare-realtime/internal/conversation"
	"vidshare-realtime/internal/websocket"

	"github.com/gin-gonic/gin"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// MessageArchive reads conversations that are no longer held in memory.
type MessageArchive interface {
	FindByConversation(ctx context.Context, conversationID string, limit int) ([]conversation.Message, error)
}

type ConversationHandler struct {
	hub     *websocket.Hub
	archive MessageArchive
	logger  *slog.Logger
}

// NewConversationHandler creates the handler. archive may be nil.
func NewConversationHandler(hub *websocket.Hub, archive MessageArchive, logger *slog.Logger) *ConversationHandler {
	return &ConversationHandler{hub: hub, archive: archive, logger: logger}
}

type sendMessageBody struct {
	Content      string                   `json:"content"`
	MessageType  conversation.MessageType `json:"messageType"`
	SenderID     string                   `json:"senderId"`
	SenderName   string                   `json:"senderName"`
	PlaybackTime *float64                 `json:"playbackTime"`
	Color        string                   `json:"color"`
	FontSize     int                      `json:"fontSize"`
}

// ListConversations returns every conversation summary, newest first.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"conversations": h.hub.Conversations().Store().Summaries()})
}

// GetMessages returns the log of a conversation, falling back to the archive
// for conversations this instance has not seen.
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	conversationID := c.Param("id")

	messages, err := h.hub.Conversations().Store().Messages(conversationID)
	if errors.Is(err, conversation.ErrConversationNotFound) && h.archive != nil {
		limit := defaultHistoryLimit
		if l := c.Query("limit"); l != "" {
			parsed, perr := strconv.Atoi(l)
			if perr != nil || parsed <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit parameter"})
				return
			}
			limit = min(parsed, maxHistoryLimit)
		}
		messages, err = h.archive.FindByConversation(c.Request.Context(), conversationID, limit)
		if err == nil && len(messages) == 0 {
			err = conversation.ErrConversationNotFound
		}
	}

	switch {
	case errors.Is(err, conversation.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
	case err != nil:
		h.logger.Error("Failed to load messages", "conversationID", conversationID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load messages"})
	default:
		c.JSON(http.StatusOK, gin.H{"conversationId": conversationID, "messages": messages})
	}
}

// SendMessage posts a message through the same path as the WebSocket
// conversation frame.
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	var body sendMessageBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	req := websocket.SendMessageRequest{
		ConversationID: c.Param("id"),
		Content:        body.Content,
		MessageType:    body.MessageType,
		SenderID:       body.SenderID,
		SenderName:     body.SenderName,
	}
	if body.PlaybackTime != nil {
		req.Danmaku = &conversation.DanmakuAttributes{
			PlaybackTime: *body.PlaybackTime,
			Color:        body.Color,
			FontSize:     body.FontSize,
		}
	}

	msg, err := h.hub.SendMessage(c.Request.Context(), req)
	if errors.Is(err, conversation.ErrInvalidMessage) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("Failed to send message", "conversationID", req.ConversationID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
		return
	}

	c.JSON(http.StatusCreated, msg)
}
