package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vidshare-realtime/internal/conversation"
)

// Router dispatches inbound text frames. It keeps no state of its own; each
// frame is handled independently on the caller's goroutine.
type Router struct {
	registry      *Registry
	topics        *Topics
	presence      *PresenceTracker
	broadcaster   Publisher
	conversations *ConversationService
	logger        *slog.Logger
	now           func() time.Time
}

func NewRouter(registry *Registry, topics *Topics, presence *PresenceTracker, broadcaster Publisher, conversations *ConversationService, logger *slog.Logger) *Router {
	return &Router{
		registry:      registry,
		topics:        topics,
		presence:      presence,
		broadcaster:   broadcaster,
		conversations: conversations,
		logger:        logger,
		now:           time.Now,
	}
}

// OnTextFrame handles one frame from sessionID. Errors and panics become an
// error frame to the sender; they never reach the transport.
func (r *Router) OnTextFrame(ctx context.Context, sessionID string, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Panic while handling frame", "sessionID", sessionID, "panic", rec)
			r.replyError(sessionID, "internal error")
		}
	}()

	frame, err := ParseInboundFrame(raw)
	if err != nil {
		r.logger.Warn("Failed to parse frame", "sessionID", sessionID, "error", err)
		r.replyError(sessionID, "Invalid message format")
		return
	}

	if err := r.dispatch(ctx, sessionID, frame); err != nil {
		r.logger.Warn("Failed to handle frame", "sessionID", sessionID, "type", frame.Type, "error", err)
		r.replyError(sessionID, errorText(err))
	}
}

func (r *Router) dispatch(ctx context.Context, sessionID string, frame *InboundFrame) error {
	if frame.IsConversationMessage() {
		return r.handleConversationMessage(ctx, sessionID, frame)
	}

	switch frame.Type {
	case FrameTypePing:
		r.reply(sessionID, NewPongFrame(r.now()))
	case FrameTypeChat:
		r.handleChat(ctx, sessionID, frame)
	case FrameTypeStatus:
		r.reply(sessionID, NewStatusFrame(r.stats(), r.now()))
	case FrameTypeUserIdentification:
		r.handleIdentification(ctx, sessionID, frame)
	case FrameTypeSubscribe, FrameTypeUnsubscribe:
		return r.handleSubscription(sessionID, frame)
	case "":
		return fmt.Errorf("%w: missing type", ErrUnknownMessageType)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownMessageType, frame.Type)
	}
	return nil
}

// handleChat fans out to every open connection, regardless of conversation.
// An identified session always chats under its presence display name.
func (r *Router) handleChat(ctx context.Context, sessionID string, frame *InboundFrame) {
	sender := frame.Sender
	if entry, ok := r.presence.UserForSession(sessionID); ok {
		sender = entry.DisplayName
	}
	if sender == "" {
		sender = sessionID
	}
	result := r.broadcaster.Publish(ctx, AllTopic, NewChatFrame(frame.Content, sender, r.now()))
	r.logger.Debug("Chat broadcast", "sessionID", sessionID, "delivered", result.Delivered, "failed", result.Failed)
}

// handleIdentification never replies; a bad identity is only logged.
func (r *Router) handleIdentification(ctx context.Context, sessionID string, frame *InboundFrame) {
	target := sessionID
	if frame.SessionID != "" && frame.SessionID != sessionID {
		if _, err := r.registry.Get(frame.SessionID); err == nil {
			target = frame.SessionID
		} else {
			r.logger.Warn("Identification names an unknown session, using sender session",
				"sessionID", sessionID, "claimedSessionID", frame.SessionID)
		}
	}

	if err := r.presence.MarkOnline(ctx, string(frame.UserID), target); err != nil {
		r.logger.Warn("Ignoring user identification", "sessionID", sessionID, "userID", frame.UserID, "error", err)
		return
	}
	r.presence.BroadcastOnlineCount(ctx)
}

func (r *Router) handleSubscription(sessionID string, frame *InboundFrame) error {
	if frame.Topic == "" {
		return fmt.Errorf("%w: topic is required", ErrParse)
	}
	if frame.Topic == AllTopic {
		return fmt.Errorf("%w: topic %q is reserved", ErrParse, AllTopic)
	}

	if frame.Type == FrameTypeSubscribe {
		r.topics.Subscribe(frame.Topic, sessionID)
		r.reply(sessionID, NewSubscriptionFrame(FrameTypeSubscribed, frame.Topic, r.now()))
		return nil
	}
	r.topics.Unsubscribe(frame.Topic, sessionID)
	r.reply(sessionID, NewSubscriptionFrame(FrameTypeUnsubscribed, frame.Topic, r.now()))
	return nil
}

func (r *Router) handleConversationMessage(ctx context.Context, sessionID string, frame *InboundFrame) error {
	req := SendMessageRequest{
		ConversationID: frame.ConversationID,
		Content:        frame.Content,
		MessageType:    frame.MessageType,
		SenderID:       sessionID,
		SenderName:     frame.SenderName,
		Danmaku:        frame.Danmaku(),
	}
	if entry, ok := r.presence.UserForSession(sessionID); ok {
		req.SenderID = entry.UserID
		if req.SenderName == "" {
			req.SenderName = entry.DisplayName
		}
	}

	_, err := r.conversations.SendMessage(ctx, req)
	return err
}

func (r *Router) stats() Stats {
	return Stats{
		Open:   r.registry.Count(),
		Active: r.registry.ActiveCount(),
		Online: r.presence.OnlineCount(),
	}
}

// reply sends a frame to sessionID only.
func (r *Router) reply(sessionID string, payload any) {
	conn, err := r.registry.Get(sessionID)
	if err != nil {
		r.logger.Debug("Reply target gone", "sessionID", sessionID)
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("Failed to marshal reply", "sessionID", sessionID, "error", err)
		return
	}
	if err := conn.SendText(data); err != nil {
		r.logger.Warn("Failed to send reply", "sessionID", sessionID, "error", err)
	}
}

func (r *Router) replyError(sessionID, message string) {
	r.reply(sessionID, NewErrorFrame(message, r.now()))
}

func errorText(err error) string {
	switch {
	case errors.Is(err, ErrUnknownMessageType):
		return "Unknown message type: " + unwrapDetail(err, ErrUnknownMessageType)
	case errors.Is(err, conversation.ErrInvalidMessage):
		return err.Error()
	case errors.Is(err, ErrParse):
		return err.Error()
	default:
		return "failed to process message"
	}
}

// unwrapDetail strips the sentinel prefix from a "sentinel: detail" error.
func unwrapDetail(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}
