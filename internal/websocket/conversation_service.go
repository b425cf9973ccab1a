package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vidshare-realtime/internal/conversation"
)

// SendMessageRequest is a user message on the conversation-scoped path.
type SendMessageRequest struct {
	ConversationID string                          `json:"conversationId"`
	Content        string                          `json:"content"`
	MessageType    conversation.MessageType        `json:"messageType"`
	SenderID       string                          `json:"senderId"`
	SenderName     string                          `json:"senderName"`
	Danmaku        *conversation.DanmakuAttributes `json:"danmaku,omitempty"`
}

// ConversationService appends messages, publishes them on the conversation
// topic only, archives them and triggers the deferred reply.
type ConversationService struct {
	store     *conversation.Store
	publisher Publisher
	sinks     []conversation.Sink
	scheduler *ReplyScheduler
	logger    *slog.Logger
}

func NewConversationService(store *conversation.Store, publisher Publisher, sinks []conversation.Sink, replyDelay time.Duration, logger *slog.Logger) *ConversationService {
	s := &ConversationService{
		store:     store,
		publisher: publisher,
		sinks:     sinks,
		logger:    logger,
	}
	s.scheduler = NewReplyScheduler(replyDelay, s.post, logger)
	return s
}

func (s *ConversationService) Store() *conversation.Store {
	return s.store
}

func (s *ConversationService) Scheduler() *ReplyScheduler {
	return s.scheduler
}

func (s *ConversationService) SendMessage(ctx context.Context, req SendMessageRequest) (conversation.Message, error) {
	if strings.TrimSpace(req.ConversationID) == "" {
		return conversation.Message{}, fmt.Errorf("%w: conversation id is required", conversation.ErrInvalidMessage)
	}
	if isAssistantIdentity(req.SenderID, req.SenderName) {
		return conversation.Message{}, fmt.Errorf("%w: sender %q is reserved", conversation.ErrInvalidMessage, AssistantUserID)
	}
	if req.MessageType == "" {
		req.MessageType = conversation.MessageTypeText
	}
	if req.SenderID == "" {
		req.SenderID = "anonymous"
	}
	if req.SenderName == "" {
		req.SenderName = req.SenderID
	}

	stored, err := s.post(ctx, conversation.Message{
		ConversationID: req.ConversationID,
		SenderID:       req.SenderID,
		SenderName:     req.SenderName,
		MessageType:    req.MessageType,
		Content:        req.Content,
		Danmaku:        req.Danmaku,
	})
	if err != nil {
		return conversation.Message{}, err
	}

	s.scheduler.ScheduleReply(stored.ConversationID, stored.Content)
	return stored, nil
}

// isAssistantIdentity reports whether a user-supplied sender claims the
// identity deferred replies are posted under.
func isAssistantIdentity(senderID, senderName string) bool {
	return strings.EqualFold(strings.TrimSpace(senderID), AssistantUserID) ||
		strings.EqualFold(strings.TrimSpace(senderName), AssistantName)
}

// post appends msg, publishes it on the conversation topic and hands it to
// the archive sinks. Shared by user messages and assistant replies.
func (s *ConversationService) post(ctx context.Context, msg conversation.Message) (conversation.Message, error) {
	stored, summary, err := s.store.Append(msg)
	if err != nil {
		return conversation.Message{}, err
	}
	s.logger.Debug("Message appended",
		"conversationID", stored.ConversationID,
		"messageID", stored.ID,
		"senderID", stored.SenderID,
		"messageCount", summary.MessageCount,
	)

	s.publisher.Publish(ctx, ConversationTopic(stored.ConversationID), NewMessageFrame(stored))

	for _, sink := range s.sinks {
		if err := sink.Archive(ctx, stored); err != nil {
			s.logger.Error("Failed to archive message",
				"conversationID", stored.ConversationID, "messageID", stored.ID, "error", err)
		}
	}
	return stored, nil
}
