package conversation

import (
	"context"
	"fmt"
	"time"
)

// MessageType is the kind of a conversation message.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeDanmaku  MessageType = "danmaku"
	MessageTypeJoin     MessageType = "join"
	MessageTypeLeave    MessageType = "leave"
	MessageTypeLike     MessageType = "like"
	MessageTypeFavorite MessageType = "favorite"
)

func (mt MessageType) String() string {
	return string(mt)
}

// IsValid checks if the MessageType is a known value
func (mt MessageType) IsValid() bool {
	switch mt {
	case MessageTypeText, MessageTypeDanmaku, MessageTypeJoin,
		MessageTypeLeave, MessageTypeLike, MessageTypeFavorite:
		return true
	default:
		return false
	}
}

// DanmakuAttributes positions a bullet comment on the video timeline.
type DanmakuAttributes struct {
	PlaybackTime float64 `json:"playbackTime"`
	Color        string  `json:"color,omitempty"`
	FontSize     int     `json:"fontSize,omitempty"`
}

// Message is immutable once appended to its conversation.
type Message struct {
	ID             string             `json:"id"`
	ConversationID string             `json:"conversationId"`
	SenderID       string             `json:"senderId"`
	SenderName     string             `json:"senderName"`
	MessageType    MessageType        `json:"messageType"`
	Content        string             `json:"content"`
	Timestamp      time.Time          `json:"timestamp"`
	Danmaku        *DanmakuAttributes `json:"danmaku,omitempty"`
}

func (m *Message) Validate() error {
	if m.ConversationID == "" {
		return fmt.Errorf("%w: conversation id is required", ErrInvalidMessage)
	}
	if !m.MessageType.IsValid() {
		return fmt.Errorf("%w: unknown message type %q", ErrInvalidMessage, m.MessageType)
	}
	if m.MessageType == MessageTypeDanmaku && m.Danmaku == nil {
		return fmt.Errorf("%w: danmaku message needs playback attributes", ErrInvalidMessage)
	}
	return nil
}

// Summary is the derived per-conversation listing record.
type Summary struct {
	ConversationID  string    `json:"conversationId"`
	Title           string    `json:"title"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageTime time.Time `json:"lastMessageTime"`
	MessageCount    int       `json:"messageCount"`
}

// Sink receives every appended message, e.g. to archive it in the content store.
type Sink interface {
	Archive(ctx context.Context, msg Message) error
}
