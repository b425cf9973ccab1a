package models

import (
	"time"

	"vidshare-realtime/internal/conversation"
)

/** --------------------ENTITIES-------------------- */
// ConversationMessage is the archived form of a conversation.Message.
type ConversationMessage struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	ConversationID string    `gorm:"index:idx_conversation_sent,priority:1;not null" json:"conversationId"`
	SenderID       string    `gorm:"not null" json:"senderId"`
	SenderName     string    `json:"senderName"`
	MessageType    string    `gorm:"size:16;not null" json:"messageType"`
	Content        string    `json:"content"`
	SentAt         time.Time `gorm:"index:idx_conversation_sent,priority:2" json:"sentAt"`

	PlaybackTime *float64 `json:"playbackTime,omitempty"`
	Color        *string  `gorm:"size:16" json:"color,omitempty"`
	FontSize     *int     `json:"fontSize,omitempty"`
}

func NewConversationMessage(msg conversation.Message) *ConversationMessage {
	row := &ConversationMessage{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		SenderName:     msg.SenderName,
		MessageType:    msg.MessageType.String(),
		Content:        msg.Content,
		SentAt:         msg.Timestamp,
	}
	if d := msg.Danmaku; d != nil {
		playback, color, size := d.PlaybackTime, d.Color, d.FontSize
		row.PlaybackTime = &playback
		row.Color = &color
		row.FontSize = &size
	}
	return row
}

// ToMessage converts an archived row back into a conversation message.
func (m *ConversationMessage) ToMessage() conversation.Message {
	msg := conversation.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		MessageType:    conversation.MessageType(m.MessageType),
		Content:        m.Content,
		Timestamp:      m.SentAt,
	}
	if m.PlaybackTime != nil {
		attrs := &conversation.DanmakuAttributes{PlaybackTime: *m.PlaybackTime}
		if m.Color != nil {
			attrs.Color = *m.Color
		}
		if m.FontSize != nil {
			attrs.FontSize = *m.FontSize
		}
		msg.Danmaku = attrs
	}
	return msg
}
