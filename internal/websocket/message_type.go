package websocket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"vidshare-realtime/internal/conversation"
)

// FrameType is the "type" discriminator carried by every frame.
type FrameType string

// Inbound frame types
const (
	FrameTypePing               FrameType = "ping"
	FrameTypeChat               FrameType = "chat"
	FrameTypeStatus             FrameType = "status"
	FrameTypeUserIdentification FrameType = "user_identification"
	FrameTypeSubscribe          FrameType = "subscribe"
	FrameTypeUnsubscribe        FrameType = "unsubscribe"
)

// Outbound frame types
const (
	FrameTypeConnectionEstablished FrameType = "connection_established"
	FrameTypePong                  FrameType = "pong"
	FrameTypeStatusResponse        FrameType = "status_response"
	FrameTypeSubscribed            FrameType = "subscribed"
	FrameTypeUnsubscribed          FrameType = "unsubscribed"
	FrameTypeOnlineCount           FrameType = "online_count"
	FrameTypeMessage               FrameType = "message"
	FrameTypeError                 FrameType = "error"
)

func (ft FrameType) String() string {
	return string(ft)
}

// FlexibleID accepts a JSON string or number and keeps its textual form, so a
// bad user id is reported as an identity problem rather than a parse error.
type FlexibleID string

func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexibleID(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			*id = FlexibleID(data)
			return nil
		}
		*id = FlexibleID(n.String())
	}
	return nil
}

// InboundFrame is the union of every client-to-server payload.
type InboundFrame struct {
	Type      FrameType  `json:"type"`
	Content   string     `json:"content,omitempty"`
	Sender    string     `json:"sender,omitempty"`
	UserID    FlexibleID `json:"userId,omitempty"`
	SessionID string     `json:"sessionId,omitempty"`
	Topic     string     `json:"topic,omitempty"`

	ConversationID string                   `json:"conversationId,omitempty"`
	MessageType    conversation.MessageType `json:"messageType,omitempty"`
	SenderName     string                   `json:"senderName,omitempty"`
	PlaybackTime   *float64                 `json:"playbackTime,omitempty"`
	Color          string                   `json:"color,omitempty"`
	FontSize       int                      `json:"fontSize,omitempty"`

	// isConversationMessage is set when conversationId, content and
	// messageType are all present in the raw object.
	isConversationMessage bool
}

// ParseInboundFrame decodes raw into a frame. Anything that is not a JSON
// object with well-typed fields yields ErrParse.
func ParseInboundFrame(raw []byte) (*InboundFrame, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: frame is null", ErrParse)
	}

	var frame InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	_, hasConversation := fields["conversationId"]
	_, hasContent := fields["content"]
	_, hasMessageType := fields["messageType"]
	frame.isConversationMessage = hasConversation && hasContent && hasMessageType
	return &frame, nil
}

// IsConversationMessage reports whether the frame targets the conversation path.
func (f *InboundFrame) IsConversationMessage() bool {
	return f.isConversationMessage
}

// Danmaku returns the bullet-comment attributes carried by the frame, if any.
func (f *InboundFrame) Danmaku() *conversation.DanmakuAttributes {
	if f.PlaybackTime == nil {
		return nil
	}
	return &conversation.DanmakuAttributes{
		PlaybackTime: *f.PlaybackTime,
		Color:        f.Color,
		FontSize:     f.FontSize,
	}
}

// Stats is the connection snapshot returned by status requests.
type Stats struct {
	Open   int `json:"open"`
	Active int `json:"active"`
	Online int `json:"online"`
}

// Frame is the server-to-client envelope.
type Frame struct {
	Type      FrameType `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	Content   string    `json:"content,omitempty"`
	Sender    string    `json:"sender,omitempty"`
	Message   string    `json:"message,omitempty"`
	Topic     string    `json:"topic,omitempty"`
	Count     *int      `json:"count,omitempty"`
	Stats     *Stats    `json:"stats,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// MessageFrame carries a conversation message; the message fields are
// flattened next to the type discriminator.
type MessageFrame struct {
	Type FrameType `json:"type"`
	conversation.Message
}

func timestamp(now time.Time) int64 {
	return now.UnixMilli()
}

func NewConnectionEstablishedFrame(sessionID string, now time.Time) *Frame {
	return &Frame{Type: FrameTypeConnectionEstablished, SessionID: sessionID, Timestamp: timestamp(now)}
}

func NewPongFrame(now time.Time) *Frame {
	return &Frame{Type: FrameTypePong, Timestamp: timestamp(now)}
}

func NewChatFrame(content, sender string, now time.Time) *Frame {
	return &Frame{Type: FrameTypeChat, Content: content, Sender: sender, Timestamp: timestamp(now)}
}

func NewStatusFrame(stats Stats, now time.Time) *Frame {
	return &Frame{Type: FrameTypeStatusResponse, Stats: &stats, Timestamp: timestamp(now)}
}

func NewErrorFrame(message string, now time.Time) *Frame {
	return &Frame{Type: FrameTypeError, Message: message, Timestamp: timestamp(now)}
}

func NewOnlineCountFrame(count int, now time.Time) *Frame {
	return &Frame{Type: FrameTypeOnlineCount, Count: &count, Timestamp: timestamp(now)}
}

func NewSubscriptionFrame(frameType FrameType, topic string, now time.Time) *Frame {
	return &Frame{Type: frameType, Topic: topic, Timestamp: timestamp(now)}
}

func NewMessageFrame(msg conversation.Message) *MessageFrame {
	return &MessageFrame{Type: FrameTypeMessage, Message: msg}
}

// parseUserID normalizes a numeric user id.
func parseUserID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: user id %q", ErrInvalidIdentity, raw)
	}
	return id, nil
}
