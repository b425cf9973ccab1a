package websocket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidshare-realtime/internal/conversation"
)

func TestParseInboundFrame(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantType     FrameType
		wantUserID   FlexibleID
		conversation bool
		wantErr      bool
	}{
		{name: "ping", raw: `{"type":"ping"}`, wantType: FrameTypePing},
		{name: "numeric user id", raw: `{"type":"user_identification","userId":17}`, wantType: FrameTypeUserIdentification, wantUserID: "17"},
		{name: "string user id", raw: `{"type":"user_identification","userId":"17"}`, wantType: FrameTypeUserIdentification, wantUserID: "17"},
		{name: "bool user id kept raw", raw: `{"type":"user_identification","userId":false}`, wantType: FrameTypeUserIdentification, wantUserID: "false"},
		{name: "null user id", raw: `{"type":"user_identification","userId":null}`, wantType: FrameTypeUserIdentification},
		{name: "conversation message", raw: `{"conversationId":"c1","content":"hi","messageType":"text"}`, conversation: true},
		{name: "conversation without type field", raw: `{"conversationId":"c1","content":"hi"}`},
		{name: "not an object", raw: `"ping"`, wantErr: true},
		{name: "garbage", raw: `{{`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := ParseInboundFrame([]byte(tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrParse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, frame.Type)
			assert.Equal(t, tt.wantUserID, frame.UserID)
			assert.Equal(t, tt.conversation, frame.IsConversationMessage())
		})
	}
}

func TestInboundFrameDanmaku(t *testing.T) {
	frame, err := ParseInboundFrame([]byte(`{"conversationId":"v1","content":"lol","messageType":"danmaku","playbackTime":3.25,"color":"#ff0000","fontSize":24}`))
	require.NoError(t, err)

	attrs := frame.Danmaku()
	require.NotNil(t, attrs)
	assert.Equal(t, conversation.DanmakuAttributes{PlaybackTime: 3.25, Color: "#ff0000", FontSize: 24}, *attrs)

	plain, err := ParseInboundFrame([]byte(`{"type":"chat","content":"x"}`))
	require.NoError(t, err)
	assert.Nil(t, plain.Danmaku())
}

func TestMessageFrameFlattensMessage(t *testing.T) {
	data, err := json.Marshal(NewMessageFrame(conversation.Message{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       "u1",
		MessageType:    conversation.MessageTypeText,
		Content:        "hello",
	}))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "message", decoded["type"])
	assert.Equal(t, "c1", decoded["conversationId"])
	assert.Equal(t, "hello", decoded["content"])
	assert.Equal(t, "text", decoded["messageType"])
}

func TestOnlineCountFrameKeepsZero(t *testing.T) {
	data, err := json.Marshal(NewOnlineCountFrame(0, testNow()))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"online_count","count":0,"timestamp":1714564800000}`, string(data))
}
