package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidshare-realtime/internal/conversation"
	"vidshare-realtime/internal/logger"
	"vidshare-realtime/internal/websocket"
)

type stubArchive struct {
	messages map[string][]conversation.Message
	limit    int
}

func (a *stubArchive) FindByConversation(_ context.Context, conversationID string, limit int) ([]conversation.Message, error) {
	a.limit = limit
	return a.messages[conversationID], nil
}

func newTestRouter(t *testing.T, archive *stubArchive) (*gin.Engine, *websocket.Hub) {
	t.Helper()
	hub := websocket.NewHub(conversation.NewStore(), websocket.HubOptions{
		ReplyDelay: 10 * time.Millisecond,
		Logger:     logger.Discard(),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
	})

	opts := Options{Logger: logger.Discard()}
	if archive != nil {
		opts.Archive = archive
	}
	router := NewRouter(hub, opts)
	router.SetupRoutes()
	return router.GetEngine(), hub
}

func doJSON(t *testing.T, engine http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	engine, _ := newTestRouter(t, nil)
	rec := doJSON(t, engine, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestConversationEndpoints(t *testing.T) {
	engine, hub := newTestRouter(t, nil)

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/conversations/video-1/messages", map[string]any{
		"content":     "from http",
		"messageType": "text",
		"senderId":    "42",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created conversation.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "video-1", created.ConversationID)
	assert.Equal(t, "42", created.SenderName)

	rec = doJSON(t, engine, http.MethodGet, "/api/v1/conversations/video-1/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		ConversationID string                 `json:"conversationId"`
		Messages       []conversation.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.NotEmpty(t, history.Messages)
	assert.Equal(t, "from http", history.Messages[0].Content)

	rec = doJSON(t, engine, http.MethodGet, "/api/v1/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Conversations []conversation.Summary `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, "video-1", list.Conversations[0].ConversationID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, hub.Conversations().Scheduler().Wait(ctx))
	summary, err := hub.Conversations().Store().Summary("video-1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.MessageCount)
}

func TestSendMessageValidation(t *testing.T) {
	engine, _ := newTestRouter(t, nil)

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/conversations/c1/messages", map[string]any{
		"content":     "x",
		"messageType": "shout",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, engine, http.MethodPost, "/api/v1/conversations/c1/messages", map[string]any{
		"content":     "x",
		"messageType": "danmaku",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, engine, http.MethodPost, "/api/v1/conversations/c1/messages", map[string]any{
		"content":    "x",
		"senderId":   "assistant",
		"senderName": "Assistant",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, engine, http.MethodGet, "/api/v1/conversations/c1/messages", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/c1/messages", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	bad := httptest.NewRecorder()
	engine.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestSendDanmakuOverHTTP(t *testing.T) {
	engine, _ := newTestRouter(t, nil)

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/conversations/video-2/messages", map[string]any{
		"content":      "wow",
		"messageType":  "danmaku",
		"playbackTime": 12.5,
		"color":        "#ffcc00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created conversation.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotNil(t, created.Danmaku)
	assert.Equal(t, 12.5, created.Danmaku.PlaybackTime)
	assert.Equal(t, "#ffcc00", created.Danmaku.Color)
}

func TestGetMessagesNotFound(t *testing.T) {
	engine, _ := newTestRouter(t, nil)
	rec := doJSON(t, engine, http.MethodGet, "/api/v1/conversations/nope/messages", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetMessagesFallsBackToArchive(t *testing.T) {
	archive := &stubArchive{messages: map[string][]conversation.Message{
		"old": {{ID: "m1", ConversationID: "old", Content: "archived", MessageType: conversation.MessageTypeText}},
	}}
	engine, _ := newTestRouter(t, archive)

	rec := doJSON(t, engine, http.MethodGet, "/api/v1/conversations/old/messages?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "archived")
	assert.Equal(t, 5, archive.limit)

	rec = doJSON(t, engine, http.MethodGet, "/api/v1/conversations/old/messages?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, engine, http.MethodGet, "/api/v1/conversations/missing/messages", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebSocketAndPresenceEndpoints(t *testing.T) {
	engine, _ := newTestRouter(t, nil)
	server := httptest.NewServer(engine)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws"
	conn, resp, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	if resp.Body != nil {
		_ = resp.Body.Close()
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var greeting map[string]any
	require.NoError(t, conn.ReadJSON(&greeting))
	assert.Equal(t, "connection_established", greeting["type"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "user_identification", "userId": 77}))

	require.Eventually(t, func() bool {
		rec := doJSON(t, engine, http.MethodGet, "/api/v1/presence/online-count", nil)
		return rec.Code == http.StatusOK && strings.Contains(rec.Body.String(), `"count":1`)
	}, 2*time.Second, 10*time.Millisecond)

	rec := doJSON(t, engine, http.MethodGet, "/api/v1/presence/users/77", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"online":true`)

	rec = doJSON(t, engine, http.MethodGet, "/api/v1/ws/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats websocket.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, websocket.Stats{Open: 1, Active: 1, Online: 1}, stats)

	rec = doJSON(t, engine, http.MethodGet, "/api/v1/ws/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"totalBroadcasts"`)
	assert.Contains(t, rec.Body.String(), `"errorRatePercent"`)
}
