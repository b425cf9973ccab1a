package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vidshare-realtime/internal/conversation"
	"vidshare-realtime/internal/logger"
	"vidshare-realtime/internal/models"
)

var errMockSend = errors.New("mock send failure")

// mockConn implements Conn and records every frame it is sent
type mockConn struct {
	id string

	mu       sync.Mutex
	frames   [][]byte
	closed   bool
	failSend bool
}

func newMockConn(id string) *mockConn {
	return &mockConn{id: id}
}

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

func (m *mockConn) SendText(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSend {
		return errMockSend
	}
	if m.closed {
		return ErrClientDisconnected
	}
	m.frames = append(m.frames, append([]byte(nil), data...))
	return nil
}

func (m *mockConn) setFailing(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSend = fail
}

func (m *mockConn) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *mockConn) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = nil
}

// decoded returns every received frame as a generic JSON object
func (m *mockConn) decoded(t *testing.T) []map[string]any {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]map[string]any, 0, len(m.frames))
	for _, raw := range m.frames {
		var frame map[string]any
		require.NoError(t, json.Unmarshal(raw, &frame))
		out = append(out, frame)
	}
	return out
}

func (m *mockConn) framesOfType(t *testing.T, frameType FrameType) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, frame := range m.decoded(t) {
		if frame["type"] == frameType.String() {
			out = append(out, frame)
		}
	}
	return out
}

// recordingBus captures topic publishes instead of delivering them
type recordingBus struct {
	mu        sync.Mutex
	published []busRecord
}

type busRecord struct {
	topic string
	data  []byte
}

func (b *recordingBus) Publish(_ context.Context, topic string, data []byte) (PublishResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, busRecord{topic: topic, data: data})
	return PublishResult{}, nil
}

func (b *recordingBus) forTopic(topic string) []busRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []busRecord
	for _, rec := range b.published {
		if rec.topic == topic {
			out = append(out, rec)
		}
	}
	return out
}

// stubDirectory knows a fixed set of users
type stubDirectory struct {
	users map[uint64]*models.User
	err   error
}

func (d *stubDirectory) LookupUser(_ context.Context, userID uint64) (*models.User, error) {
	if d.err != nil {
		return nil, d.err
	}
	user, ok := d.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return user, nil
}

// memorySink archives messages in memory
type memorySink struct {
	mu       sync.Mutex
	messages []conversation.Message
}

func (s *memorySink) Archive(_ context.Context, msg conversation.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func newTestHub(t *testing.T, opts HubOptions) *Hub {
	t.Helper()
	opts.Logger = logger.Discard()
	if opts.ReplyDelay == 0 {
		opts.ReplyDelay = 20 * time.Millisecond
	}
	hub := NewHub(conversation.NewStore(), opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hub.Conversations().Scheduler().Wait(ctx)
	})
	return hub
}

func connectMock(t *testing.T, hub *Hub, id string) *mockConn {
	t.Helper()
	conn := newMockConn(id)
	require.NoError(t, hub.Connect(conn))
	conn.reset()
	return conn
}

func testNow() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

// storedMessages returns the log of conversationID, or nil if it was never created.
func storedMessages(t *testing.T, hub *Hub, conversationID string) []conversation.Message {
	t.Helper()
	messages, err := hub.Conversations().Store().Messages(conversationID)
	if errors.Is(err, conversation.ErrConversationNotFound) {
		return nil
	}
	require.NoError(t, err)
	return messages
}
