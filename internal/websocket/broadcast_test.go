package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidshare-realtime/internal/logger"
)

type panickingConn struct{ id string }

func (p *panickingConn) ID() string              { return p.id }
func (p *panickingConn) IsOpen() bool            { return true }
func (p *panickingConn) SendText(_ []byte) error { panic("write on torn-down socket") }

func newTestBroadcaster(bus TopicBus) (*Broadcaster, *Registry, *Topics) {
	registry := NewRegistry()
	topics := NewTopics()
	return NewBroadcaster(registry, topics, bus, logger.Discard()), registry, topics
}

func TestBroadcastFailureDoesNotStopDelivery(t *testing.T) {
	broadcaster, registry, _ := newTestBroadcaster(nil)

	var healthy []*mockConn
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("s%d", i)
		conn := newMockConn(id)
		if i%3 == 0 {
			conn.setFailing(true)
		} else {
			healthy = append(healthy, conn)
		}
		require.NoError(t, registry.Register(id, conn))
	}
	require.NoError(t, registry.Register("panics", &panickingConn{id: "panics"}))

	result := broadcaster.Publish(context.Background(), AllTopic, NewChatFrame("hi", "s1", testNow()))

	assert.Equal(t, PublishResult{Delivered: 4, Failed: 3}, result)
	for _, conn := range healthy {
		frames := conn.framesOfType(t, FrameTypeChat)
		require.Len(t, frames, 1, conn.ID())
		assert.Equal(t, "hi", frames[0]["content"])
	}
	assert.Equal(t, 7, registry.Count())
}

func TestBroadcastSkipsClosedConnections(t *testing.T) {
	broadcaster, registry, _ := newTestBroadcaster(nil)
	open, closed := newMockConn("open"), newMockConn("closed")
	closed.close()
	require.NoError(t, registry.Register("open", open))
	require.NoError(t, registry.Register("closed", closed))

	result := broadcaster.Publish(context.Background(), AllTopic, NewPongFrame(testNow()))
	assert.Equal(t, PublishResult{Delivered: 1}, result)
}

func TestBroadcastTopicReachesOnlySubscribers(t *testing.T) {
	broadcaster, registry, topics := newTestBroadcaster(nil)
	sub, other := newMockConn("sub"), newMockConn("other")
	require.NoError(t, registry.Register("sub", sub))
	require.NoError(t, registry.Register("other", other))
	topics.Subscribe("room", "sub")
	topics.Subscribe("room", "gone")

	result := broadcaster.Publish(context.Background(), "room", NewChatFrame("x", "y", testNow()))

	assert.Equal(t, PublishResult{Delivered: 1}, result)
	assert.Len(t, sub.decoded(t), 1)
	assert.Empty(t, other.decoded(t))
}

func TestBroadcastUsesBusForTopics(t *testing.T) {
	bus := &recordingBus{}
	broadcaster, registry, topics := newTestBroadcaster(bus)
	sub := newMockConn("sub")
	require.NoError(t, registry.Register("sub", sub))
	topics.Subscribe("room", "sub")

	broadcaster.Publish(context.Background(), "room", NewChatFrame("x", "y", testNow()))

	records := bus.forTopic("room")
	require.Len(t, records, 1)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(records[0].data, &frame))
	assert.Equal(t, "chat", frame["type"])
	// Delivery happens when the bus hands the payload back.
	assert.Empty(t, sub.decoded(t))

	result := broadcaster.DeliverLocal("room", records[0].data)
	assert.Equal(t, PublishResult{Delivered: 1}, result)
	assert.Len(t, sub.decoded(t), 1)
}

func TestBroadcastAllBypassesBus(t *testing.T) {
	bus := &recordingBus{}
	broadcaster, registry, _ := newTestBroadcaster(bus)
	conn := newMockConn("s1")
	require.NoError(t, registry.Register("s1", conn))

	result := broadcaster.Publish(context.Background(), AllTopic, NewPongFrame(testNow()))
	assert.Equal(t, PublishResult{Delivered: 1}, result)
	assert.Empty(t, bus.forTopic(AllTopic))
}

func TestBroadcastUnmarshalablePayload(t *testing.T) {
	broadcaster, registry, _ := newTestBroadcaster(nil)
	conn := newMockConn("s1")
	require.NoError(t, registry.Register("s1", conn))

	result := broadcaster.Publish(context.Background(), AllTopic, make(chan int))
	assert.Equal(t, PublishResult{}, result)
	assert.Empty(t, conn.decoded(t))
}
