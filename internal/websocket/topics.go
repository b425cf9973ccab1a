package websocket

import (
	"context"
	"sync"
)

const (
	// AllTopic addresses every open connection.
	AllTopic = "*"
	// PresenceTopic carries online-count updates.
	PresenceTopic = "online-count"

	conversationTopicPrefix = "conversation:"
)

// ConversationTopic is the topic a conversation's messages are published on.
// Conversation topics share a namespace with client-chosen topics, so the
// conversation id is prefixed: messages of conversation "c1" go to topic
// "conversation:c1", which is also what clients subscribe to.
func ConversationTopic(conversationID string) string {
	return conversationTopicPrefix + conversationID
}

// TopicBus hands a serialized payload to whatever routes topics to
// subscribers. The in-process default delivers straight to local subscribers;
// the Redis bus fans out across instances first.
type TopicBus interface {
	Publish(ctx context.Context, topic string, data []byte) (PublishResult, error)
}

// LocalDeliverer delivers a payload to the subscribers connected to this
// instance. Cross-instance buses call it when a message comes back in.
type LocalDeliverer interface {
	DeliverLocal(topic string, data []byte) PublishResult
}

// Topics is the in-process subscription table: topic → sessions and the
// reverse index used to drop everything a session held on disconnect.
type Topics struct {
	mu        sync.RWMutex
	byTopic   map[string]map[string]struct{}
	bySession map[string]map[string]struct{}
}

func NewTopics() *Topics {
	return &Topics{
		byTopic:   make(map[string]map[string]struct{}),
		bySession: make(map[string]map[string]struct{}),
	}
}

func (t *Topics) Subscribe(topic, sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.byTopic[topic] == nil {
		t.byTopic[topic] = make(map[string]struct{})
	}
	t.byTopic[topic][sessionID] = struct{}{}

	if t.bySession[sessionID] == nil {
		t.bySession[sessionID] = make(map[string]struct{})
	}
	t.bySession[sessionID][topic] = struct{}{}
}

func (t *Topics) Unsubscribe(topic, sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(topic, sessionID)
}

// UnsubscribeAll drops every subscription held by sessionID.
func (t *Topics) UnsubscribeAll(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for topic := range t.bySession[sessionID] {
		t.removeLocked(topic, sessionID)
	}
}

func (t *Topics) removeLocked(topic, sessionID string) {
	if sessions, ok := t.byTopic[topic]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(t.byTopic, topic)
		}
	}
	if topics, ok := t.bySession[sessionID]; ok {
		delete(topics, topic)
		if len(topics) == 0 {
			delete(t.bySession, sessionID)
		}
	}
}

// Subscribers returns a copy of the sessions subscribed to topic.
func (t *Topics) Subscribers(topic string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sessions := t.byTopic[topic]
	out := make([]string, 0, len(sessions))
	for sessionID := range sessions {
		out = append(out, sessionID)
	}
	return out
}

func (t *Topics) IsSubscribed(topic, sessionID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.byTopic[topic][sessionID]
	return ok
}
