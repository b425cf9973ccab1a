package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// PublishResult counts per-connection outcomes of one publish.
type PublishResult struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

func (r PublishResult) add(o PublishResult) PublishResult {
	return PublishResult{Delivered: r.Delivered + o.Delivered, Failed: r.Failed + o.Failed}
}

// Publisher is the fan-out primitive handed to presence, the router and the
// reply scheduler.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) PublishResult
}

// Broadcaster delivers one payload to many connections. A failed send is
// logged and counted and never stops delivery to the others; removing the
// failing connection is left to its own close path.
type Broadcaster struct {
	registry *Registry
	topics   *Topics
	bus      TopicBus
	metrics  *BroadcastMetrics
	logger   *slog.Logger
}

// NewBroadcaster creates a broadcaster. A nil bus delivers topic publishes to
// local subscribers only.
func NewBroadcaster(registry *Registry, topics *Topics, bus TopicBus, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		topics:   topics,
		bus:      bus,
		metrics:  NewBroadcastMetrics(logger),
		logger:   logger,
	}
}

func (b *Broadcaster) Metrics() *BroadcastMetrics {
	return b.metrics
}

func (b *Broadcaster) Publish(ctx context.Context, topic string, payload any) PublishResult {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("Failed to marshal broadcast payload", "topic", topic, "error", err)
		return PublishResult{}
	}

	if topic == AllTopic {
		return b.deliverAll(data)
	}
	if b.bus == nil {
		return b.DeliverLocal(topic, data)
	}

	result, err := b.bus.Publish(ctx, topic, data)
	if err != nil {
		b.logger.Error("Failed to publish to topic bus", "topic", topic, "error", err)
	}
	return result
}

func (b *Broadcaster) deliverAll(data []byte) PublishResult {
	start := time.Now()
	var result PublishResult
	for conn := range b.registry.AllOpen() {
		result = result.add(b.send(conn, AllTopic, data))
	}
	b.metrics.Record(AllTopic, time.Since(start), result, len(data))
	b.logger.Debug("Broadcast to all connections", "delivered", result.Delivered, "failed", result.Failed)
	return result
}

// DeliverLocal sends data to every open local connection subscribed to topic.
func (b *Broadcaster) DeliverLocal(topic string, data []byte) PublishResult {
	start := time.Now()
	var result PublishResult
	for _, sessionID := range b.topics.Subscribers(topic) {
		conn, err := b.registry.Get(sessionID)
		if err != nil || !conn.IsOpen() {
			continue
		}
		result = result.add(b.send(conn, topic, data))
	}
	b.metrics.Record(topic, time.Since(start), result, len(data))
	b.logger.Debug("Delivered topic message", "topic", topic, "delivered", result.Delivered, "failed", result.Failed)
	return result
}

func (b *Broadcaster) send(conn Conn, topic string, data []byte) (result PublishResult) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("Panic while sending to connection", "sessionID", conn.ID(), "topic", topic, "panic", rec)
			result = PublishResult{Failed: 1}
		}
	}()

	if err := conn.SendText(data); err != nil {
		b.logger.Warn("Failed to send to connection", "sessionID", conn.ID(), "topic", topic, "error", err)
		return PublishResult{Failed: 1}
	}
	return PublishResult{Delivered: 1}
}
