package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"vidshare-realtime/internal/database"
	"vidshare-realtime/internal/websocket"
)

const topicChannelPrefix = "topic:"

// RedisBus fans topic publishes out to every instance through Redis pub/sub.
// Each instance delivers what it receives to its own local subscribers, so a
// publish is delivered exactly once per subscribed connection cluster-wide.
type RedisBus struct {
	client *database.RedisClient
	logger *slog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

func NewRedisBus(client *database.RedisClient, logger *slog.Logger) *RedisBus {
	return &RedisBus{
		client: client,
		logger: logger,
	}
}

func topicChannel(topic string) string {
	return topicChannelPrefix + topic
}

// Publish implements websocket.TopicBus. Delivery counts are only known to the
// receiving instances, so the returned result is always zero.
func (b *RedisBus) Publish(ctx context.Context, topic string, data []byte) (websocket.PublishResult, error) {
	if err := b.client.GetClient().Publish(ctx, topicChannel(topic), data).Err(); err != nil {
		return websocket.PublishResult{}, fmt.Errorf("publish topic %s: %w", topic, err)
	}
	b.logger.Debug("Published topic message", "topic", topic, "size", len(data))
	return websocket.PublishResult{}, nil
}

// Start subscribes to every topic channel and delivers incoming payloads to
// deliverer until ctx is done or Close is called. The subscription is
// confirmed before Start returns.
func (b *RedisBus) Start(ctx context.Context, deliverer websocket.LocalDeliverer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		return errors.New("redis bus already started")
	}

	pubsub := b.client.GetClient().PSubscribe(ctx, topicChannelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe to topic channels: %w", err)
	}

	b.pubsub = pubsub
	b.done = make(chan struct{})
	go b.listen(ctx, pubsub, deliverer, b.done)

	b.logger.Info("Redis topic bus started", "pattern", topicChannelPrefix+"*")
	return nil
}

func (b *RedisBus) listen(ctx context.Context, pubsub *redis.PubSub, deliverer websocket.LocalDeliverer, done chan struct{}) {
	defer close(done)

	// go-redis re-establishes the subscription on connection loss; the
	// channel only closes when the PubSub itself is closed.
	messages := pubsub.Channel(redis.WithChannelHealthCheckInterval(30 * time.Second))
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			topic := strings.TrimPrefix(msg.Channel, topicChannelPrefix)
			result := deliverer.DeliverLocal(topic, []byte(msg.Payload))
			b.logger.Debug("Delivered bus message", "topic", topic,
				"delivered", result.Delivered, "failed", result.Failed)
		}
	}
}

// Close stops the listener and waits for it to return.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	pubsub, done := b.pubsub, b.done
	b.pubsub, b.done = nil, nil
	b.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-done
	return err
}
