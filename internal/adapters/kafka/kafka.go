package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"vidshare-realtime/internal/conversation"
)

func InitKafkaProducer(brokers []string, clientID string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	// Keyed by conversation id so a conversation's messages stay ordered.
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Version = sarama.V2_0_0_0
	config.ClientID = clientID
	config.Producer.MaxMessageBytes = 1000000

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return producer, nil
}

// MessageExporter publishes every appended conversation message to a Kafka
// topic for the content store to ingest. It implements conversation.Sink.
type MessageExporter struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

func NewMessageExporter(producer sarama.SyncProducer, topic string, logger *slog.Logger) *MessageExporter {
	return &MessageExporter{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

func (e *MessageExporter) Archive(_ context.Context, msg conversation.Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message %s: %w", msg.ID, err)
	}

	partition, offset, err := e.producer.SendMessage(&sarama.ProducerMessage{
		Topic: e.topic,
		Key:   sarama.StringEncoder(msg.ConversationID),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("message-type"), Value: []byte(msg.MessageType)},
		},
	})
	if err != nil {
		return fmt.Errorf("export message %s: %w", msg.ID, err)
	}

	e.logger.Debug("Message exported",
		"conversationID", msg.ConversationID, "messageID", msg.ID,
		"partition", partition, "offset", offset)
	return nil
}

func (e *MessageExporter) Close() error {
	return e.producer.Close()
}
