package kafka_infra

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/anshtyagi9/Banking-API-Project/internal/domain"
)

const (
	headerMessageID   = "message-id"
	headerAggregateID = "aggregate-id"
)

// Publisher delivers outbox messages to the broker.
type Publisher interface {
	Publish(ctx context.Context, msg domain.OutboxMessage) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	logger *zap.Logger
}

// NewPublisher builds a writer without a fixed topic since every outbox message
// names its own. Messages are keyed by aggregate so events of one transaction or
// account stay ordered within a partition.
func NewPublisher(brokers []string, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: false,
	}
	return &KafkaPublisher{writer: writer, logger: logger}
}

func toKafkaMessage(msg domain.OutboxMessage) kafka.Message {
	return kafka.Message{
		Topic: msg.Topic,
		Key:   []byte(msg.Key),
		Value: msg.Payload,
		Headers: []kafka.Header{
			{Key: headerMessageID, Value: []byte(msg.ID)},
			{Key: headerAggregateID, Value: []byte(msg.AggregateID)},
		},
		Time: msg.CreatedAt,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if err := p.writer.WriteMessages(ctx, toKafkaMessage(msg)); err != nil {
		return fmt.Errorf("failed to publish outbox message %s to %s: %w", msg.ID, msg.Topic, err)
	}
	p.logger.Debug("Published ledger event",
		zap.String("message_id", msg.ID),
		zap.String("topic", msg.Topic))
	return nil
}

func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}
	return nil
}

var _ Publisher = (*KafkaPublisher)(nil)
