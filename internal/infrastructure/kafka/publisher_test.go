package kafka_infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/anshtyagi9/Banking-API-Project/internal/domain"
)

type recordingWriter struct {
	written []kafka.Message
	err     error
	closed  bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishMapsOutboxMessage(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaPublisher{writer: w, logger: zap.NewNop()}
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	err := p.Publish(context.Background(), domain.OutboxMessage{
		ID:          "msg-1",
		AggregateID: "tx-1",
		Topic:       "ledger_transactions",
		Key:         "tx-1",
		Payload:     []byte(`{"amount":5}`),
		CreatedAt:   created,
	})
	require.NoError(t, err)
	require.Len(t, w.written, 1)

	got := w.written[0]
	assert.Equal(t, "ledger_transactions", got.Topic)
	assert.Equal(t, []byte("tx-1"), got.Key)
	assert.Equal(t, []byte(`{"amount":5}`), got.Value)
	assert.Equal(t, created, got.Time)
	assert.Contains(t, got.Headers, kafka.Header{Key: headerMessageID, Value: []byte("msg-1")})

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishWrapsWriterErrors(t *testing.T) {
	cause := errors.New("leader not available")
	p := &KafkaPublisher{writer: &recordingWriter{err: cause}, logger: zap.NewNop()}

	err := p.Publish(context.Background(), domain.OutboxMessage{ID: "msg-1", Topic: "t"})
	assert.ErrorIs(t, err, cause)
}
