package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/anshtyagi9/Banking-API-Project/internal/domain"
	"github.com/anshtyagi9/Banking-API-Project/internal/domain/event"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository/memory"
)

type publishedMessage struct {
	topic string
	key   string
	value []byte
}

type fakePublisher struct {
	mu        sync.Mutex
	failKeys  map[string]bool
	published []publishedMessage
}

func (p *fakePublisher) Publish(_ context.Context, msg domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failKeys[msg.Key] {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, publishedMessage{topic: msg.Topic, key: msg.Key, value: msg.Payload})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func stage(t *testing.T, store *memory.Store, msgs ...*domain.OutboxMessage) {
	t.Helper()
	err := store.WithinTx(context.Background(), func(ctx context.Context, repos repository.Repositories) error {
		for _, msg := range msgs {
			if err := repos.Outbox().CreateMessage(ctx, msg); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func depositRecord(id string, amount int64) *domain.TransactionRecord {
	after := amount
	return &domain.TransactionRecord{
		ID:                      id,
		Seq:                     1,
		Type:                    domain.TransactionTypeDeposit,
		DestinationAccountID:    "acc-1",
		Amount:                  amount,
		DestinationBalanceAfter: &after,
		Status:                  domain.TransactionStatusCommitted,
		CreatedAt:               time.Now().UTC(),
	}
}

func TestNewTransactionCommittedMessage(t *testing.T) {
	rec := depositRecord("tx-1", 250)
	msg, err := NewTransactionCommittedMessage("ledger", rec)
	require.NoError(t, err)
	assert.Equal(t, "ledger", msg.Topic)
	assert.Equal(t, "tx-1", msg.Key)
	assert.Equal(t, "tx-1", msg.AggregateID)
	assert.Equal(t, domain.OutboxStatusPending, msg.Status)

	var evt event.TransactionCommittedEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &evt))
	assert.Equal(t, "DEPOSIT", evt.Type)
	assert.Equal(t, int64(250), evt.Amount)
	assert.Empty(t, evt.SourceAccountID)
	assert.Nil(t, evt.SourceBalanceAfter)
}

func TestProcessOncePublishesAndMarksSent(t *testing.T) {
	store := memory.NewStore()
	publisher := &fakePublisher{}
	first, err := NewTransactionCommittedMessage("ledger", depositRecord("tx-1", 10))
	require.NoError(t, err)
	second, err := NewTransactionCommittedMessage("ledger", depositRecord("tx-2", 20))
	require.NoError(t, err)
	stage(t, store, first, second)

	p := NewProcessor(store, publisher, time.Second, time.Second, 10, zap.NewNop())
	sent, err := p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	require.Len(t, publisher.published, 2)
	assert.Equal(t, "tx-1", publisher.published[0].key)

	for _, msg := range store.OutboxMessages() {
		assert.Equal(t, domain.OutboxStatusSent, msg.Status)
		assert.NotNil(t, msg.SentAt)
	}

	sent, err = p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestProcessOnceLeavesFailedMessagesPending(t *testing.T) {
	store := memory.NewStore()
	publisher := &fakePublisher{failKeys: map[string]bool{"tx-bad": true}}
	good, err := NewTransactionCommittedMessage("ledger", depositRecord("tx-good", 10))
	require.NoError(t, err)
	bad, err := NewTransactionCommittedMessage("ledger", depositRecord("tx-bad", 20))
	require.NoError(t, err)
	stage(t, store, good, bad)

	p := NewProcessor(store, publisher, time.Second, time.Second, 10, zap.NewNop())
	sent, err := p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	statuses := map[string]domain.OutboxMessageStatus{}
	for _, msg := range store.OutboxMessages() {
		statuses[msg.Key] = msg.Status
	}
	assert.Equal(t, domain.OutboxStatusSent, statuses["tx-good"])
	assert.Equal(t, domain.OutboxStatusPending, statuses["tx-bad"])

	publisher.mu.Lock()
	publisher.failKeys = nil
	publisher.mu.Unlock()
	sent, err = p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestProcessOnceHonoursBatchSize(t *testing.T) {
	store := memory.NewStore()
	publisher := &fakePublisher{}
	var msgs []*domain.OutboxMessage
	for _, id := range []string{"tx-1", "tx-2", "tx-3"} {
		msg, err := NewTransactionCommittedMessage("ledger", depositRecord(id, 1))
		require.NoError(t, err)
		msgs = append(msgs, msg)
	}
	stage(t, store, msgs...)

	p := NewProcessor(store, publisher, time.Second, time.Second, 2, zap.NewNop())
	sent, err := p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
}

func TestStartStopsOnCancel(t *testing.T) {
	store := memory.NewStore()
	msg, err := NewTransactionCommittedMessage("ledger", depositRecord("tx-1", 1))
	require.NoError(t, err)
	stage(t, store, msg)

	publisher := &fakePublisher{}
	p := NewProcessor(store, publisher, 5*time.Millisecond, time.Second, 10, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		return store.OutboxMessages()[0].Status == domain.OutboxStatusSent
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("processor did not stop after cancel")
	}
}
