package outbox_repo

import (
	"context"

	"github.com/anshtyagi9/Banking-API-Project/internal/domain"
)

type OutboxRepository interface {
	CreateMessage(ctx context.Context, msg *domain.OutboxMessage) error
	GetPendingMessages(ctx context.Context, limit int) ([]domain.OutboxMessage, error)
	UpdateMessageStatus(ctx context.Context, id string, status domain.OutboxMessageStatus) error
}
