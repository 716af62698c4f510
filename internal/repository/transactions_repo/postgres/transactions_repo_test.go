package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anshtyagi9/Banking-API-Project/internal/domain"
)

var columns = []string{"seq", "id", "type", "source_account_id", "destination_account_id", "amount",
	"source_balance_after", "destination_balance_after", "status", "reason", "created_at"}

func TestAppendAssignsSeq(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewTransactionRepository(db)

	after := int64(150)
	rec := &domain.TransactionRecord{
		ID:                      "tx-1",
		Type:                    domain.TransactionTypeDeposit,
		DestinationAccountID:    "acc-1",
		Amount:                  50,
		DestinationBalanceAfter: &after,
		Status:                  domain.TransactionStatusCommitted,
		CreatedAt:               time.Now().UTC(),
	}
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO transaction_records`)).
		WithArgs("tx-1", "DEPOSIT", nil, "acc-1", int64(50), nil, int64(150), "COMMITTED", "", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(42)))

	id, err := repo.Append(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "tx-1", id)
	assert.Equal(t, int64(42), rec.Seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendUnknownAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewTransactionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO transaction_records`)).
		WillReturnError(&pq.Error{Code: "23503"})

	_, err = repo.Append(context.Background(), &domain.TransactionRecord{
		Type:            domain.TransactionTypeWithdraw,
		SourceAccountID: "ghost",
		Amount:          1,
		Status:          domain.TransactionStatusCommitted,
	})
	assert.ErrorIs(t, err, domain.ErrReferentialIntegrity)
}

func TestListByAccountNewestFirst(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewTransactionRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM transaction_records`)).
		WithArgs("acc-1", int64(10), 2).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(9), "tx-9", "TRANSFER", "acc-1", "acc-2", int64(30), int64(70), int64(80), "COMMITTED", "", now).
			AddRow(int64(7), "tx-7", "WITHDRAW", "acc-1", nil, int64(500), int64(100), nil, "REJECTED", "insufficient funds", now))

	records, err := repo.ListByAccount(context.Background(), "acc-1", domain.Page{BeforeSeq: 10, Limit: 2})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, int64(9), records[0].Seq)
	assert.Equal(t, "acc-2", records[0].DestinationAccountID)
	require.NotNil(t, records[0].DestinationBalanceAfter)
	assert.Equal(t, int64(80), *records[0].DestinationBalanceAfter)

	assert.Equal(t, domain.TransactionStatusRejected, records[1].Status)
	assert.Empty(t, records[1].DestinationAccountID)
	assert.Nil(t, records[1].DestinationBalanceAfter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLastNWithNonPositiveN(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewTransactionRepository(db)

	records, err := repo.LastN(context.Background(), "acc-1", 0)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}
