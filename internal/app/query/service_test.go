package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/anshtyagi9/Banking-API-Project/internal/app/ledger"
	"github.com/anshtyagi9/Banking-API-Project/internal/domain"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository/memory"
	"github.com/anshtyagi9/Banking-API-Project/internal/util"
)

type fixture struct {
	store   *memory.Store
	engine  ledger.Engine
	service Service
}

func newFixture() *fixture {
	store := memory.NewStore()
	return &fixture{
		store:   store,
		engine:  ledger.NewEngine(store, ledger.DefaultConfig(), zap.NewNop()),
		service: NewService(store, zap.NewNop()),
	}
}

func (f *fixture) register(t *testing.T, username string, accounts int) (string, []string) {
	t.Helper()
	userID := util.GenerateUUID()
	var ids []string
	err := f.store.WithinTx(context.Background(), func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Users().CreateUser(ctx, &domain.User{
			ID:           userID,
			Username:     username,
			FullName:     "Test " + username,
			Email:        username + "@example.com",
			PasswordHash: "hash",
			CreatedAt:    time.Now(),
		}); err != nil {
			return err
		}
		for i := 0; i < accounts; i++ {
			acc, err := repos.Accounts().CreateAccount(ctx, userID)
			if err != nil {
				return err
			}
			ids = append(ids, acc.ID)
		}
		return nil
	})
	require.NoError(t, err)
	return userID, ids
}

func TestBalance(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner, ids := f.register(t, "alice", 1)

	_, err := f.engine.Deposit(ctx, ids[0], 250)
	require.NoError(t, err)

	view, err := f.service.Balance(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, ids[0], view.AccountID)
	assert.Equal(t, owner, view.OwnerID)
	assert.Equal(t, int64(250), view.Balance)
	assert.Equal(t, domain.AccountStatusActive, view.Status)
	assert.False(t, view.AsOf.IsZero())

	_, err = f.service.Balance(ctx, util.GenerateUUID())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestProfileHidesPasswordHash(t *testing.T) {
	f := newFixture()
	owner, ids := f.register(t, "bob", 2)

	profile, err := f.service.Profile(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, "bob", profile.User.Username)
	assert.Empty(t, profile.User.PasswordHash)
	require.Len(t, profile.Accounts, 2)
	assert.Equal(t, ids[0], profile.Accounts[0].ID)
	assert.Equal(t, ids[1], profile.Accounts[1].ID)

	_, err = f.service.Profile(context.Background(), util.GenerateUUID())
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestPrimaryAccountSkipsClosed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner, ids := f.register(t, "carol", 2)

	primary, err := f.service.PrimaryAccount(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, ids[0], primary.ID)

	_, err = f.engine.CloseAccount(ctx, ids[0])
	require.NoError(t, err)

	primary, err = f.service.PrimaryAccount(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, ids[1], primary.ID)

	_, err = f.engine.CloseAccount(ctx, ids[1])
	require.NoError(t, err)
	_, err = f.service.PrimaryAccount(ctx, owner)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestHistoryPaging(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, ids := f.register(t, "dave", 1)
	for i := int64(1); i <= 6; i++ {
		_, err := f.engine.Deposit(ctx, ids[0], i*10)
		require.NoError(t, err)
	}

	first, err := f.service.History(ctx, ids[0], domain.Page{Limit: 4})
	require.NoError(t, err)
	require.Len(t, first, 4)
	assert.Equal(t, int64(60), first[0].Amount)
	assert.Equal(t, int64(30), first[3].Amount)

	rest, err := f.service.History(ctx, ids[0], domain.Page{BeforeSeq: first[3].Seq, Limit: 4})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, int64(20), rest[0].Amount)
	assert.Equal(t, int64(10), rest[1].Amount)

	_, err = f.service.History(ctx, ids[0], domain.Page{Limit: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.service.History(ctx, util.GenerateUUID(), domain.Page{})
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestHistoryIncludesBothSidesOfTransfers(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, a := f.register(t, "erin", 1)
	_, b := f.register(t, "frank", 1)

	_, err := f.engine.Deposit(ctx, a[0], 100)
	require.NoError(t, err)
	rec, err := f.engine.Transfer(ctx, a[0], b[0], 40)
	require.NoError(t, err)

	histA, err := f.service.History(ctx, a[0], domain.Page{})
	require.NoError(t, err)
	histB, err := f.service.History(ctx, b[0], domain.Page{})
	require.NoError(t, err)

	require.Len(t, histA, 2)
	require.Len(t, histB, 1)
	assert.Equal(t, rec.ID, histA[0].ID)
	assert.Equal(t, rec.ID, histB[0].ID)
}

func TestMiniStatement(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, ids := f.register(t, "grace", 1)

	empty, err := f.service.MiniStatement(ctx, ids[0])
	require.NoError(t, err)
	assert.Empty(t, empty)

	for i := int64(1); i <= 8; i++ {
		_, err := f.engine.Deposit(ctx, ids[0], i)
		require.NoError(t, err)
	}

	mini, err := f.service.MiniStatement(ctx, ids[0])
	require.NoError(t, err)
	require.Len(t, mini, MiniStatementSize)
	full, err := f.service.History(ctx, ids[0], domain.Page{})
	require.NoError(t, err)
	assert.Equal(t, full[:MiniStatementSize], mini)
	assert.Equal(t, int64(8), mini[0].Amount)
	assert.Equal(t, int64(4), mini[4].Amount)
}
