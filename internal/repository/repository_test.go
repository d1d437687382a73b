package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/popeskul/insdr-dispatcher/internal/ledger"
	"github.com/popeskul/insdr-dispatcher/internal/models"
	"github.com/popeskul/insdr-dispatcher/internal/repository"
)

func TestRepositoryImpl_SubRepositories(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := repository.NewRepository(db)

	assert.NotNil(t, repo.Message())
	assert.NotNil(t, repo.Transaction())
	assert.NotNil(t, repo.MessageLog())
	assert.NotNil(t, repo.Account())
	assert.Equal(t, repo.Message(), repo.Message(), "sub-repositories should be stable")
	assert.NoError(t, repo.Ping())
}

func TestRepositoryImpl_Ping_ClosedDB(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := repository.NewRepository(db)
	require.NoError(t, db.Close())

	assert.Error(t, repo.Ping())
}

func TestRepositoryImpl_WithTx(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := repository.NewRepository(db)
	ctx := context.Background()

	accountID, err := insertTestAccount(db.DB, ptr("0212345678"))
	require.NoError(t, err)

	t.Run("commit applies every write", func(t *testing.T) {
		msgID, err := insertTestMessage(db.DB, accountID, "hello", models.MessageStatusPending, time.Now().Add(-time.Minute))
		require.NoError(t, err)

		err = repo.WithTx(ctx, func(tx repository.Repository) error {
			if err := tx.Account().LockForUpdate(ctx, accountID); err != nil {
				return err
			}
			if err := tx.Message().MarkSent(ctx, msgID, time.Now()); err != nil {
				return err
			}
			if err := tx.Transaction().Create(ctx, &models.Transaction{
				AccountID: accountID,
				Kind:      models.TransactionUsage,
				Amount:    20,
				Status:    models.TransactionStatusCompleted,
				Metadata:  ledger.UsageMetadata(msgID, models.ChannelSMS),
			}); err != nil {
				return err
			}
			return tx.MessageLog().Create(ctx, &models.MessageLog{
				MessageID:         msgID,
				AccountID:         accountID,
				RecipientPhone:    "01012345678",
				Content:           "hello",
				Channel:           models.ChannelSMS,
				Cost:              20,
				ProviderMessageID: "prov-1",
			})
		})
		require.NoError(t, err)

		msg, err := repo.Message().GetByID(ctx, msgID)
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusSent, msg.Status)

		count, err := repo.Transaction().CountUsageForMessage(ctx, msgID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		log, err := repo.MessageLog().GetByMessageID(ctx, msgID)
		require.NoError(t, err)
		assert.Equal(t, "prov-1", log.ProviderMessageID)
		assert.Equal(t, int64(20), log.Cost)
	})

	t.Run("error rolls back the debit", func(t *testing.T) {
		msgID, err := insertTestMessage(db.DB, accountID, "hello", models.MessageStatusPending, time.Now().Add(-time.Minute))
		require.NoError(t, err)
		require.NoError(t, repo.Message().MarkFailed(ctx, msgID, "already failed"))

		err = repo.WithTx(ctx, func(tx repository.Repository) error {
			if err := tx.Transaction().Create(ctx, &models.Transaction{
				AccountID: accountID,
				Kind:      models.TransactionUsage,
				Amount:    20,
				Status:    models.TransactionStatusCompleted,
				Metadata:  ledger.UsageMetadata(msgID, models.ChannelSMS),
			}); err != nil {
				return err
			}
			return tx.Message().MarkSent(ctx, msgID, time.Now())
		})
		require.ErrorIs(t, err, repository.ErrStatusConflict)

		count, err := repo.Transaction().CountUsageForMessage(ctx, msgID)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("nested call joins the open transaction", func(t *testing.T) {
		sentinel := errors.New("abort")
		msgID, err := insertTestMessage(db.DB, accountID, "hello", models.MessageStatusPending, time.Now().Add(-time.Minute))
		require.NoError(t, err)

		err = repo.WithTx(ctx, func(tx repository.Repository) error {
			if err := tx.WithTx(ctx, func(inner repository.Repository) error {
				return inner.Message().MarkFailed(ctx, msgID, "inner")
			}); err != nil {
				return err
			}
			return sentinel
		})
		require.ErrorIs(t, err, sentinel)

		msg, err := repo.Message().GetByID(ctx, msgID)
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusPending, msg.Status)
	})
}

func TestTransactionRepository(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := repository.NewRepository(db)
	ctx := context.Background()

	accountID, err := insertTestAccount(db.DB, nil)
	require.NoError(t, err)

	require.NoError(t, insertTestTransaction(db.DB, accountID, models.TransactionCharge, 100, models.TransactionStatusCompleted, ""))
	require.NoError(t, insertTestTransaction(db.DB, accountID, models.TransactionCharge, 50, models.TransactionStatusCompleted, `{"isReward": true}`))
	require.NoError(t, insertTestTransaction(db.DB, accountID, models.TransactionUsage, 20, models.TransactionStatusCompleted, `{"transactionType": "advertising"}`))
	require.NoError(t, insertTestTransaction(db.DB, accountID, models.TransactionCharge, 999, models.TransactionStatusPending, ""))

	txs, err := repo.Transaction().GetCompletedByAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Len(t, txs, 3)
	assert.Equal(t, int64(80), ledger.AdvertisingBalance(txs))
	assert.Equal(t, int64(50), ledger.PointBalance(txs))

	t.Run("second debit for the same message is rejected", func(t *testing.T) {
		msgID, err := insertTestMessage(db.DB, accountID, "hello", models.MessageStatusPending, time.Now())
		require.NoError(t, err)

		debit := func() error {
			return repo.Transaction().Create(ctx, &models.Transaction{
				AccountID: accountID,
				Kind:      models.TransactionUsage,
				Amount:    20,
				Status:    models.TransactionStatusCompleted,
				Metadata:  ledger.UsageMetadata(msgID, models.ChannelSMS),
			})
		}
		require.NoError(t, debit())
		assert.Error(t, debit())

		count, err := repo.Transaction().CountUsageForMessage(ctx, msgID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestAccountRepository(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := repository.NewRepository(db)
	ctx := context.Background()

	account := &models.Account{Name: "Shop"}
	account.Phone.String, account.Phone.Valid = "02-555-0000", true
	require.NoError(t, repo.Account().Create(ctx, account))

	got, err := repo.Account().GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "Shop", got.Name)
	assert.Equal(t, "02-555-0000", got.Phone.String)

	_, err = repo.Account().GetByID(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.ErrorIs(t, repo.Account().LockForUpdate(ctx, "00000000-0000-0000-0000-000000000000"), repository.ErrNotFound)
	assert.NoError(t, repo.Account().LockForUpdate(ctx, account.ID))
}
