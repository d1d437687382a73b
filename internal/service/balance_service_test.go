package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/popeskul/insdr-dispatcher/internal/models"
	"github.com/popeskul/insdr-dispatcher/internal/repository"
	"github.com/popeskul/insdr-dispatcher/internal/repository/mocks"
	"github.com/popeskul/insdr-dispatcher/internal/service"
)

func TestBalanceService_AdvertisingBalance(t *testing.T) {
	tests := []struct {
		name    string
		txs     []models.Transaction
		readErr error
		want    int64
		wantErr error
	}{
		{
			name: "charges minus advertising usage",
			txs: []models.Transaction{
				{Kind: models.TransactionCharge, Amount: 100, Status: models.TransactionStatusCompleted},
				{Kind: models.TransactionUsage, Amount: 20, Status: models.TransactionStatusCompleted,
					Metadata: models.Metadata{"transactionType": "advertising"}},
			},
			want: 80,
		},
		{
			name: "reward charges and point usage are ignored",
			txs: []models.Transaction{
				{Kind: models.TransactionCharge, Amount: 100, Status: models.TransactionStatusCompleted},
				{Kind: models.TransactionCharge, Amount: 500, Status: models.TransactionStatusCompleted,
					Metadata: models.Metadata{"isReward": true}},
				{Kind: models.TransactionUsage, Amount: 300, Status: models.TransactionStatusCompleted,
					Metadata: models.Metadata{"transactionType": "point"}},
			},
			want: 100,
		},
		{
			name: "negative ledger clamps to zero",
			txs: []models.Transaction{
				{Kind: models.TransactionCharge, Amount: 10, Status: models.TransactionStatusCompleted},
				{Kind: models.TransactionPenalty, Amount: 50, Status: models.TransactionStatusCompleted},
			},
			want: 0,
		},
		{
			name: "unreadable reward flag is not spendable",
			txs: []models.Transaction{
				{ID: "tx-1", Kind: models.TransactionCharge, Amount: 100, Status: models.TransactionStatusCompleted},
				{ID: "tx-2", Kind: models.TransactionCharge, Amount: 800, Status: models.TransactionStatusCompleted,
					Metadata: models.Metadata{"isReward": "yes"}},
			},
			want: 100,
		},
		{
			name:    "read failure is zero and unavailable",
			readErr: errors.New("connection reset"),
			want:    0,
			wantErr: service.ErrBalanceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)

			mockRepo := mocks.NewMockRepository(ctrl)
			mockTxRepo := mocks.NewMockTransactionRepository(ctrl)
			mockRepo.EXPECT().Transaction().Return(mockTxRepo)
			mockTxRepo.EXPECT().GetCompletedByAccount(gomock.Any(), "acc-1").Return(tt.txs, tt.readErr)

			got, err := service.NewBalanceService(mockRepo, zap.NewNop()).AdvertisingBalance(context.Background(), "acc-1")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBalanceService_GetBalance(t *testing.T) {
	t.Run("reports both balances", func(t *testing.T) {
		ctrl := gomock.NewController(t)

		mockRepo := mocks.NewMockRepository(ctrl)
		mockAccounts := mocks.NewMockAccountRepository(ctrl)
		mockTxRepo := mocks.NewMockTransactionRepository(ctrl)
		mockRepo.EXPECT().Account().Return(mockAccounts)
		mockRepo.EXPECT().Transaction().Return(mockTxRepo)

		mockAccounts.EXPECT().GetByID(gomock.Any(), "acc-1").Return(&models.Account{ID: "acc-1"}, nil)
		mockTxRepo.EXPECT().GetCompletedByAccount(gomock.Any(), "acc-1").Return([]models.Transaction{
			{Kind: models.TransactionCharge, Amount: 100, Status: models.TransactionStatusCompleted},
			{Kind: models.TransactionCharge, Amount: 40, Status: models.TransactionStatusCompleted,
				Metadata: models.Metadata{"isReward": true}},
			{Kind: models.TransactionUsage, Amount: 30, Status: models.TransactionStatusCompleted},
			{Kind: models.TransactionUsage, Amount: 15, Status: models.TransactionStatusCompleted,
				Metadata: models.Metadata{"transactionType": "point"}},
		}, nil)

		resp, err := service.NewBalanceService(mockRepo, zap.NewNop()).GetBalance(context.Background(), "acc-1")
		require.NoError(t, err)
		assert.Equal(t, "acc-1", resp.AccountId)
		assert.Equal(t, int64(70), resp.AdvertisingBalance)
		assert.Equal(t, int64(25), resp.PointBalance)
	})

	t.Run("unknown account", func(t *testing.T) {
		ctrl := gomock.NewController(t)

		mockRepo := mocks.NewMockRepository(ctrl)
		mockAccounts := mocks.NewMockAccountRepository(ctrl)
		mockRepo.EXPECT().Account().Return(mockAccounts)
		mockAccounts.EXPECT().GetByID(gomock.Any(), "missing").Return(nil, repository.ErrNotFound)

		resp, err := service.NewBalanceService(mockRepo, zap.NewNop()).GetBalance(context.Background(), "missing")
		require.ErrorIs(t, err, service.ErrAccountNotFound)
		assert.Nil(t, resp)
	})

	t.Run("ledger read fails", func(t *testing.T) {
		ctrl := gomock.NewController(t)

		mockRepo := mocks.NewMockRepository(ctrl)
		mockAccounts := mocks.NewMockAccountRepository(ctrl)
		mockTxRepo := mocks.NewMockTransactionRepository(ctrl)
		mockRepo.EXPECT().Account().Return(mockAccounts)
		mockRepo.EXPECT().Transaction().Return(mockTxRepo)
		mockAccounts.EXPECT().GetByID(gomock.Any(), "acc-1").Return(&models.Account{ID: "acc-1"}, nil)
		mockTxRepo.EXPECT().GetCompletedByAccount(gomock.Any(), "acc-1").Return(nil, errors.New("timeout"))

		_, err := service.NewBalanceService(mockRepo, zap.NewNop()).GetBalance(context.Background(), "acc-1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get transactions")
		assert.NotErrorIs(t, err, service.ErrAccountNotFound)
	})
}
