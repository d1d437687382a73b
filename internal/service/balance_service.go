package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/popeskul/insdr-dispatcher/internal/api"
	"github.com/popeskul/insdr-dispatcher/internal/ledger"
	"github.com/popeskul/insdr-dispatcher/internal/models"
	"github.com/popeskul/insdr-dispatcher/internal/repository"
)

type balanceService struct {
	repo   repository.Repository
	logger *zap.Logger
}

func NewBalanceService(repo repository.Repository, logger *zap.Logger) BalanceService {
	return &balanceService{
		repo:   repo,
		logger: logger,
	}
}

// AdvertisingBalance replays the account ledger on every call. A read
// failure yields zero with ErrBalanceUnavailable so no send goes out
// unfunded.
func (s *balanceService) AdvertisingBalance(ctx context.Context, accountID string) (int64, error) {
	txs, err := s.repo.Transaction().GetCompletedByAccount(ctx, accountID)
	if err != nil {
		s.logger.Error("Failed to read ledger, treating balance as zero",
			zap.String("account_id", accountID),
			zap.Error(err))
		return 0, fmt.Errorf("%w: %w", ErrBalanceUnavailable, err)
	}

	s.reportUnreadable(accountID, txs)
	return ledger.AdvertisingBalance(txs), nil
}

// GetBalance reports both logical balances of an account.
func (s *balanceService) GetBalance(ctx context.Context, accountID string) (*api.BalanceResponse, error) {
	if _, err := s.repo.Account().GetByID(ctx, accountID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	txs, err := s.repo.Transaction().GetCompletedByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}

	s.reportUnreadable(accountID, txs)

	if raw := ledger.Raw(txs, ledger.AdvertisingRule); raw < 0 {
		s.logger.Warn("Advertising ledger is negative, reporting zero",
			zap.String("account_id", accountID),
			zap.Int64("raw_balance", raw))
	}

	return &api.BalanceResponse{
		AccountId:          accountID,
		AdvertisingBalance: ledger.AdvertisingBalance(txs),
		PointBalance:       ledger.PointBalance(txs),
	}, nil
}

// reportUnreadable logs ledger rows whose flags could not be read. Such
// rows never count as credit.
func (s *balanceService) reportUnreadable(accountID string, txs []models.Transaction) {
	for id, err := range ledger.Unreadable(txs) {
		s.logger.Error("Ledger row has unreadable flags, excluded from credit",
			zap.String("account_id", accountID),
			zap.String("transaction_id", id),
			zap.Error(err))
	}
}
