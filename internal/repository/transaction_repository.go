package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/popeskul/insdr-dispatcher/internal/ledger"
	"github.com/popeskul/insdr-dispatcher/internal/models"
)

type transactionRepository struct {
	db sqlx.ExtContext
}

func NewTransactionRepository(db sqlx.ExtContext) TransactionRepository {
	return &transactionRepository{db: db}
}

// GetCompletedByAccount loads the full completed history of an account.
func (r *transactionRepository) GetCompletedByAccount(ctx context.Context, accountID string) ([]models.Transaction, error) {
	query := `
		SELECT id, account_id, kind, amount, status, description, metadata, created_at
		FROM transactions
		WHERE account_id = $1 AND status = $2
		ORDER BY created_at DESC`

	var txs []models.Transaction
	if err := sqlx.SelectContext(ctx, r.db, &txs, query, accountID, models.TransactionStatusCompleted); err != nil {
		return nil, fmt.Errorf("failed to get transactions for account %s: %w", accountID, err)
	}

	return txs, nil
}

// Create appends tx to the ledger.
func (r *transactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	if tx.Metadata == nil {
		tx.Metadata = models.Metadata{}
	}

	query := `
		INSERT INTO transactions (id, account_id, kind, amount, status, description, metadata, created_at)
		VALUES (:id, :account_id, :kind, :amount, :status, :description, :metadata, :created_at)`

	if _, err := sqlx.NamedExecContext(ctx, r.db, query, tx); err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// CountUsageForMessage counts debits correlated with messageID.
func (r *transactionRepository) CountUsageForMessage(ctx context.Context, messageID string) (int, error) {
	query := `SELECT COUNT(*) FROM transactions WHERE kind = $1 AND metadata ->> '` + ledger.MetaMessageID + `' = $2`

	var count int
	if err := sqlx.GetContext(ctx, r.db, &count, query, models.TransactionUsage, messageID); err != nil {
		return 0, fmt.Errorf("failed to count usage for message %s: %w", messageID, err)
	}

	return count, nil
}
