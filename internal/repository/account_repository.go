package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/popeskul/insdr-dispatcher/internal/models"
)

type accountRepository struct {
	db sqlx.ExtContext
}

func NewAccountRepository(db sqlx.ExtContext) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT id, name, phone, created_at FROM accounts WHERE id = $1`

	var account models.Account
	err := sqlx.GetContext(ctx, r.db, &account, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", id, err)
	}

	return &account, nil
}

func (r *accountRepository) LockForUpdate(ctx context.Context, id string) error {
	var locked string
	err := sqlx.GetContext(ctx, r.db, &locked, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock account %s: %w", id, err)
	}
	return nil
}

func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}

	query := `INSERT INTO accounts (id, name, phone, created_at) VALUES (:id, :name, :phone, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, account); err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}
