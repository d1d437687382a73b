package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// repositoryImpl is the concrete implementation of Repository interface.
// db is nil when the repository is bound to an open transaction.
type repositoryImpl struct {
	db          *sqlx.DB
	message     MessageRepository
	transaction TransactionRepository
	messageLog  MessageLogRepository
	account     AccountRepository
}

// NewRepository creates a new repository instance.
func NewRepository(db *sqlx.DB) Repository {
	r := bind(db)
	r.db = db
	return r
}

func bind(ext sqlx.ExtContext) *repositoryImpl {
	return &repositoryImpl{
		message:     NewMessageRepository(ext),
		transaction: NewTransactionRepository(ext),
		messageLog:  NewMessageLogRepository(ext),
		account:     NewAccountRepository(ext),
	}
}

// Message returns the message repository.
func (r *repositoryImpl) Message() MessageRepository {
	return r.message
}

func (r *repositoryImpl) Transaction() TransactionRepository {
	return r.transaction
}

func (r *repositoryImpl) MessageLog() MessageLogRepository {
	return r.messageLog
}

func (r *repositoryImpl) Account() AccountRepository {
	return r.account
}

// WithTx nests by reusing the open transaction.
func (r *repositoryImpl) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	if r.db == nil {
		return fn(r)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(bind(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Ping checks if the database connection is healthy.
func (r *repositoryImpl) Ping() error {
	if r.db == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return r.db.PingContext(ctx)
}
