package repository

import (
	"context"
	"time"

	"github.com/popeskul/insdr-dispatcher/internal/models"
)

// Repository interface defines all repository operations.
type Repository interface {
	// Ping checks database connectivity
	Ping() error

	Message() MessageRepository
	Transaction() TransactionRepository
	MessageLog() MessageLogRepository
	Account() AccountRepository

	// WithTx runs fn against a repository bound to a single database
	// transaction. A non-nil error from fn rolls everything back.
	WithTx(ctx context.Context, fn func(tx Repository) error) error
}

// MessageRepository interface defines message operations. Terminal
// transitions are compare-and-swap on status = pending.
type MessageRepository interface {
	GetDueMessages(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledMessage, error)
	GetByID(ctx context.Context, id string) (*models.ScheduledMessage, error)
	Claim(ctx context.Context, id, owner string, now, until time.Time) error
	// Release drops owner's claim. Claims held by others are left alone.
	Release(ctx context.Context, id, owner string) error
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id, reason string) error
	GetMessages(ctx context.Context, status *models.MessageStatus, offset, limit int) ([]*models.ScheduledMessage, error)
	CountMessages(ctx context.Context, status *models.MessageStatus) (int64, error)
	CreateMessage(ctx context.Context, msg *models.ScheduledMessage) error
}

type TransactionRepository interface {
	GetCompletedByAccount(ctx context.Context, accountID string) ([]models.Transaction, error)
	Create(ctx context.Context, tx *models.Transaction) error
	CountUsageForMessage(ctx context.Context, messageID string) (int, error)
}

type MessageLogRepository interface {
	Create(ctx context.Context, log *models.MessageLog) error
	GetByMessageID(ctx context.Context, messageID string) (*models.MessageLog, error)
}

type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	// LockForUpdate holds the account row until the surrounding
	// transaction ends. Outside WithTx it only checks existence.
	LockForUpdate(ctx context.Context, id string) error
	Create(ctx context.Context, account *models.Account) error
}
