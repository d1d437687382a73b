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

type messageLogRepository struct {
	db sqlx.ExtContext
}

func NewMessageLogRepository(db sqlx.ExtContext) MessageLogRepository {
	return &messageLogRepository{db: db}
}

func (r *messageLogRepository) Create(ctx context.Context, log *models.MessageLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO message_logs (id, message_id, account_id, recipient_phone, content, channel, cost,
			provider_message_id, created_at)
		VALUES (:id, :message_id, :account_id, :recipient_phone, :content, :channel, :cost,
			:provider_message_id, :created_at)`

	if _, err := sqlx.NamedExecContext(ctx, r.db, query, log); err != nil {
		return fmt.Errorf("failed to create message log: %w", err)
	}

	return nil
}

func (r *messageLogRepository) GetByMessageID(ctx context.Context, messageID string) (*models.MessageLog, error) {
	query := `
		SELECT id, message_id, account_id, recipient_phone, content, channel, cost, provider_message_id, created_at
		FROM message_logs
		WHERE message_id = $1`

	var log models.MessageLog
	err := sqlx.GetContext(ctx, r.db, &log, query, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message log for %s: %w", messageID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message log for %s: %w", messageID, err)
	}

	return &log, nil
}
