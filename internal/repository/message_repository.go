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

const messageColumns = `id, account_id, recipient_phone, recipient_name, content, subject, channel,
		metadata, scheduled_at, status, sent_at, error, claimed_by, claimed_until, created_at, updated_at`

type messageRepository struct {
	db sqlx.ExtContext
}

func NewMessageRepository(db sqlx.ExtContext) MessageRepository {
	return &messageRepository{
		db: db,
	}
}

// GetDueMessages retrieves pending messages whose scheduled time has passed,
// oldest first. Messages under a live claim are left out.
func (r *messageRepository) GetDueMessages(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledMessage, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM scheduled_messages
		WHERE status = $1 AND scheduled_at <= $2
		  AND (claimed_until IS NULL OR claimed_until <= $2)
		ORDER BY scheduled_at ASC, id ASC
		LIMIT $3
	`

	var messages []*models.ScheduledMessage
	err := sqlx.SelectContext(ctx, r.db, &messages, query, models.MessageStatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get due messages: %w", err)
	}

	return messages, nil
}

func (r *messageRepository) GetByID(ctx context.Context, id string) (*models.ScheduledMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM scheduled_messages WHERE id = $1`

	var msg models.ScheduledMessage
	err := sqlx.GetContext(ctx, r.db, &msg, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}

	return &msg, nil
}

// Claim leases a pending message to owner until the given time. It fails
// with ErrAlreadyClaimed while another owner holds a live claim or once the
// message has left pending.
func (r *messageRepository) Claim(ctx context.Context, id, owner string, now, until time.Time) error {
	query := `
		UPDATE scheduled_messages
		SET claimed_by = $2,
		    claimed_until = $3
		WHERE id = $1 AND status = $4
		  AND (claimed_until IS NULL OR claimed_until <= $5)
	`

	res, err := r.db.ExecContext(ctx, query, id, owner, until, models.MessageStatusPending, now)
	if err != nil {
		return fmt.Errorf("failed to claim message %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("message %s: %w", id, ErrAlreadyClaimed)
	}
	return nil
}

func (r *messageRepository) Release(ctx context.Context, id, owner string) error {
	query := `
		UPDATE scheduled_messages
		SET claimed_by = NULL,
		    claimed_until = NULL
		WHERE id = $1 AND claimed_by = $2
	`

	if _, err := r.db.ExecContext(ctx, query, id, owner); err != nil {
		return fmt.Errorf("failed to release message %s: %w", id, err)
	}
	return nil
}

// MarkSent moves a pending message to sent.
func (r *messageRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	query := `
		UPDATE scheduled_messages
		SET status = $2,
		    sent_at = $3,
		    error = NULL,
		    updated_at = $3
		WHERE id = $1 AND status = $4
	`

	res, err := r.db.ExecContext(ctx, query, id, models.MessageStatusSent, sentAt, models.MessageStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark message %s sent: %w", id, err)
	}

	return expectTransition(res, id)
}

// MarkFailed moves a pending message to failed with reason.
func (r *messageRepository) MarkFailed(ctx context.Context, id, reason string) error {
	query := `
		UPDATE scheduled_messages
		SET status = $2,
		    error = $3,
		    updated_at = $4
		WHERE id = $1 AND status = $5
	`

	res, err := r.db.ExecContext(ctx, query, id, models.MessageStatusFailed, reason, time.Now(), models.MessageStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark message %s failed: %w", id, err)
	}

	return expectTransition(res, id)
}

func expectTransition(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("message %s: %w", id, ErrStatusConflict)
	}
	return nil
}

// GetMessages lists messages, most recently updated first. A nil status
// lists every status.
func (r *messageRepository) GetMessages(ctx context.Context, status *models.MessageStatus, offset, limit int) ([]*models.ScheduledMessage, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM scheduled_messages
		WHERE ($1::text IS NULL OR status = $1::text)
		ORDER BY updated_at DESC, id ASC
		LIMIT $2 OFFSET $3`

	var messages []*models.ScheduledMessage
	err := sqlx.SelectContext(ctx, r.db, &messages, query, statusArg(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	return messages, nil
}

func (r *messageRepository) CountMessages(ctx context.Context, status *models.MessageStatus) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM scheduled_messages WHERE ($1::text IS NULL OR status = $1::text)`

	err := sqlx.GetContext(ctx, r.db, &count, query, statusArg(status))
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}

	return count, nil
}

// CreateMessage inserts msg as pending, filling id and timestamps when unset.
func (r *messageRepository) CreateMessage(ctx context.Context, msg *models.ScheduledMessage) error {
	now := time.Now()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.ScheduledAt.IsZero() {
		msg.ScheduledAt = now
	}
	if msg.Metadata == nil {
		msg.Metadata = models.Metadata{}
	}
	msg.Status = models.MessageStatusPending
	msg.CreatedAt = now
	msg.UpdatedAt = now

	query := `
		INSERT INTO scheduled_messages (id, account_id, recipient_phone, recipient_name, content, subject,
			channel, metadata, scheduled_at, status, created_at, updated_at)
		VALUES (:id, :account_id, :recipient_phone, :recipient_name, :content, :subject,
			:channel, :metadata, :scheduled_at, :status, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, r.db, query, msg); err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	return nil
}

func statusArg(status *models.MessageStatus) sql.NullString {
	if status == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*status), Valid: true}
}
