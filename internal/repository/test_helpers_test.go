package repository_test

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/popeskul/insdr-dispatcher/internal/models"
)

func insertTestAccount(db *sql.DB, phone *string) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(`INSERT INTO accounts (id, name, phone) VALUES ($1, $2, $3)`, id, "Test account", phone)
	if err != nil {
		return "", fmt.Errorf("failed to insert test account: %w", err)
	}
	return id, nil
}

func insertTestMessage(db *sql.DB, accountID, content string, status models.MessageStatus, scheduledAt time.Time) (string, error) {
	id := uuid.NewString()
	query := `
		INSERT INTO scheduled_messages (id, account_id, recipient_phone, content, status, scheduled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`

	_, err := db.Exec(query, id, accountID, "010-1234-5678", content, status, scheduledAt, scheduledAt)
	if err != nil {
		return "", fmt.Errorf("failed to insert test message: %w", err)
	}

	return id, nil
}

func insertBulkTestMessages(db *sql.DB, accountID string, count int, status models.MessageStatus, base time.Time, step time.Duration) ([]string, error) {
	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		id, err := insertTestMessage(db, accountID, fmt.Sprintf("message %d", i), status, base.Add(time.Duration(i)*step))
		if err != nil {
			return nil, fmt.Errorf("failed to insert message %d: %w", i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func insertTestTransaction(db *sql.DB, accountID string, kind models.TransactionKind, amount int64, status models.TransactionStatus, meta string) error {
	if meta == "" {
		meta = "{}"
	}
	_, err := db.Exec(`
		INSERT INTO transactions (id, account_id, kind, amount, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)`,
		uuid.NewString(), accountID, kind, amount, status, meta)
	if err != nil {
		return fmt.Errorf("failed to insert test transaction: %w", err)
	}
	return nil
}

func ptr(s string) *string {
	return &s
}
