// Package models defines data structures used throughout the application.
package models

import (
	"database/sql"
	"time"

	"github.com/popeskul/insdr-dispatcher/internal/api"
)

type MessageStatus = api.MessageStatus

const (
	MessageStatusPending = api.Pending
	MessageStatusSent    = api.Sent
	MessageStatusFailed  = api.Failed
)

// ScheduledMessage is a unit of dispatch work. It leaves pending exactly once.
type ScheduledMessage struct {
	ID             string         `db:"id" json:"id"`
	AccountID      string         `db:"account_id" json:"account_id"`
	RecipientPhone string         `db:"recipient_phone" json:"recipient_phone"`
	RecipientName  sql.NullString `db:"recipient_name" json:"recipient_name,omitempty"`
	Content        string         `db:"content" json:"content"`
	Subject        sql.NullString `db:"subject" json:"subject,omitempty"`
	Channel        sql.NullString `db:"channel" json:"channel,omitempty"`
	Metadata       Metadata       `db:"metadata" json:"metadata,omitempty"`
	ScheduledAt    time.Time      `db:"scheduled_at" json:"scheduled_at"`
	Status         MessageStatus  `db:"status" json:"status"`
	SentAt         sql.NullTime   `db:"sent_at" json:"sent_at,omitempty"`
	Error          sql.NullString `db:"error" json:"error,omitempty"`
	ClaimedBy      sql.NullString `db:"claimed_by" json:"-"`
	ClaimedUntil   sql.NullTime   `db:"claimed_until" json:"-"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether the message has already left pending.
func (m *ScheduledMessage) IsTerminal() bool {
	return m.Status == MessageStatusSent || m.Status == MessageStatusFailed
}

// MessageLog is the audit row written once per successfully sent message.
type MessageLog struct {
	ID                string      `db:"id" json:"id"`
	MessageID         string      `db:"message_id" json:"message_id"`
	AccountID         string      `db:"account_id" json:"account_id"`
	RecipientPhone    string      `db:"recipient_phone" json:"recipient_phone"`
	Content           string      `db:"content" json:"content"`
	Channel           ChannelType `db:"channel" json:"channel"`
	Cost              int64       `db:"cost" json:"cost"`
	ProviderMessageID string      `db:"provider_message_id" json:"provider_message_id"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
}

// Account is the read-only profile used for callback number fallback.
type Account struct {
	ID        string         `db:"id" json:"id"`
	Name      string         `db:"name" json:"name"`
	Phone     sql.NullString `db:"phone" json:"phone,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}
