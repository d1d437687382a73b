package models

import "time"

type TransactionKind string

const (
	TransactionCharge  TransactionKind = "charge"
	TransactionUsage   TransactionKind = "usage"
	TransactionRefund  TransactionKind = "refund"
	TransactionPenalty TransactionKind = "penalty"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// Transaction is an append-only ledger event. Amount is a magnitude; its
// sign comes from Kind.
type Transaction struct {
	ID          string            `db:"id" json:"id"`
	AccountID   string            `db:"account_id" json:"account_id"`
	Kind        TransactionKind   `db:"kind" json:"kind"`
	Amount      int64             `db:"amount" json:"amount"`
	Status      TransactionStatus `db:"status" json:"status"`
	Description string            `db:"description" json:"description"`
	Metadata    Metadata          `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
}
