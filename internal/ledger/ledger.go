// Package ledger folds an account's append-only transaction history into
// spendable balances. There is no stored running balance; every balance is
// recomputed from the completed transactions it is given.
package ledger

import (
	"github.com/popeskul/insdr-dispatcher/internal/metadata"
	"github.com/popeskul/insdr-dispatcher/internal/models"
)

// Usage transaction types recorded in the transactionType metadata flag.
const (
	UsageAdvertising = "advertising"
	UsagePoint       = "point"
)

// Metadata keys written on ledger rows created by the dispatcher.
const (
	MetaTransactionType = "transactionType"
	MetaMessageID       = "messageId"
	MetaChannel         = "channel"
)

// Rule decides the signed contribution of a completed transaction.
type Rule func(tx models.Transaction, flags *metadata.TransactionFlags) int64

// Fold sums the contributions of completed transactions under rule and
// clamps the result at zero. Input order does not matter.
func Fold(txs []models.Transaction, rule Rule) int64 {
	var total int64
	for _, tx := range txs {
		if tx.Status != models.TransactionStatusCompleted {
			continue
		}
		total += rule(tx, flagsOf(tx))
	}
	if total < 0 {
		return 0
	}
	return total
}

// Raw is Fold without the clamp, for reconciliation against the clamped view.
func Raw(txs []models.Transaction, rule Rule) int64 {
	var total int64
	for _, tx := range txs {
		if tx.Status == models.TransactionStatusCompleted {
			total += rule(tx, flagsOf(tx))
		}
	}
	return total
}

// AdvertisingRule counts non-reward charges and refunds as credit, and
// advertising usage and penalties as debit. Usage rows without a
// transactionType predate the flag and are advertising usage. A charge
// whose reward flag is unreadable is not credit; a usage whose type is
// unreadable is debit.
func AdvertisingRule(tx models.Transaction, flags *metadata.TransactionFlags) int64 {
	switch tx.Kind {
	case models.TransactionCharge:
		if flags.IsReward || flags.RewardInvalid {
			return 0
		}
		return tx.Amount
	case models.TransactionRefund:
		return tx.Amount
	case models.TransactionUsage:
		if flags.TypeInvalid || flags.TransactionType == "" || flags.TransactionType == UsageAdvertising {
			return -tx.Amount
		}
		return 0
	case models.TransactionPenalty:
		return -tx.Amount
	default:
		return 0
	}
}

// PointRule counts reward charges as credit and point redemptions as debit,
// with the same treatment of unreadable flags as AdvertisingRule.
func PointRule(tx models.Transaction, flags *metadata.TransactionFlags) int64 {
	switch tx.Kind {
	case models.TransactionCharge:
		if flags.IsReward && !flags.RewardInvalid {
			return tx.Amount
		}
	case models.TransactionUsage:
		if flags.TypeInvalid || flags.TransactionType == UsagePoint {
			return -tx.Amount
		}
	}
	return 0
}

// AdvertisingBalance is the balance usable to pay for message sends.
func AdvertisingBalance(txs []models.Transaction) int64 {
	return Fold(txs, AdvertisingRule)
}

// PointBalance is the reward point balance.
func PointBalance(txs []models.Transaction) int64 {
	return Fold(txs, PointRule)
}

// UsageMetadata builds the metadata stored on an advertising debit.
func UsageMetadata(messageID string, channel models.ChannelType) models.Metadata {
	return models.Metadata{
		MetaTransactionType: UsageAdvertising,
		MetaMessageID:       messageID,
		MetaChannel:         string(channel),
	}
}

// Unreadable returns the completed transactions whose ledger flags could
// not be decoded, with the decode error of each.
func Unreadable(txs []models.Transaction) map[string]error {
	var out map[string]error
	for _, tx := range txs {
		if tx.Status != models.TransactionStatusCompleted {
			continue
		}
		if _, err := metadata.DecodeTransaction(tx.Metadata); err != nil {
			if out == nil {
				out = make(map[string]error)
			}
			out[tx.ID] = err
		}
	}
	return out
}

func flagsOf(tx models.Transaction) *metadata.TransactionFlags {
	// The flags are usable even when err is set; unreadable ones are marked.
	flags, _ := metadata.DecodeTransaction(tx.Metadata)
	return flags
}
