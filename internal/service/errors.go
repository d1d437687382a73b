package service

import "errors"

var (
	// ErrCycleInProgress is returned when another dispatch cycle holds the
	// cycle lock.
	ErrCycleInProgress = errors.New("dispatch cycle already in progress")
	// ErrBalanceUnavailable means the ledger could not be read. Callers must
	// treat the balance as zero.
	ErrBalanceUnavailable = errors.New("balance could not be verified")
	ErrAccountNotFound    = errors.New("account not found")
)

// Failure reasons recorded on messages.
const (
	reasonInsufficientFunds  = "insufficient funds"
	reasonBalanceUnavailable = "insufficient funds: balance could not be verified"
)
