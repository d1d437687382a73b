package repository

import "errors"

var (
	ErrNotFound = errors.New("record not found")
	// ErrStatusConflict means the message was no longer pending when a
	// terminal transition was attempted.
	ErrStatusConflict = errors.New("message is no longer pending")
	// ErrAlreadyClaimed means another dispatch cycle holds the message.
	ErrAlreadyClaimed = errors.New("message is already claimed")
)
