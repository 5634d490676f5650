package domain

import "errors"

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientPosition = errors.New("insufficient position")
	ErrPositionNotFound     = errors.New("position not found")
	ErrIntentMismatch       = errors.New("order intent does not match existing position direction")
	ErrVersionConflict      = errors.New("account modified by another transaction")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrMarginRestricted     = errors.New("withdrawal restricted by maintenance margin")
)
