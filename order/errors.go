package order

import "errors"

var (
	ErrNotFound      = errors.New("order not found")
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrInvalidExpiry = errors.New("expiry must be after creation time")
	ErrBadDirection  = errors.New("unknown swap direction")
	ErrNoMaker       = errors.New("maker identity is empty")
	ErrNoDigests     = errors.New("digest set is empty")

	ErrIllegalTransition = errors.New("illegal order state transition")
	ErrOrderTerminal     = errors.New("order is in a terminal state")
	ErrEscrowAlreadySet  = errors.New("escrow address is already recorded")

	ErrInsertOrder = errors.New("failed to insert order in orderdb")
	ErrUpdateOrder = errors.New("failed to update order in orderdb")
	ErrGetOrder    = errors.New("failed to get order from orderdb")
)
