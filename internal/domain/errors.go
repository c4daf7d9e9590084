package domain

import (
	"errors"
	"fmt"
)

var (
	// Money errors
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrInvalidCurrency  = errors.New("invalid currency code")
	ErrCurrencyMismatch = errors.New("amounts have different currencies")

	// Journal errors
	ErrTooFewPostings    = errors.New("journal entry requires at least two postings")
	ErrUnbalancedJournal = errors.New("journal entry debits do not equal credits")
	ErrDuplicateJournal  = errors.New("journal entry already recorded")
	ErrUnknownDirection  = errors.New("unknown posting direction")
	ErrUnknownTxType     = errors.New("unknown transaction type")

	// Payment errors
	ErrInvalidTransition    = errors.New("illegal state transition")
	ErrOrderLinesMismatch   = errors.New("order lines do not sum to total amount")
	ErrMissingPSPReference  = errors.New("psp reference is required for this status")
	ErrPaymentNotFound      = errors.New("payment intent not found")
	ErrPaymentOrderNotFound = errors.New("payment order not found")
	ErrMaxRetriesExceeded   = errors.New("payment order exceeded maximum capture retries")
)

func transitionError(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

