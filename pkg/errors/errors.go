// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Ledger errors
var (
	ErrZeroAmount          = errors.New("amount must be positive")
	ErrCapacityExceeded    = errors.New("pool capacity exceeded")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnauthorized        = errors.New("caller not authorized")
	ErrNoPendingRequest    = errors.New("no pending withdrawal request")
	ErrAlreadyRequested    = errors.New("withdrawal already requested")
	ErrRoundOutOfOrder     = errors.New("round out of order")

	// Lookup errors
	ErrAccountNotFound  = errors.New("account not found")
	ErrRoundNotFound    = errors.New("round not found")
	ErrOperatorNotFound = errors.New("operator not found")

	// Request errors
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateRequest   = errors.New("duplicate request")
	ErrOperatorExists     = errors.New("operator already exists")
)

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// New returns a new error with the given text.
func New(text string) error {
	return errors.New(text)
}
