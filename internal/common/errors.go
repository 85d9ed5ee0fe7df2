// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Posting errors. These indicate a data problem upstream and are never
	// retried automatically.
	ErrInvalidProposal = errors.New("invalid proposal")
	ErrAccountNotFound = errors.New("account not found")
	ErrTaxCodeNotFound = errors.New("tax code not found")

	// Concurrency conflicts, expected under races. The losing caller's
	// operation is a no-op.
	ErrAlreadyResolved = errors.New("review item already resolved")
	ErrStaleWrite      = errors.New("stale write, record modified concurrently")

	// Ledger errors.
	ErrAlreadyReversed = errors.New("voucher already reversed")
	ErrVoucherNotFound = errors.New("voucher not found")

	// Upstream errors.
	ErrClassifierUnavailable = errors.New("classifier unavailable")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UnbalancedError is the invariant-violation error returned when a voucher's
// debits and credits do not net to zero. It carries the computed discrepancy
// so a human resolver sees "short by 12.50" rather than a generic failure.
type UnbalancedError struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

func (e *UnbalancedError) Error() string {
	return fmt.Sprintf("unbalanced voucher: debits %s, credits %s, short by %s",
		e.Debit.StringFixed(2), e.Credit.StringFixed(2), e.Discrepancy().StringFixed(2))
}

// Discrepancy returns debits minus credits.
func (e *UnbalancedError) Discrepancy() decimal.Decimal {
	return e.Debit.Sub(e.Credit)
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{UserMessage: userMessage, Err: err}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrClassifierUnavailable) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
