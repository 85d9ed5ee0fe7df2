// Package storage provides the data persistence layer for the posting
// pipeline.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nordbooks/autopost/internal/model"
	"github.com/shopspring/decimal"
)

// Validation errors.
var (
	ErrNilContext     = errors.New("context cannot be nil")
	ErrEmptyString    = errors.New("string parameter cannot be empty")
	ErrNilParameter   = errors.New("parameter cannot be nil")
	ErrInvalidVoucher = errors.New("invalid voucher")
	ErrInvalidItem    = errors.New("invalid review queue item")
	ErrInvalidPattern = errors.New("invalid learned pattern")
	ErrInvalidEntry   = errors.New("invalid decision log entry")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateVoucher checks the structural invariants enforced before any
// voucher row is written.
func validateVoucher(v *model.Voucher) error {
	if v == nil {
		return fmt.Errorf("%w: voucher", ErrNilParameter)
	}
	if v.ID == "" || v.TenantID == "" || v.Series == "" {
		return fmt.Errorf("%w: missing id, tenant or series", ErrInvalidVoucher)
	}
	if len(v.Lines) < 2 {
		return fmt.Errorf("%w: needs at least two lines", ErrInvalidVoucher)
	}
	for i, line := range v.Lines {
		hasDebit := !line.Debit.IsZero()
		hasCredit := !line.Credit.IsZero()
		if hasDebit == hasCredit {
			return fmt.Errorf("%w: line %d must have exactly one of debit or credit", ErrInvalidVoucher, i)
		}
		if line.Debit.Cmp(decimal.Zero) < 0 || line.Credit.Cmp(decimal.Zero) < 0 {
			return fmt.Errorf("%w: line %d has a negative amount", ErrInvalidVoucher, i)
		}
	}
	if !v.Balanced() {
		return fmt.Errorf("%w: debits %s != credits %s", ErrInvalidVoucher,
			v.TotalDebit().String(), v.TotalCredit().String())
	}
	return nil
}

// validateReviewItem checks the fields required before queueing.
func validateReviewItem(item *model.ReviewQueueItem) error {
	if item == nil {
		return fmt.Errorf("%w: item", ErrNilParameter)
	}
	if item.ID == "" || item.TenantID == "" {
		return fmt.Errorf("%w: missing id or tenant", ErrInvalidItem)
	}
	if item.Status == "" {
		return fmt.Errorf("%w: missing status", ErrInvalidItem)
	}
	return nil
}

// validatePattern checks the trigger fields a pattern needs to match.
func validatePattern(p *model.LearnedPattern) error {
	if p == nil {
		return fmt.Errorf("%w: pattern", ErrNilParameter)
	}
	if p.ID == "" || p.Counterparty == "" || p.TriggerAccount == "" {
		return fmt.Errorf("%w: missing id or trigger", ErrInvalidPattern)
	}
	if p.Action.Account == "" {
		return fmt.Errorf("%w: missing action account", ErrInvalidPattern)
	}
	return nil
}

// validateLogEntry checks decision log entry fields.
func validateLogEntry(e *model.DecisionLogEntry) error {
	if e == nil {
		return fmt.Errorf("%w: entry", ErrNilParameter)
	}
	if e.ID == "" || e.TenantID == "" || e.SubjectID == "" || e.Action == "" {
		return fmt.Errorf("%w: missing id, tenant, subject or action", ErrInvalidEntry)
	}
	return nil
}
