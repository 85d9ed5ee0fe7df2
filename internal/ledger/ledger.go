// Package ledger is the append-only store of posted vouchers. Vouchers are
// never updated or deleted; the only correction mechanism is a reversal
// voucher that negates the original.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nordbooks/autopost/internal/common"
	"github.com/nordbooks/autopost/internal/model"
	"github.com/nordbooks/autopost/internal/service"
)

// Ledger posts and reverses vouchers atomically.
type Ledger struct {
	store service.Storage
}

// New creates a ledger over the given storage.
func New(store service.Storage) *Ledger {
	return &Ledger{store: store}
}

// Post appends a voucher and its decision log entry in one atomic
// transaction; either both are visible afterwards or neither is. The log
// entry is written first so the log is never behind the data it describes.
// Posting the same source reference twice returns the already-posted
// voucher, which makes caller retries idempotent.
func (l *Ledger) Post(ctx context.Context, voucher *model.Voucher, entry *model.DecisionLogEntry) (*model.Voucher, error) {
	if voucher == nil {
		return nil, fmt.Errorf("%w: nil voucher", common.ErrInvalidProposal)
	}

	if voucher.SourceID != "" {
		existing, err := l.store.GetVoucherBySource(ctx, voucher.TenantID, voucher.SourceType, voucher.SourceID)
		if err != nil && !errors.Is(err, common.ErrVoucherNotFound) {
			return nil, err
		}
		if existing != nil {
			slog.Info("Duplicate source reference, returning existing voucher",
				"tenant", voucher.TenantID,
				"source_type", voucher.SourceType,
				"source_id", voucher.SourceID,
				"voucher", existing.ID)
			return existing, nil
		}
	}

	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := l.PostInTx(ctx, tx, voucher, entry); err != nil {
		// A race loser passes the pre-check but hits the unique source
		// index; resolving it to the winner's voucher keeps retries
		// idempotent. Rollback first: the transaction holds the
		// connection the re-read needs.
		if voucher.SourceID != "" && errors.Is(err, common.ErrDuplicateEntry) {
			_ = tx.Rollback()
			existing, readErr := l.store.GetVoucherBySource(ctx, voucher.TenantID, voucher.SourceType, voucher.SourceID)
			if readErr == nil {
				slog.Info("Lost posting race, returning existing voucher",
					"tenant", voucher.TenantID,
					"source_type", voucher.SourceType,
					"source_id", voucher.SourceID,
					"voucher", existing.ID)
				return existing, nil
			}
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit posting: %w", err)
	}

	slog.Info("Posted voucher",
		"tenant", voucher.TenantID,
		"voucher", voucher.ID,
		"series", voucher.Series,
		"number", voucher.Number,
		"created_by", voucher.CreatedBy)
	return voucher, nil
}

// PostInTx appends a voucher and its log entry inside a caller-owned
// transaction, so a review resolution and its posting commit together. The
// series number is assigned here, under the transaction's writer lock.
func (l *Ledger) PostInTx(ctx context.Context, tx service.Transaction, voucher *model.Voucher, entry *model.DecisionLogEntry) error {
	number, err := tx.NextVoucherNumber(ctx, voucher.TenantID, voucher.Series)
	if err != nil {
		return err
	}
	voucher.Number = number
	voucher.Status = model.VoucherStatusPosted

	if entry != nil {
		if err := tx.AppendDecisionLog(ctx, entry); err != nil {
			return err
		}
	}
	return tx.SaveVoucher(ctx, voucher)
}

// Reverse creates a new voucher whose lines are the exact negation
// (debit/credit swapped) of the original's, links the pair, and flags the
// original as reversed. The original row and its lines are never altered
// beyond that flag.
func (l *Ledger) Reverse(ctx context.Context, tenantID, voucherID, actorID, reason string) (*model.Voucher, error) {
	if reason == "" {
		return nil, common.NewUserError("reversal reason is required", common.ErrInvalidConfig)
	}

	original, err := l.store.GetVoucher(ctx, tenantID, voucherID)
	if err != nil {
		return nil, err
	}
	if original.IsReversed {
		return nil, fmt.Errorf("%w: voucher %s", common.ErrAlreadyReversed, voucherID)
	}

	reversal := &model.Voucher{
		ID:          uuid.NewString(),
		TenantID:    original.TenantID,
		Series:      original.Series,
		Date:        time.Now().UTC(),
		Currency:    original.Currency,
		Description: fmt.Sprintf("Reversal of %s-%d: %s", original.Series, original.Number, reason),
		SourceType:  model.SourceCorrection,
		SourceID:    original.ID,
		CreatedBy:   actorID,
		Status:      model.VoucherStatusPosted,
		Reverses:    original.ID,
	}
	for _, line := range original.Lines {
		reversal.Lines = append(reversal.Lines, model.VoucherLine{
			Account:     line.Account,
			TaxCode:     line.TaxCode,
			Description: line.Description,
			Debit:       line.Credit,
			Credit:      line.Debit,
			TaxAmount:   line.TaxAmount,
		})
	}

	input, _ := json.Marshal(map[string]string{"voucher_id": original.ID, "reason": reason})

	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	number, err := tx.NextVoucherNumber(ctx, reversal.TenantID, reversal.Series)
	if err != nil {
		return nil, err
	}
	reversal.Number = number

	entry := &model.DecisionLogEntry{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		SubjectType: "voucher",
		SubjectID:   original.ID,
		Action:      model.ActionReversed,
		ActorType:   model.ActorHuman,
		ActorID:     actorID,
		Input:       input,
	}
	if err := tx.AppendDecisionLog(ctx, entry); err != nil {
		return nil, err
	}
	if err := tx.SaveVoucher(ctx, reversal); err != nil {
		return nil, err
	}
	if err := tx.MarkVoucherReversed(ctx, tenantID, original.ID, reversal.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reversal: %w", err)
	}

	slog.Info("Reversed voucher",
		"tenant", tenantID,
		"original", original.ID,
		"reversal", reversal.ID,
		"actor", actorID)
	return reversal, nil
}

// List returns posted vouchers by tenant, period and optionally account.
func (l *Ledger) List(ctx context.Context, filter service.VoucherFilter) ([]model.Voucher, error) {
	return l.store.ListVouchers(ctx, filter)
}
