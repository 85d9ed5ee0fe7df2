// Package voucher maps booking proposals to balanced double-entry vouchers.
// Every invariant (account existence, conservation of value, one-sided
// lines, minor-unit precision) is checked here before anything reaches the
// ledger.
package voucher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nordbooks/autopost/internal/common"
	"github.com/nordbooks/autopost/internal/model"
	"github.com/nordbooks/autopost/internal/service"
)

// Builder turns proposals into vouchers using deterministic tenant account
// rules: expense debit + tax debit + payable credit for a purchase, the
// inverse for a sale.
type Builder struct {
	catalog service.Catalog
}

// NewBuilder creates a builder backed by the given account catalog.
func NewBuilder(catalog service.Catalog) *Builder {
	return &Builder{catalog: catalog}
}

// Build maps a proposal to a balanced voucher. Overrides, when present,
// replace the candidate account/tax mapping (human corrections). The
// returned voucher has no series number; the ledger assigns one inside the
// posting transaction.
func (b *Builder) Build(ctx context.Context, proposal *model.Proposal, settings *model.TenantSettings, overrides []model.LineOverride) (*model.Voucher, error) {
	if err := validateProposal(proposal); err != nil {
		return nil, err
	}

	lines, err := b.buildLines(ctx, proposal, settings, overrides)
	if err != nil {
		return nil, err
	}

	date := proposal.DocumentDate
	if date.IsZero() {
		date = time.Now().UTC()
	}

	currency := proposal.Currency
	if currency == "" {
		currency = settings.Currency
	}

	voucher := &model.Voucher{
		ID:          uuid.NewString(),
		TenantID:    proposal.TenantID,
		Series:      settings.VoucherSeries,
		Date:        date,
		Currency:    currency,
		Description: proposal.Description,
		SourceType:  proposal.Source,
		SourceID:    proposal.SourceID,
		CreatedBy:   model.CreatorAutomation,
		Status:      model.VoucherStatusPosted,
		Lines:       lines,
	}

	if err := b.validate(ctx, voucher, settings); err != nil {
		return nil, err
	}
	return voucher, nil
}

func (b *Builder) buildLines(ctx context.Context, proposal *model.Proposal, settings *model.TenantSettings, overrides []model.LineOverride) ([]model.VoucherLine, error) {
	net := proposal.AmountExclTax
	tax := proposal.TaxAmount
	total := proposal.TotalAmount

	// The counterpart line always carries the full invoice amount.
	counterAccount := settings.Rules.TradePayables
	taxAccount := settings.Rules.TaxInputAccount
	if proposal.Kind == model.KindSale {
		counterAccount = settings.Rules.TradeReceivables
		taxAccount = settings.Rules.TaxOutputAccount
	}

	// A configured tax code may point tax postings at its own account.
	taxCode := proposal.TaxCode
	if taxCode != "" {
		tc, err := b.catalog.GetTaxCode(ctx, proposal.TenantID, taxCode)
		if err != nil {
			return nil, err
		}
		if tc.Account != "" {
			taxAccount = tc.Account
		}
	}

	var mainLines []model.VoucherLine
	if len(overrides) > 0 {
		for _, o := range overrides {
			if o.Account == "" {
				return nil, fmt.Errorf("%w: override without account", common.ErrInvalidProposal)
			}
			amount := o.Amount
			if amount.IsZero() {
				amount = net
			}
			mainLines = append(mainLines, model.VoucherLine{
				Account:     o.Account,
				TaxCode:     o.TaxCode,
				Description: proposal.Description,
				Debit:       amount,
			})
		}
	} else {
		mainLines = append(mainLines, model.VoucherLine{
			Account:     proposal.CandidateAccount,
			TaxCode:     taxCode,
			Description: proposal.Description,
			Debit:       net,
		})
	}

	if !tax.IsZero() {
		mainLines = append(mainLines, model.VoucherLine{
			Account:   taxAccount,
			TaxCode:   taxCode,
			Debit:     tax,
			TaxAmount: tax,
		})
	}

	counterLine := model.VoucherLine{
		Account:     counterAccount,
		Description: proposal.Counterparty,
		Credit:      total,
	}

	lines := append(mainLines, counterLine)

	// Sales invert every side.
	if proposal.Kind == model.KindSale {
		for i := range lines {
			lines[i].Debit, lines[i].Credit = lines[i].Credit, lines[i].Debit
		}
	}

	return lines, nil
}

// validate enforces, in order: known accounts, one-sided lines, minor-unit
// precision, and conservation of value. The unbalanced error carries the
// computed discrepancy for diagnostics.
func (b *Builder) validate(ctx context.Context, voucher *model.Voucher, settings *model.TenantSettings) error {
	for _, line := range voucher.Lines {
		exists, err := b.catalog.AccountExists(ctx, voucher.TenantID, line.Account)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: account %s", common.ErrAccountNotFound, line.Account)
		}

		if !line.Debit.IsZero() && !line.Credit.IsZero() {
			return fmt.Errorf("%w: line on account %s mixes debit and credit", common.ErrInvalidProposal, line.Account)
		}

		if line.Debit.Exponent() < -int32(settings.MinorUnits) || line.Credit.Exponent() < -int32(settings.MinorUnits) {
			return fmt.Errorf("%w: amount on account %s exceeds %d decimal places",
				common.ErrInvalidProposal, line.Account, settings.MinorUnits)
		}
	}

	debit := voucher.TotalDebit()
	credit := voucher.TotalCredit()
	if !debit.Equal(credit) {
		return &common.UnbalancedError{Debit: debit, Credit: credit}
	}
	return nil
}

func validateProposal(proposal *model.Proposal) error {
	if proposal == nil {
		return fmt.Errorf("%w: nil proposal", common.ErrInvalidProposal)
	}
	if proposal.TenantID == "" {
		return fmt.Errorf("%w: missing tenant", common.ErrInvalidProposal)
	}
	if proposal.TotalAmount.Sign() <= 0 {
		return fmt.Errorf("%w: missing or non-positive total amount", common.ErrInvalidProposal)
	}
	if proposal.AmountExclTax.Sign() < 0 || proposal.TaxAmount.Sign() < 0 {
		return fmt.Errorf("%w: negative amounts", common.ErrInvalidProposal)
	}
	if proposal.CandidateAccount == "" {
		return fmt.Errorf("%w: missing candidate account", common.ErrInvalidProposal)
	}
	if proposal.AmountExclTax.IsZero() {
		return fmt.Errorf("%w: missing net amount", common.ErrInvalidProposal)
	}
	return nil
}
