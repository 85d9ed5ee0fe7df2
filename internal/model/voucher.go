package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// VoucherStatus is the lifecycle state of a voucher.
type VoucherStatus string

// Voucher status constants. A posted voucher is immutable; the only
// follow-on state change is the is_reversed flag set by a reversal.
const (
	VoucherStatusPosted VoucherStatus = "posted"
)

// CreatorAutomation is the creator identity recorded on vouchers posted
// without human involvement.
const CreatorAutomation = "automation"

// Voucher is one balanced double-entry posting (bilag). Once posted it is
// immutable; corrections happen through reversal vouchers.
type Voucher struct {
	Date        time.Time     `json:"date"`
	CreatedAt   time.Time     `json:"created_at"`
	ID          string        `json:"id"`
	TenantID    string        `json:"tenant_id"`
	Series      string        `json:"series"`
	Currency    string        `json:"currency"`
	Description string        `json:"description"`
	SourceID    string        `json:"source_id"`
	CreatedBy   string        `json:"created_by"` // "automation" or a human resolver id
	Reverses    string        `json:"reverses,omitempty"`
	ReversedBy  string        `json:"reversed_by,omitempty"`
	SourceType  SourceType    `json:"source_type"`
	Status      VoucherStatus `json:"status"`
	Lines       []VoucherLine `json:"lines"`
	Number      int64         `json:"number"`
	IsReversed  bool          `json:"is_reversed"`
}

// VoucherLine is a single debit or credit row belonging to exactly one voucher.
type VoucherLine struct {
	Account     string          `json:"account"`
	TaxCode     string          `json:"tax_code,omitempty"`
	Description string          `json:"description,omitempty"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	ID          int64           `json:"id"`
}

// TotalDebit sums the debit side of all lines.
func (v *Voucher) TotalDebit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range v.Lines {
		total = total.Add(l.Debit)
	}
	return total
}

// TotalCredit sums the credit side of all lines.
func (v *Voucher) TotalCredit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range v.Lines {
		total = total.Add(l.Credit)
	}
	return total
}

// Balanced reports whether debits equal credits.
func (v *Voucher) Balanced() bool {
	return v.TotalDebit().Equal(v.TotalCredit())
}
