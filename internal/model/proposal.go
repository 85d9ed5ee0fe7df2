// Package model defines the core domain models used throughout the application.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceType identifies where a booking proposal originated.
type SourceType string

// Source type constants.
const (
	SourceVendorInvoice   SourceType = "vendor_invoice"
	SourceBankTransaction SourceType = "bank_transaction"
	SourceManual          SourceType = "manual"
	SourceCorrection      SourceType = "correction"
)

// ProposalKind distinguishes the posting direction of a proposal.
type ProposalKind string

// Proposal kind constants.
const (
	KindPurchase ProposalKind = "purchase"
	KindSale     ProposalKind = "sale"
)

// Proposal is the unit of work entering the posting pipeline: a structured
// booking suggestion produced by upstream extraction/classification.
// It is transient; only its outcome (voucher or review item) is persisted.
type Proposal struct {
	DocumentDate     time.Time       `json:"document_date"`
	ID               string          `json:"id"`
	TenantID         string          `json:"tenant_id"`
	SourceID         string          `json:"source_id"` // upstream document id, used for duplicate detection
	Counterparty     string          `json:"counterparty"`
	Currency         string          `json:"currency"`
	Description      string          `json:"description"`
	CandidateAccount string          `json:"candidate_account"`
	TaxCode          string          `json:"tax_code"`
	Source           SourceType      `json:"source"`
	Kind             ProposalKind    `json:"kind"`
	AmountExclTax    decimal.Decimal `json:"amount_excl_tax"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	TotalAmount      decimal.Decimal `json:"total_amount"`

	// Raw signals from the upstream classifier; nil means absent.
	ClassifierConfidence *float64 `json:"classifier_confidence,omitempty"` // 0.0-1.0
	ExtractionQuality    *float64 `json:"extraction_quality,omitempty"`    // 0.0-1.0
}

// HasAmounts reports whether the proposal carries the amounts a voucher needs.
func (p *Proposal) HasAmounts() bool {
	return !p.TotalAmount.IsZero()
}

// LineOverride replaces the candidate account/tax mapping for one voucher
// line during a human correction.
type LineOverride struct {
	Account string          `json:"account"`
	TaxCode string          `json:"tax_code"`
	Amount  decimal.Decimal `json:"amount"`
}
