// Package testutil provides shared test fixtures: an in-memory database
// with migrations applied and a seeded chart of accounts, plus builders for
// the proposals most tests start from.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nordbooks/autopost/internal/model"
	"github.com/nordbooks/autopost/internal/service"
	"github.com/nordbooks/autopost/internal/storage"
)

// TestTenant is the tenant id used by all fixtures.
const TestTenant = "tenant-1"

// TestDB wraps an in-memory storage for one test.
type TestDB struct {
	Storage service.Storage
	t       *testing.T
}

// SetupTestDB creates a migrated in-memory database seeded with the
// standard test chart of accounts. Cleanup is registered automatically.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	seedChart(t, store)

	t.Cleanup(func() {
		if closeErr := store.Close(); closeErr != nil {
			t.Logf("Failed to close store: %v", closeErr)
		}
	})

	return &TestDB{Storage: store, t: t}
}

// seedChart loads the accounts and tax codes the fixture proposals
// reference. Numbers follow the Norwegian standard chart.
func seedChart(t *testing.T, store service.Storage) {
	t.Helper()
	ctx := context.Background()

	accounts := []model.Account{
		{TenantID: TestTenant, Number: "1500", Name: "Accounts receivable", Type: model.AccountAsset, IsActive: true},
		{TenantID: TestTenant, Number: "2400", Name: "Accounts payable", Type: model.AccountLiability, IsActive: true},
		{TenantID: TestTenant, Number: "2700", Name: "Output VAT", Type: model.AccountLiability, IsActive: true},
		{TenantID: TestTenant, Number: "2740", Name: "Input VAT", Type: model.AccountAsset, IsActive: true},
		{TenantID: TestTenant, Number: "3000", Name: "Sales revenue", Type: model.AccountRevenue, IsActive: true},
		{TenantID: TestTenant, Number: "6000", Name: "Depreciation", Type: model.AccountExpense, IsActive: true},
		{TenantID: TestTenant, Number: "6300", Name: "Rent of premises", Type: model.AccountExpense, IsActive: true},
		{TenantID: TestTenant, Number: "6540", Name: "Inventory items", Type: model.AccountExpense, IsActive: true},
	}
	for i := range accounts {
		if err := store.SaveAccount(ctx, &accounts[i]); err != nil {
			t.Fatalf("failed to seed account %s: %v", accounts[i].Number, err)
		}
	}

	taxCodes := []model.TaxCode{
		{TenantID: TestTenant, Code: "25", Description: "Input VAT 25%", Account: "2740", Rate: decimal.NewFromFloat(0.25), IsActive: true},
		{TenantID: TestTenant, Code: "3", Description: "Output VAT 25%", Account: "2700", Rate: decimal.NewFromFloat(0.25), IsActive: true},
		{TenantID: TestTenant, Code: "0", Description: "No VAT", Account: "", Rate: decimal.Zero, IsActive: true},
	}
	for i := range taxCodes {
		if err := store.SaveTaxCode(ctx, &taxCodes[i]); err != nil {
			t.Fatalf("failed to seed tax code %s: %v", taxCodes[i].Code, err)
		}
	}
}

// ProposalOption mutates a fixture proposal.
type ProposalOption func(*model.Proposal)

// WithSignals sets both classifier signals.
func WithSignals(extraction, classifier float64) ProposalOption {
	return func(p *model.Proposal) {
		p.ExtractionQuality = &extraction
		p.ClassifierConfidence = &classifier
	}
}

// WithoutSignals clears both classifier signals.
func WithoutSignals() ProposalOption {
	return func(p *model.Proposal) {
		p.ExtractionQuality = nil
		p.ClassifierConfidence = nil
	}
}

// WithCounterparty sets the counterparty name.
func WithCounterparty(name string) ProposalOption {
	return func(p *model.Proposal) { p.Counterparty = name }
}

// WithAccount sets the candidate account.
func WithAccount(number string) ProposalOption {
	return func(p *model.Proposal) { p.CandidateAccount = number }
}

// WithAmounts sets net, tax and total from string literals.
func WithAmounts(net, tax, total string) ProposalOption {
	return func(p *model.Proposal) {
		p.AmountExclTax = decimal.RequireFromString(net)
		p.TaxAmount = decimal.RequireFromString(tax)
		p.TotalAmount = decimal.RequireFromString(total)
	}
}

// WithSourceID sets the upstream document id used for duplicate detection.
func WithSourceID(id string) ProposalOption {
	return func(p *model.Proposal) { p.SourceID = id }
}

// WithKind sets the posting direction.
func WithKind(kind model.ProposalKind) ProposalOption {
	return func(p *model.Proposal) { p.Kind = kind }
}

// NewProposal returns a complete, high-confidence purchase proposal: a
// rent invoice of 10000 net plus 2500 VAT, candidate account 6300.
func NewProposal(opts ...ProposalOption) *model.Proposal {
	extraction := 0.95
	classifier := 0.90
	p := &model.Proposal{
		ID:                   uuid.NewString(),
		TenantID:             TestTenant,
		Source:               model.SourceVendorInvoice,
		SourceID:             uuid.NewString(),
		Kind:                 model.KindPurchase,
		Counterparty:         "Oslo Eiendom AS",
		Currency:             "NOK",
		Description:          "Office rent, August",
		DocumentDate:         time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		CandidateAccount:     "6300",
		TaxCode:              "25",
		AmountExclTax:        decimal.RequireFromString("10000.00"),
		TaxAmount:            decimal.RequireFromString("2500.00"),
		TotalAmount:          decimal.RequireFromString("12500.00"),
		ExtractionQuality:    &extraction,
		ClassifierConfidence: &classifier,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewPattern returns an active learned pattern matching the default
// fixture proposal, with the given observation counts.
func NewPattern(hits, applications int64) *model.LearnedPattern {
	return &model.LearnedPattern{
		ID:             uuid.NewString(),
		TenantID:       TestTenant,
		Counterparty:   "Oslo Eiendom AS",
		TriggerAccount: "6300",
		Action:         model.PatternAction{Account: "6300", TaxCode: "25"},
		Hits:           hits,
		Applications:   applications,
		Version:        1,
		IsActive:       true,
	}
}
