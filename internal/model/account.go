package model

import "github.com/shopspring/decimal"

// AccountType classifies a ledger account.
type AccountType string

// Account type constants.
const (
	AccountAsset     AccountType = "asset"
	AccountLiability AccountType = "liability"
	AccountEquity    AccountType = "equity"
	AccountRevenue   AccountType = "revenue"
	AccountExpense   AccountType = "expense"
)

// Account is one entry in a tenant's chart of accounts.
type Account struct {
	TenantID string      `yaml:"-" json:"tenant_id"`
	Number   string      `yaml:"number" json:"number"`
	Name     string      `yaml:"name" json:"name"`
	Type     AccountType `yaml:"type" json:"type"`
	IsActive bool        `yaml:"-" json:"is_active"`
}

// TaxCode is a tenant-configured VAT/tax code with its rate and the
// account tax amounts post to.
type TaxCode struct {
	TenantID    string          `yaml:"-" json:"tenant_id"`
	Code        string          `yaml:"code" json:"code"`
	Description string          `yaml:"description" json:"description"`
	Account     string          `yaml:"account" json:"account"`
	Rate        decimal.Decimal `yaml:"rate" json:"rate"`
	IsActive    bool            `yaml:"-" json:"is_active"`
}
