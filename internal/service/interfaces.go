// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/nordbooks/autopost/internal/model"
)

// VoucherFilter defines filtering options for ledger queries.
type VoucherFilter struct {
	PeriodStart *time.Time
	PeriodEnd   *time.Time
	TenantID    string
	Account     string
	Limit       int
	Offset      int
}

// ReviewFilter defines filtering options for review queue listings.
type ReviewFilter struct {
	TenantID string
	Limit    int
	Offset   int
}

// ScopeFilter selects pending review items for ApplyToSimilar. Empty fields
// match everything.
type ScopeFilter struct {
	Counterparty     string
	CandidateAccount string
}

// DecisionLogFilter selects decision log entries for the audit reader.
type DecisionLogFilter struct {
	TenantID    string
	SubjectType string
	SubjectID   string
	Limit       int
}

// Storage defines the contract for the persistence layer.
type Storage interface {
	// Voucher operations. SaveVoucher writes the header and all lines; the
	// ledger layer wraps it in a transaction together with the decision log
	// entry so nothing partial is ever visible.
	SaveVoucher(ctx context.Context, voucher *model.Voucher) error
	GetVoucher(ctx context.Context, tenantID, id string) (*model.Voucher, error)
	GetVoucherBySource(ctx context.Context, tenantID string, source model.SourceType, sourceID string) (*model.Voucher, error)
	ListVouchers(ctx context.Context, filter VoucherFilter) ([]model.Voucher, error)
	NextVoucherNumber(ctx context.Context, tenantID, series string) (int64, error)
	MarkVoucherReversed(ctx context.Context, tenantID, id, reversedBy string) error

	// Review queue operations. ResolveReviewItem performs the status
	// compare-and-set; a second resolution attempt fails with
	// common.ErrAlreadyResolved.
	CreateReviewItem(ctx context.Context, item *model.ReviewQueueItem) error
	GetReviewItem(ctx context.Context, tenantID, id string) (*model.ReviewQueueItem, error)
	ListPendingReviewItems(ctx context.Context, filter ReviewFilter) ([]model.ReviewQueueItem, error)
	ListPendingReviewItemsByScope(ctx context.Context, tenantID string, scope ScopeFilter) ([]model.ReviewQueueItem, error)
	ResolveReviewItem(ctx context.Context, item *model.ReviewQueueItem) error

	// Learned pattern operations. UpdateLearnedPattern is a version-column
	// compare-and-set; concurrent writers observe common.ErrStaleWrite.
	CreateLearnedPattern(ctx context.Context, pattern *model.LearnedPattern) error
	GetLearnedPattern(ctx context.Context, id string) (*model.LearnedPattern, error)
	GetActivePatterns(ctx context.Context, tenantID string) ([]model.LearnedPattern, error)
	FindPatternByTrigger(ctx context.Context, tenantID, counterparty, triggerAccount string) (*model.LearnedPattern, error)
	UpdateLearnedPattern(ctx context.Context, pattern *model.LearnedPattern) error
	DeactivateLearnedPattern(ctx context.Context, id string) error

	// Decision log operations. Entries are append-only and write-once.
	AppendDecisionLog(ctx context.Context, entry *model.DecisionLogEntry) error
	ListDecisionLog(ctx context.Context, filter DecisionLogFilter) ([]model.DecisionLogEntry, error)

	// Chart of accounts operations.
	SaveAccount(ctx context.Context, account *model.Account) error
	GetAccount(ctx context.Context, tenantID, number string) (*model.Account, error)
	ListAccounts(ctx context.Context, tenantID string) ([]model.Account, error)
	SaveTaxCode(ctx context.Context, taxCode *model.TaxCode) error
	GetTaxCode(ctx context.Context, tenantID, code string) (*model.TaxCode, error)

	// Tenant settings.
	GetTenantSettings(ctx context.Context, tenantID string) (*model.TenantSettings, error)
	SaveTenantSettings(ctx context.Context, settings *model.TenantSettings) error

	// Database management.
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction. All Storage methods invoked
// through it run inside the transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	Storage
}

// Catalog is the read-only chart-of-accounts lookup used when building
// vouchers.
type Catalog interface {
	AccountExists(ctx context.Context, tenantID, number string) (bool, error)
	GetTaxCode(ctx context.Context, tenantID, code string) (*model.TaxCode, error)
}

// ClassifierClient re-queries the upstream classifier for a confidence
// signal. Calls must honor the context deadline; failures degrade the score
// rather than failing the proposal.
type ClassifierClient interface {
	Confidence(ctx context.Context, proposal *model.Proposal) (float64, error)
}

// Notifier delivers pipeline events to an external notification collaborator.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
}

// Event types emitted by the pipeline.
const (
	EventItemEscalated  = "item_escalated"
	EventPatternApplied = "pattern_applied"
)

// Event is a notification payload.
type Event struct {
	At        time.Time `json:"at"`
	Type      string    `json:"type"`
	TenantID  string    `json:"tenant_id"`
	SubjectID string    `json:"subject_id"`
	Message   string    `json:"message"`
	Count     int       `json:"count,omitempty"`
}
