package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nordbooks/autopost/internal/model"
	"github.com/nordbooks/autopost/internal/service"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// querier is the common surface of *sql.DB and *sql.Tx, letting every
// entity operation run either standalone or inside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections, and a single
	// connection keeps :memory: databases coherent in tests.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new database transaction.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (service.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &sqliteTransaction{tx: tx, storage: s}, nil
}

// sqliteTransaction wraps sql.Tx to implement service.Transaction.
type sqliteTransaction struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTransaction) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTransaction) Rollback() error {
	return t.tx.Rollback()
}

// Entity methods delegate to the shared implementations with the
// transaction as the querier.

func (t *sqliteTransaction) SaveVoucher(ctx context.Context, voucher *model.Voucher) error {
	return saveVoucher(ctx, t.tx, voucher)
}

func (t *sqliteTransaction) GetVoucher(ctx context.Context, tenantID, id string) (*model.Voucher, error) {
	return getVoucher(ctx, t.tx, tenantID, id)
}

func (t *sqliteTransaction) GetVoucherBySource(ctx context.Context, tenantID string, source model.SourceType, sourceID string) (*model.Voucher, error) {
	return getVoucherBySource(ctx, t.tx, tenantID, source, sourceID)
}

func (t *sqliteTransaction) ListVouchers(ctx context.Context, filter service.VoucherFilter) ([]model.Voucher, error) {
	return listVouchers(ctx, t.tx, filter)
}

func (t *sqliteTransaction) NextVoucherNumber(ctx context.Context, tenantID, series string) (int64, error) {
	return nextVoucherNumber(ctx, t.tx, tenantID, series)
}

func (t *sqliteTransaction) MarkVoucherReversed(ctx context.Context, tenantID, id, reversedBy string) error {
	return markVoucherReversed(ctx, t.tx, tenantID, id, reversedBy)
}

func (t *sqliteTransaction) CreateReviewItem(ctx context.Context, item *model.ReviewQueueItem) error {
	return createReviewItem(ctx, t.tx, item)
}

func (t *sqliteTransaction) GetReviewItem(ctx context.Context, tenantID, id string) (*model.ReviewQueueItem, error) {
	return getReviewItem(ctx, t.tx, tenantID, id)
}

func (t *sqliteTransaction) ListPendingReviewItems(ctx context.Context, filter service.ReviewFilter) ([]model.ReviewQueueItem, error) {
	return listPendingReviewItems(ctx, t.tx, filter)
}

func (t *sqliteTransaction) ListPendingReviewItemsByScope(ctx context.Context, tenantID string, scope service.ScopeFilter) ([]model.ReviewQueueItem, error) {
	return listPendingReviewItemsByScope(ctx, t.tx, tenantID, scope)
}

func (t *sqliteTransaction) ResolveReviewItem(ctx context.Context, item *model.ReviewQueueItem) error {
	return resolveReviewItem(ctx, t.tx, item)
}

func (t *sqliteTransaction) CreateLearnedPattern(ctx context.Context, pattern *model.LearnedPattern) error {
	return createLearnedPattern(ctx, t.tx, pattern)
}

func (t *sqliteTransaction) GetLearnedPattern(ctx context.Context, id string) (*model.LearnedPattern, error) {
	return getLearnedPattern(ctx, t.tx, id)
}

func (t *sqliteTransaction) GetActivePatterns(ctx context.Context, tenantID string) ([]model.LearnedPattern, error) {
	return getActivePatterns(ctx, t.tx, tenantID)
}

func (t *sqliteTransaction) FindPatternByTrigger(ctx context.Context, tenantID, counterparty, triggerAccount string) (*model.LearnedPattern, error) {
	return findPatternByTrigger(ctx, t.tx, tenantID, counterparty, triggerAccount)
}

func (t *sqliteTransaction) UpdateLearnedPattern(ctx context.Context, pattern *model.LearnedPattern) error {
	return updateLearnedPattern(ctx, t.tx, pattern)
}

func (t *sqliteTransaction) DeactivateLearnedPattern(ctx context.Context, id string) error {
	return deactivateLearnedPattern(ctx, t.tx, id)
}

func (t *sqliteTransaction) AppendDecisionLog(ctx context.Context, entry *model.DecisionLogEntry) error {
	return appendDecisionLog(ctx, t.tx, entry)
}

func (t *sqliteTransaction) ListDecisionLog(ctx context.Context, filter service.DecisionLogFilter) ([]model.DecisionLogEntry, error) {
	return listDecisionLog(ctx, t.tx, filter)
}

func (t *sqliteTransaction) SaveAccount(ctx context.Context, account *model.Account) error {
	return saveAccount(ctx, t.tx, account)
}

func (t *sqliteTransaction) GetAccount(ctx context.Context, tenantID, number string) (*model.Account, error) {
	return getAccount(ctx, t.tx, tenantID, number)
}

func (t *sqliteTransaction) ListAccounts(ctx context.Context, tenantID string) ([]model.Account, error) {
	return listAccounts(ctx, t.tx, tenantID)
}

func (t *sqliteTransaction) SaveTaxCode(ctx context.Context, taxCode *model.TaxCode) error {
	return saveTaxCode(ctx, t.tx, taxCode)
}

func (t *sqliteTransaction) GetTaxCode(ctx context.Context, tenantID, code string) (*model.TaxCode, error) {
	return getTaxCode(ctx, t.tx, tenantID, code)
}

func (t *sqliteTransaction) GetTenantSettings(ctx context.Context, tenantID string) (*model.TenantSettings, error) {
	return getTenantSettings(ctx, t.tx, tenantID)
}

func (t *sqliteTransaction) SaveTenantSettings(ctx context.Context, settings *model.TenantSettings) error {
	return saveTenantSettings(ctx, t.tx, settings)
}

func (t *sqliteTransaction) Migrate(_ context.Context) error {
	return fmt.Errorf("migrations cannot run inside a transaction")
}

func (t *sqliteTransaction) BeginTx(_ context.Context) (service.Transaction, error) {
	return nil, fmt.Errorf("nested transactions are not supported")
}

func (t *sqliteTransaction) Close() error {
	return nil
}
