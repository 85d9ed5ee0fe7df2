package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nordbooks/autopost/internal/common"
	"github.com/nordbooks/autopost/internal/model"
)

// SaveAccount upserts a chart-of-accounts entry.
func (s *SQLiteStorage) SaveAccount(ctx context.Context, account *model.Account) error {
	return saveAccount(ctx, s.db, account)
}

// GetAccount retrieves an active account by tenant and number.
func (s *SQLiteStorage) GetAccount(ctx context.Context, tenantID, number string) (*model.Account, error) {
	return getAccount(ctx, s.db, tenantID, number)
}

// ListAccounts returns all active accounts for a tenant.
func (s *SQLiteStorage) ListAccounts(ctx context.Context, tenantID string) ([]model.Account, error) {
	return listAccounts(ctx, s.db, tenantID)
}

// SaveTaxCode upserts a tax code.
func (s *SQLiteStorage) SaveTaxCode(ctx context.Context, taxCode *model.TaxCode) error {
	return saveTaxCode(ctx, s.db, taxCode)
}

// GetTaxCode retrieves an active tax code by tenant and code.
func (s *SQLiteStorage) GetTaxCode(ctx context.Context, tenantID, code string) (*model.TaxCode, error) {
	return getTaxCode(ctx, s.db, tenantID, code)
}

func saveAccount(ctx context.Context, q querier, account *model.Account) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if account == nil {
		return fmt.Errorf("%w: account", ErrNilParameter)
	}
	if err := validateString(account.TenantID, "tenantID"); err != nil {
		return err
	}
	if err := validateString(account.Number, "number"); err != nil {
		return err
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO accounts (tenant_id, number, name, type, is_active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, number) DO UPDATE SET
			name = excluded.name, type = excluded.type, is_active = excluded.is_active`,
		account.TenantID, account.Number, account.Name, account.Type, account.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

func getAccount(ctx context.Context, q querier, tenantID, number string) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(number, "number"); err != nil {
		return nil, err
	}

	var account model.Account
	err := q.QueryRowContext(ctx, `
		SELECT tenant_id, number, name, type, is_active
		FROM accounts
		WHERE tenant_id = ? AND number = ? AND is_active = 1`,
		tenantID, number).Scan(
		&account.TenantID, &account.Number, &account.Name, &account.Type, &account.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %s", common.ErrAccountNotFound, number)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	return &account, nil
}

func listAccounts(ctx context.Context, q querier, tenantID string) ([]model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT tenant_id, number, name, type, is_active
		FROM accounts
		WHERE tenant_id = ? AND is_active = 1
		ORDER BY number`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []model.Account
	for rows.Next() {
		var account model.Account
		if err := rows.Scan(&account.TenantID, &account.Number, &account.Name,
			&account.Type, &account.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

func saveTaxCode(ctx context.Context, q querier, taxCode *model.TaxCode) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if taxCode == nil {
		return fmt.Errorf("%w: taxCode", ErrNilParameter)
	}
	if err := validateString(taxCode.TenantID, "tenantID"); err != nil {
		return err
	}
	if err := validateString(taxCode.Code, "code"); err != nil {
		return err
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO tax_codes (tenant_id, code, description, rate, account, is_active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, code) DO UPDATE SET
			description = excluded.description, rate = excluded.rate,
			account = excluded.account, is_active = excluded.is_active`,
		taxCode.TenantID, taxCode.Code, taxCode.Description,
		taxCode.Rate.String(), taxCode.Account, taxCode.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to save tax code: %w", err)
	}
	return nil
}

func getTaxCode(ctx context.Context, q querier, tenantID, code string) (*model.TaxCode, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(code, "code"); err != nil {
		return nil, err
	}

	var taxCode model.TaxCode
	var rate string
	err := q.QueryRowContext(ctx, `
		SELECT tenant_id, code, description, rate, account, is_active
		FROM tax_codes
		WHERE tenant_id = ? AND code = ? AND is_active = 1`,
		tenantID, code).Scan(
		&taxCode.TenantID, &taxCode.Code, &taxCode.Description,
		&rate, &taxCode.Account, &taxCode.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: tax code %s", common.ErrTaxCodeNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tax code: %w", err)
	}
	if taxCode.Rate, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("corrupt tax rate %q: %w", rate, err)
	}
	return &taxCode, nil
}
