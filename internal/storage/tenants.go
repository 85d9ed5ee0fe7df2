package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nordbooks/autopost/internal/model"
)

// GetTenantSettings returns a tenant's pipeline configuration, falling back
// to defaults (threshold 85) when the tenant has no stored row.
func (s *SQLiteStorage) GetTenantSettings(ctx context.Context, tenantID string) (*model.TenantSettings, error) {
	return getTenantSettings(ctx, s.db, tenantID)
}

// SaveTenantSettings upserts a tenant's pipeline configuration.
func (s *SQLiteStorage) SaveTenantSettings(ctx context.Context, settings *model.TenantSettings) error {
	return saveTenantSettings(ctx, s.db, settings)
}

func getTenantSettings(ctx context.Context, q querier, tenantID string) (*model.TenantSettings, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}

	var settings model.TenantSettings
	err := q.QueryRowContext(ctx, `
		SELECT tenant_id, confidence_threshold, voucher_series, currency, minor_units,
			tax_input_account, tax_output_account, trade_payables, trade_receivables
		FROM tenant_settings
		WHERE tenant_id = ?`, tenantID).Scan(
		&settings.TenantID, &settings.ConfidenceThreshold, &settings.VoucherSeries,
		&settings.Currency, &settings.MinorUnits,
		&settings.Rules.TaxInputAccount, &settings.Rules.TaxOutputAccount,
		&settings.Rules.TradePayables, &settings.Rules.TradeReceivables)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultTenantSettings(tenantID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tenant settings: %w", err)
	}
	return &settings, nil
}

func saveTenantSettings(ctx context.Context, q querier, settings *model.TenantSettings) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if settings == nil {
		return fmt.Errorf("%w: settings", ErrNilParameter)
	}
	if err := validateString(settings.TenantID, "tenantID"); err != nil {
		return err
	}
	if settings.ConfidenceThreshold < 0 || settings.ConfidenceThreshold > 100 {
		return fmt.Errorf("confidence threshold must be within [0,100], got %d", settings.ConfidenceThreshold)
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO tenant_settings (
			tenant_id, confidence_threshold, voucher_series, currency, minor_units,
			tax_input_account, tax_output_account, trade_payables, trade_receivables
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			confidence_threshold = excluded.confidence_threshold,
			voucher_series = excluded.voucher_series,
			currency = excluded.currency,
			minor_units = excluded.minor_units,
			tax_input_account = excluded.tax_input_account,
			tax_output_account = excluded.tax_output_account,
			trade_payables = excluded.trade_payables,
			trade_receivables = excluded.trade_receivables`,
		settings.TenantID, settings.ConfidenceThreshold, settings.VoucherSeries,
		settings.Currency, settings.MinorUnits,
		settings.Rules.TaxInputAccount, settings.Rules.TaxOutputAccount,
		settings.Rules.TradePayables, settings.Rules.TradeReceivables,
	)
	if err != nil {
		return fmt.Errorf("failed to save tenant settings: %w", err)
	}
	return nil
}
