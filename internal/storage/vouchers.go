package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/nordbooks/autopost/internal/common"
	"github.com/nordbooks/autopost/internal/model"
	"github.com/nordbooks/autopost/internal/service"
)

// SaveVoucher writes a voucher header and all its lines. Callers that need
// atomicity with other writes run it through BeginTx; the ledger layer does
// exactly that so no partial voucher is ever visible.
func (s *SQLiteStorage) SaveVoucher(ctx context.Context, voucher *model.Voucher) error {
	return saveVoucher(ctx, s.db, voucher)
}

// GetVoucher retrieves a voucher with its lines.
func (s *SQLiteStorage) GetVoucher(ctx context.Context, tenantID, id string) (*model.Voucher, error) {
	return getVoucher(ctx, s.db, tenantID, id)
}

// GetVoucherBySource finds the voucher posted for a given source reference,
// used for duplicate detection on retried proposals.
func (s *SQLiteStorage) GetVoucherBySource(ctx context.Context, tenantID string, source model.SourceType, sourceID string) (*model.Voucher, error) {
	return getVoucherBySource(ctx, s.db, tenantID, source, sourceID)
}

// ListVouchers returns vouchers by tenant, period and optionally account.
func (s *SQLiteStorage) ListVouchers(ctx context.Context, filter service.VoucherFilter) ([]model.Voucher, error) {
	return listVouchers(ctx, s.db, filter)
}

// NextVoucherNumber assigns the next sequential number in a tenant's series.
// Run inside the posting transaction so SQLite's writer lock serializes it.
func (s *SQLiteStorage) NextVoucherNumber(ctx context.Context, tenantID, series string) (int64, error) {
	return nextVoucherNumber(ctx, s.db, tenantID, series)
}

// MarkVoucherReversed flips the is_reversed flag and records the reversing
// voucher id. This is the only permitted write to an existing voucher row.
func (s *SQLiteStorage) MarkVoucherReversed(ctx context.Context, tenantID, id, reversedBy string) error {
	return markVoucherReversed(ctx, s.db, tenantID, id, reversedBy)
}

func saveVoucher(ctx context.Context, q querier, voucher *model.Voucher) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateVoucher(voucher); err != nil {
		return err
	}

	if voucher.CreatedAt.IsZero() {
		voucher.CreatedAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO vouchers (
			id, tenant_id, series, number, date, currency, description,
			source_type, source_id, created_by, status,
			is_reversed, reverses, reversed_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		voucher.ID, voucher.TenantID, voucher.Series, voucher.Number,
		voucher.Date, voucher.Currency, voucher.Description, voucher.SourceType, voucher.SourceID,
		voucher.CreatedBy, voucher.Status, voucher.IsReversed,
		voucher.Reverses, voucher.ReversedBy, voucher.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: source %s/%s", common.ErrDuplicateEntry, voucher.SourceType, voucher.SourceID)
		}
		return fmt.Errorf("failed to insert voucher: %w", err)
	}

	for i := range voucher.Lines {
		line := &voucher.Lines[i]
		result, lineErr := q.ExecContext(ctx, `
			INSERT INTO voucher_lines (
				voucher_id, account, debit, credit, tax_code, tax_amount, description
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			voucher.ID, line.Account, line.Debit.String(), line.Credit.String(),
			line.TaxCode, line.TaxAmount.String(), line.Description,
		)
		if lineErr != nil {
			return fmt.Errorf("failed to insert voucher line %d: %w", i, lineErr)
		}
		if id, idErr := result.LastInsertId(); idErr == nil {
			line.ID = id
		}
	}

	return nil
}

func getVoucher(ctx context.Context, q querier, tenantID, id string) (*model.Voucher, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := q.QueryRowContext(ctx, `
		SELECT id, tenant_id, series, number, date, currency, description,
			source_type, source_id, created_by, status,
			is_reversed, reverses, reversed_by, created_at
		FROM vouchers
		WHERE tenant_id = ? AND id = ?`, tenantID, id)

	voucher, err := scanVoucher(row)
	if err != nil {
		return nil, err
	}

	voucher.Lines, err = loadVoucherLines(ctx, q, voucher.ID)
	if err != nil {
		return nil, err
	}
	return voucher, nil
}

func getVoucherBySource(ctx context.Context, q querier, tenantID string, source model.SourceType, sourceID string) (*model.Voucher, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(sourceID, "sourceID"); err != nil {
		return nil, err
	}

	row := q.QueryRowContext(ctx, `
		SELECT id, tenant_id, series, number, date, currency, description,
			source_type, source_id, created_by, status,
			is_reversed, reverses, reversed_by, created_at
		FROM vouchers
		WHERE tenant_id = ? AND source_type = ? AND source_id = ?`,
		tenantID, source, sourceID)

	voucher, err := scanVoucher(row)
	if err != nil {
		return nil, err
	}

	voucher.Lines, err = loadVoucherLines(ctx, q, voucher.ID)
	if err != nil {
		return nil, err
	}
	return voucher, nil
}

func listVouchers(ctx context.Context, q querier, filter service.VoucherFilter) ([]model.Voucher, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(filter.TenantID, "tenantID"); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT DISTINCT v.id, v.tenant_id, v.series, v.number, v.date, v.currency, v.description,
			v.source_type, v.source_id, v.created_by, v.status,
			v.is_reversed, v.reverses, v.reversed_by, v.created_at
		FROM vouchers v`)
	args := []any{}

	if filter.Account != "" {
		sb.WriteString(` JOIN voucher_lines l ON l.voucher_id = v.id AND l.account = ?`)
		args = append(args, filter.Account)
	}
	sb.WriteString(` WHERE v.tenant_id = ?`)
	args = append(args, filter.TenantID)

	if filter.PeriodStart != nil {
		sb.WriteString(` AND v.date >= ?`)
		args = append(args, *filter.PeriodStart)
	}
	if filter.PeriodEnd != nil {
		sb.WriteString(` AND v.date < ?`)
		args = append(args, *filter.PeriodEnd)
	}
	sb.WriteString(` ORDER BY v.series, v.number`)
	if filter.Limit > 0 {
		sb.WriteString(` LIMIT ? OFFSET ?`)
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vouchers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var vouchers []model.Voucher
	for rows.Next() {
		voucher, scanErr := scanVoucherRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		vouchers = append(vouchers, *voucher)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vouchers: %w", err)
	}

	for i := range vouchers {
		vouchers[i].Lines, err = loadVoucherLines(ctx, q, vouchers[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return vouchers, nil
}

func nextVoucherNumber(ctx context.Context, q querier, tenantID, series string) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return 0, err
	}

	var number int64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(number), 0) + 1 FROM vouchers WHERE tenant_id = ? AND series = ?`,
		tenantID, series).Scan(&number)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate voucher number: %w", err)
	}
	return number, nil
}

func markVoucherReversed(ctx context.Context, q querier, tenantID, id, reversedBy string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := q.ExecContext(ctx, `
		UPDATE vouchers SET is_reversed = 1, reversed_by = ?
		WHERE tenant_id = ? AND id = ? AND is_reversed = 0`,
		reversedBy, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to mark voucher reversed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return common.ErrAlreadyReversed
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVoucher(row *sql.Row) (*model.Voucher, error) {
	voucher, err := scanVoucherFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrVoucherNotFound
	}
	return voucher, err
}

func scanVoucherRow(rows *sql.Rows) (*model.Voucher, error) {
	return scanVoucherFrom(rows)
}

func scanVoucherFrom(scanner rowScanner) (*model.Voucher, error) {
	var voucher model.Voucher
	err := scanner.Scan(
		&voucher.ID, &voucher.TenantID, &voucher.Series, &voucher.Number,
		&voucher.Date, &voucher.Currency, &voucher.Description, &voucher.SourceType, &voucher.SourceID,
		&voucher.CreatedBy, &voucher.Status, &voucher.IsReversed,
		&voucher.Reverses, &voucher.ReversedBy, &voucher.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan voucher: %w", err)
	}
	return &voucher, nil
}

func loadVoucherLines(ctx context.Context, q querier, voucherID string) ([]model.VoucherLine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, account, debit, credit, tax_code, tax_amount, description
		FROM voucher_lines
		WHERE voucher_id = ?
		ORDER BY id`, voucherID)
	if err != nil {
		return nil, fmt.Errorf("failed to query voucher lines: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var lines []model.VoucherLine
	for rows.Next() {
		var line model.VoucherLine
		var debit, credit, taxAmount string
		if err := rows.Scan(&line.ID, &line.Account, &debit, &credit,
			&line.TaxCode, &taxAmount, &line.Description); err != nil {
			return nil, fmt.Errorf("failed to scan voucher line: %w", err)
		}
		if line.Debit, err = decimal.NewFromString(debit); err != nil {
			return nil, fmt.Errorf("corrupt debit amount %q: %w", debit, err)
		}
		if line.Credit, err = decimal.NewFromString(credit); err != nil {
			return nil, fmt.Errorf("corrupt credit amount %q: %w", credit, err)
		}
		if line.TaxAmount, err = decimal.NewFromString(taxAmount); err != nil {
			return nil, fmt.Errorf("corrupt tax amount %q: %w", taxAmount, err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating voucher lines: %w", err)
	}
	return lines, nil
}

// isUniqueViolation reports whether the error is a SQLite unique constraint
// failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
