package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a fatal
// error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS vouchers (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL,
					series TEXT NOT NULL,
					number INTEGER NOT NULL,
					date DATETIME NOT NULL,
					currency TEXT NOT NULL DEFAULT 'NOK',
					description TEXT NOT NULL DEFAULT '',
					source_type TEXT NOT NULL,
					source_id TEXT NOT NULL DEFAULT '',
					created_by TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'posted',
					is_reversed INTEGER NOT NULL DEFAULT 0,
					reverses TEXT NOT NULL DEFAULT '',
					reversed_by TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (tenant_id, series, number)
				)`,
				`CREATE INDEX idx_vouchers_tenant_date ON vouchers(tenant_id, date)`,

				`CREATE TABLE IF NOT EXISTS voucher_lines (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					voucher_id TEXT NOT NULL,
					account TEXT NOT NULL,
					debit TEXT NOT NULL,
					credit TEXT NOT NULL,
					tax_code TEXT NOT NULL DEFAULT '',
					tax_amount TEXT NOT NULL DEFAULT '0',
					description TEXT NOT NULL DEFAULT '',
					FOREIGN KEY (voucher_id) REFERENCES vouchers(id)
				)`,
				`CREATE INDEX idx_voucher_lines_voucher ON voucher_lines(voucher_id)`,
				`CREATE INDEX idx_voucher_lines_account ON voucher_lines(account)`,

				`CREATE TABLE IF NOT EXISTS review_queue_items (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL,
					proposal TEXT NOT NULL,
					score INTEGER NOT NULL DEFAULT 0,
					breakdown TEXT NOT NULL DEFAULT '{}',
					priority INTEGER NOT NULL DEFAULT 0,
					failure_context TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL DEFAULT 'pending',
					resolver_id TEXT NOT NULL DEFAULT '',
					resolved_at DATETIME,
					resolution_notes TEXT NOT NULL DEFAULT '',
					reject_reason TEXT NOT NULL DEFAULT '',
					due_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS learned_patterns (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL DEFAULT '',
					counterparty TEXT NOT NULL,
					trigger_account TEXT NOT NULL,
					action_account TEXT NOT NULL,
					action_tax_code TEXT NOT NULL DEFAULT '',
					hits INTEGER NOT NULL DEFAULT 0,
					applications INTEGER NOT NULL DEFAULT 0,
					version INTEGER NOT NULL DEFAULT 1,
					is_active INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS decision_log (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL,
					subject_type TEXT NOT NULL,
					subject_id TEXT NOT NULL,
					action TEXT NOT NULL,
					actor_type TEXT NOT NULL,
					actor_id TEXT NOT NULL,
					input TEXT,
					output TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS accounts (
					tenant_id TEXT NOT NULL,
					number TEXT NOT NULL,
					name TEXT NOT NULL,
					type TEXT NOT NULL,
					is_active INTEGER NOT NULL DEFAULT 1,
					PRIMARY KEY (tenant_id, number)
				)`,

				`CREATE TABLE IF NOT EXISTS tax_codes (
					tenant_id TEXT NOT NULL,
					code TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					rate TEXT NOT NULL DEFAULT '0',
					account TEXT NOT NULL,
					is_active INTEGER NOT NULL DEFAULT 1,
					PRIMARY KEY (tenant_id, code)
				)`,

				`CREATE TABLE IF NOT EXISTS tenant_settings (
					tenant_id TEXT PRIMARY KEY,
					confidence_threshold INTEGER NOT NULL DEFAULT 85,
					voucher_series TEXT NOT NULL DEFAULT 'A',
					currency TEXT NOT NULL DEFAULT 'NOK',
					minor_units INTEGER NOT NULL DEFAULT 2,
					tax_input_account TEXT NOT NULL DEFAULT '2740',
					tax_output_account TEXT NOT NULL DEFAULT '2700',
					trade_payables TEXT NOT NULL DEFAULT '2400',
					trade_receivables TEXT NOT NULL DEFAULT '1500'
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Duplicate-source guard and review queue indexes",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				// One posting per source reference per tenant. Reversal
				// vouchers carry the original voucher id as their source,
				// so the same index also blocks double reversal.
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_vouchers_source
					ON vouchers(tenant_id, source_type, source_id)
					WHERE source_id != ''`,
				`CREATE INDEX IF NOT EXISTS idx_review_items_pending
					ON review_queue_items(tenant_id, status, priority DESC, due_at)`,
				`CREATE INDEX IF NOT EXISTS idx_decision_log_subject
					ON decision_log(subject_type, subject_id)`,
				`CREATE INDEX IF NOT EXISTS idx_decision_log_tenant
					ON decision_log(tenant_id, created_at)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Unique pattern trigger per tenant scope",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_patterns_trigger
				ON learned_patterns(tenant_id, counterparty, trigger_account)`)
			return err
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
