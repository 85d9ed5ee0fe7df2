package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nordbooks/autopost/internal/common"
	"github.com/nordbooks/autopost/internal/model"
)

// CreateLearnedPattern stores a new pattern at version 1.
func (s *SQLiteStorage) CreateLearnedPattern(ctx context.Context, pattern *model.LearnedPattern) error {
	return createLearnedPattern(ctx, s.db, pattern)
}

// GetLearnedPattern retrieves a pattern by id.
func (s *SQLiteStorage) GetLearnedPattern(ctx context.Context, id string) (*model.LearnedPattern, error) {
	return getLearnedPattern(ctx, s.db, id)
}

// GetActivePatterns returns active patterns visible to a tenant: its own
// plus global ones.
func (s *SQLiteStorage) GetActivePatterns(ctx context.Context, tenantID string) ([]model.LearnedPattern, error) {
	return getActivePatterns(ctx, s.db, tenantID)
}

// FindPatternByTrigger finds the pattern for a trigger within a tenant
// scope, or nil when none exists.
func (s *SQLiteStorage) FindPatternByTrigger(ctx context.Context, tenantID, counterparty, triggerAccount string) (*model.LearnedPattern, error) {
	return findPatternByTrigger(ctx, s.db, tenantID, counterparty, triggerAccount)
}

// UpdateLearnedPattern writes pattern counters under a version-column
// compare-and-set. A concurrent writer observes common.ErrStaleWrite and
// must re-read; this is the single-writer-per-pattern discipline.
func (s *SQLiteStorage) UpdateLearnedPattern(ctx context.Context, pattern *model.LearnedPattern) error {
	return updateLearnedPattern(ctx, s.db, pattern)
}

// DeactivateLearnedPattern turns a pattern off. Patterns are never deleted.
func (s *SQLiteStorage) DeactivateLearnedPattern(ctx context.Context, id string) error {
	return deactivateLearnedPattern(ctx, s.db, id)
}

func createLearnedPattern(ctx context.Context, q querier, pattern *model.LearnedPattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePattern(pattern); err != nil {
		return err
	}

	now := time.Now().UTC()
	pattern.CreatedAt = now
	pattern.UpdatedAt = now
	pattern.Version = 1

	_, err := q.ExecContext(ctx, `
		INSERT INTO learned_patterns (
			id, tenant_id, counterparty, trigger_account,
			action_account, action_tax_code, hits, applications,
			version, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pattern.ID, pattern.TenantID, pattern.Counterparty, pattern.TriggerAccount,
		pattern.Action.Account, pattern.Action.TaxCode, pattern.Hits,
		pattern.Applications, pattern.Version, pattern.IsActive,
		pattern.CreatedAt, pattern.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: pattern trigger %s/%s", common.ErrDuplicateEntry,
				pattern.Counterparty, pattern.TriggerAccount)
		}
		return fmt.Errorf("failed to create learned pattern: %w", err)
	}
	return nil
}

func getLearnedPattern(ctx context.Context, q querier, id string) (*model.LearnedPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := q.QueryRowContext(ctx, patternSelect+` WHERE id = ?`, id)
	pattern, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return pattern, err
}

func getActivePatterns(ctx context.Context, q querier, tenantID string) ([]model.LearnedPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx,
		patternSelect+` WHERE is_active = 1 AND (tenant_id = ? OR tenant_id = '') ORDER BY created_at`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patterns []model.LearnedPattern
	for rows.Next() {
		pattern, scanErr := scanPattern(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		patterns = append(patterns, *pattern)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating patterns: %w", err)
	}
	return patterns, nil
}

func findPatternByTrigger(ctx context.Context, q querier, tenantID, counterparty, triggerAccount string) (*model.LearnedPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := q.QueryRowContext(ctx,
		patternSelect+` WHERE tenant_id = ? AND counterparty = ? COLLATE NOCASE AND trigger_account = ?`,
		tenantID, counterparty, triggerAccount)
	pattern, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return pattern, err
}

func updateLearnedPattern(ctx context.Context, q querier, pattern *model.LearnedPattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePattern(pattern); err != nil {
		return err
	}

	now := time.Now().UTC()

	result, err := q.ExecContext(ctx, `
		UPDATE learned_patterns
		SET action_account = ?, action_tax_code = ?, hits = ?, applications = ?,
			is_active = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		pattern.Action.Account, pattern.Action.TaxCode, pattern.Hits,
		pattern.Applications, pattern.IsActive, now,
		pattern.ID, pattern.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update learned pattern: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: pattern %s", common.ErrStaleWrite, pattern.ID)
	}

	pattern.Version++
	pattern.UpdatedAt = now
	return nil
}

func deactivateLearnedPattern(ctx context.Context, q querier, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := q.ExecContext(ctx, `
		UPDATE learned_patterns
		SET is_active = 0, version = version + 1, updated_at = ?
		WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate pattern: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return common.ErrNotFound
	}
	return nil
}

const patternSelect = `
	SELECT id, tenant_id, counterparty, trigger_account,
		action_account, action_tax_code, hits, applications,
		version, is_active, created_at, updated_at
	FROM learned_patterns`

func scanPattern(scanner rowScanner) (*model.LearnedPattern, error) {
	var pattern model.LearnedPattern
	err := scanner.Scan(
		&pattern.ID, &pattern.TenantID, &pattern.Counterparty, &pattern.TriggerAccount,
		&pattern.Action.Account, &pattern.Action.TaxCode, &pattern.Hits,
		&pattern.Applications, &pattern.Version, &pattern.IsActive,
		&pattern.CreatedAt, &pattern.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan pattern: %w", err)
	}
	return &pattern, nil
}
