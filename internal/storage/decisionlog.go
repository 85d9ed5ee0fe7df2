package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nordbooks/autopost/internal/common"
	"github.com/nordbooks/autopost/internal/model"
	"github.com/nordbooks/autopost/internal/service"
)

// AppendDecisionLog writes one immutable audit entry. There is no update or
// delete path for this table at any layer.
func (s *SQLiteStorage) AppendDecisionLog(ctx context.Context, entry *model.DecisionLogEntry) error {
	return appendDecisionLog(ctx, s.db, entry)
}

// ListDecisionLog reads entries for the audit collaborator.
func (s *SQLiteStorage) ListDecisionLog(ctx context.Context, filter service.DecisionLogFilter) ([]model.DecisionLogEntry, error) {
	return listDecisionLog(ctx, s.db, filter)
}

func appendDecisionLog(ctx context.Context, q querier, entry *model.DecisionLogEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateLogEntry(entry); err != nil {
		return err
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO decision_log (
			id, tenant_id, subject_type, subject_id, action,
			actor_type, actor_id, input, output, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.TenantID, entry.SubjectType, entry.SubjectID,
		entry.Action, entry.ActorType, entry.ActorID,
		nullableJSON(entry.Input), nullableJSON(entry.Output), entry.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: decision log entry %s", common.ErrDuplicateEntry, entry.ID)
		}
		return fmt.Errorf("failed to append decision log entry: %w", err)
	}
	return nil
}

func listDecisionLog(ctx context.Context, q querier, filter service.DecisionLogFilter) ([]model.DecisionLogEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(filter.TenantID, "tenantID"); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, subject_type, subject_id, action,
			actor_type, actor_id, input, output, created_at
		FROM decision_log
		WHERE tenant_id = ?`
	args := []any{filter.TenantID}

	if filter.SubjectType != "" {
		query += ` AND subject_type = ?`
		args = append(args, filter.SubjectType)
	}
	if filter.SubjectID != "" {
		query += ` AND subject_id = ?`
		args = append(args, filter.SubjectID)
	}
	query += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query decision log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.DecisionLogEntry
	for rows.Next() {
		var entry model.DecisionLogEntry
		var input, output sql.NullString
		if err := rows.Scan(&entry.ID, &entry.TenantID, &entry.SubjectType,
			&entry.SubjectID, &entry.Action, &entry.ActorType, &entry.ActorID,
			&input, &output, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision log entry: %w", err)
		}
		if input.Valid {
			entry.Input = json.RawMessage(input.String)
		}
		if output.Valid {
			entry.Output = json.RawMessage(output.String)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decision log: %w", err)
	}
	return entries, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
