package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nordbooks/autopost/internal/common"
	"github.com/nordbooks/autopost/internal/model"
	"github.com/nordbooks/autopost/internal/service"
)

// CreateReviewItem queues a proposal for human review. The proposal and
// factor breakdown are stored as JSON snapshots so the resolver sees exactly
// what was scored.
func (s *SQLiteStorage) CreateReviewItem(ctx context.Context, item *model.ReviewQueueItem) error {
	return createReviewItem(ctx, s.db, item)
}

// GetReviewItem retrieves a review queue item.
func (s *SQLiteStorage) GetReviewItem(ctx context.Context, tenantID, id string) (*model.ReviewQueueItem, error) {
	return getReviewItem(ctx, s.db, tenantID, id)
}

// ListPendingReviewItems lists pending items by tenant, priority first.
func (s *SQLiteStorage) ListPendingReviewItems(ctx context.Context, filter service.ReviewFilter) ([]model.ReviewQueueItem, error) {
	return listPendingReviewItems(ctx, s.db, filter)
}

// ListPendingReviewItemsByScope lists pending items matching a scope filter,
// used by ApplyToSimilar.
func (s *SQLiteStorage) ListPendingReviewItemsByScope(ctx context.Context, tenantID string, scope service.ScopeFilter) ([]model.ReviewQueueItem, error) {
	return listPendingReviewItemsByScope(ctx, s.db, tenantID, scope)
}

// ResolveReviewItem moves an item out of pending with a compare-and-set on
// the status column. The losing side of a concurrent resolution race gets
// common.ErrAlreadyResolved and must perform no side effect.
func (s *SQLiteStorage) ResolveReviewItem(ctx context.Context, item *model.ReviewQueueItem) error {
	return resolveReviewItem(ctx, s.db, item)
}

func createReviewItem(ctx context.Context, q querier, item *model.ReviewQueueItem) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateReviewItem(item); err != nil {
		return err
	}

	proposalJSON, err := json.Marshal(item.Proposal)
	if err != nil {
		return fmt.Errorf("failed to marshal proposal: %w", err)
	}
	breakdownJSON, err := json.Marshal(item.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to marshal breakdown: %w", err)
	}

	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	var dueAt any
	if !item.DueAt.IsZero() {
		dueAt = item.DueAt
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO review_queue_items (
			id, tenant_id, proposal, score, breakdown, priority,
			failure_context, status, due_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.TenantID, string(proposalJSON), item.Score,
		string(breakdownJSON), item.Priority, item.FailureContext,
		item.Status, dueAt, item.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: review item %s", common.ErrDuplicateEntry, item.ID)
		}
		return fmt.Errorf("failed to create review item: %w", err)
	}
	return nil
}

func getReviewItem(ctx context.Context, q querier, tenantID, id string) (*model.ReviewQueueItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := q.QueryRowContext(ctx, `
		SELECT id, tenant_id, proposal, score, breakdown, priority,
			failure_context, status, resolver_id, resolved_at,
			resolution_notes, reject_reason, due_at, created_at
		FROM review_queue_items
		WHERE tenant_id = ? AND id = ?`, tenantID, id)

	item, err := scanReviewItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return item, err
}

func listPendingReviewItems(ctx context.Context, q querier, filter service.ReviewFilter) ([]model.ReviewQueueItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(filter.TenantID, "tenantID"); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, proposal, score, breakdown, priority,
			failure_context, status, resolver_id, resolved_at,
			resolution_notes, reject_reason, due_at, created_at
		FROM review_queue_items
		WHERE tenant_id = ? AND status = ?
		ORDER BY priority DESC, due_at, created_at`
	args := []any{filter.TenantID, model.ReviewStatusPending}
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	return queryReviewItems(ctx, q, query, args...)
}

func listPendingReviewItemsByScope(ctx context.Context, q querier, tenantID string, scope service.ScopeFilter) ([]model.ReviewQueueItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}

	// The proposal snapshot is JSON; matching on counterparty and candidate
	// account happens in Go after a coarse tenant+status query.
	items, err := queryReviewItems(ctx, q, `
		SELECT id, tenant_id, proposal, score, breakdown, priority,
			failure_context, status, resolver_id, resolved_at,
			resolution_notes, reject_reason, due_at, created_at
		FROM review_queue_items
		WHERE tenant_id = ? AND status = ?
		ORDER BY created_at`, tenantID, model.ReviewStatusPending)
	if err != nil {
		return nil, err
	}

	var matched []model.ReviewQueueItem
	for _, item := range items {
		if scope.Counterparty != "" && !strings.EqualFold(item.Proposal.Counterparty, scope.Counterparty) {
			continue
		}
		if scope.CandidateAccount != "" && item.Proposal.CandidateAccount != scope.CandidateAccount {
			continue
		}
		matched = append(matched, item)
	}
	return matched, nil
}

func resolveReviewItem(ctx context.Context, q querier, item *model.ReviewQueueItem) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateReviewItem(item); err != nil {
		return err
	}
	if item.Status == model.ReviewStatusPending {
		return fmt.Errorf("%w: resolution status cannot be pending", ErrInvalidItem)
	}

	resolvedAt := time.Now().UTC()

	result, err := q.ExecContext(ctx, `
		UPDATE review_queue_items
		SET status = ?, resolver_id = ?, resolved_at = ?,
			resolution_notes = ?, reject_reason = ?
		WHERE tenant_id = ? AND id = ? AND status = ?`,
		item.Status, item.ResolverID, resolvedAt,
		item.ResolutionNotes, item.RejectReason,
		item.TenantID, item.ID, model.ReviewStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve review item: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return common.ErrAlreadyResolved
	}

	item.ResolvedAt = &resolvedAt
	return nil
}

func queryReviewItems(ctx context.Context, q querier, query string, args ...any) ([]model.ReviewQueueItem, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query review items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.ReviewQueueItem
	for rows.Next() {
		item, scanErr := scanReviewItem(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating review items: %w", err)
	}
	return items, nil
}

func scanReviewItem(scanner rowScanner) (*model.ReviewQueueItem, error) {
	var item model.ReviewQueueItem
	var proposalJSON, breakdownJSON string
	var resolvedAt, dueAt sql.NullTime

	err := scanner.Scan(
		&item.ID, &item.TenantID, &proposalJSON, &item.Score, &breakdownJSON,
		&item.Priority, &item.FailureContext, &item.Status, &item.ResolverID,
		&resolvedAt, &item.ResolutionNotes, &item.RejectReason, &dueAt,
		&item.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan review item: %w", err)
	}

	if err := json.Unmarshal([]byte(proposalJSON), &item.Proposal); err != nil {
		return nil, fmt.Errorf("corrupt proposal snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(breakdownJSON), &item.Breakdown); err != nil {
		return nil, fmt.Errorf("corrupt breakdown snapshot: %w", err)
	}
	if resolvedAt.Valid {
		item.ResolvedAt = &resolvedAt.Time
	}
	if dueAt.Valid {
		item.DueAt = dueAt.Time
	}
	return &item, nil
}
