// Package review implements the human resolution side of the pipeline:
// approve, reject, correct and apply-to-similar on queued items. Each item
// is resolved exactly once; concurrent resolution attempts race on a status
// compare-and-set and the loser performs no side effect.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nordbooks/autopost/internal/common"
	"github.com/nordbooks/autopost/internal/learning"
	"github.com/nordbooks/autopost/internal/ledger"
	"github.com/nordbooks/autopost/internal/metrics"
	"github.com/nordbooks/autopost/internal/model"
	"github.com/nordbooks/autopost/internal/scorer"
	"github.com/nordbooks/autopost/internal/service"
	"github.com/nordbooks/autopost/internal/voucher"
)

// Queue exposes the review queue operations.
type Queue struct {
	store    service.Storage
	builder  *voucher.Builder
	ledger   *ledger.Ledger
	learner  *learning.Engine
	notifier service.Notifier
}

// New creates a review queue service.
func New(store service.Storage, builder *voucher.Builder, led *ledger.Ledger, learner *learning.Engine, notifier service.Notifier) *Queue {
	return &Queue{
		store:    store,
		builder:  builder,
		ledger:   led,
		learner:  learner,
		notifier: notifier,
	}
}

// ListPending returns pending items for a tenant, highest priority first.
func (q *Queue) ListPending(ctx context.Context, filter service.ReviewFilter) ([]model.ReviewQueueItem, error) {
	return q.store.ListPendingReviewItems(ctx, filter)
}

// Approve posts a voucher from the item's original proposal and marks the
// item approved. The resolution and the posting commit in one transaction,
// so at-most-once posting holds even under concurrent approval clicks.
func (q *Queue) Approve(ctx context.Context, tenantID, itemID, resolverID, notes string) (*model.Voucher, error) {
	if resolverID == "" {
		return nil, common.NewUserError("resolver identity is required", common.ErrInvalidConfig)
	}

	item, err := q.store.GetReviewItem(ctx, tenantID, itemID)
	if err != nil {
		return nil, err
	}
	if item.Resolved() {
		return nil, common.ErrAlreadyResolved
	}

	settings, err := q.store.GetTenantSettings(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	built, err := q.builder.Build(ctx, &item.Proposal, settings, nil)
	if err != nil {
		return nil, q.failResolution(ctx, item, resolverID, err)
	}
	built.CreatedBy = resolverID

	item.Status = model.ReviewStatusApproved
	item.ResolverID = resolverID
	item.ResolutionNotes = notes

	posted, err := q.resolveAndPost(ctx, item, built, model.ActionApproved)
	if err != nil {
		return nil, err
	}

	metrics.ReviewResolutions.WithLabelValues(string(model.ReviewStatusApproved)).Inc()
	return posted, nil
}

// Reject marks the item rejected without creating a voucher. The reason is
// mandatory.
func (q *Queue) Reject(ctx context.Context, tenantID, itemID, resolverID, reason, notes string) error {
	if resolverID == "" {
		return common.NewUserError("resolver identity is required", common.ErrInvalidConfig)
	}
	if reason == "" {
		return common.NewUserError("a rejection reason is required", common.ErrInvalidConfig)
	}

	item, err := q.store.GetReviewItem(ctx, tenantID, itemID)
	if err != nil {
		return err
	}
	if item.Resolved() {
		return common.ErrAlreadyResolved
	}

	item.Status = model.ReviewStatusRejected
	item.ResolverID = resolverID
	item.RejectReason = reason
	item.ResolutionNotes = notes

	entry := q.resolutionEntry(item, model.ActionRejected, resolverID)
	entry.Output = marshal(map[string]string{"reason": reason})

	tx, err := q.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.AppendDecisionLog(ctx, entry); err != nil {
		return err
	}
	if err := tx.ResolveReviewItem(ctx, item); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rejection: %w", err)
	}

	if _, err := q.learner.RecordFeedback(ctx, item, learning.Resolution{
		ResolverID: resolverID,
		Status:     model.ReviewStatusRejected,
	}); err != nil {
		slog.Warn("Failed to record rejection feedback", "item", item.ID, "error", err)
	}

	metrics.ReviewResolutions.WithLabelValues(string(model.ReviewStatusRejected)).Inc()
	return nil
}

// Correct posts a voucher using resolver-supplied account/tax overrides
// instead of the original candidate, marks the item corrected, and feeds
// the correction into the learning engine.
func (q *Queue) Correct(ctx context.Context, tenantID, itemID, resolverID string, overrides []model.LineOverride, notes string) (*model.Voucher, error) {
	if resolverID == "" {
		return nil, common.NewUserError("resolver identity is required", common.ErrInvalidConfig)
	}
	if len(overrides) == 0 {
		return nil, common.NewUserError("a correction needs at least one override line", common.ErrInvalidConfig)
	}

	item, err := q.store.GetReviewItem(ctx, tenantID, itemID)
	if err != nil {
		return nil, err
	}
	if item.Resolved() {
		return nil, common.ErrAlreadyResolved
	}

	settings, err := q.store.GetTenantSettings(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	built, err := q.builder.Build(ctx, &item.Proposal, settings, overrides)
	if err != nil {
		return nil, q.failResolution(ctx, item, resolverID, err)
	}
	built.CreatedBy = resolverID

	item.Status = model.ReviewStatusCorrected
	item.ResolverID = resolverID
	item.ResolutionNotes = notes

	posted, err := q.resolveAndPost(ctx, item, built, model.ActionCorrected)
	if err != nil {
		return nil, err
	}

	if _, err := q.learner.RecordFeedback(ctx, item, learning.Resolution{
		ResolverID: resolverID,
		Status:     model.ReviewStatusCorrected,
		Overrides:  overrides,
	}); err != nil {
		slog.Warn("Failed to record correction feedback", "item", item.ID, "error", err)
	}

	metrics.ReviewResolutions.WithLabelValues(string(model.ReviewStatusCorrected)).Inc()
	return posted, nil
}

// ApplyResult summarizes an ApplyToSimilar run.
type ApplyResult struct {
	PatternID string
	Matched   int
	Posted    int
	Failed    int
}

// ApplyToSimilar re-scores every other pending item matching the scope
// filter and routes each through the gate rule independently; items whose
// refreshed score clears the tenant threshold are posted immediately. A
// failure on one item never blocks the others.
func (q *Queue) ApplyToSimilar(ctx context.Context, tenantID, itemID, resolverID string, scope service.ScopeFilter) (*ApplyResult, error) {
	item, err := q.store.GetReviewItem(ctx, tenantID, itemID)
	if err != nil {
		return nil, err
	}
	if !item.Resolved() {
		return nil, common.NewUserError("resolve the item before applying it to similar ones", common.ErrInvalidConfig)
	}

	if scope.Counterparty == "" && scope.CandidateAccount == "" {
		scope = service.ScopeFilter{
			Counterparty:     item.Proposal.Counterparty,
			CandidateAccount: item.Proposal.CandidateAccount,
		}
	}

	settings, err := q.store.GetTenantSettings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	patterns, err := q.store.GetActivePatterns(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	pending, err := q.store.ListPendingReviewItemsByScope(ctx, tenantID, scope)
	if err != nil {
		return nil, err
	}

	result := &ApplyResult{}
	if pattern := matchingPattern(patterns, scope); pattern != nil {
		result.PatternID = pattern.ID
	}

	for i := range pending {
		candidate := &pending[i]
		if candidate.ID == itemID {
			continue
		}
		result.Matched++

		rescored := scorer.Score(&candidate.Proposal, patterns)
		if rescored.Score < settings.ConfidenceThreshold {
			continue
		}

		if err := q.postRescored(ctx, candidate, settings, rescored, resolverID, result.PatternID); err != nil {
			result.Failed++
			common.LogError(err, "Failed to re-route pending item", common.Fields{
				"tenant": tenantID,
				"item":   candidate.ID,
			})
			continue
		}
		result.Posted++
	}

	if result.Posted > 0 {
		metrics.PatternsApplied.Add(float64(result.Posted))
		q.publish(ctx, service.Event{
			Type:      service.EventPatternApplied,
			TenantID:  tenantID,
			SubjectID: result.PatternID,
			Message:   fmt.Sprintf("pattern applied to %d items", result.Posted),
			Count:     result.Posted,
			At:        time.Now().UTC(),
		})
	}
	return result, nil
}

// postRescored resolves one pending item as approved and posts its voucher
// in a single transaction; the applied pattern decides the account mapping.
func (q *Queue) postRescored(ctx context.Context, item *model.ReviewQueueItem, settings *model.TenantSettings, rescored scorer.Result, resolverID, patternID string) error {
	var overrides []model.LineOverride
	if patternID != "" {
		pattern, err := q.store.GetLearnedPattern(ctx, patternID)
		if err != nil {
			return err
		}
		overrides = []model.LineOverride{{Account: pattern.Action.Account, TaxCode: pattern.Action.TaxCode}}
	}

	built, err := q.builder.Build(ctx, &item.Proposal, settings, overrides)
	if err != nil {
		return err
	}
	built.CreatedBy = model.CreatorAutomation

	item.Status = model.ReviewStatusApproved
	item.ResolverID = resolverID
	item.ResolutionNotes = "auto-approved by learned pattern"
	item.Score = rescored.Score
	item.Breakdown = rescored.Breakdown

	entry := q.resolutionEntry(item, model.ActionPatternApplied, resolverID)
	entry.Output = marshal(map[string]any{"voucher_id": built.ID, "score": rescored.Score, "pattern_id": patternID})

	tx, err := q.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.ResolveReviewItem(ctx, item); err != nil {
		return err
	}
	if err := q.ledger.PostInTx(ctx, tx, built, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit re-routing: %w", err)
	}

	if patternID != "" {
		if err := q.learner.RecordApplication(ctx, patternID); err != nil {
			slog.Warn("Failed to record pattern application", "pattern", patternID, "error", err)
		}
	}
	return nil
}

// resolveAndPost commits the status compare-and-set and the voucher insert
// atomically; either the item is resolved and the voucher posted, or
// neither happened.
func (q *Queue) resolveAndPost(ctx context.Context, item *model.ReviewQueueItem, built *model.Voucher, action string) (*model.Voucher, error) {
	entry := q.resolutionEntry(item, action, item.ResolverID)
	entry.Output = marshal(map[string]string{"voucher_id": built.ID})

	tx, err := q.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.ResolveReviewItem(ctx, item); err != nil {
		return nil, err
	}
	if err := q.ledger.PostInTx(ctx, tx, built, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit resolution: %w", err)
	}

	slog.Info("Resolved review item",
		"tenant", item.TenantID,
		"item", item.ID,
		"status", item.Status,
		"resolver", item.ResolverID,
		"voucher", built.ID)
	return built, nil
}

// failResolution surfaces a build failure to the decision log and back to
// the resolver as a rejected save; the item stays pending.
func (q *Queue) failResolution(ctx context.Context, item *model.ReviewQueueItem, resolverID string, cause error) error {
	entry := q.resolutionEntry(item, model.ActionPostingFailed, resolverID)
	entry.Output = marshal(map[string]string{"error": cause.Error()})
	if err := q.store.AppendDecisionLog(ctx, entry); err != nil {
		slog.Warn("Failed to log resolution failure", "item", item.ID, "error", err)
	}
	return cause
}

func (q *Queue) resolutionEntry(item *model.ReviewQueueItem, action, actorID string) *model.DecisionLogEntry {
	return &model.DecisionLogEntry{
		ID:          uuid.NewString(),
		TenantID:    item.TenantID,
		SubjectType: "review_item",
		SubjectID:   item.ID,
		Action:      action,
		ActorType:   model.ActorHuman,
		ActorID:     actorID,
		Input:       marshal(item.Proposal),
	}
}

func (q *Queue) publish(ctx context.Context, event service.Event) {
	if q.notifier == nil {
		return
	}
	if err := q.notifier.Publish(ctx, event); err != nil {
		slog.Warn("Failed to publish event", "type", event.Type, "error", err)
	}
}

func matchingPattern(patterns []model.LearnedPattern, scope service.ScopeFilter) *model.LearnedPattern {
	for i := range patterns {
		p := &patterns[i]
		if !p.IsActive {
			continue
		}
		if scope.Counterparty != "" && !strings.EqualFold(p.Counterparty, scope.Counterparty) {
			continue
		}
		if scope.CandidateAccount != "" && p.TriggerAccount != scope.CandidateAccount {
			continue
		}
		return p
	}
	return nil
}

func marshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
