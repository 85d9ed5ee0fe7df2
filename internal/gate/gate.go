// Package gate implements the decision gate that routes scored proposals to
// automatic posting or human review. Every state transition is written to
// the decision log before its side effect becomes visible, so the log is
// never behind the data it describes.
package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nordbooks/autopost/internal/classifier"
	"github.com/nordbooks/autopost/internal/common"
	"github.com/nordbooks/autopost/internal/ledger"
	"github.com/nordbooks/autopost/internal/metrics"
	"github.com/nordbooks/autopost/internal/model"
	"github.com/nordbooks/autopost/internal/scorer"
	"github.com/nordbooks/autopost/internal/service"
	"github.com/nordbooks/autopost/internal/voucher"
)

// Outcome is where a proposal ended up.
type Outcome string

// Outcome constants.
const (
	OutcomePosted Outcome = "posted"
	OutcomeQueued Outcome = "queued"
)

// reviewDueAfter is how long a queued item gets before its due date.
const reviewDueAfter = 72 * time.Hour

// Decision is the result of running one proposal through the gate.
type Decision struct {
	Voucher   *model.Voucher
	Item      *model.ReviewQueueItem
	Outcome   Outcome
	Breakdown model.FactorBreakdown
	Score     int
}

// Gate scores proposals and routes them per the tenant's threshold.
type Gate struct {
	store     service.Storage
	builder   *voucher.Builder
	ledger    *ledger.Ledger
	refresher *classifier.Refresher
	notifier  service.Notifier
}

// New creates a decision gate. refresher may be nil when no upstream
// classifier endpoint is configured.
func New(store service.Storage, builder *voucher.Builder, led *ledger.Ledger, refresher *classifier.Refresher, notifier service.Notifier) *Gate {
	return &Gate{
		store:     store,
		builder:   builder,
		ledger:    led,
		refresher: refresher,
		notifier:  notifier,
	}
}

// Process runs one proposal through score → gate → post-or-queue. Every
// error path terminates in a queued review item; nothing escapes as an
// unhandled fault and nothing is silently dropped.
func (g *Gate) Process(ctx context.Context, proposal *model.Proposal) (*Decision, error) {
	if proposal == nil || proposal.TenantID == "" {
		return nil, fmt.Errorf("%w: missing tenant", common.ErrInvalidProposal)
	}
	if proposal.ID == "" {
		proposal.ID = uuid.NewString()
	}

	settings, err := g.store.GetTenantSettings(ctx, proposal.TenantID)
	if err != nil {
		return nil, err
	}

	// A missing classifier signal may be refreshable from the upstream
	// service; any failure there leaves the signal absent, which scores 0.
	if proposal.ClassifierConfidence == nil && g.refresher != nil {
		if confidence, ok := g.refresher.Refresh(ctx, proposal); ok {
			proposal.ClassifierConfidence = &confidence
		}
	}

	patterns, err := g.store.GetActivePatterns(ctx, proposal.TenantID)
	if err != nil {
		return nil, err
	}

	result := scorer.Score(proposal, patterns)
	metrics.ConfidenceScores.Observe(float64(result.Score))

	if err := g.logScored(ctx, proposal, result); err != nil {
		return nil, err
	}

	slog.Info("Scored proposal",
		"tenant", proposal.TenantID,
		"proposal", proposal.ID,
		"score", result.Score,
		"threshold", settings.ConfidenceThreshold,
		"reason", result.Breakdown.ReasonCode)

	// The threshold is inclusive: score == threshold auto-posts.
	if result.Score >= settings.ConfidenceThreshold {
		return g.autoPost(ctx, proposal, settings, result)
	}
	return g.queue(ctx, proposal, result, "")
}

// autoPost builds and posts the voucher; any builder or ledger error is
// logged as posting_failed and forcibly re-routed to the review queue so a
// failed auto-post always reaches a human.
func (g *Gate) autoPost(ctx context.Context, proposal *model.Proposal, settings *model.TenantSettings, result scorer.Result) (*Decision, error) {
	built, err := g.builder.Build(ctx, proposal, settings, nil)
	if err != nil {
		return g.requeueFailed(ctx, proposal, result, err)
	}

	entry := g.newEntry(proposal.TenantID, "proposal", proposal.ID, model.ActionAutoPosted, model.ActorAutomation, model.CreatorAutomation)
	entry.Input = marshal(proposal)
	entry.Output = marshal(map[string]any{"voucher_id": built.ID, "score": result.Score})

	posted, err := g.ledger.Post(ctx, built, entry)
	if err != nil {
		return g.requeueFailed(ctx, proposal, result, err)
	}

	metrics.ProposalsProcessed.WithLabelValues(metrics.OutcomeAutoPosted).Inc()
	return &Decision{
		Outcome:   OutcomePosted,
		Voucher:   posted,
		Score:     result.Score,
		Breakdown: result.Breakdown,
	}, nil
}

// requeueFailed records the posting failure and routes the proposal to the
// review queue with the error attached as context.
func (g *Gate) requeueFailed(ctx context.Context, proposal *model.Proposal, result scorer.Result, cause error) (*Decision, error) {
	common.LogError(cause, "Auto-posting failed, escalating to review", common.Fields{
		"tenant":   proposal.TenantID,
		"proposal": proposal.ID,
	})

	entry := g.newEntry(proposal.TenantID, "proposal", proposal.ID, model.ActionPostingFailed, model.ActorAutomation, model.CreatorAutomation)
	entry.Input = marshal(proposal)
	entry.Output = marshal(map[string]string{"error": cause.Error()})
	if err := g.store.AppendDecisionLog(ctx, entry); err != nil {
		return nil, err
	}

	metrics.ProposalsProcessed.WithLabelValues(metrics.OutcomePostingFailed).Inc()
	return g.queue(ctx, proposal, result, cause.Error())
}

// queue creates the review item and its queued log entry in one
// transaction, then emits the escalation event.
func (g *Gate) queue(ctx context.Context, proposal *model.Proposal, result scorer.Result, failureContext string) (*Decision, error) {
	item := &model.ReviewQueueItem{
		ID:             uuid.NewString(),
		TenantID:       proposal.TenantID,
		Proposal:       *proposal,
		Score:          result.Score,
		Breakdown:      result.Breakdown,
		Priority:       100 - result.Score,
		FailureContext: failureContext,
		Status:         model.ReviewStatusPending,
		DueAt:          time.Now().UTC().Add(reviewDueAfter),
	}

	entry := g.newEntry(proposal.TenantID, "review_item", item.ID, model.ActionQueued, model.ActorAutomation, model.CreatorAutomation)
	entry.Input = marshal(proposal)
	entry.Output = marshal(map[string]any{"score": result.Score, "failure_context": failureContext})

	tx, err := g.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.AppendDecisionLog(ctx, entry); err != nil {
		return nil, err
	}
	if err := tx.CreateReviewItem(ctx, item); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit queueing: %w", err)
	}

	metrics.ProposalsProcessed.WithLabelValues(metrics.OutcomeQueued).Inc()
	g.publish(ctx, service.Event{
		Type:      service.EventItemEscalated,
		TenantID:  proposal.TenantID,
		SubjectID: item.ID,
		Message:   fmt.Sprintf("proposal scored %d, below threshold", result.Score),
		At:        time.Now().UTC(),
	})

	return &Decision{
		Outcome:   OutcomeQueued,
		Item:      item,
		Score:     result.Score,
		Breakdown: result.Breakdown,
	}, nil
}

func (g *Gate) logScored(ctx context.Context, proposal *model.Proposal, result scorer.Result) error {
	entry := g.newEntry(proposal.TenantID, "proposal", proposal.ID, model.ActionScored, model.ActorAutomation, model.CreatorAutomation)
	entry.Input = marshal(proposal)
	entry.Output = marshal(result.Breakdown)
	return g.store.AppendDecisionLog(ctx, entry)
}

func (g *Gate) newEntry(tenantID, subjectType, subjectID, action string, actorType model.ActorType, actorID string) *model.DecisionLogEntry {
	return &model.DecisionLogEntry{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Action:      action,
		ActorType:   actorType,
		ActorID:     actorID,
	}
}

func (g *Gate) publish(ctx context.Context, event service.Event) {
	if g.notifier == nil {
		return
	}
	if err := g.notifier.Publish(ctx, event); err != nil {
		slog.Warn("Failed to publish event", "type", event.Type, "error", err)
	}
}

func marshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
