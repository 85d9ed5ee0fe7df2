// Package learning turns human review decisions into learned patterns that
// feed back into future confidence scores. It never writes to the ledger;
// its only output is pattern state.
package learning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nordbooks/autopost/internal/common"
	"github.com/nordbooks/autopost/internal/model"
	"github.com/nordbooks/autopost/internal/service"
)

// Neutral prior for a freshly created pattern: one hit over two
// applications, a 0.5 success rate that later feedback moves in either
// direction.
const (
	priorHits         = 1
	priorApplications = 2
)

// casAttempts bounds the retry loop around the per-pattern
// compare-and-set.
const casAttempts = 3

// Resolution is the payload of a review decision fed back into learning.
type Resolution struct {
	ResolverID string
	Status     model.ReviewStatus
	Overrides  []model.LineOverride
}

// Engine derives and maintains learned patterns from review feedback.
type Engine struct {
	store service.Storage
}

// New creates a learning engine over the given storage.
func New(store service.Storage) *Engine {
	return &Engine{store: store}
}

// RecordFeedback consumes one resolved review item. A correction creates or
// strengthens the pattern {counterparty, original candidate account} →
// override; a rejection records a negative signal against an existing
// matching pattern. Patterns decay rather than disappear: nothing here ever
// deletes one.
func (e *Engine) RecordFeedback(ctx context.Context, item *model.ReviewQueueItem, resolution Resolution) (*model.LearnedPattern, error) {
	if item == nil {
		return nil, fmt.Errorf("%w: nil review item", common.ErrInvalidConfig)
	}

	switch resolution.Status {
	case model.ReviewStatusCorrected:
		return e.recordCorrection(ctx, item, resolution)
	case model.ReviewStatusRejected:
		return nil, e.recordRejection(ctx, item)
	default:
		// Approvals confirm the candidate; there is nothing to learn.
		return nil, nil
	}
}

func (e *Engine) recordCorrection(ctx context.Context, item *model.ReviewQueueItem, resolution Resolution) (*model.LearnedPattern, error) {
	proposal := &item.Proposal
	if proposal.Counterparty == "" || proposal.CandidateAccount == "" || len(resolution.Overrides) == 0 {
		return nil, nil
	}
	action := model.PatternAction{
		Account: resolution.Overrides[0].Account,
		TaxCode: resolution.Overrides[0].TaxCode,
	}
	if action.Account == "" {
		return nil, nil
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		existing, err := e.store.FindPatternByTrigger(ctx, proposal.TenantID, proposal.Counterparty, proposal.CandidateAccount)
		if err != nil {
			return nil, err
		}

		if existing == nil {
			pattern := &model.LearnedPattern{
				ID:             uuid.NewString(),
				TenantID:       proposal.TenantID,
				Counterparty:   proposal.Counterparty,
				TriggerAccount: proposal.CandidateAccount,
				Action:         action,
				Hits:           priorHits,
				Applications:   priorApplications,
				IsActive:       true,
			}
			if err := e.store.CreateLearnedPattern(ctx, pattern); err != nil {
				if errors.Is(err, common.ErrDuplicateEntry) {
					continue // lost a creation race, strengthen instead
				}
				return nil, err
			}
			e.logPattern(ctx, pattern, resolution.ResolverID, model.ActionPatternCreated)
			return pattern, nil
		}

		existing.Applications++
		if existing.Action == action {
			existing.Hits++
		} else {
			// The humans now correct to a different account; follow them,
			// but the new mapping must earn its success rate from scratch.
			existing.Action = action
			existing.Hits = 1
		}

		err = e.store.UpdateLearnedPattern(ctx, existing)
		if errors.Is(err, common.ErrStaleWrite) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return existing, nil
	}

	return nil, fmt.Errorf("%w: pattern for %s/%s", common.ErrStaleWrite, proposal.Counterparty, proposal.CandidateAccount)
}

// recordRejection lowers an existing pattern's success rate by counting an
// application without a hit. Missing patterns are not created from
// rejections.
func (e *Engine) recordRejection(ctx context.Context, item *model.ReviewQueueItem) error {
	proposal := &item.Proposal
	if proposal.Counterparty == "" || proposal.CandidateAccount == "" {
		return nil
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		existing, err := e.store.FindPatternByTrigger(ctx, proposal.TenantID, proposal.Counterparty, proposal.CandidateAccount)
		if err != nil {
			return err
		}
		if existing == nil {
			return nil
		}

		existing.Applications++
		err = e.store.UpdateLearnedPattern(ctx, existing)
		if errors.Is(err, common.ErrStaleWrite) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: pattern for %s/%s", common.ErrStaleWrite, proposal.Counterparty, proposal.CandidateAccount)
}

// RecordApplication counts one application of a pattern (with its hit,
// since the resulting posting passed the gate). Called by ApplyToSimilar
// for each item it re-routes.
func (e *Engine) RecordApplication(ctx context.Context, patternID string) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		pattern, err := e.store.GetLearnedPattern(ctx, patternID)
		if err != nil {
			return err
		}
		pattern.Applications++
		pattern.Hits++
		err = e.store.UpdateLearnedPattern(ctx, pattern)
		if errors.Is(err, common.ErrStaleWrite) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: pattern %s", common.ErrStaleWrite, patternID)
}

func (e *Engine) logPattern(ctx context.Context, pattern *model.LearnedPattern, resolverID, action string) {
	output, _ := json.Marshal(pattern)
	entry := &model.DecisionLogEntry{
		ID:          uuid.NewString(),
		TenantID:    pattern.TenantID,
		SubjectType: "pattern",
		SubjectID:   pattern.ID,
		Action:      action,
		ActorType:   model.ActorHuman,
		ActorID:     resolverID,
		Output:      output,
	}
	if err := e.store.AppendDecisionLog(ctx, entry); err != nil {
		slog.Warn("Failed to log pattern decision", "pattern", pattern.ID, "error", err)
	}
}
