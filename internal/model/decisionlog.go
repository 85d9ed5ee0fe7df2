package model

import (
	"encoding/json"
	"time"
)

// ActorType identifies who or what made a decision.
type ActorType string

// Actor type constants.
const (
	ActorAutomation ActorType = "automation"
	ActorHuman      ActorType = "human"
)

// Decision log actions.
const (
	ActionScored         = "scored"
	ActionAutoPosted     = "auto_posted"
	ActionQueued         = "queued"
	ActionPostingFailed  = "posting_failed"
	ActionApproved       = "approved"
	ActionRejected       = "rejected"
	ActionCorrected      = "corrected"
	ActionPatternCreated = "pattern_created"
	ActionPatternApplied = "pattern_applied"
	ActionReversed       = "reversed"
)

// DecisionLogEntry is one append-only audit record: who decided what, with
// input and output snapshots. Entries are write-once and never updated.
type DecisionLogEntry struct {
	CreatedAt   time.Time       `json:"created_at"`
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	SubjectType string          `json:"subject_type"` // proposal | voucher | review_item | pattern
	SubjectID   string          `json:"subject_id"`
	Action      string          `json:"action"`
	ActorID     string          `json:"actor_id"`
	ActorType   ActorType       `json:"actor_type"`
	Input       json.RawMessage `json:"input,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
}
