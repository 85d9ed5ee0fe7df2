package model

import "time"

// ReviewStatus is the lifecycle state of a review queue item.
type ReviewStatus string

// Review status constants. An item leaves pending exactly once and is
// never re-opened.
const (
	ReviewStatusPending   ReviewStatus = "pending"
	ReviewStatusApproved  ReviewStatus = "approved"
	ReviewStatusRejected  ReviewStatus = "rejected"
	ReviewStatusCorrected ReviewStatus = "corrected"
)

// ReviewQueueItem is a proposal awaiting human resolution, together with
// the score that sent it to review.
type ReviewQueueItem struct {
	CreatedAt       time.Time       `json:"created_at"`
	DueAt           time.Time       `json:"due_at"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
	ID              string          `json:"id"`
	TenantID        string          `json:"tenant_id"`
	ResolverID      string          `json:"resolver_id,omitempty"`
	ResolutionNotes string          `json:"resolution_notes,omitempty"`
	RejectReason    string          `json:"reject_reason,omitempty"`
	FailureContext  string          `json:"failure_context,omitempty"` // builder error that forced queueing
	Status          ReviewStatus    `json:"status"`
	Proposal        Proposal        `json:"proposal"`
	Breakdown       FactorBreakdown `json:"breakdown"`
	Score           int             `json:"score"`
	Priority        int             `json:"priority"` // higher sorts first
}

// Resolved reports whether the item has left the pending state.
func (i *ReviewQueueItem) Resolved() bool {
	return i.Status != ReviewStatusPending
}
