package model

import (
	"strings"
	"time"
)

// PatternAction is what a learned pattern suggests when it matches: an
// account and/or tax code to use instead of the original candidate.
type PatternAction struct {
	Account string `json:"account"`
	TaxCode string `json:"tax_code,omitempty"`
}

// LearnedPattern is a reusable adjustment derived from past human
// corrections. Patterns are never deleted, only deactivated, and their
// success rate decays under negative feedback rather than disappearing.
type LearnedPattern struct {
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	ID             string        `json:"id"`
	TenantID       string        `json:"tenant_id"` // empty means global scope
	Counterparty   string        `json:"counterparty"`
	TriggerAccount string        `json:"trigger_account"` // original candidate account
	Action         PatternAction `json:"action"`
	Hits           int64         `json:"hits"` // correct-on-apply count
	Applications   int64         `json:"applications"`
	Version        int64         `json:"version"` // bumped on every write, single-writer CAS
	IsActive       bool          `json:"is_active"`
}

// SuccessRate is the running ratio of correct applications to total
// applications.
func (p *LearnedPattern) SuccessRate() float64 {
	if p.Applications == 0 {
		return 0
	}
	return float64(p.Hits) / float64(p.Applications)
}

// Matches reports whether the pattern's trigger applies to the proposal.
// Counterparty comparison is case-insensitive; tenant scope must match
// unless the pattern is global.
func (p *LearnedPattern) Matches(proposal *Proposal) bool {
	if !p.IsActive {
		return false
	}
	if p.TenantID != "" && p.TenantID != proposal.TenantID {
		return false
	}
	if !strings.EqualFold(p.Counterparty, proposal.Counterparty) {
		return false
	}
	return p.TriggerAccount == proposal.CandidateAccount
}
