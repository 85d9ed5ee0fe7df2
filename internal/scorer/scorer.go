// Package scorer computes the 0-100 confidence score that gates automatic
// posting. Scoring is a pure function; the caller owns logging and
// persistence of the result.
package scorer

import (
	"math"

	"github.com/nordbooks/autopost/internal/model"
)

// Factor weights. They sum to 1.0; a missing factor scores 0 rather than
// being dropped from the sum, so broken input always pulls the total down.
const (
	weightExtraction   = 0.30
	weightClassifier   = 0.35
	weightCompleteness = 0.20
	weightPlausibility = 0.15
)

// maxPatternBoost is the most a single learned pattern may raise a score;
// a pattern at the 0.90 success-rate mark contributes close to the full 15.
const maxPatternBoost = 15

// minPatternSuccessRate is the observed success rate a pattern needs before
// it is allowed to adjust scores at all. Patterns below the neutral prior
// are net-negative evidence and contribute nothing.
const minPatternSuccessRate = 0.5

// Result is the outcome of scoring one proposal.
type Result struct {
	Breakdown model.FactorBreakdown
	Score     int
}

// Score evaluates a proposal against the weighted factors plus any matching
// learned patterns. An absent or invalid classifier signal short-circuits to
// score 0 with a reason code, guaranteeing broken input is never auto-posted.
func Score(proposal *model.Proposal, patterns []model.LearnedPattern) Result {
	if proposal.ClassifierConfidence == nil {
		return Result{Breakdown: model.FactorBreakdown{ReasonCode: model.ReasonClassifierSignalMissing}}
	}
	classifier := *proposal.ClassifierConfidence
	if classifier < 0 || classifier > 1 || math.IsNaN(classifier) {
		return Result{Breakdown: model.FactorBreakdown{ReasonCode: model.ReasonClassifierSignalInvalid}}
	}

	breakdown := model.FactorBreakdown{
		ExtractionQuality:    normalizeSignal(proposal.ExtractionQuality),
		ClassifierConfidence: int(math.Round(classifier * 100)),
		FieldCompleteness:    completeness(proposal),
		AmountPlausibility:   plausibility(proposal),
	}

	base := weightExtraction*float64(breakdown.ExtractionQuality) +
		weightClassifier*float64(breakdown.ClassifierConfidence) +
		weightCompleteness*float64(breakdown.FieldCompleteness) +
		weightPlausibility*float64(breakdown.AmountPlausibility)

	score := int(math.Round(base))

	// Pattern adjustments are additive and can only raise the score.
	boost := 0
	for i := range patterns {
		pattern := &patterns[i]
		if !pattern.Matches(proposal) {
			continue
		}
		rate := pattern.SuccessRate()
		if rate < minPatternSuccessRate {
			continue
		}
		boost += int(math.Round(maxPatternBoost * rate))
	}
	breakdown.PatternAdjustment = boost

	score = clamp(score + boost)
	return Result{Score: score, Breakdown: breakdown}
}

// normalizeSignal maps an optional 0.0-1.0 signal to [0,100]; absence and
// out-of-range values score 0, so a broken signal never pulls a score up.
func normalizeSignal(signal *float64) int {
	if signal == nil {
		return 0
	}
	v := *signal
	if v < 0 || v > 1 || math.IsNaN(v) {
		return 0
	}
	return int(math.Round(v * 100))
}

// completeness scores the fraction of fields a voucher needs that the
// proposal actually carries.
func completeness(p *model.Proposal) int {
	present := 0
	total := 6

	if !p.AmountExclTax.IsZero() {
		present++
	}
	if !p.TotalAmount.IsZero() {
		present++
	}
	if p.Currency != "" {
		present++
	}
	if p.Counterparty != "" {
		present++
	}
	if !p.DocumentDate.IsZero() {
		present++
	}
	if p.CandidateAccount != "" {
		present++
	}

	return int(math.Round(float64(present) / float64(total) * 100))
}

// plausibility checks the arithmetic consistency of the proposal's amounts:
// net + tax must equal total and nothing may be negative.
func plausibility(p *model.Proposal) int {
	if p.TotalAmount.Sign() <= 0 || p.AmountExclTax.Sign() < 0 || p.TaxAmount.Sign() < 0 {
		return 0
	}
	if p.AmountExclTax.Add(p.TaxAmount).Equal(p.TotalAmount) {
		return 100
	}
	if p.AmountExclTax.IsZero() && p.TaxAmount.IsZero() {
		// Only a total was extracted; consistent but incomplete.
		return 50
	}
	return 0
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
