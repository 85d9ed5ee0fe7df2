// Package metrics exposes Prometheus instrumentation for the posting
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline outcome labels.
const (
	OutcomeAutoPosted    = "auto_posted"
	OutcomeQueued        = "queued"
	OutcomePostingFailed = "posting_failed"
)

var (
	// ProposalsProcessed counts proposals by pipeline outcome.
	ProposalsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autopost",
		Name:      "proposals_total",
		Help:      "Proposals processed by the decision gate, by outcome.",
	}, []string{"outcome"})

	// ConfidenceScores observes the distribution of computed scores.
	ConfidenceScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "autopost",
		Name:      "confidence_score",
		Help:      "Distribution of confidence scores.",
		Buckets:   prometheus.LinearBuckets(0, 10, 11),
	})

	// ReviewResolutions counts human resolutions by kind.
	ReviewResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autopost",
		Name:      "review_resolutions_total",
		Help:      "Review queue resolutions, by resolution kind.",
	}, []string{"resolution"})

	// PatternsApplied counts pending items re-routed by ApplyToSimilar.
	PatternsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "autopost",
		Name:      "patterns_applied_total",
		Help:      "Pending items re-routed after a learned pattern was applied.",
	})
)
